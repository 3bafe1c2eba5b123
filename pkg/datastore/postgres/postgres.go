// Package postgres is the pgxpool-backed implementation of
// datastore.Store. Every mutating operation the engine performs runs
// inside RunTx, which wraps a single pgx transaction; row helpers here
// take a pgx.Tx directly rather than re-deriving one, mirroring the
// "Begin once, pass tx down" shape of the store this package is
// modeled on.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marmos91/dapagg/pkg/datastore"
	"github.com/marmos91/dapagg/pkg/hpke"
	"github.com/marmos91/dapagg/pkg/ids"
	"github.com/marmos91/dapagg/pkg/taskparams"
	"github.com/marmos91/dapagg/pkg/wire"
)

// Store is the postgres-backed datastore.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a connection pool against cfg and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// RunTx runs f inside a single serializable transaction, committing on
// a nil return and rolling back otherwise.
func (s *Store) RunTx(ctx context.Context, name string, f func(ctx context.Context, tx datastore.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapPgError(err, name)
	}
	defer pgTx.Rollback(ctx)

	if err := f(ctx, &tx{pgTx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return mapPgError(err, name)
	}
	return nil
}

// ListAllTasks loads every task in one round trip, for startup and
// registry-refresh use.
func (s *Store) ListAllTasks(ctx context.Context) ([]taskparams.TaskParameters, error) {
	rows, err := s.pool.Query(ctx, selectTaskColumns+" FROM tasks ORDER BY task_id")
	if err != nil {
		return nil, mapPgError(err, "ListAllTasks")
	}
	defer rows.Close()

	var out []taskparams.TaskParameters
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, mapPgError(err, "ListAllTasks")
		}
		out = append(out, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err, "ListAllTasks")
	}
	return out, nil
}

// tx implements datastore.Tx over a single pgx.Tx.
type tx struct {
	pgTx pgx.Tx
}

var _ datastore.Tx = (*tx)(nil)
var _ datastore.Store = (*Store)(nil)

func (t *tx) GetClientReportByTaskIDAndNonce(ctx context.Context, taskID ids.TaskID, nonce ids.Nonce) (*datastore.StoredClientReport, error) {
	row := t.pgTx.QueryRow(ctx, `
		SELECT extensions, share_leader, share_helper, created_at
		FROM client_reports
		WHERE task_id = $1 AND nonce_time = $2 AND nonce_rand = $3
	`, taskID[:], int64(nonce.Time), int64(nonce.Rand))

	var extBytes, shareLeader, shareHelper []byte
	var createdAt time.Time
	if err := row.Scan(&extBytes, &shareLeader, &shareHelper, &createdAt); err != nil {
		return nil, mapPgError(err, "GetClientReportByTaskIDAndNonce")
	}

	exts, err := wire.DecodeExtensions(extBytes)
	if err != nil {
		return nil, fmt.Errorf("decoding stored extensions: %w", err)
	}
	leaderCt, err := wire.DecodeCiphertext(shareLeader)
	if err != nil {
		return nil, fmt.Errorf("decoding stored leader share: %w", err)
	}
	helperCt, err := wire.DecodeCiphertext(shareHelper)
	if err != nil {
		return nil, fmt.Errorf("decoding stored helper share: %w", err)
	}

	return &datastore.StoredClientReport{
		TaskID:     taskID,
		Nonce:      nonce,
		Extensions: exts,
		Shares:     [2]wire.HpkeCiphertext{leaderCt, helperCt},
		CreatedAt:  createdAt,
	}, nil
}

func (t *tx) PutClientReport(ctx context.Context, report datastore.StoredClientReport) error {
	extBytes, err := wire.EncodeExtensions(report.Extensions)
	if err != nil {
		return fmt.Errorf("encoding extensions: %w", err)
	}
	leaderBytes, err := wire.EncodeCiphertext(report.Shares[0])
	if err != nil {
		return fmt.Errorf("encoding leader share: %w", err)
	}
	helperBytes, err := wire.EncodeCiphertext(report.Shares[1])
	if err != nil {
		return fmt.Errorf("encoding helper share: %w", err)
	}

	_, err = t.pgTx.Exec(ctx, `
		INSERT INTO client_reports (task_id, nonce_time, nonce_rand, extensions, share_leader, share_helper)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, report.TaskID[:], int64(report.Nonce.Time), int64(report.Nonce.Rand), extBytes, leaderBytes, helperBytes)
	return mapPgError(err, "PutClientReport")
}

func (t *tx) PutReportShare(ctx context.Context, taskID ids.TaskID, share wire.ReportShare) (int64, error) {
	extBytes, err := wire.EncodeExtensions(share.Extensions)
	if err != nil {
		return 0, fmt.Errorf("encoding extensions: %w", err)
	}
	shareBytes, err := wire.EncodeCiphertext(share.EncryptedInputShare)
	if err != nil {
		return 0, fmt.Errorf("encoding share: %w", err)
	}

	var id int64
	err = t.pgTx.QueryRow(ctx, `
		INSERT INTO report_shares (task_id, nonce_time, nonce_rand, extensions, share)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id, nonce_time, nonce_rand) DO UPDATE SET task_id = EXCLUDED.task_id
		RETURNING id
	`, taskID[:], int64(share.Nonce.Time), int64(share.Nonce.Rand), extBytes, shareBytes).Scan(&id)
	if err != nil {
		return 0, mapPgError(err, "PutReportShare")
	}
	return id, nil
}

func (t *tx) PutAggregationJob(ctx context.Context, job datastore.AggregationJob) error {
	_, err := t.pgTx.Exec(ctx, `
		INSERT INTO aggregation_jobs (task_id, aggregation_job_id, agg_param, state)
		VALUES ($1, $2, $3, $4)
	`, job.TaskID[:], job.AggregationJobID[:], job.AggParam, string(job.State))
	return mapPgError(err, "PutAggregationJob")
}

func (t *tx) PutReportAggregation(ctx context.Context, ra datastore.ReportAggregation) error {
	_, err := t.pgTx.Exec(ctx, `
		INSERT INTO report_aggregations
			(aggregation_job_id, task_id, client_report_id, ord, state, prep_step, output_share, transition_error)
		VALUES ($1, (SELECT task_id FROM aggregation_jobs WHERE aggregation_job_id = $1), $2, $3, $4, $5, $6, $7)
	`, ra.AggregationJobID[:], ra.ClientReportID, ra.Ord, string(ra.State), nullable(ra.PrepStep), nullable(ra.OutputShare), transitionErrorColumn(ra.State, ra.TransitionError))
	return mapPgError(err, "PutReportAggregation")
}

func (t *tx) GetAggregationJob(ctx context.Context, taskID ids.TaskID, jobID ids.AggregationJobID) (*datastore.AggregationJob, error) {
	row := t.pgTx.QueryRow(ctx, `
		SELECT agg_param, state, created_at
		FROM aggregation_jobs
		WHERE task_id = $1 AND aggregation_job_id = $2
	`, taskID[:], jobID[:])

	var aggParam []byte
	var state string
	var createdAt time.Time
	if err := row.Scan(&aggParam, &state, &createdAt); err != nil {
		return nil, mapPgError(err, "GetAggregationJob")
	}
	return &datastore.AggregationJob{
		TaskID:           taskID,
		AggregationJobID: jobID,
		AggParam:         aggParam,
		State:            datastore.JobState(state),
		CreatedAt:        createdAt,
	}, nil
}

func (t *tx) GetReportAggregations(ctx context.Context, jobID ids.AggregationJobID) ([]datastore.ReportAggregation, error) {
	rows, err := t.pgTx.Query(ctx, `
		SELECT ra.client_report_id, rs.nonce_time, rs.nonce_rand, ra.ord, ra.state, ra.prep_step, ra.output_share, ra.transition_error
		FROM report_aggregations ra
		JOIN report_shares rs ON rs.id = ra.client_report_id
		WHERE ra.aggregation_job_id = $1
		ORDER BY ra.ord
	`, jobID[:])
	if err != nil {
		return nil, mapPgError(err, "GetReportAggregations")
	}
	defer rows.Close()

	var out []datastore.ReportAggregation
	for rows.Next() {
		var ra datastore.ReportAggregation
		var nonceTime, nonceRand int64
		var state string
		var prepStep, outputShare []byte
		var transitionError *int16
		if err := rows.Scan(&ra.ClientReportID, &nonceTime, &nonceRand, &ra.Ord, &state, &prepStep, &outputShare, &transitionError); err != nil {
			return nil, mapPgError(err, "GetReportAggregations")
		}
		ra.AggregationJobID = jobID
		ra.Nonce = ids.Nonce{Time: uint64(nonceTime), Rand: uint64(nonceRand)}
		ra.State = datastore.ReportAggregationState(state)
		ra.PrepStep = prepStep
		ra.OutputShare = outputShare
		if transitionError != nil {
			ra.TransitionError = uint8(*transitionError)
		}
		out = append(out, ra)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err, "GetReportAggregations")
	}
	return out, nil
}

func (t *tx) UpdateAggregationJobState(ctx context.Context, taskID ids.TaskID, jobID ids.AggregationJobID, state datastore.JobState) error {
	tag, err := t.pgTx.Exec(ctx, `
		UPDATE aggregation_jobs SET state = $1 WHERE task_id = $2 AND aggregation_job_id = $3
	`, string(state), taskID[:], jobID[:])
	if err != nil {
		return mapPgError(err, "UpdateAggregationJobState")
	}
	if tag.RowsAffected() == 0 {
		return &datastore.StoreError{Kind: datastore.ErrMutationTargetNotFound, Op: "UpdateAggregationJobState"}
	}
	return nil
}

func (t *tx) UpdateReportAggregation(ctx context.Context, ra datastore.ReportAggregation) error {
	tag, err := t.pgTx.Exec(ctx, `
		UPDATE report_aggregations
		SET state = $1, prep_step = $2, output_share = $3, transition_error = $4
		WHERE aggregation_job_id = $5 AND client_report_id = $6
	`, string(ra.State), nullable(ra.PrepStep), nullable(ra.OutputShare), transitionErrorColumn(ra.State, ra.TransitionError), ra.AggregationJobID[:], ra.ClientReportID)
	if err != nil {
		return mapPgError(err, "UpdateReportAggregation")
	}
	if tag.RowsAffected() == 0 {
		return &datastore.StoreError{Kind: datastore.ErrMutationTargetNotFound, Op: "UpdateReportAggregation"}
	}
	return nil
}

const selectTaskColumns = `
	SELECT task_id, leader_endpoint, helper_endpoint, vdaf_kind, vdaf_bits, vdaf_buckets,
	       vdaf_vector_length, vdaf_bit_length, role, vdaf_verify_key, min_batch_size,
	       max_batch_lifetime, batch_duration, tolerable_clock_skew, collector_hpke_config,
	       aggregator_auth_key, hpke_config_id, hpke_private_key, hpke_public_key, created_at`

// rowScanner abstracts over pgx.Row and pgx.Rows, both satisfied by Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*taskparams.TaskParameters, error) {
	var taskID, vdafVerifyKey, collectorHpkeCfg, authKey, hpkePriv, hpkePub []byte
	var leaderEndpoint, helperEndpoint, vdafKind, role string
	var vdafBits int16
	var vdafBuckets, vdafVectorLength int32
	var vdafBitLength int32
	var minBatchSize, maxBatchLifetime, batchDuration, clockSkew int64
	var hpkeConfigID int16
	var createdAt time.Time

	if err := row.Scan(
		&taskID, &leaderEndpoint, &helperEndpoint, &vdafKind, &vdafBits, &vdafBuckets,
		&vdafVectorLength, &vdafBitLength, &role, &vdafVerifyKey, &minBatchSize,
		&maxBatchLifetime, &batchDuration, &clockSkew, &collectorHpkeCfg,
		&authKey, &hpkeConfigID, &hpkePriv, &hpkePub, &createdAt,
	); err != nil {
		return nil, err
	}

	var tid ids.TaskID
	copy(tid[:], taskID)

	collectorCfgWire, err := wire.DecodeHpkeConfig(collectorHpkeCfg)
	if err != nil {
		return nil, fmt.Errorf("decoding collector hpke config: %w", err)
	}

	recipient, err := hpke.LoadKeyPair(hpkePriv, hpke.Config{
		ID:        ids.HpkeConfigID(hpkeConfigID),
		KemID:     hpke.KemX25519HkdfSha256,
		KdfID:     hpke.KdfHkdfSha256,
		AeadID:    hpke.AeadAes256Gcm,
		PublicKey: hpkePub,
	})
	if err != nil {
		return nil, fmt.Errorf("loading task hpke recipient: %w", err)
	}

	return &taskparams.TaskParameters{
		TaskID:         tid,
		LeaderEndpoint: leaderEndpoint,
		HelperEndpoint: helperEndpoint,
		Vdaf: taskparams.VdafSelector{
			Kind:         taskparams.Kind(vdafKind),
			Bits:         uint8(vdafBits),
			Buckets:      uint32(vdafBuckets),
			VectorLength: uint32(vdafVectorLength),
			BitLength:    uint16(vdafBitLength),
		},
		Role:                taskparams.Role(role),
		VdafVerifyKey:       vdafVerifyKey,
		MinBatchSize:        uint64(minBatchSize),
		MaxBatchLifetime:    time.Duration(maxBatchLifetime),
		BatchDuration:       time.Duration(batchDuration),
		TolerableClockSkew:  time.Duration(clockSkew),
		CollectorHpkeConfig: collectorCfgWire.ToHpkeConfig(),
		AggregatorAuthKey:   authKey,
		Recipient:           recipient,
		CreatedAt:           createdAt,
	}, nil
}

func (t *tx) GetTask(ctx context.Context, taskID ids.TaskID) (*taskparams.TaskParameters, error) {
	row := t.pgTx.QueryRow(ctx, selectTaskColumns+" FROM tasks WHERE task_id = $1", taskID[:])
	task, err := scanTask(row)
	if err != nil {
		return nil, mapPgError(err, "GetTask")
	}
	return task, nil
}

func (t *tx) GetTaskIDs(ctx context.Context, lowerBound *ids.TaskID, limit int) ([]ids.TaskID, error) {
	var rows pgx.Rows
	var err error
	if lowerBound != nil {
		rows, err = t.pgTx.Query(ctx, `SELECT task_id FROM tasks WHERE task_id > $1 ORDER BY task_id LIMIT $2`, lowerBound[:], limit)
	} else {
		rows, err = t.pgTx.Query(ctx, `SELECT task_id FROM tasks ORDER BY task_id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, mapPgError(err, "GetTaskIDs")
	}
	defer rows.Close()

	var out []ids.TaskID
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, mapPgError(err, "GetTaskIDs")
		}
		var id ids.TaskID
		copy(id[:], b)
		out = append(out, id)
	}
	return out, rows.Err()
}

func (t *tx) GetTaskMetrics(ctx context.Context, taskID ids.TaskID) (*datastore.TaskMetrics, error) {
	row := t.pgTx.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM report_shares WHERE task_id = $1),
			(SELECT count(*) FROM report_aggregations WHERE task_id = $1)
	`, taskID[:])
	var m datastore.TaskMetrics
	if err := row.Scan(&m.ReportCount, &m.ReportAggregationCount); err != nil {
		return nil, mapPgError(err, "GetTaskMetrics")
	}
	return &m, nil
}

func (t *tx) PutTask(ctx context.Context, task taskparams.TaskParameters) error {
	collectorCfgBytes, err := wire.EncodeHpkeConfig(wire.FromHpkeConfig(task.CollectorHpkeConfig))
	if err != nil {
		return fmt.Errorf("encoding collector hpke config: %w", err)
	}

	recipientKeyPair, ok := task.Recipient.(interface{ PrivateKeyBytes() []byte })
	if !ok {
		return fmt.Errorf("PutTask: recipient does not expose private key material for storage")
	}
	cfg := task.Recipient.Config()

	_, err = t.pgTx.Exec(ctx, `
		INSERT INTO tasks (
			task_id, leader_endpoint, helper_endpoint, vdaf_kind, vdaf_bits, vdaf_buckets,
			vdaf_vector_length, vdaf_bit_length, role, vdaf_verify_key, min_batch_size,
			max_batch_lifetime, batch_duration, tolerable_clock_skew, collector_hpke_config,
			aggregator_auth_key, hpke_config_id, hpke_private_key, hpke_public_key
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		task.TaskID[:], task.LeaderEndpoint, task.HelperEndpoint, string(task.Vdaf.Kind),
		int16(task.Vdaf.Bits), int32(task.Vdaf.Buckets), int32(task.Vdaf.VectorLength), int32(task.Vdaf.BitLength),
		string(task.Role), task.VdafVerifyKey, int64(task.MinBatchSize),
		int64(task.MaxBatchLifetime), int64(task.BatchDuration), int64(task.TolerableClockSkew), collectorCfgBytes,
		task.AggregatorAuthKey, int16(cfg.ID), recipientKeyPair.PrivateKeyBytes(), cfg.PublicKey,
	)
	return mapPgError(err, "PutTask")
}

func (t *tx) DeleteTask(ctx context.Context, taskID ids.TaskID) error {
	tag, err := t.pgTx.Exec(ctx, `DELETE FROM tasks WHERE task_id = $1`, taskID[:])
	if err != nil {
		return mapPgError(err, "DeleteTask")
	}
	if tag.RowsAffected() == 0 {
		return &datastore.StoreError{Kind: datastore.ErrMutationTargetNotFound, Op: "DeleteTask"}
	}
	return nil
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

// transitionErrorColumn returns the transition_error column value for a
// report aggregation. The column is only meaningful when the row is
// Failed; a plain "v == 0 means absent" rule would collide with
// wire.TransitionErrorBatchCollected, which is itself zero, silently
// turning a real BatchCollected failure into a NULL. Gating on state
// instead of value keeps the two cases distinct.
func transitionErrorColumn(state datastore.ReportAggregationState, v uint8) any {
	if state != datastore.ReportAggFailed {
		return nil
	}
	return int16(v)
}
