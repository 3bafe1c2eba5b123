// Package wire implements the aggregator's binary message codec: a
// length-prefixed, big-endian encoding for the messages exchanged with
// clients and with the other aggregator, matching the octet layout of
// the DAP wire format at the component boundary named in the protocol
// specification (report and aggregate message shapes, not the VDAF
// payloads they carry opaquely).
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dapagg/pkg/hpke"
	"github.com/marmos91/dapagg/pkg/ids"
)

// Extension is an opaque, typed client extension carried alongside a
// report. The engine treats extension bytes as opaque associated data;
// it neither interprets nor requires particular extension types.
type Extension struct {
	Type uint16
	Data []byte
}

// HpkeCiphertext is the wire encoding of an encrypted input share.
type HpkeCiphertext struct {
	ConfigID ids.HpkeConfigID
	Enc      []byte
	Payload  []byte
}

// Report is the client-submitted upload payload.
type Report struct {
	TaskID               ids.TaskID
	Nonce                ids.Nonce
	Extensions           []Extension
	EncryptedInputShares [2]HpkeCiphertext
}

// ReportShare is a single-aggregator projection of a report sent in
// aggregate requests.
type ReportShare struct {
	Nonce               ids.Nonce
	Extensions          []Extension
	EncryptedInputShare HpkeCiphertext
}

// TransitionKind discriminates the per-report outcome carried by a
// Transition.
type TransitionKind uint8

const (
	TransitionContinued TransitionKind = 0
	TransitionFinished  TransitionKind = 1
	TransitionFailed    TransitionKind = 2
)

// TransitionError enumerates the wire-visible reasons a Transition can
// carry TransitionFailed.
type TransitionError uint8

const (
	TransitionErrorBatchCollected      TransitionError = 0
	TransitionErrorReportReplayed      TransitionError = 1
	TransitionErrorReportDropped       TransitionError = 2
	TransitionErrorHpkeUnknownConfigID TransitionError = 3
	TransitionErrorHpkeDecryptError    TransitionError = 4
	TransitionErrorVdafPrepError       TransitionError = 5
	TransitionErrorBatchSaturated      TransitionError = 6
	TransitionErrorTaskExpired         TransitionError = 7
)

// Transition is the wire-level per-report outcome of one preparation
// round.
type Transition struct {
	Nonce ids.Nonce
	Kind  TransitionKind

	// Payload carries the encoded outgoing VDAF prepare message when
	// Kind == TransitionContinued.
	Payload []byte

	// Error carries the TransitionError code when Kind == TransitionFailed.
	Error uint8
}

// AggregateReqKind discriminates the two request shapes multiplexed
// onto POST /aggregate.
type AggregateReqKind uint8

const (
	AggregateReqInit     AggregateReqKind = 0
	AggregateReqContinue AggregateReqKind = 1
)

// AggregateReq is the decoded body of an aggregate-init or
// aggregate-continue request.
type AggregateReq struct {
	Kind             AggregateReqKind
	TaskID           ids.TaskID
	JobID            ids.AggregationJobID
	AggParam         []byte        // present when Kind == AggregateReqInit
	ReportShares     []ReportShare // present when Kind == AggregateReqInit
	Transitions      []Transition  // present when Kind == AggregateReqContinue
}

// AggregateResp is the response to either aggregate request shape.
type AggregateResp struct {
	Transitions []Transition
}

// HpkeConfigWire is the wire encoding of a published HPKE configuration.
type HpkeConfigWire struct {
	ID        ids.HpkeConfigID
	KemID     uint16
	KdfID     uint16
	AeadID    uint16
	PublicKey []byte
}

func FromHpkeConfig(c hpke.Config) HpkeConfigWire {
	return HpkeConfigWire{ID: c.ID, KemID: c.KemID, KdfID: c.KdfID, AeadID: c.AeadID, PublicKey: c.PublicKey}
}

func (w HpkeConfigWire) ToHpkeConfig() hpke.Config {
	return hpke.Config{ID: w.ID, KemID: w.KemID, KdfID: w.KdfID, AeadID: w.AeadID, PublicKey: w.PublicKey}
}

// ---- encoding primitives ----

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) u8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) u16(v uint16) { var b [2]byte; binary.BigEndian.PutUint16(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) u32(v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) u64(v uint64) { var b [8]byte; binary.BigEndian.PutUint64(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) raw(b []byte) { e.buf.Write(b) }

// opaque16 writes a uint16 length prefix followed by b. b must fit in 2^16-1 bytes.
func (e *encoder) opaque16(b []byte) error {
	if len(b) > 0xFFFF {
		return fmt.Errorf("wire: opaque field too long: %d bytes", len(b))
	}
	e.u16(uint16(len(b)))
	e.raw(b)
	return nil
}

type decoder struct {
	r *bytes.Reader
}

func newDecoder(b []byte) *decoder { return &decoder{r: bytes.NewReader(b)} }

func (d *decoder) u8() (uint8, error) {
	b, err := d.r.ReadByte()
	return b, err
}

func (d *decoder) u16() (uint16, error) {
	var b [2]byte
	if _, err := readFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func (d *decoder) u32() (uint32, error) {
	var b [4]byte
	if _, err := readFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (d *decoder) u64() (uint64, error) {
	var b [8]byte
	if _, err := readFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (d *decoder) raw(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := readFull(d.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *decoder) opaque16() ([]byte, error) {
	n, err := d.u16()
	if err != nil {
		return nil, err
	}
	return d.raw(int(n))
}

func (d *decoder) remaining() int {
	return d.r.Len()
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err != nil {
		return n, err
	}
	if n != len(b) {
		return n, fmt.Errorf("wire: short read: got %d bytes, want %d", n, len(b))
	}
	return n, nil
}

// ---- Nonce ----

func encodeNonce(e *encoder, n ids.Nonce) {
	e.u64(n.Time)
	e.u64(n.Rand)
}

func decodeNonce(d *decoder) (ids.Nonce, error) {
	t, err := d.u64()
	if err != nil {
		return ids.Nonce{}, err
	}
	r, err := d.u64()
	if err != nil {
		return ids.Nonce{}, err
	}
	return ids.Nonce{Time: t, Rand: r}, nil
}

// AssociatedData builds the canonical additional-data bytes an HPKE
// open/seal call binds a report's ciphertext to: its nonce followed by
// its extensions, in the same encoding the rest of this package uses.
// Both the sealing client and the opening aggregator must derive
// byte-identical output, so this is the single place that encoding
// happens.
func AssociatedData(nonce ids.Nonce, extensions []Extension) []byte {
	e := &encoder{}
	encodeNonce(e, nonce)
	// encodeExtensions only fails on an oversized Data field; associated
	// data is built from already-validated in-memory values, so that
	// can't happen here.
	_ = encodeExtensions(e, extensions)
	return e.buf.Bytes()
}

// ---- Extensions ----

// EncodeExtensions and DecodeExtensions expose the extension list codec
// standalone, for components (the datastore) that persist extensions
// without the rest of a Report or ReportShare.
func EncodeExtensions(exts []Extension) ([]byte, error) {
	e := &encoder{}
	if err := encodeExtensions(e, exts); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

func DecodeExtensions(b []byte) ([]Extension, error) {
	d := newDecoder(b)
	return decodeExtensions(d)
}

func encodeExtensions(e *encoder, exts []Extension) error {
	e.u16(uint16(len(exts)))
	for _, ext := range exts {
		e.u16(ext.Type)
		if err := e.opaque16(ext.Data); err != nil {
			return err
		}
	}
	return nil
}

func decodeExtensions(d *decoder) ([]Extension, error) {
	n, err := d.u16()
	if err != nil {
		return nil, err
	}
	var exts []Extension
	for i := uint16(0); i < n; i++ {
		typ, err := d.u16()
		if err != nil {
			return nil, err
		}
		data, err := d.opaque16()
		if err != nil {
			return nil, err
		}
		exts = append(exts, Extension{Type: typ, Data: data})
	}
	return exts, nil
}

// ---- HpkeCiphertext ----

// EncodeCiphertext and DecodeCiphertext expose the ciphertext codec
// standalone, for components that persist a single encrypted input
// share without the rest of a Report.
func EncodeCiphertext(ct HpkeCiphertext) ([]byte, error) {
	e := &encoder{}
	if err := encodeCiphertext(e, ct); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

func DecodeCiphertext(b []byte) (HpkeCiphertext, error) {
	d := newDecoder(b)
	return decodeCiphertext(d)
}

func encodeCiphertext(e *encoder, ct HpkeCiphertext) error {
	e.u8(uint8(ct.ConfigID))
	if err := e.opaque16(ct.Enc); err != nil {
		return err
	}
	return e.opaque16(ct.Payload)
}

func decodeCiphertext(d *decoder) (HpkeCiphertext, error) {
	id, err := d.u8()
	if err != nil {
		return HpkeCiphertext{}, err
	}
	enc, err := d.opaque16()
	if err != nil {
		return HpkeCiphertext{}, err
	}
	payload, err := d.opaque16()
	if err != nil {
		return HpkeCiphertext{}, err
	}
	return HpkeCiphertext{ConfigID: ids.HpkeConfigID(id), Enc: enc, Payload: payload}, nil
}

// ---- Report ----

func EncodeReport(r Report) ([]byte, error) {
	e := &encoder{}
	e.raw(r.TaskID[:])
	encodeNonce(e, r.Nonce)
	if err := encodeExtensions(e, r.Extensions); err != nil {
		return nil, err
	}
	if err := encodeCiphertext(e, r.EncryptedInputShares[0]); err != nil {
		return nil, err
	}
	if err := encodeCiphertext(e, r.EncryptedInputShares[1]); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

func DecodeReport(b []byte) (Report, error) {
	d := newDecoder(b)
	taskIDBytes, err := d.raw(32)
	if err != nil {
		return Report{}, fmt.Errorf("decoding report task id: %w", err)
	}
	var taskID ids.TaskID
	copy(taskID[:], taskIDBytes)

	nonce, err := decodeNonce(d)
	if err != nil {
		return Report{}, fmt.Errorf("decoding report nonce: %w", err)
	}
	exts, err := decodeExtensions(d)
	if err != nil {
		return Report{}, fmt.Errorf("decoding report extensions: %w", err)
	}
	share0, err := decodeCiphertext(d)
	if err != nil {
		return Report{}, fmt.Errorf("decoding report share 0: %w", err)
	}
	share1, err := decodeCiphertext(d)
	if err != nil {
		return Report{}, fmt.Errorf("decoding report share 1: %w", err)
	}
	if d.remaining() != 0 {
		return Report{}, fmt.Errorf("decoding report: %d trailing bytes", d.remaining())
	}
	return Report{
		TaskID:               taskID,
		Nonce:                nonce,
		Extensions:           exts,
		EncryptedInputShares: [2]HpkeCiphertext{share0, share1},
	}, nil
}

// ---- ReportShare ----

func encodeReportShare(e *encoder, rs ReportShare) error {
	encodeNonce(e, rs.Nonce)
	if err := encodeExtensions(e, rs.Extensions); err != nil {
		return err
	}
	return encodeCiphertext(e, rs.EncryptedInputShare)
}

func decodeReportShare(d *decoder) (ReportShare, error) {
	nonce, err := decodeNonce(d)
	if err != nil {
		return ReportShare{}, err
	}
	exts, err := decodeExtensions(d)
	if err != nil {
		return ReportShare{}, err
	}
	ct, err := decodeCiphertext(d)
	if err != nil {
		return ReportShare{}, err
	}
	return ReportShare{Nonce: nonce, Extensions: exts, EncryptedInputShare: ct}, nil
}

// ---- Transition ----

func encodeTransition(e *encoder, t Transition) error {
	encodeNonce(e, t.Nonce)
	e.u8(uint8(t.Kind))
	switch t.Kind {
	case TransitionContinued:
		return e.opaque16(t.Payload)
	case TransitionFailed:
		e.u8(t.Error)
	case TransitionFinished:
		// no payload
	default:
		return fmt.Errorf("wire: unknown transition kind %d", t.Kind)
	}
	return nil
}

func decodeTransition(d *decoder) (Transition, error) {
	nonce, err := decodeNonce(d)
	if err != nil {
		return Transition{}, err
	}
	kindByte, err := d.u8()
	if err != nil {
		return Transition{}, err
	}
	kind := TransitionKind(kindByte)
	t := Transition{Nonce: nonce, Kind: kind}
	switch kind {
	case TransitionContinued:
		payload, err := d.opaque16()
		if err != nil {
			return Transition{}, err
		}
		t.Payload = payload
	case TransitionFailed:
		errByte, err := d.u8()
		if err != nil {
			return Transition{}, err
		}
		t.Error = errByte
	case TransitionFinished:
		// no payload
	default:
		return Transition{}, fmt.Errorf("wire: unknown transition kind %d", kind)
	}
	return t, nil
}

// ---- AggregateReq / AggregateResp ----

func EncodeAggregateReq(r AggregateReq) ([]byte, error) {
	e := &encoder{}
	e.u8(uint8(r.Kind))
	e.raw(r.TaskID[:])
	e.raw(r.JobID[:])

	switch r.Kind {
	case AggregateReqInit:
		if err := e.opaque16(r.AggParam); err != nil {
			return nil, err
		}
		e.u32(uint32(len(r.ReportShares)))
		for _, rs := range r.ReportShares {
			if err := encodeReportShare(e, rs); err != nil {
				return nil, err
			}
		}
	case AggregateReqContinue:
		e.u32(uint32(len(r.Transitions)))
		for _, t := range r.Transitions {
			if err := encodeTransition(e, t); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("wire: unknown aggregate request kind %d", r.Kind)
	}
	return e.buf.Bytes(), nil
}

func DecodeAggregateReq(b []byte) (AggregateReq, error) {
	d := newDecoder(b)
	kindByte, err := d.u8()
	if err != nil {
		return AggregateReq{}, fmt.Errorf("decoding aggregate request kind: %w", err)
	}
	kind := AggregateReqKind(kindByte)

	taskIDBytes, err := d.raw(32)
	if err != nil {
		return AggregateReq{}, fmt.Errorf("decoding aggregate request task id: %w", err)
	}
	var taskID ids.TaskID
	copy(taskID[:], taskIDBytes)

	jobIDBytes, err := d.raw(16)
	if err != nil {
		return AggregateReq{}, fmt.Errorf("decoding aggregate request job id: %w", err)
	}
	var jobID ids.AggregationJobID
	copy(jobID[:], jobIDBytes)

	req := AggregateReq{Kind: kind, TaskID: taskID, JobID: jobID}

	switch kind {
	case AggregateReqInit:
		aggParam, err := d.opaque16()
		if err != nil {
			return AggregateReq{}, fmt.Errorf("decoding aggregate param: %w", err)
		}
		req.AggParam = aggParam

		n, err := d.u32()
		if err != nil {
			return AggregateReq{}, fmt.Errorf("decoding report share count: %w", err)
		}
		shares := make([]ReportShare, 0, n)
		for i := uint32(0); i < n; i++ {
			rs, err := decodeReportShare(d)
			if err != nil {
				return AggregateReq{}, fmt.Errorf("decoding report share %d: %w", i, err)
			}
			shares = append(shares, rs)
		}
		req.ReportShares = shares
	case AggregateReqContinue:
		n, err := d.u32()
		if err != nil {
			return AggregateReq{}, fmt.Errorf("decoding transition count: %w", err)
		}
		transitions := make([]Transition, 0, n)
		for i := uint32(0); i < n; i++ {
			t, err := decodeTransition(d)
			if err != nil {
				return AggregateReq{}, fmt.Errorf("decoding transition %d: %w", i, err)
			}
			transitions = append(transitions, t)
		}
		req.Transitions = transitions
	default:
		return AggregateReq{}, fmt.Errorf("wire: unknown aggregate request kind %d", kind)
	}

	if d.remaining() != 0 {
		return AggregateReq{}, fmt.Errorf("decoding aggregate request: %d trailing bytes", d.remaining())
	}
	return req, nil
}

func EncodeAggregateResp(r AggregateResp) ([]byte, error) {
	e := &encoder{}
	e.u32(uint32(len(r.Transitions)))
	for _, t := range r.Transitions {
		if err := encodeTransition(e, t); err != nil {
			return nil, err
		}
	}
	return e.buf.Bytes(), nil
}

func DecodeAggregateResp(b []byte) (AggregateResp, error) {
	d := newDecoder(b)
	n, err := d.u32()
	if err != nil {
		return AggregateResp{}, fmt.Errorf("decoding transition count: %w", err)
	}
	transitions := make([]Transition, 0, n)
	for i := uint32(0); i < n; i++ {
		t, err := decodeTransition(d)
		if err != nil {
			return AggregateResp{}, fmt.Errorf("decoding transition %d: %w", i, err)
		}
		transitions = append(transitions, t)
	}
	if d.remaining() != 0 {
		return AggregateResp{}, fmt.Errorf("decoding aggregate response: %d trailing bytes", d.remaining())
	}
	return AggregateResp{Transitions: transitions}, nil
}

// ---- HpkeConfigWire ----

func EncodeHpkeConfig(c HpkeConfigWire) ([]byte, error) {
	e := &encoder{}
	e.u8(uint8(c.ID))
	e.u16(c.KemID)
	e.u16(c.KdfID)
	e.u16(c.AeadID)
	if err := e.opaque16(c.PublicKey); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

func DecodeHpkeConfig(b []byte) (HpkeConfigWire, error) {
	d := newDecoder(b)
	id, err := d.u8()
	if err != nil {
		return HpkeConfigWire{}, err
	}
	kemID, err := d.u16()
	if err != nil {
		return HpkeConfigWire{}, err
	}
	kdfID, err := d.u16()
	if err != nil {
		return HpkeConfigWire{}, err
	}
	aeadID, err := d.u16()
	if err != nil {
		return HpkeConfigWire{}, err
	}
	pub, err := d.opaque16()
	if err != nil {
		return HpkeConfigWire{}, err
	}
	if d.remaining() != 0 {
		return HpkeConfigWire{}, fmt.Errorf("decoding hpke config: %d trailing bytes", d.remaining())
	}
	return HpkeConfigWire{ID: ids.HpkeConfigID(id), KemID: kemID, KdfID: kdfID, AeadID: aeadID, PublicKey: pub}, nil
}
