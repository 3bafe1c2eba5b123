package ids

import "testing"

func TestTaskIDRoundTrip(t *testing.T) {
	id, err := NewTaskID()
	if err != nil {
		t.Fatalf("NewTaskID: %v", err)
	}

	encoded := id.String()
	decoded, err := ParseTaskID(encoded)
	if err != nil {
		t.Fatalf("ParseTaskID: %v", err)
	}
	if decoded != id {
		t.Fatalf("round trip mismatch: got %v, want %v", decoded, id)
	}
}

func TestParseTaskIDWrongLength(t *testing.T) {
	if _, err := ParseTaskID("AAAA"); err == nil {
		t.Fatal("expected error decoding too-short task id")
	}
}

func TestAggregationJobIDRoundTrip(t *testing.T) {
	id, err := NewAggregationJobID()
	if err != nil {
		t.Fatalf("NewAggregationJobID: %v", err)
	}

	decoded, err := ParseAggregationJobID(id.String())
	if err != nil {
		t.Fatalf("ParseAggregationJobID: %v", err)
	}
	if decoded != id {
		t.Fatalf("round trip mismatch: got %v, want %v", decoded, id)
	}
}

func TestNonceOrdering(t *testing.T) {
	a := Nonce{Time: 1, Rand: 5}
	b := Nonce{Time: 1, Rand: 6}
	c := Nonce{Time: 2, Rand: 0}

	if !a.Less(b) {
		t.Fatal("expected a < b by rand when time is equal")
	}
	if !b.Less(c) {
		t.Fatal("expected b < c by time")
	}
	if a.Equal(b) {
		t.Fatal("a and b should not be equal")
	}
	if !a.Equal(Nonce{Time: 1, Rand: 5}) {
		t.Fatal("identical nonces should be equal")
	}
}

func TestNewNonceDistinct(t *testing.T) {
	n1, err := NewNonce(1000)
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	n2, err := NewNonce(1000)
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	if n1.Equal(n2) {
		t.Fatal("two freshly generated nonces at the same time collided; randomness source broken")
	}
}
