package fingerprint

import "testing"

func TestSHA256HexStable(t *testing.T) {
	a := SHA256Hex(Join("ck", "INV1", "CALC_BUG", "CALC_BUG", "ENGINE_REGRESSION", "2025-01"))
	b := SHA256Hex(Join("ck", "INV1", "CALC_BUG", "CALC_BUG", "ENGINE_REGRESSION", "2025-01"))
	if a != b {
		t.Fatalf("expected identical input to produce identical digest")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestJoinEscapesSeparator(t *testing.T) {
	a := Join("a|b", "c")
	b := Join("a", "b|c")
	if a == b {
		t.Fatalf("expected escaped separator to avoid field-boundary collision")
	}
}

func TestBucketOfDeterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		b1 := BucketOf("invoice-123", 10000)
		b2 := BucketOf("invoice-123", 10000)
		if b1 != b2 {
			t.Fatalf("expected deterministic bucket")
		}
		if b1 < 0 || b1 >= 10000 {
			t.Fatalf("bucket out of range: %d", b1)
		}
	}
}

func TestBucketOfZeroBuckets(t *testing.T) {
	if BucketOf("x", 0) != 0 {
		t.Fatalf("expected 0 for non-positive bucket count")
	}
}
