package logging

import "testing"

func TestDeduper_OnceSuppressesRepeats(t *testing.T) {
	d := NewDeduper()

	if d.seen["boom: %s"] {
		t.Fatalf("message should not be marked seen before first Once call")
	}

	d.Once("boom: %s", "first")
	if !d.seen["boom: %s"] {
		t.Fatalf("expected message to be marked seen after Once")
	}

	// A second call with the same format string must not panic or alter
	// the seen set; we can't observe log.Printf output directly, but we
	// can confirm the dedup key stays singular.
	d.Once("boom: %s", "second")
	if len(d.seen) != 1 {
		t.Fatalf("expected exactly 1 seen message, got %d", len(d.seen))
	}
}

func TestDeduper_DistinctMessagesBothSeen(t *testing.T) {
	d := NewDeduper()
	d.Once("alpha")
	d.Once("beta")

	if len(d.seen) != 2 {
		t.Fatalf("expected 2 distinct seen messages, got %d", len(d.seen))
	}
}

func TestDeduper_ResetClearsSeenSet(t *testing.T) {
	d := NewDeduper()
	d.Once("gamma")
	if len(d.seen) != 1 {
		t.Fatalf("expected 1 seen message before reset, got %d", len(d.seen))
	}

	d.Reset()
	if len(d.seen) != 0 {
		t.Fatalf("expected 0 seen messages after reset, got %d", len(d.seen))
	}

	d.Once("gamma")
	if len(d.seen) != 1 {
		t.Fatalf("expected message to be logged again after reset, got %d seen", len(d.seen))
	}
}
