package view

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBootstrapWritesMissingDesignDocument(t *testing.T) {
	next, changed, write := Bootstrap(nil, Definitions())

	if !write {
		t.Fatalf("expected a missing design document to be written")
	}
	if diff := cmp.Diff([]Name{ByActive, ByDueDate, ByTimeTrackingActive}, changed); diff != "" {
		t.Fatalf("changed views mismatch (-want +got):\n%s", diff)
	}
	if len(next.Views) != 3 {
		t.Fatalf("expected 3 views, got %d", len(next.Views))
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	stored := ExpectedDesignDocument(Definitions())

	_, changed, write := Bootstrap(&stored, Definitions())

	if write || len(changed) != 0 {
		t.Fatalf("expected matching design document to be left alone, got write=%v changed=%v", write, changed)
	}
}

func TestBootstrapDetectsChangedRule(t *testing.T) {
	stored := ExpectedDesignDocument(Definitions())
	stale := stored.Views[ByActive]
	stale.Revision = 0
	stored.Views[ByActive] = stale
	stored.Views["byLegacy"] = Definition{Name: "byLegacy", Rule: RuleDueDate}

	next, changed, write := Bootstrap(&stored, Definitions())

	if !write {
		t.Fatalf("expected changed design document to be written")
	}
	if diff := cmp.Diff([]Name{ByActive}, changed); diff != "" {
		t.Fatalf("changed views mismatch (-want +got):\n%s", diff)
	}
	if _, ok := next.Views["byLegacy"]; ok {
		t.Fatalf("expected unknown view to be dropped")
	}
	if next.Views[ByActive].Revision != 1 {
		t.Fatalf("expected current definition to be written")
	}
}

func TestDesignDocumentRoundTrip(t *testing.T) {
	doc := ExpectedDesignDocument(Definitions())
	body, err := doc.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeDesignDocument(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(Diff(decoded, doc)) != 0 {
		t.Fatalf("expected round trip to preserve definitions")
	}
	if _, err := DecodeDesignDocument([]byte(`[`)); err == nil {
		t.Fatalf("expected malformed design document to fail")
	}
}

func TestLookupUnknownView(t *testing.T) {
	if _, err := Lookup("byNothing"); err == nil {
		t.Fatalf("expected unknown view to fail")
	}
	if !ByDueDate.IsValid() || Name("x").IsValid() {
		t.Fatalf("unexpected view name validity")
	}
}
