package todo

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func decodeOrFatal(t *testing.T, id, body string) Generation {
	t.Helper()
	g, err := Decode(id, "1-x", []byte(body))
	if err != nil {
		t.Fatalf("decode %s: %v", id, err)
	}
	return g
}

func TestMigrateAlpha1InventsDueAndContext(t *testing.T) {
	g := decodeOrFatal(t, "2023-04-18T15:00:00.000Z", `{"title":"water plants","tags":null,"active":null}`)

	got, err := Migrate(g, MigrateOptions{})
	if err != nil {
		t.Fatalf("expected migrate to succeed, got %v", err)
	}

	want := Todo{
		ID:      "2023-04-18T15:00:00.000Z",
		Rev:     "1-x",
		Title:   "water plants",
		Context: DefaultContext,
		Due:     time.Date(2023, 4, 18, 23, 59, 59, int(999*time.Millisecond), time.UTC),
		Tags:    []string{},
		Active:  Sessions{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("migrated todo mismatch (-want +got):\n%s", diff)
	}
}

func TestMigrateAlpha1UsesConfiguredDefaults(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	// 02:00 UTC on the 19th is still the 18th five hours west.
	g := decodeOrFatal(t, "2023-04-19T02:00:00.000Z", `{"title":"late night"}`)

	got, err := Migrate(g, MigrateOptions{DefaultContext: "work", Location: loc})
	if err != nil {
		t.Fatalf("expected migrate to succeed, got %v", err)
	}
	if got.Context != "work" {
		t.Fatalf("expected context work, got %s", got.Context)
	}
	want := time.Date(2023, 4, 18, 23, 59, 59, int(999*time.Millisecond), loc)
	if !got.Due.Equal(want) {
		t.Fatalf("expected due %s, got %s", FormatISO(want), FormatISO(got.Due))
	}
}

func TestMigrateAlpha2AddsNullLinkAndParent(t *testing.T) {
	g := decodeOrFatal(t, alpha1ID, `{"version":"alpha2","title":"x","context":"home","due":"2023-04-20T23:59:59.999Z","tags":["a"]}`)

	got, err := Migrate(g, MigrateOptions{DefaultContext: "ignored"})
	if err != nil {
		t.Fatalf("expected migrate to succeed, got %v", err)
	}
	if got.Link != nil || got.ParentID != nil {
		t.Fatalf("expected nil link and parent, got %v %v", got.Link, got.ParentID)
	}
	if got.Context != "home" {
		t.Fatalf("expected existing context to be kept, got %s", got.Context)
	}
	if diff := cmp.Diff([]string{"a"}, got.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestMigrateIsIdempotentAndReachesLatest(t *testing.T) {
	bodies := map[string]string{
		"alpha1": `{"title":"one","completed":"2023-04-19T10:00:00.000Z","active":{"2023-04-18T15:00:00.000Z":"2023-04-18T15:01:00.000Z"},"repeat":2}`,
		"alpha2": `{"version":"alpha2","title":"two","context":"work","due":"2023-04-20T23:59:59.999Z","active":{"2023-04-18T15:00:00.000Z":null}}`,
		"alpha3": `{"version":"alpha3","title":"three","context":"work","due":"2023-04-20T23:59:59.999Z","link":"https://example.com","parentId":"2023-01-01T00:00:00.000Z"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			g := decodeOrFatal(t, alpha1ID, body)
			once, err := Migrate(g, MigrateOptions{})
			if err != nil {
				t.Fatalf("expected first migrate to succeed, got %v", err)
			}
			if !IsLatest(once) {
				t.Fatalf("expected migrated todo to be latest")
			}
			twice, err := Migrate(once, MigrateOptions{})
			if err != nil {
				t.Fatalf("expected second migrate to succeed, got %v", err)
			}
			if diff := cmp.Diff(once, twice); diff != "" {
				t.Fatalf("migrate is not idempotent (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestIsLatest(t *testing.T) {
	if IsLatest(decodeOrFatal(t, alpha1ID, `{"title":"x"}`)) {
		t.Fatalf("expected alpha1 not to be latest")
	}
	if IsLatest(decodeOrFatal(t, alpha1ID, `{"version":"alpha2","title":"x","context":"c","due":"2023-04-20T23:59:59.999Z"}`)) {
		t.Fatalf("expected alpha2 not to be latest")
	}
	if !IsLatest(decodeOrFatal(t, alpha1ID, `{"version":"alpha3","title":"x","context":"c","due":"2023-04-20T23:59:59.999Z"}`)) {
		t.Fatalf("expected alpha3 to be latest")
	}
}

func TestMigrateRejectsNil(t *testing.T) {
	if _, err := Migrate(nil, MigrateOptions{}); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestMigrateAllIsolatesFailures(t *testing.T) {
	docs := []RawDocument{
		{ID: "2023-04-18T15:00:00.000Z", Body: []byte(`{"title":"old"}`)},
		{ID: "2023-04-18T16:00:00.000Z", Body: []byte(`{"version":"nope","title":"bad"}`)},
		{ID: "2023-04-18T17:00:00.000Z", Body: []byte(`{"version":"alpha3","title":"new","context":"c","due":"2023-04-20T23:59:59.999Z"}`)},
		{ID: "2023-04-18T18:00:00.000Z", Body: []byte(`"just a string"`)},
	}

	migrated, failures := MigrateAll(docs, MigrateOptions{})

	if len(migrated) != 2 {
		t.Fatalf("expected 2 migrated documents, got %d", len(migrated))
	}
	if migrated[0].Todo.Title != "old" || !migrated[0].Stale {
		t.Fatalf("expected first document to be migrated from a stale generation, got %+v", migrated[0])
	}
	if migrated[1].Todo.Title != "new" || migrated[1].Stale {
		t.Fatalf("expected second document to be latest, got %+v", migrated[1])
	}

	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failures))
	}
	for _, failure := range failures {
		if !errors.Is(failure, ErrInvalidDocument) {
			t.Fatalf("expected failure for %s to be ErrInvalidDocument, got %v", failure.ID, failure.Err)
		}
	}
	if failures[0].ID != "2023-04-18T16:00:00.000Z" || failures[1].ID != "2023-04-18T18:00:00.000Z" {
		t.Fatalf("unexpected failure ids: %s, %s", failures[0].ID, failures[1].ID)
	}
}
