package todo

import (
	"fmt"
	"time"
)

// MigrateOptions supplies the defaults upgraders need for fields older
// generations did not have.
type MigrateOptions struct {
	// DefaultContext is assigned to documents that predate contexts.
	DefaultContext string

	// Location determines the "end of the creation day" used as the
	// invented due date for documents that predate due dates.
	Location *time.Location
}

func (o MigrateOptions) withDefaults() MigrateOptions {
	if o.DefaultContext == "" {
		o.DefaultContext = DefaultContext
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// IsLatest reports whether g is already at the latest generation.
func IsLatest(g Generation) bool {
	_, ok := g.(Todo)
	return ok
}

// Migrate walks g forward one generation at a time until it is the latest.
// Migrating a latest todo returns it unchanged.
func Migrate(g Generation, opts MigrateOptions) (Todo, error) {
	if g == nil {
		return Todo{}, invalidDocument("", "nil document")
	}
	for steps := 0; steps < len(ValidVersions()); steps++ {
		switch current := g.(type) {
		case Todo:
			return current, nil
		case Alpha1, Alpha2:
			g = current.upgrade(opts)
		default:
			return Todo{}, invalidDocument(g.DocID(), "unknown generation %T", g)
		}
	}
	return Todo{}, fmt.Errorf("migrate %s: chain did not reach %s", g.DocID(), LatestVersion)
}

// RawDocument is a stored document as read from the store.
type RawDocument struct {
	ID   string
	Rev  string
	Body []byte
}

// Load decodes and migrates a stored document. Stale reports whether the
// stored body is older than the latest generation.
func Load(doc RawDocument, opts MigrateOptions) (t Todo, stale bool, err error) {
	g, err := Decode(doc.ID, doc.Rev, doc.Body)
	if err != nil {
		return Todo{}, false, err
	}
	t, err = Migrate(g, opts)
	if err != nil {
		return Todo{}, false, err
	}
	return t, !IsLatest(g), nil
}

// Migrated is one successfully loaded document.
type Migrated struct {
	Todo  Todo
	Stale bool
	Raw   RawDocument
}

// Failure records a document that could not be loaded.
type Failure struct {
	ID  string
	Err error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.ID, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// MigrateAll loads every document. A document that fails does not stop the
// rest of the batch; it is reported in failures instead.
func MigrateAll(docs []RawDocument, opts MigrateOptions) (migrated []Migrated, failures []Failure) {
	migrated = make([]Migrated, 0, len(docs))
	for _, doc := range docs {
		t, stale, err := Load(doc, opts)
		if err != nil {
			failures = append(failures, Failure{ID: doc.ID, Err: err})
			continue
		}
		migrated = append(migrated, Migrated{Todo: t, Stale: stale, Raw: doc})
	}
	return migrated, failures
}
