// Package docstore defines the document store daybook runs on and an
// in-memory implementation of it.
//
// A store holds JSON documents keyed by id. Every write must carry the
// revision it was read with; a stale revision fails with KindConflict.
// Stores also maintain the view rows described by package view and announce
// every write on a change feed.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/amonks/daybook/todo"
	"github.com/amonks/daybook/view"
)

// Store is the contract daybook consumes.
type Store interface {
	// Get returns the current revision of a document.
	Get(ctx context.Context, id string) (Document, error)

	// Put writes a document and returns its new revision. doc.Rev must be
	// the current revision, or empty when creating.
	Put(ctx context.Context, doc Document) (string, error)

	// BulkPut writes documents independently and reports each outcome.
	// The error is only set when the batch as a whole could not be attempted.
	BulkPut(ctx context.Context, docs []Document) ([]PutResult, error)

	// AllDocs returns every document, design documents included, in id order.
	AllDocs(ctx context.Context) ([]Document, error)

	// Query returns the rows of a view selected by opts.
	Query(ctx context.Context, name view.Name, opts view.QueryOptions) ([]view.Row, error)

	// EnsureViews makes the stored view definitions match defs. Calling it
	// again with the same definitions does nothing.
	EnsureViews(ctx context.Context, defs []view.Definition) error

	// Subscribe calls fn for every write until cancel is called.
	Subscribe(fn func(Change)) (cancel func())

	// Close releases the store.
	Close() error
}

// Document is a stored document.
type Document struct {
	ID   string          `json:"id"`
	Rev  string          `json:"rev,omitempty"`
	Body json.RawMessage `json:"body"`
}

// Raw returns the document in the form the todo package decodes.
func (d Document) Raw() todo.RawDocument {
	return todo.RawDocument{ID: d.ID, Rev: d.Rev, Body: d.Body}
}

// FromTodo encodes a todo as a document carrying its revision.
func FromTodo(t todo.Todo) (Document, error) {
	body, err := todo.Encode(t)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: t.ID, Rev: t.Rev, Body: body}, nil
}

// PutResult is the outcome of one document in a BulkPut.
type PutResult struct {
	ID  string
	Rev string
	Err error
}

// Change announces a write.
type Change struct {
	// Seq increases with every write to the store.
	Seq int64
	ID  string
	Rev string
}

// NextRevision returns a fresh revision following prev.
// Revisions have the form "<generation>-<hex>".
func NextRevision(prev string) string {
	return fmt.Sprintf("%d-%s", RevisionGeneration(prev)+1, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// RevisionGeneration returns the generation number of a revision, or 0 for
// an empty or malformed one.
func RevisionGeneration(rev string) int {
	head, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ValidateDocument checks what every store requires of a document: an id
// and a JSON object body.
func ValidateDocument(op string, doc Document) error {
	if doc.ID == "" {
		return newError(KindInvalidDocument, op, "", fmt.Errorf("missing id"))
	}
	trimmed := bytes.TrimSpace(doc.Body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return newError(KindInvalidDocument, op, doc.ID, fmt.Errorf("body is not a JSON object"))
	}
	return nil
}
