// Package jsonl exports and imports todo documents as JSON lines, one
// {"id","rev","body"} object per line.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/amonks/daybook/docstore"
	"github.com/amonks/daybook/view"
)

const filePerms = 0o644

// Export writes every todo document in the store to w. Design documents
// are left out; EnsureViews recreates them.
func Export(ctx context.Context, store docstore.Store, w io.Writer) (int, error) {
	docs, err := store.AllDocs(ctx)
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	encoder := json.NewEncoder(w)
	count := 0
	for _, doc := range docs {
		if view.IsDesignID(doc.ID) {
			continue
		}
		if err := encoder.Encode(doc); err != nil {
			return count, fmt.Errorf("export %s: %w", doc.ID, err)
		}
		count++
	}
	return count, nil
}

// ExportFile writes the export to path, replacing any existing file
// atomically.
func ExportFile(ctx context.Context, store docstore.Store, path string) (int, error) {
	var buf bytes.Buffer
	count, err := Export(ctx, store, &buf)
	if err != nil {
		return 0, err
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return 0, fmt.Errorf("write export file: %w", err)
	}
	// atomic.WriteFile doesn't set permissions for new files
	if err := os.Chmod(path, filePerms); err != nil {
		return 0, fmt.Errorf("set export file permissions: %w", err)
	}
	return count, nil
}

// Read decodes documents from a JSONL reader. Blank lines are skipped.
func Read(reader io.Reader) ([]docstore.Document, error) {
	docs := make([]docstore.Document, 0)
	if reader == nil {
		return docs, nil
	}
	buffer := bufio.NewReader(reader)
	lineNumber := 0
	for {
		line, err := buffer.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		lineNumber++
		line = strings.TrimSpace(line)
		if line != "" {
			var doc docstore.Document
			if unmarshalErr := json.Unmarshal([]byte(line), &doc); unmarshalErr != nil {
				return nil, fmt.Errorf("decode line %d: %w", lineNumber, unmarshalErr)
			}
			if validateErr := docstore.ValidateDocument("import", doc); validateErr != nil {
				return nil, fmt.Errorf("line %d: %w", lineNumber, validateErr)
			}
			docs = append(docs, doc)
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	return docs, nil
}

// ImportOptions configures Import.
type ImportOptions struct {
	// Replace overwrites documents that already exist. Without it they are
	// skipped.
	Replace bool
}

// ImportResult reports what Import did.
type ImportResult struct {
	Written  int
	Skipped  []string
	Failures []docstore.PutResult
}

// Import writes docs through BulkPut. Exported revisions are ignored: a
// document is created, or written over the store's current revision when
// Replace is set. Design documents are skipped.
func Import(ctx context.Context, store docstore.Store, docs []docstore.Document, opts ImportOptions) (ImportResult, error) {
	var result ImportResult
	batch := make([]docstore.Document, 0, len(docs))
	for _, doc := range docs {
		if view.IsDesignID(doc.ID) {
			result.Skipped = append(result.Skipped, doc.ID)
			continue
		}
		existing, err := store.Get(ctx, doc.ID)
		switch {
		case err == nil:
			if !opts.Replace {
				result.Skipped = append(result.Skipped, doc.ID)
				continue
			}
			doc.Rev = existing.Rev
		case errors.Is(err, docstore.ErrNotFound):
			doc.Rev = ""
		default:
			return result, fmt.Errorf("import %s: %w", doc.ID, err)
		}
		batch = append(batch, doc)
	}
	if len(batch) == 0 {
		return result, nil
	}

	results, err := store.BulkPut(ctx, batch)
	if err != nil {
		return result, fmt.Errorf("import: %w", err)
	}
	for _, res := range results {
		if res.Err != nil {
			result.Failures = append(result.Failures, res)
			continue
		}
		result.Written++
	}
	return result, nil
}
