package todo

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Generation is a decoded document at some schema generation.
//
// The set of implementations is closed: [Alpha1], [Alpha2] and [Todo]
// (alpha3). Adding a generation means adding a type here, its upgrader on
// the previous generation, and a case in [Decode].
type Generation interface {
	// Version returns the schema generation of the document.
	Version() Version

	// DocID returns the document id.
	DocID() string

	// upgrade returns the same document at the next generation.
	upgrade(opts MigrateOptions) Generation
}

// Alpha1 is the original document shape: no due date, no context.
type Alpha1 struct {
	ID          string
	Rev         string
	Title       string
	Description string
	Completed   *time.Time
	Tags        []string
	Active      Sessions
	Repeat      *int
}

// Version implements Generation.
func (Alpha1) Version() Version { return VersionAlpha1 }

// DocID implements Generation.
func (a Alpha1) DocID() string { return a.ID }

// upgrade invents a due date at the end of the creation day and assigns the
// default context.
func (a Alpha1) upgrade(opts MigrateOptions) Generation {
	opts = opts.withDefaults()
	// Decode only accepts alpha1 documents whose id is an instant.
	created, _ := validCreationID(a.ID)
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	active := a.Active
	if active == nil {
		active = Sessions{}
	}
	return Alpha2{
		ID:          a.ID,
		Rev:         a.Rev,
		Title:       a.Title,
		Description: a.Description,
		Context:     opts.DefaultContext,
		Due:         EndOfDay(created, opts.Location),
		Completed:   a.Completed,
		Tags:        tags,
		Active:      active,
		Repeat:      a.Repeat,
	}
}

// Alpha2 adds due dates and contexts.
type Alpha2 struct {
	ID          string
	Rev         string
	Title       string
	Description string
	Context     string
	Due         time.Time
	Completed   *time.Time
	Tags        []string
	Active      Sessions
	Repeat      *int
}

// Version implements Generation.
func (Alpha2) Version() Version { return VersionAlpha2 }

// DocID implements Generation.
func (a Alpha2) DocID() string { return a.ID }

// upgrade adds empty link and parent fields.
func (a Alpha2) upgrade(MigrateOptions) Generation {
	return Todo{
		ID:          a.ID,
		Rev:         a.Rev,
		Title:       a.Title,
		Description: a.Description,
		Context:     a.Context,
		Due:         a.Due,
		Completed:   a.Completed,
		Tags:        a.Tags,
		Active:      a.Active,
		Repeat:      a.Repeat,
		Link:        nil,
		ParentID:    nil,
	}
}

// Version implements Generation.
func (Todo) Version() Version { return LatestVersion }

// DocID implements Generation.
func (t Todo) DocID() string { return t.ID }

func (t Todo) upgrade(MigrateOptions) Generation { return t }

// probe captures every field any generation may carry. Pointers distinguish
// "absent" from "zero".
type probe struct {
	Version     *string  `json:"version"`
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Context     *string  `json:"context"`
	Due         *string  `json:"due"`
	Completed   *string  `json:"completed"`
	Tags        []string `json:"tags"`
	Active      Sessions `json:"active"`
	Repeat      *int     `json:"repeat"`
	Link        *string  `json:"link"`
	ParentID    *string  `json:"parentId"`
}

// Decode recognizes the generation of a stored document body.
// Documents matching no generation fail with ErrInvalidDocument.
func Decode(id, rev string, body []byte) (Generation, error) {
	if id == "" {
		return nil, invalidDocument(id, "missing id")
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, invalidDocument(id, "body is not an object")
	}

	var p probe
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, invalidDocument(id, "malformed body: %v", err)
	}
	if p.Title == nil || strings.TrimSpace(*p.Title) == "" {
		return nil, invalidDocument(id, "missing title")
	}
	completed, err := parseOptionalISO(p.Completed)
	if err != nil {
		return nil, invalidDocument(id, "completed: %v", err)
	}
	if p.Repeat != nil && *p.Repeat <= 0 {
		return nil, invalidDocument(id, "repeat must be positive")
	}

	version := VersionAlpha1
	if p.Version != nil {
		version = Version(*p.Version)
	}

	switch version {
	case VersionAlpha1:
		if _, ok := validCreationID(id); !ok {
			return nil, invalidDocument(id, "alpha1 id is not a creation instant")
		}
		return Alpha1{
			ID:          id,
			Rev:         rev,
			Title:       *p.Title,
			Description: deref(p.Description),
			Completed:   completed,
			Tags:        p.Tags,
			Active:      p.Active,
			Repeat:      p.Repeat,
		}, nil

	case VersionAlpha2, VersionAlpha3:
		if p.Due == nil {
			return nil, invalidDocument(id, "%s document missing due", version)
		}
		due, err := ParseISO(*p.Due)
		if err != nil {
			return nil, invalidDocument(id, "due: %v", err)
		}
		if p.Context == nil || *p.Context == "" {
			return nil, invalidDocument(id, "%s document missing context", version)
		}
		tags := p.Tags
		if tags == nil {
			tags = []string{}
		}
		active := p.Active
		if active == nil {
			active = Sessions{}
		}
		if version == VersionAlpha2 {
			return Alpha2{
				ID:          id,
				Rev:         rev,
				Title:       *p.Title,
				Description: deref(p.Description),
				Context:     *p.Context,
				Due:         due,
				Completed:   completed,
				Tags:        tags,
				Active:      active,
				Repeat:      p.Repeat,
			}, nil
		}
		return Todo{
			ID:          id,
			Rev:         rev,
			Title:       *p.Title,
			Description: deref(p.Description),
			Context:     *p.Context,
			Due:         due,
			Completed:   completed,
			Tags:        tags,
			Active:      active,
			Repeat:      p.Repeat,
			Link:        p.Link,
			ParentID:    p.ParentID,
		}, nil

	default:
		return nil, invalidDocument(id, "unknown version %q", version)
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
