package view

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/amonks/daybook/todo"
)

var (
	// ErrUnknownView is returned for a view name with no definition.
	ErrUnknownView = errors.New("unknown view")

	// ErrInvalidQuery is returned when query options contradict each other.
	ErrInvalidQuery = errors.New("invalid view query")
)

// DesignPrefix marks ids of design documents, which never produce rows.
const DesignPrefix = "_design/"

// IsDesignID reports whether id names a design document.
func IsDesignID(id string) bool {
	return strings.HasPrefix(id, DesignPrefix)
}

// Row is one emitted view row.
type Row struct {
	// ID is the id of the document that emitted the row.
	ID string `json:"id"`

	// Rev is the revision of that document.
	Rev string `json:"rev,omitempty"`

	Key   Key             `json:"key"`
	Value json.RawMessage `json:"value"`

	// Doc is the stored body of the document. It is only kept by queries
	// with IncludeDocs.
	Doc json.RawMessage `json:"doc,omitempty"`
}

// Activity is the value of a ByActive row: one tracked session plus a
// snapshot of the document that owns it.
type Activity struct {
	ItemID   string          `json:"itemId"`
	From     time.Time       `json:"from"`
	To       *time.Time      `json:"to"`
	Snapshot json.RawMessage `json:"snapshot"`
}

type wireActivity struct {
	ItemID   string          `json:"itemId"`
	From     string          `json:"from"`
	To       *string         `json:"to"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// MarshalJSON renders instants in the stored ISO form.
func (a Activity) MarshalJSON() ([]byte, error) {
	wire := wireActivity{ItemID: a.ItemID, From: todo.FormatISO(a.From), Snapshot: a.Snapshot}
	if a.To != nil {
		to := todo.FormatISO(*a.To)
		wire.To = &to
	}
	return json.Marshal(wire)
}

// UnmarshalJSON parses the stored ISO form.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var wire wireActivity
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	from, err := todo.ParseISO(wire.From)
	if err != nil {
		return err
	}
	decoded := Activity{ItemID: wire.ItemID, From: from, Snapshot: wire.Snapshot}
	if wire.To != nil {
		to, err := todo.ParseISO(*wire.To)
		if err != nil {
			return err
		}
		decoded.To = &to
	}
	*a = decoded
	return nil
}

// DecodeActivity decodes the value of a ByActive row.
func DecodeActivity(row Row) (Activity, error) {
	var activity Activity
	if err := json.Unmarshal(row.Value, &activity); err != nil {
		return Activity{}, err
	}
	return activity, nil
}

// Emit applies a view's rule to one stored document.
//
// Keys are derived from the document migrated in memory, so an older
// generation indexes the same way it will once written back. Values carry
// the stored body unchanged. Design documents and documents that fail to
// decode emit nothing.
func Emit(def Definition, id, rev string, body []byte, opts todo.MigrateOptions) []Row {
	if IsDesignID(id) {
		return nil
	}
	t, _, err := todo.Load(todo.RawDocument{ID: id, Rev: rev, Body: body}, opts)
	if err != nil {
		return nil
	}
	snapshot := json.RawMessage(body)

	switch def.Rule {
	case RuleDueDate:
		return []Row{{ID: id, Rev: rev, Key: TimeKey(t.Due), Value: snapshot, Doc: snapshot}}

	case RuleSessionStart:
		rows := make([]Row, 0, len(t.Active))
		for _, session := range t.Active.Sorted() {
			value, err := json.Marshal(Activity{ItemID: id, From: session.Start, To: session.End, Snapshot: snapshot})
			if err != nil {
				continue
			}
			rows = append(rows, Row{ID: id, Rev: rev, Key: TimeKey(session.Start), Value: value, Doc: snapshot})
		}
		return rows

	case RuleSessionEnd:
		itemID, err := json.Marshal(id)
		if err != nil {
			return nil
		}
		rows := make([]Row, 0, len(t.Active))
		for _, session := range t.Active.Sorted() {
			key := NullKey()
			if session.End != nil {
				key = TimeKey(*session.End)
			}
			rows = append(rows, Row{ID: id, Rev: rev, Key: key, Value: itemID, Doc: snapshot})
		}
		return rows

	default:
		return nil
	}
}
