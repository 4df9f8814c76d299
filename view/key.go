package view

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/amonks/daybook/todo"
)

// Key is a nullable string view key. Null collates before every string.
type Key struct {
	Value string
	Valid bool
}

// StringKey returns a non-null key.
func StringKey(value string) Key {
	return Key{Value: value, Valid: true}
}

// TimeKey returns the key for an instant.
func TimeKey(t time.Time) Key {
	return StringKey(todo.FormatISO(t))
}

// NullKey returns the null key.
func NullKey() Key {
	return Key{}
}

// IsNull reports whether k is the null key.
func (k Key) IsNull() bool {
	return !k.Valid
}

// Compare returns -1, 0 or +1 depending on whether k sorts before, with or
// after other.
func (k Key) Compare(other Key) int {
	switch {
	case !k.Valid && !other.Valid:
		return 0
	case !k.Valid:
		return -1
	case !other.Valid:
		return 1
	default:
		return strings.Compare(k.Value, other.Value)
	}
}

func (k Key) String() string {
	if !k.Valid {
		return "null"
	}
	return k.Value
}

// MarshalJSON encodes the key as a JSON string or null.
func (k Key) MarshalJSON() ([]byte, error) {
	if !k.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(k.Value)
}

// UnmarshalJSON decodes a JSON string or null.
func (k *Key) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*k = NullKey()
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*k = StringKey(value)
	return nil
}

// KeyPtr returns a pointer to k, for QueryOptions literals.
func KeyPtr(k Key) *Key {
	return &k
}
