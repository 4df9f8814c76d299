// Package view defines the secondary indexes maintained over todo documents.
//
// A view is a named emission rule: applied to one document it produces zero
// or more rows, each with a [Key] and a JSON value. Stores keep the rows
// sorted by key and answer range queries with [Select]. The three views are
// fixed; their definitions are persisted in a design document so that a
// store can tell when the rules it was built with no longer match the code.
package view

import "fmt"

// Name identifies a view.
type Name string

const (
	// ByDueDate indexes every todo by its due instant.
	ByDueDate Name = "byDueDate"

	// ByActive indexes every tracked session by its start.
	ByActive Name = "byActive"

	// ByTimeTrackingActive indexes every tracked session by its end, with
	// running sessions under the null key.
	ByTimeTrackingActive Name = "byTimeTrackingActive"
)

// Names returns every view name.
func Names() []Name {
	return []Name{ByDueDate, ByActive, ByTimeTrackingActive}
}

// IsValid returns true if the name is a known view.
func (n Name) IsValid() bool {
	for _, valid := range Names() {
		if n == valid {
			return true
		}
	}
	return false
}

// Rule is an emission rule.
type Rule string

const (
	// RuleDueDate emits (due, document).
	RuleDueDate Rule = "due-date"

	// RuleSessionStart emits (start, activity) for every session.
	RuleSessionStart Rule = "session-start"

	// RuleSessionEnd emits (end or null, item id) for every session.
	RuleSessionEnd Rule = "session-end"
)

// ValidRules returns every emission rule.
func ValidRules() []Rule {
	return []Rule{RuleDueDate, RuleSessionStart, RuleSessionEnd}
}

// IsValid returns true if the rule is a known emission rule.
func (r Rule) IsValid() bool {
	for _, valid := range ValidRules() {
		if r == valid {
			return true
		}
	}
	return false
}

// Definition is the persisted description of a view.
// Revision is bumped whenever the meaning of a rule changes.
type Definition struct {
	Name     Name `json:"name"`
	Rule     Rule `json:"rule"`
	Revision int  `json:"revision"`
}

// Definitions returns the definitions the code currently expects.
func Definitions() []Definition {
	return []Definition{
		{Name: ByDueDate, Rule: RuleDueDate, Revision: 1},
		{Name: ByActive, Rule: RuleSessionStart, Revision: 1},
		{Name: ByTimeTrackingActive, Rule: RuleSessionEnd, Revision: 1},
	}
}

// Lookup returns the expected definition of the named view.
func Lookup(name Name) (Definition, error) {
	for _, def := range Definitions() {
		if def.Name == name {
			return def, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %q", ErrUnknownView, name)
}
