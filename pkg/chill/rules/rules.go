// Package rules implements the access control evaluator for the Chill
// data tree. Given an operation, a path, the existing and proposed
// values, and the caller's verified uid, it returns an allow/deny
// decision. Evaluation is side-effect-free and deterministic given those
// inputs plus a consistent snapshot of the tree (needed for membership
// and admin checks outside the written path).
//
// Denials carry a reason for logs; on the wire every denial surfaces as
// the same opaque permission error.
package rules

import (
	"fmt"

	"github.com/AlanDaniels101/chill/pkg/chill/store"
)

// Op is the class of access being evaluated.
type Op int

const (
	OpRead Op = iota
	OpWrite
)

// Decision is the outcome of evaluating one operation.
type Decision struct {
	Allowed bool
	Reason  string // set on deny, for logging only
}

func allow() Decision {
	return Decision{Allowed: true}
}

func denyf(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Evaluator holds the per-collection predicate sets.
type Evaluator struct{}

// New returns the evaluator for the current rule set.
func New() *Evaluator {
	return &Evaluator{}
}

// Evaluate decides whether caller may perform op at path p, where
// current is the existing value at p and proposed the value after the
// write (nil for reads and deletions). Anything outside the three known
// collections is denied, as is the tree root itself.
func (e *Evaluator) Evaluate(op Op, snap store.Snapshot, p store.Path, current, proposed any, caller string) Decision {
	if p.IsRoot() {
		return denyf("root access is not permitted")
	}
	switch p[0] {
	case "users":
		return e.users(op, p, current, proposed, caller)
	case "groups":
		return e.groups(op, snap, p, current, proposed, caller)
	case "hangouts":
		return e.hangouts(op, snap, p, current, proposed, caller)
	}
	return denyf("unknown collection %q", p[0])
}

// AllowRead implements store.Gate.
func (e *Evaluator) AllowRead(snap store.Snapshot, p store.Path, caller string) error {
	return decisionErr(e.Evaluate(OpRead, snap, p, nil, nil, caller))
}

// AllowWrite implements store.Gate.
func (e *Evaluator) AllowWrite(snap store.Snapshot, p store.Path, current, proposed any, caller string) error {
	return decisionErr(e.Evaluate(OpWrite, snap, p, current, proposed, caller))
}

func decisionErr(d Decision) error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", store.ErrPermissionDenied, d.Reason)
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isNumber(v any) bool {
	_, ok := v.(float64)
	return ok
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

// isBoolMap reports whether v is a non-empty map whose values are all
// booleans. Empty maps cannot exist in the tree (they normalize to nil).
func isBoolMap(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return false
	}
	for _, val := range m {
		if !isBool(val) {
			return false
		}
	}
	return true
}

// changedKeys returns the keys whose values differ between two map
// values (either of which may be nil or a non-map).
func changedKeys(current, proposed any) []string {
	cm, _ := current.(map[string]any)
	pm, _ := proposed.(map[string]any)
	var keys []string
	for k := range cm {
		if !store.Equal(cm[k], pm[k]) {
			keys = append(keys, k)
		}
	}
	for k := range pm {
		if _, seen := cm[k]; !seen {
			keys = append(keys, k)
		}
	}
	return keys
}

// submapUnchanged reports whether the named child is deeply equal
// between the current and proposed values of a node.
func submapUnchanged(current, proposed any, key string) bool {
	cm, _ := current.(map[string]any)
	pm, _ := proposed.(map[string]any)
	return store.Equal(cm[key], pm[key])
}

func isMember(snap store.Snapshot, groupID, uid string) bool {
	b, _ := snap.At(store.Path{"groups", groupID, "members", uid}).(bool)
	return b
}

func isAdmin(snap store.Snapshot, groupID, uid string) bool {
	b, _ := snap.At(store.Path{"groups", groupID, "admins", uid}).(bool)
	return b
}
