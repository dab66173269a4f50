package rules

import "github.com/AlanDaniels101/chill/pkg/chill/store"

// hangoutRequiredFields must all be present, with these types, when a
// hangout is created.
var hangoutRequiredFields = map[string]func(any) bool{
	"name":               isString,
	"createdAt":          isNumber,
	"group":              isString,
	"createdBy":          isString,
	"createdAnonymously": isBool,
}

// hangoutMutableFields may change after creation, subject to type checks.
var hangoutMutableFields = map[string]func(any) bool{
	"name":                   isString,
	"createdAt":              isNumber,
	"time":                   isNumber,
	"location":               isString,
	"info":                   isString,
	"minAttendees":           isNumber,
	"maxAttendees":           isNumber,
	"datetimePollInProgress": isBool,
	"candidateDates":         isStringValueMap,
	"datePollSelections":     isVoteMap,
	"attendees":              isBoolMap,
}

// hangoutImmutableFields can never change after creation. A write that
// touches one of these alongside mutable fields is rejected in full.
var hangoutImmutableFields = []string{"group", "createdBy", "createdAnonymously"}

// hangouts governs /hangouts/{hangoutId}. Visibility and edits are
// scoped to members of the hangout's group; deletion to the creator.
// Attendee entries are strictly self-service.
//
// Note the create rule checks membership in the payload's group but not
// that createdBy matches the caller: a member may create a hangout
// attributed to someone else. The anonymous-creation flow relies on the
// client choosing what to write there.
func (e *Evaluator) hangouts(op Op, snap store.Snapshot, p store.Path, current, proposed any, caller string) Decision {
	if len(p) == 1 {
		return denyf("cannot access the hangouts collection root")
	}
	if caller == "" {
		return denyf("unauthenticated")
	}
	hangoutID := p[1]

	// The group a hangout belongs to, from the tree (for reads and
	// updates the existing value governs, never the proposed one).
	existingGroup, _ := snap.At(store.Path{"hangouts", hangoutID, "group"}).(string)

	if op == OpRead {
		if existingGroup == "" || !isMember(snap, existingGroup, caller) {
			return denyf("user %s is not a member of the hangout's group", caller)
		}
		return allow()
	}

	switch {
	case len(p) == 2:
		if current == nil {
			return validHangoutCreate(snap, proposed, caller)
		}
		if proposed == nil {
			createdBy, _ := snap.At(store.Path{"hangouts", hangoutID, "createdBy"}).(string)
			if caller != createdBy {
				return denyf("only the creator can delete a hangout")
			}
			return allow()
		}
		if !isMember(snap, existingGroup, caller) {
			return denyf("user %s is not a member of the hangout's group", caller)
		}
		for _, key := range hangoutImmutableFields {
			if !submapUnchanged(current, proposed, key) {
				return denyf("%s cannot change after creation", key)
			}
		}
		for _, key := range changedKeys(current, proposed) {
			if key == "attendees" {
				if d := attendeesWrite(childValue(current, key), childValue(proposed, key), caller); !d.Allowed {
					return d
				}
				continue
			}
			check, known := hangoutMutableFields[key]
			if !known {
				continue
			}
			if v := childValue(proposed, key); v != nil && !check(v) {
				return denyf("hangout field %s has the wrong type", key)
			}
		}
		return allow()

	case len(p) == 3:
		field := p[2]
		for _, key := range hangoutImmutableFields {
			if field == key {
				if store.Equal(current, proposed) {
					return allow()
				}
				return denyf("%s cannot change after creation", key)
			}
		}
		if !isMember(snap, existingGroup, caller) {
			return denyf("user %s is not a member of the hangout's group", caller)
		}
		if field == "attendees" {
			return attendeesWrite(current, proposed, caller)
		}
		if check, known := hangoutMutableFields[field]; known && proposed != nil && !check(proposed) {
			return denyf("hangout field %s has the wrong type", field)
		}
		return allow()

	case len(p) == 4:
		if !isMember(snap, existingGroup, caller) {
			return denyf("user %s is not a member of the hangout's group", caller)
		}
		switch p[2] {
		case "attendees":
			if p[3] != caller {
				return denyf("user %s cannot change attendance of %s", caller, p[3])
			}
			if proposed != nil && !isBool(proposed) {
				return denyf("attendee entries must be booleans")
			}
			return allow()
		case "candidateDates":
			if proposed != nil && !isString(proposed) {
				return denyf("candidate date entries must name a proposing user")
			}
			return allow()
		case "datePollSelections":
			if proposed != nil && !isTimestampList(proposed) {
				return denyf("poll selections must be lists of timestamps")
			}
			return allow()
		}
		return denyf("path too deep for hangouts")
	}

	return denyf("path too deep for hangouts")
}

// attendeesWrite checks a write against a whole attendees node: only
// the caller's own entry may change, and values must be booleans.
func attendeesWrite(current, proposed any, caller string) Decision {
	for _, k := range changedKeys(current, proposed) {
		if k != caller {
			return denyf("user %s cannot change attendance of %s", caller, k)
		}
		if v := childValue(proposed, k); v != nil && !isBool(v) {
			return denyf("attendee entries must be booleans")
		}
	}
	return allow()
}

func validHangoutCreate(snap store.Snapshot, proposed any, caller string) Decision {
	m, ok := proposed.(map[string]any)
	if !ok {
		return denyf("a hangout must be an object")
	}
	for key, check := range hangoutRequiredFields {
		v, present := m[key]
		if !present {
			return denyf("a hangout requires %s", key)
		}
		if !check(v) {
			return denyf("hangout field %s has the wrong type", key)
		}
	}
	for key, v := range m {
		if _, required := hangoutRequiredFields[key]; required {
			continue
		}
		if check, known := hangoutMutableFields[key]; known && !check(v) {
			return denyf("hangout field %s has the wrong type", key)
		}
	}
	groupID, _ := m["group"].(string)
	if !isMember(snap, groupID, caller) {
		return denyf("user %s is not a member of group %s", caller, groupID)
	}
	return allow()
}

// isStringValueMap matches candidateDates: timestamp string -> uid.
func isStringValueMap(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return false
	}
	for _, val := range m {
		if !isString(val) {
			return false
		}
	}
	return true
}

// isVoteMap matches datePollSelections: uid -> list of timestamps.
func isVoteMap(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return false
	}
	for _, val := range m {
		if !isTimestampList(val) {
			return false
		}
	}
	return true
}

func isTimestampList(v any) bool {
	list, ok := v.([]any)
	if !ok {
		return false
	}
	for _, ts := range list {
		if !isNumber(ts) {
			return false
		}
	}
	return true
}
