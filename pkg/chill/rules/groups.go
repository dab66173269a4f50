package rules

import "github.com/AlanDaniels101/chill/pkg/chill/store"

// groupCreateFields is the exact shape a new group must have. Partial
// payloads, extra keys, and wrong types are all rejected.
var groupCreateFields = map[string]func(any) bool{
	"name":      isString,
	"createdAt": isNumber,
	"members":   isBoolMap,
	"admins":    isBoolMap,
}

// groups governs /groups/{groupId}. Any authenticated user may create a
// group (becoming whatever the payload says) or read an individual
// group; top-level edits and deletion are admin-only. Membership entries
// are strictly self-service; admin entries are managed by admins;
// hangout registry entries by members.
func (e *Evaluator) groups(op Op, snap store.Snapshot, p store.Path, current, proposed any, caller string) Decision {
	if len(p) == 1 {
		return denyf("cannot access the groups collection root")
	}
	if caller == "" {
		return denyf("unauthenticated")
	}
	groupID := p[1]

	if op == OpRead {
		// Individual groups are readable by any authenticated user so
		// the join-by-link flow can preview a group before joining.
		return allow()
	}

	admin := isAdmin(snap, groupID, caller)

	switch {
	case len(p) == 2:
		if current == nil {
			return validGroupCreate(proposed)
		}
		if !admin {
			return denyf("user %s is not an admin of group %s", caller, groupID)
		}
		if proposed == nil {
			return allow()
		}
		// Membership-style maps change through their per-key rules, not
		// through a whole-group write.
		for _, key := range []string{"members", "admins", "hangouts"} {
			if !submapUnchanged(current, proposed, key) {
				return denyf("%s cannot change through a group write", key)
			}
		}
		return allow()

	case len(p) == 3:
		switch p[2] {
		case "members":
			return e.groupMembersWrite(p, current, proposed, caller)
		case "admins":
			if !admin {
				return denyf("user %s is not an admin of group %s", caller, groupID)
			}
			for _, k := range changedKeys(current, proposed) {
				if v := childValue(proposed, k); v != nil && !isBool(v) {
					return denyf("admin entry %s must be a boolean", k)
				}
			}
			return allow()
		case "hangouts":
			if !isMember(snap, groupID, caller) {
				return denyf("user %s is not a member of group %s", caller, groupID)
			}
			for _, k := range changedKeys(current, proposed) {
				if v := childValue(proposed, k); v != nil && !isBool(v) {
					return denyf("hangout entry %s must be a boolean", k)
				}
			}
			return allow()
		}
		if !admin {
			return denyf("user %s is not an admin of group %s", caller, groupID)
		}
		return allow()

	case len(p) == 4:
		switch p[2] {
		case "members":
			if p[3] != caller {
				return denyf("user %s cannot change membership of %s", caller, p[3])
			}
			if proposed != nil && !isBool(proposed) {
				return denyf("membership entries must be booleans")
			}
			return allow()
		case "admins":
			if !admin {
				return denyf("user %s is not an admin of group %s", caller, groupID)
			}
			if proposed != nil && !isBool(proposed) {
				return denyf("admin entries must be booleans")
			}
			return allow()
		case "hangouts":
			if !isMember(snap, groupID, caller) {
				return denyf("user %s is not a member of group %s", caller, groupID)
			}
			if proposed != nil && !isBool(proposed) {
				return denyf("hangout entries must be booleans")
			}
			return allow()
		}
		// Nested scalar under a top-level field, e.g. icon/type.
		if !admin {
			return denyf("user %s is not an admin of group %s", caller, groupID)
		}
		return allow()
	}

	return denyf("path too deep for groups")
}

// groupMembersWrite checks a write to the whole members node: every
// entry that changes must be the caller's own, and values must be
// booleans. This is the same self-add/self-remove rule as the per-key
// path, applied to a merged write.
func (e *Evaluator) groupMembersWrite(p store.Path, current, proposed any, caller string) Decision {
	for _, k := range changedKeys(current, proposed) {
		if k != caller {
			return denyf("user %s cannot change membership of %s", caller, k)
		}
		if v := childValue(proposed, k); v != nil && !isBool(v) {
			return denyf("membership entries must be booleans")
		}
	}
	return allow()
}

func validGroupCreate(proposed any) Decision {
	m, ok := proposed.(map[string]any)
	if !ok {
		return denyf("a group must be an object")
	}
	for key, check := range groupCreateFields {
		v, present := m[key]
		if !present {
			return denyf("a group requires %s", key)
		}
		if !check(v) {
			return denyf("group field %s has the wrong type", key)
		}
	}
	for key := range m {
		if _, known := groupCreateFields[key]; !known {
			return denyf("unexpected group field %s", key)
		}
	}
	return allow()
}

func childValue(v any, key string) any {
	m, _ := v.(map[string]any)
	return m[key]
}
