package rules

import "github.com/AlanDaniels101/chill/pkg/chill/store"

// users governs /users/{uid}. A user document is private to its owner,
// with one narrower grant layered on top: any authenticated caller may
// read another user's name (needed to render member lists). The groups
// index under a user is system-maintained and never client-writable.
func (e *Evaluator) users(op Op, p store.Path, current, proposed any, caller string) Decision {
	if len(p) == 1 {
		return denyf("cannot access the users collection root")
	}
	if caller == "" {
		return denyf("unauthenticated")
	}
	uid := p[1]

	if op == OpRead {
		if len(p) == 3 && p[2] == "name" {
			return allow()
		}
		if caller != uid {
			return denyf("user %s cannot read user %s", caller, uid)
		}
		return allow()
	}

	if caller != uid {
		return denyf("user %s cannot write user %s", caller, uid)
	}
	if len(p) >= 3 && p[2] == "groups" {
		return denyf("the groups index is system-maintained")
	}
	// Deleting the whole account is the owner's call; otherwise a
	// whole-document write must carry the groups index through intact.
	if len(p) == 2 && proposed != nil && !submapUnchanged(current, proposed, "groups") {
		return denyf("the groups index is system-maintained")
	}
	return allow()
}
