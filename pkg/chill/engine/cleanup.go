package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AlanDaniels101/chill/pkg/chill/models"
	"github.com/AlanDaniels101/chill/pkg/chill/store"
)

// userDeleted cleans up after an account deletion: for every group the
// user belonged to, it repairs the admin set (promoting a replacement,
// or deleting the group when nobody is left), removes the user's
// membership and admin entries, and scrubs their attendee entries from
// the group's hangouts. Everything is computed from a fresh read and
// applied as one atomic multi-location update, so a retried invocation
// converges instead of compounding.
func (e *Engine) userDeleted(ctx context.Context, ev TriggerEvent) error {
	userID := ev.Params["userId"]
	user := models.UserFromValue(userID, ev.Before)
	if user == nil {
		slog.Warn("invalid user snapshot, skipping cleanup", "user_id", userID)
		return nil
	}
	slog.Info("user deleted, cleaning up groups", "user_id", userID, "groups", len(user.Groups))

	updates := make(map[string]any)
	for _, groupID := range sortedKeys(user.Groups) {
		group := models.GroupFromValue(groupID, e.store.Get(store.Path{"groups", groupID}))
		if group == nil {
			continue
		}

		if group.Admins[userID] && soleAdmin(group.Admins, userID) {
			replacement, found := firstOtherMember(group.Members, userID)
			if !found {
				// Nobody left: delete the group outright. The
				// group-deleted handler cascades to its hangouts.
				slog.Info("deleting group with no remaining members", "group_id", groupID)
				updates["groups/"+groupID] = nil
				continue
			}
			slog.Info("promoting replacement admin", "group_id", groupID, "user_id", replacement)
			updates["groups/"+groupID+"/admins/"+replacement] = true
		}

		updates["groups/"+groupID+"/members/"+userID] = nil
		updates["groups/"+groupID+"/admins/"+userID] = nil

		for _, hangoutID := range sortedKeys(group.Hangouts) {
			hangout := models.HangoutFromValue(hangoutID, e.store.Get(store.Path{"hangouts", hangoutID}))
			if hangout != nil && hangout.Attendees[userID] {
				updates["hangouts/"+hangoutID+"/attendees/"+userID] = nil
			}
		}
	}

	if len(updates) == 0 {
		return nil
	}
	if err := e.store.Update(nil, updates); err != nil {
		return fmt.Errorf("user cleanup for %s: %w", userID, err)
	}
	return nil
}

// groupDeleted cascades a group deletion to every hangout it registered.
// Deleting an already-absent hangout is a no-op, so a retry is safe.
func (e *Engine) groupDeleted(ctx context.Context, ev TriggerEvent) error {
	groupID := ev.Params["groupId"]
	group := models.GroupFromValue(groupID, ev.Before)
	if group == nil {
		slog.Warn("invalid group snapshot, skipping cascade", "group_id", groupID)
		return nil
	}
	if len(group.Hangouts) == 0 {
		return nil
	}
	slog.Info("group deleted, removing hangouts", "group_id", groupID, "hangouts", len(group.Hangouts))

	updates := make(map[string]any)
	for _, hangoutID := range sortedKeys(group.Hangouts) {
		updates["hangouts/"+hangoutID] = nil
	}
	if err := e.store.Update(nil, updates); err != nil {
		return fmt.Errorf("hangout cascade for group %s: %w", groupID, err)
	}
	return nil
}

func soleAdmin(admins map[string]bool, userID string) bool {
	for uid, ok := range admins {
		if ok && uid != userID {
			return false
		}
	}
	return true
}

func firstOtherMember(members map[string]bool, userID string) (string, bool) {
	for _, uid := range sortedKeys(members) {
		if uid != userID && members[uid] {
			return uid, true
		}
	}
	return "", false
}
