package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/AlanDaniels101/chill/pkg/chill/store"
)

// membershipCreated maintains the user side of the membership edge when
// someone joins a group: the denormalized user->group index entry, and a
// default-on notification preference. Both writes are best-effort; a
// failure on the second does not roll back the first.
func (e *Engine) membershipCreated(ctx context.Context, ev TriggerEvent) error {
	groupID := ev.Params["groupId"]
	userID := ev.Params["userId"]
	slog.Info("group membership created", "group_id", groupID, "user_id", userID)

	if err := e.store.Set(store.Path{"users", userID, "groups", groupID}, true); err != nil {
		slog.Error("error adding group to user's groups list", "group_id", groupID, "user_id", userID, "error", err)
	}
	if err := e.store.Set(store.Path{"users", userID, "notificationPreferences", groupID}, true); err != nil {
		slog.Error("error setting default notification preference", "group_id", groupID, "user_id", userID, "error", err)
	}
	return nil
}

// membershipDeleted removes the user->group index entry when someone
// leaves (or is removed from) a group.
func (e *Engine) membershipDeleted(ctx context.Context, ev TriggerEvent) error {
	groupID := ev.Params["groupId"]
	userID := ev.Params["userId"]
	slog.Info("group membership removed", "group_id", groupID, "user_id", userID)

	if err := e.store.Delete(store.Path{"users", userID, "groups", groupID}); err != nil {
		slog.Error("error removing group from user's groups list", "group_id", groupID, "user_id", userID, "error", err)
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
