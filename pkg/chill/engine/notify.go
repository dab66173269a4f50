package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AlanDaniels101/chill/pkg/chill/metrics"
	"github.com/AlanDaniels101/chill/pkg/chill/models"
	"github.com/AlanDaniels101/chill/pkg/chill/push"
	"github.com/AlanDaniels101/chill/pkg/chill/store"
)

// hangoutCreated notifies subscribed group members about a new hangout.
func (e *Engine) hangoutCreated(ctx context.Context, ev TriggerEvent) error {
	hangoutID := ev.Params["hangoutId"]
	slog.Info("new hangout created", "hangout_id", hangoutID)

	hangout := models.HangoutFromValue(hangoutID, ev.After)
	if hangout == nil {
		slog.Warn("invalid hangout data, skipping notification", "hangout_id", hangoutID)
		return nil
	}
	if hangout.Group == "" {
		slog.Warn("hangout has no group, skipping notification", "hangout_id", hangoutID)
		return nil
	}

	tokens := e.subscriberTokens(hangout.Group)
	if len(tokens) == 0 {
		slog.Debug("no tokens to send notifications to", "group_id", hangout.Group)
		return nil
	}

	name := hangout.Name
	if name == "" {
		name = "New hangout"
	}
	groupName := e.groupName(hangout.Group)
	title := fmt.Sprintf("New Hangout in %s!", groupName)
	body := fmt.Sprintf("%q is happening %s", name, push.RelativeTime(hangout.Time, time.Now()))

	e.sendToTokens(ctx, tokens, title, body, map[string]string{
		"groupId":      hangout.Group,
		"hangoutId":    hangoutID,
		"type":         "new_hangout",
		"title":        title,
		"body":         body,
		"click_action": "OPEN_HANGOUT_DETAILS",
	})
	return nil
}

// pollClosed announces the resolved date once a hangout's date poll is
// closed. The poll flag going away is only trusted if a time is now
// present on a fresh read of the hangout.
func (e *Engine) pollClosed(ctx context.Context, ev TriggerEvent) error {
	hangoutID := ev.Params["hangoutId"]
	slog.Info("date poll closed", "hangout_id", hangoutID)

	raw := e.store.Get(store.Path{"hangouts", hangoutID})
	hangout := models.HangoutFromValue(hangoutID, raw)
	if hangout == nil {
		slog.Warn("hangout gone after poll close, skipping notification", "hangout_id", hangoutID)
		return nil
	}
	resolved, _ := raw.(map[string]any)
	if _, hasTime := resolved["time"].(float64); !hasTime {
		slog.Warn("poll flag removed without a resolved time, skipping notification", "hangout_id", hangoutID)
		return nil
	}
	if hangout.Group == "" {
		slog.Warn("hangout has no group, skipping notification", "hangout_id", hangoutID)
		return nil
	}

	tokens := e.subscriberTokens(hangout.Group)
	if len(tokens) == 0 {
		slog.Debug("no tokens to send notifications to", "group_id", hangout.Group)
		return nil
	}

	groupName := e.groupName(hangout.Group)
	when := time.UnixMilli(hangout.Time).UTC().Format("Monday, Jan 2 at 3:04 PM")
	title := fmt.Sprintf("Date picked in %s!", groupName)
	body := fmt.Sprintf("%q is set for %s", hangout.Name, when)

	e.sendToTokens(ctx, tokens, title, body, map[string]string{
		"groupId":      hangout.Group,
		"hangoutId":    hangoutID,
		"type":         "poll_closed",
		"title":        title,
		"body":         body,
		"click_action": "OPEN_HANGOUT_DETAILS",
	})
	return nil
}

// subscriberTokens resolves the device tokens for every group member who
// has notifications enabled for the group.
func (e *Engine) subscriberTokens(groupID string) []string {
	members := models.BoolMap(e.store.Get(store.Path{"groups", groupID, "members"}))
	var tokens []string
	for _, uid := range sortedKeys(members) {
		enabled, _ := e.store.Get(store.Path{"users", uid, "notificationPreferences", groupID}).(bool)
		if !enabled {
			continue
		}
		token, _ := e.store.Get(store.Path{"users", uid, "fcmToken"}).(string)
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func (e *Engine) groupName(groupID string) string {
	if name, ok := e.store.Get(store.Path{"groups", groupID, "name"}).(string); ok && name != "" {
		return name
	}
	return "your group"
}

// sendToTokens fans one message out to every token. Per-token failures
// are logged and counted; they never abort the batch and are never
// retried individually, since stale tokens are steady-state noise.
func (e *Engine) sendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) {
	msgs := make([]*push.Message, len(tokens))
	for i, token := range tokens {
		msgs[i] = &push.Message{
			Token:        token,
			Notification: push.Notification{Title: title, Body: body},
			Data:         data,
			Android: push.AndroidConfig{
				Priority: "high",
				Notification: push.AndroidNotification{
					ClickAction: data["click_action"],
					ChannelID:   "hangouts",
					Icon:        "notification_icon",
					Color:       "#4CAF50",
				},
			},
			APNS: push.APNSConfig{
				Priority: "10",
				Payload:  push.APSPayload{Sound: "default", Badge: 1, ContentAvailable: true},
			},
		}
	}

	batch, err := e.sender.SendEach(ctx, msgs)
	if err != nil {
		slog.Error("error sending notifications", "error", err)
		return
	}
	slog.Debug("notifications sent", "success", batch.SuccessCount, "total", len(tokens))
	metrics.PushSends.WithLabelValues("ok").Add(float64(batch.SuccessCount))
	metrics.PushSends.WithLabelValues("failed").Add(float64(batch.FailureCount))
	for i, resp := range batch.Responses {
		if !resp.Success {
			slog.Error("failed to send notification", "token", tokens[i], "error", resp.Err)
		}
	}
}
