// Package push defines the outbound notification surface: the message
// shape dispatched to group members and the Sender that delivers one
// message per device token.
package push

import (
	"context"
	"fmt"
	"time"
)

// Notification is the human-readable part of a message.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// AndroidNotification carries Android display hints.
type AndroidNotification struct {
	ClickAction string `json:"clickAction"`
	ChannelID   string `json:"channelId"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

// AndroidConfig carries Android delivery hints.
type AndroidConfig struct {
	Priority     string              `json:"priority"`
	Notification AndroidNotification `json:"notification"`
}

// APSPayload is the apns "aps" dictionary.
type APSPayload struct {
	Sound            string `json:"sound"`
	Badge            int    `json:"badge"`
	ContentAvailable bool   `json:"content-available"`
}

// APNSConfig carries iOS delivery hints. ContentAvailable matters for
// background delivery.
type APNSConfig struct {
	Priority string     `json:"priority"`
	Payload  APSPayload `json:"payload"`
}

// Message is one push notification addressed to one device token.
type Message struct {
	Token        string            `json:"token"`
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      AndroidConfig     `json:"android"`
	APNS         APNSConfig        `json:"apns"`
}

// SendResponse is the delivery outcome for one message.
type SendResponse struct {
	Success bool
	Err     error
}

// BatchResponse summarizes a SendEach call. Responses are in the same
// order as the submitted messages.
type BatchResponse struct {
	SuccessCount int
	FailureCount int
	Responses    []SendResponse
}

// Sender delivers messages. A failed token must not abort the batch:
// stale and invalid tokens are steady-state noise, recorded per message
// in the batch response.
type Sender interface {
	SendEach(ctx context.Context, msgs []*Message) (*BatchResponse, error)
}

// RelativeTime renders an event time (epoch ms) as a phrase for a
// notification body: "in 3 days", "in 2 hours", "in 10 minutes". Events
// with no time, or already underway, are "soon".
func RelativeTime(eventMillis int64, now time.Time) string {
	if eventMillis <= 0 {
		return "soon"
	}
	d := time.UnixMilli(eventMillis).Sub(now)
	switch {
	case d < time.Minute:
		return "soon"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("in 1 %s", unit)
	}
	return fmt.Sprintf("in %d %ss", n, unit)
}
