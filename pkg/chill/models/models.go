// Package models defines the entity shapes stored in the Chill data tree
// and helpers for decoding them from raw tree values.
//
// The tree holds JSON-shaped values: maps are map[string]any, lists are
// []any, numbers are float64, and timestamps are epoch milliseconds.
package models

import "sort"

// User is a Chill user account, stored at /users/{uid}.
type User struct {
	ID                      string
	Name                    string
	HasSetName              bool
	FCMToken                string
	NotificationPreferences map[string]bool
	// Groups is the denormalized index of groups the user belongs to.
	// It is maintained by the reaction engine, never by clients.
	Groups map[string]bool
}

// GroupIcon is either a material icon name or an image URL.
type GroupIcon struct {
	Type  string // "material" or "image"
	Value string
}

// Group is a social group, stored at /groups/{groupId}.
type Group struct {
	ID        string
	Name      string
	Icon      *GroupIcon
	Info      string
	CreatedAt int64
	Hangouts  map[string]bool
	Admins    map[string]bool
	Members   map[string]bool
}

// Hangout is a proposed or scheduled get-together, stored at
// /hangouts/{hangoutId}. Exactly one of Time or DatetimePollInProgress is
// meaningful at a time: closing a poll writes Time and clears the flag.
type Hangout struct {
	ID        string
	Name      string
	Group     string
	CreatedAt int64

	Time                   int64 // epoch ms, 0 while a poll is open
	DatetimePollInProgress bool

	// CandidateDates maps a timestamp string to the uid that proposed it.
	CandidateDates map[string]string
	// DatePollSelections maps a uid to the timestamps they voted for.
	DatePollSelections map[string][]int64

	Attendees    map[string]bool
	MinAttendees int
	MaxAttendees int

	CreatedBy          string
	CreatedAnonymously bool
	Location           string
	Info               string
}

// UserFromValue decodes the value at /users/{uid}. Returns nil if the
// value is not a map.
func UserFromValue(id string, v any) *User {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return &User{
		ID:                      id,
		Name:                    String(m["name"]),
		HasSetName:              Bool(m["hasSetName"]),
		FCMToken:                String(m["fcmToken"]),
		NotificationPreferences: BoolMap(m["notificationPreferences"]),
		Groups:                  BoolMap(m["groups"]),
	}
}

// GroupFromValue decodes the value at /groups/{groupId}. Returns nil if
// the value is not a map.
func GroupFromValue(id string, v any) *Group {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	g := &Group{
		ID:        id,
		Name:      String(m["name"]),
		Info:      String(m["info"]),
		CreatedAt: Int(m["createdAt"]),
		Hangouts:  BoolMap(m["hangouts"]),
		Admins:    BoolMap(m["admins"]),
		Members:   BoolMap(m["members"]),
	}
	if icon, ok := m["icon"].(map[string]any); ok {
		g.Icon = &GroupIcon{Type: String(icon["type"]), Value: String(icon["value"])}
	}
	return g
}

// HangoutFromValue decodes the value at /hangouts/{hangoutId}. Returns
// nil if the value is not a map.
func HangoutFromValue(id string, v any) *Hangout {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	h := &Hangout{
		ID:                     id,
		Name:                   String(m["name"]),
		Group:                  String(m["group"]),
		CreatedAt:              Int(m["createdAt"]),
		Time:                   Int(m["time"]),
		DatetimePollInProgress: Bool(m["datetimePollInProgress"]),
		Attendees:              BoolMap(m["attendees"]),
		MinAttendees:           int(Int(m["minAttendees"])),
		MaxAttendees:           int(Int(m["maxAttendees"])),
		CreatedBy:              String(m["createdBy"]),
		CreatedAnonymously:     Bool(m["createdAnonymously"]),
		Location:               String(m["location"]),
		Info:                   String(m["info"]),
	}
	if cd, ok := m["candidateDates"].(map[string]any); ok {
		h.CandidateDates = make(map[string]string, len(cd))
		for ts, uid := range cd {
			h.CandidateDates[ts] = String(uid)
		}
	}
	if sel, ok := m["datePollSelections"].(map[string]any); ok {
		h.DatePollSelections = make(map[string][]int64, len(sel))
		for uid, votes := range sel {
			list, ok := votes.([]any)
			if !ok {
				continue
			}
			stamps := make([]int64, 0, len(list))
			for _, ts := range list {
				stamps = append(stamps, Int(ts))
			}
			h.DatePollSelections[uid] = stamps
		}
	}
	return h
}

// WinningDate picks the poll result for a hangout: the candidate
// timestamp with the most votes across all members' selections, earliest
// timestamp on a tie. Returns false if nobody voted.
func (h *Hangout) WinningDate() (int64, bool) {
	votes := make(map[int64]int)
	for _, stamps := range h.DatePollSelections {
		for _, ts := range stamps {
			votes[ts]++
		}
	}
	if len(votes) == 0 {
		return 0, false
	}
	candidates := make([]int64, 0, len(votes))
	for ts := range votes {
		candidates = append(candidates, ts)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	best := candidates[0]
	for _, ts := range candidates[1:] {
		if votes[ts] > votes[best] {
			best = ts
		}
	}
	return best, true
}

// String extracts a string value, or "" for anything else.
func String(v any) string {
	s, _ := v.(string)
	return s
}

// Bool extracts a boolean value, or false for anything else.
func Bool(v any) bool {
	b, _ := v.(bool)
	return b
}

// Int extracts a numeric value as int64. Tree numbers are float64 after
// JSON decoding, but int and int64 are accepted for values built in Go.
func Int(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// BoolMap extracts a {key: bool} map, keeping only true/false values.
func BoolMap(v any) map[string]bool {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, val := range m {
		if b, ok := val.(bool); ok {
			out[k] = b
		}
	}
	return out
}
