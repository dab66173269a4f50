package models

import "testing"

func TestHangoutFromValue(t *testing.T) {
	h := HangoutFromValue("h1", map[string]any{
		"name":               "Board games",
		"group":              "g1",
		"createdAt":          float64(1700000000000),
		"time":               float64(1767225600000),
		"createdBy":          "alice",
		"createdAnonymously": true,
		"attendees":          map[string]any{"alice": true, "bob": false},
		"candidateDates":     map[string]any{"1767225600000": "alice"},
		"datePollSelections": map[string]any{"alice": []any{float64(1767225600000)}},
	})
	if h == nil {
		t.Fatal("decode returned nil")
	}
	if h.ID != "h1" || h.Name != "Board games" || h.Group != "g1" {
		t.Errorf("decoded %+v", h)
	}
	if h.Time != 1767225600000 || h.CreatedAt != 1700000000000 {
		t.Errorf("times: %d, %d", h.Time, h.CreatedAt)
	}
	if !h.CreatedAnonymously || h.CreatedBy != "alice" {
		t.Errorf("creator: %q anon %v", h.CreatedBy, h.CreatedAnonymously)
	}
	if !h.Attendees["alice"] || h.Attendees["bob"] {
		t.Errorf("attendees: %v", h.Attendees)
	}
	if h.CandidateDates["1767225600000"] != "alice" {
		t.Errorf("candidate dates: %v", h.CandidateDates)
	}
	if votes := h.DatePollSelections["alice"]; len(votes) != 1 || votes[0] != 1767225600000 {
		t.Errorf("selections: %v", h.DatePollSelections)
	}

	if HangoutFromValue("h1", "not a map") != nil {
		t.Error("non-map value should decode to nil")
	}
	if HangoutFromValue("h1", nil) != nil {
		t.Error("nil value should decode to nil")
	}
}

func TestUserFromValue(t *testing.T) {
	u := UserFromValue("u1", map[string]any{
		"name":                    "Alice",
		"hasSetName":              true,
		"fcmToken":                "tok-1",
		"notificationPreferences": map[string]any{"g1": true, "g2": false},
		"groups":                  map[string]any{"g1": true},
	})
	if u == nil {
		t.Fatal("decode returned nil")
	}
	if u.Name != "Alice" || !u.HasSetName || u.FCMToken != "tok-1" {
		t.Errorf("decoded %+v", u)
	}
	if !u.NotificationPreferences["g1"] || u.NotificationPreferences["g2"] {
		t.Errorf("preferences: %v", u.NotificationPreferences)
	}
	if !u.Groups["g1"] {
		t.Errorf("groups: %v", u.Groups)
	}
}

func TestGroupFromValue(t *testing.T) {
	g := GroupFromValue("g1", map[string]any{
		"name":      "Game Night",
		"createdAt": float64(1700000000000),
		"members":   map[string]any{"alice": true},
		"admins":    map[string]any{"alice": true},
		"hangouts":  map[string]any{"h1": true},
		"icon":      map[string]any{"type": "material", "value": "sports_esports"},
	})
	if g == nil {
		t.Fatal("decode returned nil")
	}
	if g.Name != "Game Night" || g.CreatedAt != 1700000000000 {
		t.Errorf("decoded %+v", g)
	}
	if g.Icon == nil || g.Icon.Type != "material" || g.Icon.Value != "sports_esports" {
		t.Errorf("icon: %+v", g.Icon)
	}
	if !g.Members["alice"] || !g.Admins["alice"] || !g.Hangouts["h1"] {
		t.Errorf("maps: %+v", g)
	}
}

func TestWinningDate(t *testing.T) {
	h := &Hangout{DatePollSelections: map[string][]int64{
		"alice": {100, 200},
		"bob":   {200},
		"carol": {300},
	}}
	ts, ok := h.WinningDate()
	if !ok || ts != 200 {
		t.Errorf("got %d %v, want 200 true", ts, ok)
	}
}

func TestWinningDateTieBreaksEarliest(t *testing.T) {
	h := &Hangout{DatePollSelections: map[string][]int64{
		"alice": {300},
		"bob":   {100},
	}}
	ts, ok := h.WinningDate()
	if !ok || ts != 100 {
		t.Errorf("got %d %v, want 100 true", ts, ok)
	}
}

func TestWinningDateNoVotes(t *testing.T) {
	h := &Hangout{}
	if _, ok := h.WinningDate(); ok {
		t.Error("no votes should report no winner")
	}
	h = &Hangout{DatePollSelections: map[string][]int64{"alice": {}}}
	if _, ok := h.WinningDate(); ok {
		t.Error("empty selections should report no winner")
	}
}
