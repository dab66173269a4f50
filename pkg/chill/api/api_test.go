package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AlanDaniels101/chill/pkg/chill/auth"
	"github.com/AlanDaniels101/chill/pkg/chill/rules"
	"github.com/AlanDaniels101/chill/pkg/chill/store"
)

func setupTest(t *testing.T) (*store.Store, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.New(rules.New())
	t.Cleanup(st.Close)
	return st, NewRouter(st)
}

func authHeader(t *testing.T, uid string) string {
	t.Helper()
	token, err := auth.GenerateToken(uid)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, router *gin.Engine, method, url, authorization string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, _ := http.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func seedGroup(t *testing.T, st *store.Store, groupID string, members, admins []string) {
	t.Helper()
	memberMap := map[string]any{}
	for _, uid := range members {
		memberMap[uid] = true
	}
	adminMap := map[string]any{}
	for _, uid := range admins {
		adminMap[uid] = true
	}
	err := st.Set(store.ParsePath("groups/"+groupID), map[string]any{
		"name":      "Test Group",
		"createdAt": 1700000000000,
		"members":   memberMap,
		"admins":    adminMap,
	})
	if err != nil {
		t.Fatalf("seed group: %v", err)
	}
}

func TestDataRequiresAuth(t *testing.T) {
	_, router := setupTest(t)

	resp := doJSON(t, router, "GET", "/api/data/users/alice", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestReadOwnUser(t *testing.T) {
	st, router := setupTest(t)
	if err := st.Set(store.ParsePath("users/alice"), map[string]any{"name": "Alice"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := doJSON(t, router, "GET", "/api/data/users/alice", authHeader(t, "alice"), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var user map[string]any
	json.Unmarshal(resp.Body.Bytes(), &user)
	if user["name"] != "Alice" {
		t.Errorf("Expected name Alice, got %v", user["name"])
	}
}

func TestReadOtherUserForbidden(t *testing.T) {
	st, router := setupTest(t)
	if err := st.Set(store.ParsePath("users/bob"), map[string]any{"name": "Bob"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := doJSON(t, router, "GET", "/api/data/users/bob", authHeader(t, "alice"), nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]any
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body["error"] != "Permission denied" {
		t.Errorf("Expected generic denial, got %v", body["error"])
	}

	// The name alone is readable by any authenticated user.
	resp = doJSON(t, router, "GET", "/api/data/users/bob/name", authHeader(t, "alice"), nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}
}

func TestAbsentPathReadsAsNull(t *testing.T) {
	_, router := setupTest(t)

	resp := doJSON(t, router, "GET", "/api/data/groups/no-such-group", authHeader(t, "alice"), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	if resp.Body.String() != "null" {
		t.Errorf("Expected null, got %s", resp.Body.String())
	}
}

func TestGroupLifecycle(t *testing.T) {
	st, router := setupTest(t)
	header := authHeader(t, "alice")

	group := map[string]any{
		"name":      "Game Night",
		"createdAt": 1700000000000,
		"members":   map[string]any{"alice": true},
		"admins":    map[string]any{"alice": true},
	}
	resp := doJSON(t, router, "PUT", "/api/data/groups/g1", header, group)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	// Another user can preview the group and join themselves.
	bobHeader := authHeader(t, "bob")
	resp = doJSON(t, router, "GET", "/api/data/groups/g1", bobHeader, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	resp = doJSON(t, router, "PUT", "/api/data/groups/g1/members/bob", bobHeader, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	// But cannot add anyone else.
	resp = doJSON(t, router, "PUT", "/api/data/groups/g1/members/carol", bobHeader, true)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}

	// Renames are admin-only.
	resp = doJSON(t, router, "PUT", "/api/data/groups/g1/name", bobHeader, "Bob's Group")
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}
	resp = doJSON(t, router, "PUT", "/api/data/groups/g1/name", header, "Board Game Night")
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	if got := st.Get(store.ParsePath("groups/g1/name")); got != "Board Game Night" {
		t.Errorf("name = %v", got)
	}
	if got := st.Get(store.ParsePath("groups/g1/members/bob")); got != true {
		t.Errorf("bob membership = %v", got)
	}
}

func TestPushHangout(t *testing.T) {
	st, router := setupTest(t)
	seedGroup(t, st, "g1", []string{"alice"}, []string{"alice"})
	header := authHeader(t, "alice")

	resp := doJSON(t, router, "POST", "/api/data/hangouts", header, map[string]any{
		"name":               "Board games",
		"createdAt":          1700000000000,
		"group":              "g1",
		"createdBy":          "alice",
		"createdAnonymously": false,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]any
	json.Unmarshal(resp.Body.Bytes(), &body)
	key, _ := body["name"].(string)
	if key == "" {
		t.Fatal("Expected generated key in response")
	}
	if got := st.Get(store.ParsePath("hangouts/" + key + "/name")); got != "Board games" {
		t.Errorf("stored name = %v", got)
	}
}

func TestHangoutImmutableFieldUpdate(t *testing.T) {
	st, router := setupTest(t)
	seedGroup(t, st, "g1", []string{"alice"}, []string{"alice"})
	err := st.Set(store.ParsePath("hangouts/h1"), map[string]any{
		"name":               "Board games",
		"createdAt":          1700000000000,
		"group":              "g1",
		"createdBy":          "alice",
		"createdAnonymously": false,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// A merge touching a protected field fails as a unit, including its
	// legal parts.
	resp := doJSON(t, router, "PATCH", "/api/data/hangouts/h1", authHeader(t, "alice"), map[string]any{
		"name":  "New Name",
		"group": "other-group",
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("Expected status 403, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := st.Get(store.ParsePath("hangouts/h1/name")); got != "Board games" {
		t.Errorf("name changed despite denial: %v", got)
	}
	if got := st.Get(store.ParsePath("hangouts/h1/group")); got != "g1" {
		t.Errorf("group changed despite denial: %v", got)
	}
}

func TestDeleteHangoutCreatorOnly(t *testing.T) {
	st, router := setupTest(t)
	seedGroup(t, st, "g1", []string{"alice", "bob"}, []string{"bob"})
	err := st.Set(store.ParsePath("hangouts/h1"), map[string]any{
		"name":               "Board games",
		"createdAt":          1700000000000,
		"group":              "g1",
		"createdBy":          "alice",
		"createdAnonymously": false,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := doJSON(t, router, "DELETE", "/api/data/hangouts/h1", authHeader(t, "bob"), nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}

	resp = doJSON(t, router, "DELETE", "/api/data/hangouts/h1", authHeader(t, "alice"), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := st.Get(store.ParsePath("hangouts/h1")); got != nil {
		t.Errorf("hangout survives: %v", got)
	}
}

func TestClosePoll(t *testing.T) {
	st, router := setupTest(t)
	seedGroup(t, st, "g1", []string{"alice", "bob"}, []string{"alice"})
	err := st.Set(store.ParsePath("hangouts/h1"), map[string]any{
		"name":                   "Board games",
		"createdAt":              1700000000000,
		"group":                  "g1",
		"createdBy":              "alice",
		"createdAnonymously":     false,
		"datetimePollInProgress": true,
		"candidateDates": map[string]any{
			"1767225600000": "alice",
			"1767312000000": "bob",
		},
		"datePollSelections": map[string]any{
			"alice": []any{1767225600000, 1767312000000},
			"bob":   []any{1767312000000},
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := doJSON(t, router, "POST", "/api/hangouts/h1/close-poll", authHeader(t, "bob"), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]any
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body["time"] != float64(1767312000000) {
		t.Errorf("winner = %v, want 1767312000000", body["time"])
	}
	if got := st.Get(store.ParsePath("hangouts/h1/time")); got != float64(1767312000000) {
		t.Errorf("stored time = %v", got)
	}
	if got := st.Get(store.ParsePath("hangouts/h1/datetimePollInProgress")); got != nil {
		t.Errorf("poll flag survives: %v", got)
	}

	// Closing again conflicts: no poll is in progress any more.
	resp = doJSON(t, router, "POST", "/api/hangouts/h1/close-poll", authHeader(t, "bob"), nil)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}
}

func TestClosePollWithoutVotes(t *testing.T) {
	st, router := setupTest(t)
	seedGroup(t, st, "g1", []string{"alice"}, []string{"alice"})
	err := st.Set(store.ParsePath("hangouts/h1"), map[string]any{
		"name":                   "Board games",
		"createdAt":              1700000000000,
		"group":                  "g1",
		"createdBy":              "alice",
		"createdAnonymously":     false,
		"datetimePollInProgress": true,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := doJSON(t, router, "POST", "/api/hangouts/h1/close-poll", authHeader(t, "alice"), nil)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestClosePollMissingHangout(t *testing.T) {
	_, router := setupTest(t)

	resp := doJSON(t, router, "POST", "/api/hangouts/no-such/close-poll", authHeader(t, "alice"), nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestServiceKeyBypassesRules(t *testing.T) {
	hash, err := auth.HashServiceKey("ops-key")
	if err != nil {
		t.Fatalf("HashServiceKey failed: %v", err)
	}
	t.Setenv("CHILL_SERVICE_KEY_HASH", hash)

	st, router := setupTest(t)
	if err := st.Set(store.ParsePath("users/bob"), map[string]any{"name": "Bob"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := doJSON(t, router, "GET", "/api/data/users/bob", "Bearer ops-key", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var user map[string]any
	json.Unmarshal(resp.Body.Bytes(), &user)
	if user["name"] != "Bob" {
		t.Errorf("Expected name Bob, got %v", user["name"])
	}
}

func TestInvalidBody(t *testing.T) {
	_, router := setupTest(t)

	req, _ := http.NewRequest("PUT", "/api/data/users/alice", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader(t, "alice"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
}

func TestHealthz(t *testing.T) {
	_, router := setupTest(t)

	resp := doJSON(t, router, "GET", "/healthz", "", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}
}
