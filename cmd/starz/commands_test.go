package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/starz/internal/chat"
	"github.com/kalambet/starz/internal/config"
	"github.com/kalambet/starz/internal/favorites"
	"github.com/kalambet/starz/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useClient points every command at c for the duration of the test.
func useClient(t *testing.T, c *apiClient) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return c, nil }
	t.Cleanup(func() { newAPIClient = old })
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

var ctx = context.Background()

func TestFavoritesList_Request(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /conversations/c 1/favorites": `{"conversation_id":"c 1","title":"Alice","items":[],"total_count":0,"total_pages":1,"page":2,"page_size":3}`,
	})

	l, err := listFavorites(ctx, ts.client(), "c 1", 2, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Title != "Alice" || l.Page != 2 {
		t.Errorf("unexpected listing %+v", l)
	}

	r := ts.requests[0]
	if r.Path != "/conversations/c%201/favorites?page=2&page_size=3" {
		t.Errorf("path = %q", r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
}

func TestFavoritesList_DefaultPageSizeOmitted(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /conversations/c1/favorites": `{"items":[]}`,
	})

	if _, err := listFavorites(ctx, ts.client(), "c1", 1, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.requests[0].Path; got != "/conversations/c1/favorites?page=1" {
		t.Errorf("path = %q", got)
	}
}

func TestPrintListing(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	pos := 4
	l := chat.Listing{
		Title:      "Alice",
		TotalCount: 2,
		TotalPages: 1,
		Page:       1,
		Items: []chat.Entry{
			{Record: favorites.Record{ID: "abcdef123456", MessageRef: "4", Sender: "Alice", Note: "remember"}, Snippet: "hello", Position: &pos},
			{Record: favorites.Record{ID: "xyz", MessageRef: "9", Sender: "Bob"}, Deleted: true},
		},
	}

	var buf bytes.Buffer
	printListing(&buf, l)
	out := buf.String()

	for _, want := range []string{"Alice - 2 favorites", "abcdef12  #4  Alice", "    hello", "note: remember", "xyz  #9  Bob  [message deleted]", "page 1/1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintListing_StableRefShowsPosition(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	pos := 2
	var buf bytes.Buffer
	printListing(&buf, chat.Listing{
		ConversationID: "c1",
		TotalCount:     1,
		Items:          []chat.Entry{{Record: favorites.Record{ID: "r1", MessageRef: "m-42"}, Position: &pos}},
	})
	if !strings.Contains(buf.String(), "#2 (m-42)") {
		t.Errorf("output = %q", buf.String())
	}
	if !strings.HasPrefix(buf.String(), "c1 - 1 favorites") {
		t.Errorf("untitled conversations should show the ID, got %q", buf.String())
	}
}

func TestFavoritesToggleCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /conversations/c1/favorites/toggle": `{"record":{"id":"r1","messageRef":"3"},"added":true}`,
	})
	useClient(t, ts.client())

	if err := execute(t, "favorites", "toggle", "c1", "3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["message_ref"] != "3" {
		t.Errorf("message_ref = %q, want 3", body["message_ref"])
	}
}

func TestFavoritesRemove_NeedsIDOrRef(t *testing.T) {
	err := execute(t, "favorites", "remove", "c1")
	if err == nil || !strings.Contains(err.Error(), "favorite ID or --ref") {
		t.Fatalf("error = %v", err)
	}
}

func TestFavoritesRemove_ByRef(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /conversations/c1/favorites": `{"status":"deleted"}`,
	})
	useClient(t, ts.client())
	defer favoritesRemoveCmd.Flags().Set("ref", "")

	if err := execute(t, "favorites", "remove", "c1", "--ref", "m 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.requests[0].Path; got != "/conversations/c1/favorites?message_ref=m+1" {
		t.Errorf("path = %q", got)
	}
}

func TestFavoritesNote_ServerError(t *testing.T) {
	ts := newTestServer(t, nil)
	useClient(t, ts.client())

	err := execute(t, "favorites", "note", "c1", "missing", "some", "text")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %q", err.Error())
	}
	if body := ts.requests[0].Body; body != `{"note":"some text"}` {
		t.Errorf("body = %q", body)
	}
}

func TestMessagesEdit_RejectsBadPosition(t *testing.T) {
	err := execute(t, "messages", "edit", "c1", "first", "text")
	if err == nil || !strings.Contains(err.Error(), "position must be an integer") {
		t.Fatalf("error = %v", err)
	}
}

func TestPrintPrune(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	var buf bytes.Buffer
	printPrune(&buf, chat.PruneResult{Invalid: []favorites.Record{{ID: "r1", MessageRef: "7", Sender: "Bob"}}})
	if !strings.Contains(buf.String(), "r1  #7  Bob") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrintContext(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	var buf bytes.Buffer
	printContext(&buf, []chat.ContextMessage{
		{Position: 0, Sender: "Bob", Text: "<p>before</p>"},
		{Position: 1, Sender: "Alice", Text: "target", Target: true},
	})
	out := buf.String()
	if !strings.Contains(out, "  #0 Bob\n    before\n") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "★ #1 Alice") {
		t.Errorf("target not marked: %q", out)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	c := &apiClient{
		baseURL:    "http://127.0.0.1:1",
		token:      "t",
		httpClient: &http.Client{Timeout: 500 * time.Millisecond},
	}
	_, err := countConversations(ctx, c, 10)
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := styleGreen.paint("test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("paint with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = styleGreen.paint("test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("paint with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestNotices(t *testing.T) {
	oldColor, oldOut := noColor, notices
	defer func() { noColor, notices = oldColor, oldOut }()
	noColor = true
	var buf bytes.Buffer
	notices = &buf

	printSuccess("Deleted message #%d", 2)
	printStep("Dropped favorite %s", "fav-1")
	printStatus("Addressing", "%s", "stable")

	want := "✓ Deleted message #2\n→ Dropped favorite fav-1\n  Addressing: stable\n"
	if buf.String() != want {
		t.Errorf("notices = %q, want %q", buf.String(), want)
	}
	if star(false) != " " || star(true) != "★" {
		t.Errorf("star = %q/%q", star(false), star(true))
	}
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID = %q, want 01234567", got)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = decodeJSON(resp, &struct{}{})
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if err.Error() != "server returned 404: not found" {
		t.Errorf("error = %q", err.Error())
	}
}

func TestConversationPath(t *testing.T) {
	if got := conversationPath("a/b", "favorites", "x y"); got != "/conversations/a%2Fb/favorites/x%20y" {
		t.Errorf("conversationPath = %q", got)
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{0, 100, "0"},
		{99, 100, "99"},
		{100, 100, "100+"},
	}
	for _, tt := range tests {
		if got := countLabel(tt.count, tt.limit); got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "nested"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil || pid <= 0 {
		t.Fatalf("readPIDFile = %d, %v", pid, err)
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("PID file should be gone")
	}
}

// TestDaemon_EndToEnd drives the CLI against a fully wired daemon.
func TestDaemon_EndToEnd(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Config{
		Favorites: config.FavoritesConfig{PageSize: 5, Addressing: "positional", SnippetLength: 50},
		Persist:   config.PersistConfig{Debounce: time.Millisecond},
		Metrics:   config.MetricsConfig{Enabled: true},
		API:       config.APIConfig{Token: "e2e-token"},
	}
	d := newDaemon(cfg, store, nil)
	srv := httptest.NewServer(d.handler)
	t.Cleanup(srv.Close)
	c := &apiClient{baseURL: srv.URL, token: "e2e-token", httpClient: srv.Client()}
	useClient(t, c)

	conv, err := d.service.CreateConversation("Alice")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	for _, text := range []string{"zero", "one", "two"} {
		if err := execute(t, "messages", "append", conv.ID, text, "--sender", "Alice"); err != nil {
			t.Fatalf("append %s: %v", text, err)
		}
	}
	if err := execute(t, "favorites", "add", conv.ID, "2"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := execute(t, "messages", "delete", conv.ID, "0"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	l, err := listFavorites(ctx, c, conv.ID, 1, 0)
	if err != nil {
		t.Fatalf("listFavorites: %v", err)
	}
	if l.TotalCount != 1 || l.Items[0].MessageRef != "1" || l.Items[0].Snippet != "two" {
		t.Errorf("favorite should follow its message, got %+v", l.Items)
	}

	if err := d.flusher.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	stored, err := store.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if !strings.Contains(stored.Metadata, `"messageRef":"1"`) {
		t.Errorf("metadata not persisted: %s", stored.Metadata)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "starz_favorites_added_total 1") {
		t.Errorf("metrics missing added counter:\n%s", buf.String())
	}
}
