package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sprite-ai/revroom/internal/config"
	"github.com/sprite-ai/revroom/internal/model"
	"github.com/sprite-ai/revroom/internal/presence"
)

const testPatch = "@@ -1,3 +1,4 @@\n package main\n-func old() {}\n+func new() {}\n+func extra() {}\n // end"

func newTestServer(origins ...string) *Server {
	cfg := config.Default().Server
	cfg.Addr = ":0"
	if len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func postJSON(t *testing.T, srv *Server, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(v)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %q", resp["status"])
	}
}

func TestParseEndpoint(t *testing.T) {
	srv := newTestServer()

	w := postJSON(t, srv, "/api/parse", parseRequest{Patch: testPatch, Mode: "split"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp parseResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if len(resp.Lines) != 6 {
		t.Errorf("expected 6 lines, got %d", len(resp.Lines))
	}
	if resp.Lines[0].Kind != model.LineHunkHeader {
		t.Errorf("expected hunk header first, got %s", resp.Lines[0].Kind)
	}
	if resp.Split == nil {
		t.Fatal("expected split projection")
	}
	if len(resp.Split.Left) != 4 || len(resp.Split.Right) != 5 {
		t.Errorf("expected 4/5 split rows, got %d/%d", len(resp.Split.Left), len(resp.Split.Right))
	}
	if resp.Unified != nil {
		t.Error("unified projection not requested")
	}
}

func TestParseEndpointEmptyPatch(t *testing.T) {
	srv := newTestServer()

	w := postJSON(t, srv, "/api/parse", parseRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"lines": []`) {
		t.Errorf("expected empty lines array, got %s", w.Body.String())
	}
}

func TestParseEndpointBadMode(t *testing.T) {
	srv := newTestServer()

	w := postJSON(t, srv, "/api/parse", parseRequest{Patch: testPatch, Mode: "sideways"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestParseInvalidJSON(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader("{bad json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestEnrichEndpoint(t *testing.T) {
	srv := newTestServer()
	one := 1

	w := postJSON(t, srv, "/api/enrich", enrichRequest{
		Files: []model.FileEntry{{Filename: "a.ts"}, {Filename: "b.ts"}, {Filename: "c.ts"}},
		Ranking: &model.RankingResponse{RankedFiles: []model.RankedFile{
			{Filename: "c.ts", Rank: 1},
			{Filename: "a.ts", Rank: 2},
		}},
		Clustering: &model.ClusterResponse{Groups: []model.ClusterGroup{
			{ClusterID: 1, Label: "auth", Files: []string{"a.ts", "c.ts"}},
		}},
		ReviewOrder: true,
		ClusterID:   &one,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp enrichResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp.MLUnavailable {
		t.Error("expected ml_unavailable false")
	}
	if len(resp.Files) != 2 || resp.Files[0].Filename != "c.ts" || resp.Files[1].Filename != "a.ts" {
		t.Errorf("unexpected order: %+v", resp.Files)
	}
	if resp.Files[0].Cluster == nil || resp.Files[0].Cluster.Label != "auth" {
		t.Errorf("expected cluster label auth, got %+v", resp.Files[0].Cluster)
	}
}

func TestEnrichWithoutScoring(t *testing.T) {
	srv := newTestServer()

	w := postJSON(t, srv, "/api/enrich", enrichRequest{Files: []model.FileEntry{{Filename: "a.ts"}}})
	var resp enrichResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if !resp.MLUnavailable {
		t.Error("expected ml_unavailable true")
	}
	if resp.Files[0].Ranking != nil {
		t.Error("expected no ranking")
	}
}

func wsURL(ts *httptest.Server, room string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/rooms/" + room + "/ws"
}

func readFrame(t *testing.T, conn *websocket.Conn) presence.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	msg, err := presence.Decode(raw)
	if err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return msg
}

func TestWebSocketPresenceRoom(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := wsURL(ts, model.RoomID("octo/widgets#7"))
	a, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer a.Close()

	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"type":"join","userId":"u1","username":"ana","avatarUrl":"","color":"#6366f1","currentFile":null,"joinedAt":1}`)); err != nil {
		t.Fatalf("ws write: %v", err)
	}
	state, ok := readFrame(t, a).(presence.PresenceState)
	if !ok {
		t.Fatal("expected presence_state first")
	}
	if len(state.Presences) != 1 {
		t.Errorf("expected 1 presence, got %d", len(state.Presences))
	}

	b, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	if err := b.WriteMessage(websocket.TextMessage, []byte(`{"type":"join","userId":"u2","username":"bo","currentFile":null,"joinedAt":2}`)); err != nil {
		t.Fatalf("ws write: %v", err)
	}
	bState := readFrame(t, b).(presence.PresenceState)

	joined, ok := readFrame(t, a).(presence.PresenceUpdate)
	if !ok || joined.ConnectionID != bState.ConnectionID {
		t.Fatalf("expected update for %s, got %+v", bState.ConnectionID, joined)
	}

	if err := b.WriteMessage(websocket.TextMessage, []byte(`{"type":"presence_update","currentFile":"src/auth.ts"}`)); err != nil {
		t.Fatalf("ws write: %v", err)
	}
	moved := readFrame(t, a).(presence.PresenceUpdate)
	if rec := moved.Patch.Apply(model.PresenceRecord{}); rec.File() != "src/auth.ts" {
		t.Errorf("expected src/auth.ts, got %q", rec.File())
	}

	var rooms map[string]map[string]int
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	if err := json.Unmarshal(w.Body.Bytes(), &rooms); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if rooms["rooms"]["pr-octo-widgets-7"] != 2 {
		t.Errorf("expected 2 members, got %v", rooms)
	}

	b.Close()
	left, ok := readFrame(t, a).(presence.PresenceLeave)
	if !ok || left.ConnectionID != bState.ConnectionID {
		t.Errorf("expected leave for %s, got %+v", bState.ConnectionID, left)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	srv := newTestServer("https://review.example.com")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "pr-1"), header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %v", resp)
	}

	header.Set("Origin", "https://review.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "pr-1"), header)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	conn.Close()
}
