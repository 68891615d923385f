package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := newHub()
	h.start()
	srv := httptest.NewServer(disableCaching(newSpectatorMux(h)))
	t.Cleanup(func() {
		srv.Close()
		h.stop()
	})
	return h, srv
}

func dialSpectator(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) SpectatorFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame SpectatorFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestHubSendsOnlyPublicEvents(t *testing.T) {
	h, srv := startTestHub(t)
	conn := dialSpectator(t, srv)

	secret := privateEvent(EventNightAction, map[string]any{"action": ActionSeerCheck, "target_name": "Alice", "is_werewolf": true}, seatSeer)
	h.EventAdded("g1", secret)
	public := publicEvent(EventDayStart, map[string]any{"round_number": 1})
	public.Round = 1
	h.EventAdded("g1", public)
	h.GameEnded("g1", GameResult{GameID: "g1", WinningTeam: TeamVillagers, Rounds: 2})

	first := readFrame(t, conn)
	if first.Type != "event" || first.Text != "Day 1 begins." || first.GameID != "g1" {
		t.Errorf("first frame = %+v, want the public day_start", first)
	}
	last := readFrame(t, conn)
	if last.Type != "game_over" || last.Result == nil || last.Result.WinningTeam != TeamVillagers {
		t.Errorf("second frame = %+v, want game_over", last)
	}
}

func TestHubBacklogForLateJoiners(t *testing.T) {
	h, srv := startTestHub(t)
	early := dialSpectator(t, srv)

	h.PhaseStarted("g1", PhaseDayStart, 1)
	h.EventAdded("g1", publicEvent(EventVoteStart, nil))
	readFrame(t, early)
	readFrame(t, early)

	late := dialSpectator(t, srv)
	if f := readFrame(t, late); f.Type != "phase" || f.Phase != PhaseDayStart {
		t.Errorf("backlog frame 1 = %+v", f)
	}
	if f := readFrame(t, late); f.Type != "event" || f.Text != "Voting begins." {
		t.Errorf("backlog frame 2 = %+v", f)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	h, srv := startTestHub(t)
	conn := dialSpectator(t, srv)
	h.PhaseStarted("g1", PhaseInit, 0)
	h.GameEnded("g1", GameResult{GameID: "g1", WinningTeam: TeamNone})
	readFrame(t, conn)
	readFrame(t, conn)

	resp, err := http.Get(srv.URL + "/history")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Error("history is cacheable")
	}
	var frames []SpectatorFrame
	if err := json.NewDecoder(resp.Body).Decode(&frames); err != nil {
		t.Fatal(err)
	}
	if len(frames) != 2 || frames[0].Type != "phase" || frames[1].Type != "game_over" {
		t.Errorf("history = %+v", frames)
	}
}

func TestLoggingHandlerRecordsRequests(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewAppLogger(LogConfig{OutputDir: dir, LogRequests: true})
	if err != nil {
		t.Fatal(err)
	}

	h := newHub()
	h.start()
	defer h.stop()
	srv := httptest.NewServer(&LoggingHandler{Handler: newSpectatorMux(h), Logger: logger})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/history")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	logger.Close()

	data, err := os.ReadFile(filepath.Join(dir, "requests.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "GET /history") || !strings.Contains(string(data), "200 OK") {
		t.Errorf("requests.log = %s", data)
	}
}

func TestHubStopWaitsForLoop(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHub()
		h.start()
		h.stop()

		// The loop has exited, so nothing drains the queue any more.
		h.broadcast <- []byte(`{}`)
		time.Sleep(time.Millisecond)
		if n := len(h.broadcast); n != 1 {
			t.Fatalf("run %d: frame consumed after stop (queue=%d)", i, n)
		}
		h.mu.RLock()
		n := len(h.history)
		h.mu.RUnlock()
		if n != 0 {
			t.Fatalf("run %d: history grew after stop", i)
		}
	}
}
