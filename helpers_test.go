package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// ============================================================================
// Test-specific logger
// ============================================================================

// TestLogger wraps AppLogger for test use with testing.T integration
type TestLogger struct {
	*AppLogger
	t *testing.T
}

// NewTestLogger creates a test logger from TEST_* environment variables.
// Log files get the test name as suffix so parallel runs do not interleave.
func NewTestLogger(t *testing.T) *TestLogger {
	al := &AppLogger{
		outputDir:   os.Getenv("TEST_OUTPUT_DIR"),
		logRequests: os.Getenv("TEST_LOG_REQUESTS") == "1",
		logPrompts:  os.Getenv("TEST_LOG_PROMPTS") == "1",
		logDB:       os.Getenv("TEST_LOG_DB") == "1",
		logWS:       os.Getenv("TEST_LOG_WS") == "1",
		debug:       os.Getenv("TEST_DEBUG") == "1",
	}

	if al.outputDir != "" {
		open := func(enabled bool, name string) *os.File {
			if !enabled {
				return nil
			}
			path := filepath.Join(al.outputDir, name+"_"+filepath.Base(t.Name()))
			f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return nil
			}
			return f
		}
		al.requestLog = open(al.logRequests, "requests.log")
		al.promptLog = open(al.logPrompts, "prompts.log")
		al.dbLog = open(al.logDB, "database.log")
		al.wsLog = open(al.logWS, "websocket.log")
	}

	tl := &TestLogger{AppLogger: al, t: t}
	t.Cleanup(al.Close)
	return tl
}

// Debug logs a debug message using testing.T.Logf
func (tl *TestLogger) Debug(format string, args ...any) {
	if !tl.debug {
		return
	}
	tl.t.Logf("[DEBUG] "+format, args...)
}

// ============================================================================
// Game fixtures
// ============================================================================

var testNames = []string{"Alice", "Bob", "Carol", "Dave", "Eve", "Frank", "Grace", "Heidi", "Ivan"}

// Seats in roleDeck order:
//
//	1-3 werewolves, 4 seer, 5 witch, 6 hunter, 7-9 villagers
const (
	seatWolf1 = 1
	seatWolf2 = 2
	seatWolf3 = 3
	seatSeer  = 4
	seatWitch = 5
	seatHunt  = 6
	seatVill1 = 7
	seatVill2 = 8
	seatVill3 = 9
)

func intp(n int) *int { return &n }

// scriptedProvider answers from per-test functions. Nil functions abstain.
type scriptedProvider struct {
	mu        sync.Mutex
	night     func(self PlayerView, view StateView) NightAction
	speak     func(self PlayerView, view StateView) string
	vote      func(self PlayerView, view StateView) int
	lastWords func(self PlayerView, view StateView) string
	calls     map[string]int
	views     map[int]StateView // last view seen per player id
}

func (s *scriptedProvider) record(kind string, self PlayerView, view StateView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
		s.views = make(map[int]StateView)
	}
	s.calls[kind]++
	s.views[self.ID] = view
}

func (s *scriptedProvider) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

func (s *scriptedProvider) ProposeNightAction(_ context.Context, self PlayerView, view StateView) (NightAction, error) {
	s.record("night", self, view)
	if s.night == nil {
		return NightAction{}, nil
	}
	return s.night(self, view), nil
}

func (s *scriptedProvider) ProposeDiscussion(_ context.Context, self PlayerView, view StateView) (string, error) {
	s.record("speak", self, view)
	if s.speak == nil {
		return "", nil
	}
	return s.speak(self, view), nil
}

func (s *scriptedProvider) ProposeVote(_ context.Context, self PlayerView, view StateView) (int, error) {
	s.record("vote", self, view)
	if s.vote == nil {
		return 0, nil
	}
	return s.vote(self, view), nil
}

func (s *scriptedProvider) ProposeLastWords(_ context.Context, self PlayerView, view StateView) (string, error) {
	s.record("last_words", self, view)
	if s.lastWords == nil {
		return "", nil
	}
	return s.lastWords(self, view), nil
}

// newFixedGame seats testNames with the roles in roleDeck order instead of a
// shuffled deal.
func newFixedGame(t *testing.T, provider DecisionProvider, cfg GameConfig, observers ...Observer) *Game {
	t.Helper()
	g := NewGame(provider, cfg, observers...)
	if err := g.InitializeGame(testNames); err != nil {
		t.Fatalf("InitializeGame: %v", err)
	}
	for i, p := range g.state.Players {
		p.Role = NewRole(roleDeck[i])
	}
	return g
}

// advanceTo runs phases until the game enters phase in the given round.
func advanceTo(t *testing.T, g *Game, phase Phase, round int) {
	t.Helper()
	for step := 0; step < 500; step++ {
		if g.state.Phase == phase && g.state.Round == round {
			return
		}
		over, err := g.AdvancePhase(context.Background())
		if err != nil {
			t.Fatalf("AdvancePhase: %v", err)
		}
		if over && phase != PhaseGameOver {
			t.Fatalf("game ended (%s) before reaching %s round %d", g.state.Outcome, phase, round)
		}
	}
	t.Fatalf("never reached %s round %d (stuck at %s round %d)", phase, round, g.state.Phase, g.state.Round)
}

// eventsOfKind filters the full log.
func eventsOfKind(g *Game, kind EventKind) []GameEvent {
	var out []GameEvent
	for _, ev := range g.events.All() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// nightActions returns the night_action events with the given action detail.
func nightActions(g *Game, action string) []GameEvent {
	var out []GameEvent
	for _, ev := range eventsOfKind(g, EventNightAction) {
		if ev.Details["action"] == action {
			out = append(out, ev)
		}
	}
	return out
}
