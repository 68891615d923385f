package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// transcript writes a god-view log of one game: phase headers, every event
// (private ones tagged with their audience) and a closing summary.
type transcript struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	err    error
}

func newTranscript(w io.Writer) *transcript {
	return &transcript{w: w}
}

// openTranscript creates <dir>/game_<id>.log.
func openTranscript(dir, gameID string) (*transcript, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("create transcript dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("game_%s.log", gameID))
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create transcript: %w", err)
	}
	t := newTranscript(f)
	t.closer = f
	return t, path, nil
}

func (t *transcript) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	if _, err := fmt.Fprintf(t.w, format, args...); err != nil {
		t.err = err
		logError("transcript: write", err)
	}
}

func (t *transcript) PhaseStarted(_ string, phase Phase, round int) {
	t.printf("\n=== %s ===\nRound: %d\n", phase, round)
}

func (t *transcript) EventAdded(_ string, ev GameEvent) {
	line := FormatEvent(ev)
	if !ev.Public {
		ids := make([]string, len(ev.VisibleTo))
		for i, id := range ev.VisibleTo {
			ids[i] = fmt.Sprint(id)
		}
		line = fmt.Sprintf("(private to %s) %s", strings.Join(ids, ","), line)
	}
	t.printf("%s\n", line)
}

func (t *transcript) GameEnded(gameID string, result GameResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n=== SUMMARY ===\n")
	fmt.Fprintf(&b, "Game: %s\nWinner: %s\nRounds: %d\n", gameID, result.WinningTeam, result.Rounds)
	b.WriteString("\nAlive:\n")
	for _, p := range result.AlivePlayers {
		fmt.Fprintf(&b, "  %s (%s)\n", p.Name, Role{Kind: p.Role}.Name())
	}
	b.WriteString("\nDead:\n")
	for _, p := range result.DeadPlayers {
		fmt.Fprintf(&b, "  %s (%s) - %s\n", p.Name, Role{Kind: p.Role}.Name(), p.DeathReason)
	}
	t.printf("%s", b.String())
}

func (t *transcript) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
