package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// playerCount is the only supported table size.
const playerCount = 9

// GameConfig holds the rules knobs of one game.
type GameConfig struct {
	Seed          int64
	MaxRounds     int // 0 disables the cap
	StalemateDays int // 0 disables forced ballots
	WerewolfChat  bool
}

func defaultGameConfig() GameConfig {
	return GameConfig{MaxRounds: 30, StalemateDays: 3}
}

// Observer is notified as the game progresses. Calls happen on the engine's
// goroutine; implementations must not block for long.
type Observer interface {
	PhaseStarted(gameID string, phase Phase, round int)
	EventAdded(gameID string, ev GameEvent)
	GameEnded(gameID string, result GameResult)
}

// PlayerSummary is a row of the end-of-game report.
type PlayerSummary struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Role        RoleKind    `json:"role"`
	DeathReason DeathReason `json:"death_reason,omitempty"`
}

// GameResult is available once the game is over.
type GameResult struct {
	GameID       string          `json:"game_id"`
	WinningTeam  Team            `json:"winning_team"`
	Rounds       int             `json:"rounds"`
	AlivePlayers []PlayerSummary `json:"alive_players"`
	DeadPlayers  []PlayerSummary `json:"dead_players"`
}

// Game drives one match from INIT to GAME_OVER. It is not safe for
// concurrent use; a single goroutine calls AdvancePhase.
type Game struct {
	ID        string
	cfg       GameConfig
	state     *GameState
	events    *EventLog
	provider  DecisionProvider
	rng       *rand.Rand
	observers []Observer
	ready     bool
}

func NewGame(provider DecisionProvider, cfg GameConfig, observers ...Observer) *Game {
	return &Game{
		ID:        uuid.NewString(),
		cfg:       cfg,
		state:     newGameState(),
		events:    NewEventLog(),
		provider:  provider,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		observers: observers,
	}
}

// AddObserver registers o for every later phase, event and the final result.
func (g *Game) AddObserver(o Observer) {
	g.observers = append(g.observers, o)
}

// InitializeGame seats the players in the given order and deals the roles.
// A game is seated once; a second call fails with ErrAlreadyInitialized.
func (g *Game) InitializeGame(names []string) error {
	if g.ready {
		return ErrAlreadyInitialized
	}
	if len(names) != playerCount {
		return fmt.Errorf("%w: got %d, need %d", ErrInvalidPlayerCount, len(names), playerCount)
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return fmt.Errorf("%w: seat %d", ErrEmptyPlayerName, len(seen)+1)
		}
		if seen[key] {
			return fmt.Errorf("%w: %q", ErrDuplicatePlayer, name)
		}
		seen[key] = true
	}

	g.state = newGameState()
	roles := dealRoles(g.rng)
	players := make([]map[string]any, 0, len(names))
	for i, name := range names {
		p := newPlayer(i+1, strings.TrimSpace(name), roles[i])
		g.state.Players = append(g.state.Players, p)
		players = append(players, map[string]any{"id": p.ID, "name": p.Name})
	}
	g.ready = true

	log.Printf("Game %s initialized with %d players (seed %d)", g.ID, len(names), g.cfg.Seed)
	g.notifyPhase()
	g.emit(publicEvent(EventGameStart, map[string]any{"player_count": len(names), "players": players}))
	return nil
}

// AdvancePhase moves to the next phase and runs it. It reports whether the
// game is over; at GAME_OVER it is a no-op.
func (g *Game) AdvancePhase(ctx context.Context) (bool, error) {
	if !g.ready {
		return false, ErrNotInitialized
	}
	if g.state.Phase == PhaseGameOver {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	next, ok := NextPhase(g.state.Phase, g.state)
	if !ok {
		panic(fmt.Errorf("%w: no successor for %s", ErrIllegalPhaseOperation, g.state.Phase))
	}
	if next == PhaseNightStart && g.cfg.MaxRounds > 0 && g.state.Round+1 >= g.cfg.MaxRounds {
		log.Printf("Game %s reached the round cap (%d), ending in a draw", g.ID, g.cfg.MaxRounds)
		g.state.Outcome = TeamNone
		next = PhaseGameOver
	}

	g.state.Phase = next
	DebugLog("AdvancePhase", "Game %s entering %s (round %d)", g.ID, next, g.state.Round)
	g.runPhase(ctx, next)
	return g.state.Phase == PhaseGameOver, nil
}

func (g *Game) runPhase(ctx context.Context, phase Phase) {
	switch phase {
	case PhaseRoleAssignment:
		g.notifyPhase()
		g.assignRoles()
	case PhaseNightStart0, PhaseNightStart:
		g.state.startRound(phase == PhaseNightStart0)
		g.notifyPhase()
		g.emit(publicEvent(EventRoundStart, map[string]any{"round_number": g.state.Round}))
		g.emit(publicEvent(EventNightStart, map[string]any{"round_number": g.state.Round}))
	case PhaseWerewolfTurn0, PhaseWerewolfTurn:
		g.notifyPhase()
		g.werewolfTurn(ctx)
	case PhaseSeerTurn0, PhaseSeerTurn:
		g.notifyPhase()
		g.seerTurn(ctx)
	case PhaseWitchTurn0, PhaseWitchTurn:
		g.notifyPhase()
		g.witchTurn(ctx)
	case PhaseNightEnd0, PhaseNightEnd:
		g.notifyPhase()
		g.endNight()
	case PhaseDayStart:
		g.notifyPhase()
		g.startDay()
	case PhaseDeathReport:
		g.notifyPhase()
		g.deathReport(ctx)
	case PhaseFirstHunterShot, PhaseExileHunterShot:
		g.notifyPhase()
		g.hunterShot(ctx)
	case PhaseDiscussion:
		g.notifyPhase()
		g.discussion(ctx)
	case PhaseVote:
		g.notifyPhase()
		g.vote(ctx)
	case PhaseExile:
		g.notifyPhase()
		g.exile(ctx)
	case PhaseDayEnd:
		g.notifyPhase()
		g.endDay()
	case PhaseGameOver:
		g.notifyPhase()
		g.finish()
	default:
		panic(fmt.Errorf("%w: cannot run %s", ErrIllegalPhaseOperation, phase))
	}
}

// assignRoles reveals each role privately; werewolves learn their pack.
func (g *Game) assignRoles() {
	g.mustBeIn("assignRoles", PhaseRoleAssignment)
	var pack []string
	for _, p := range g.state.Players {
		if p.isWerewolf() {
			pack = append(pack, p.Name)
		}
	}
	for _, p := range g.state.Players {
		details := map[string]any{
			"player_name": p.Name, "role": p.Role.Name(), "description": p.Role.Description(),
		}
		if p.isWerewolf() {
			var mates []string
			for _, name := range pack {
				if name != p.Name {
					mates = append(mates, name)
				}
			}
			details["teammates"] = mates
		}
		g.emit(privateEvent(EventRoleAssigned, details, p.ID))
	}
}

func (g *Game) finish() {
	if g.state.Outcome == "" {
		team, over := g.state.winner()
		if !over {
			panic(fmt.Errorf("%w: game over without a winner", ErrIllegalPhaseOperation))
		}
		g.state.Outcome = team
	}
	log.Printf("Game %s finished, winner: %s", g.ID, g.state.Outcome)
	g.emit(publicEvent(EventGameEnd, map[string]any{
		"winning_team": string(g.state.Outcome), "rounds": g.state.Round + 1,
	}))
	result, _ := g.Result()
	for _, o := range g.observers {
		o.GameEnded(g.ID, result)
	}
}

// Run advances until the game is over.
func (g *Game) Run(ctx context.Context) (GameResult, error) {
	for {
		over, err := g.AdvancePhase(ctx)
		if err != nil {
			return GameResult{}, err
		}
		if over {
			return g.Result()
		}
	}
}

func (g *Game) Result() (GameResult, error) {
	if g.state.Phase != PhaseGameOver {
		return GameResult{}, ErrGameNotOver
	}
	res := GameResult{GameID: g.ID, WinningTeam: g.state.Outcome, Rounds: g.state.Round + 1}
	for _, p := range g.state.Players {
		s := PlayerSummary{ID: p.ID, Name: p.Name, Role: p.Role.Kind, DeathReason: p.DeathReason}
		if p.Alive {
			res.AlivePlayers = append(res.AlivePlayers, s)
		} else {
			res.DeadPlayers = append(res.DeadPlayers, s)
		}
	}
	return res, nil
}

// PublicEvents returns the formatted public events; limit > 0 keeps only the
// most recent ones.
func (g *Game) PublicEvents(limit int) []string {
	events := g.events.Public()
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, FormatEvent(ev))
	}
	return out
}

func (g *Game) PlayerVisibleEvents(playerID int) []string {
	events := g.events.VisibleTo(playerID)
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, FormatEvent(ev))
	}
	return out
}

// Phase returns the current phase.
func (g *Game) Phase() Phase {
	return g.state.Phase
}

// Players returns read-only views of the roster in seating order.
func (g *Game) Players() []PlayerView {
	out := make([]PlayerView, 0, len(g.state.Players))
	for _, p := range g.state.Players {
		out = append(out, p.view())
	}
	return out
}

func (g *Game) emit(ev GameEvent) GameEvent {
	ev.Round = g.state.Round
	ev.Phase = g.state.Phase
	ev = g.events.Add(ev)
	for _, o := range g.observers {
		o.EventAdded(g.ID, ev)
	}
	return ev
}

func (g *Game) notifyPhase() {
	for _, o := range g.observers {
		o.PhaseStarted(g.ID, g.state.Phase, g.state.Round)
	}
}

func (g *Game) view(p *Player) StateView {
	return buildStateView(g.state, g.events, p)
}

// mustBeIn panics when an engine step runs outside its phases.
func (g *Game) mustBeIn(step string, phases ...Phase) {
	if !slices.Contains(phases, g.state.Phase) {
		panic(fmt.Errorf("%w: %s during %s", ErrIllegalPhaseOperation, step, g.state.Phase))
	}
}

// providerError logs a failed decision; the turn becomes an abstain.
func (g *Game) providerError(step string, p *Player, err error) {
	if !errors.Is(err, ErrProviderFailure) && !errors.Is(err, ErrInvalidAction) {
		err = fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}
	logError(fmt.Sprintf("%s: %s", step, p.Name), err)
}
