package main

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// validBallot: any living player, including the voter.
func validBallot(state *GameState, target int) error {
	p := state.playerByID(target)
	switch {
	case p == nil:
		return fmt.Errorf("%w: unknown player %d", ErrInvalidAction, target)
	case !p.Alive:
		return fmt.Errorf("%w: %s is dead", ErrInvalidAction, p.Name)
	}
	return nil
}

// validShot: a living player other than the hunter.
func validShot(state *GameState, hunter *Player, target int) error {
	p := state.playerByID(target)
	switch {
	case p == nil:
		return fmt.Errorf("%w: unknown player %d", ErrInvalidAction, target)
	case !p.Alive:
		return fmt.Errorf("%w: %s is dead", ErrInvalidAction, p.Name)
	case p.ID == hunter.ID:
		return fmt.Errorf("%w: hunter cannot shoot himself", ErrInvalidAction)
	}
	return nil
}

// resolveVotes fills rec.Exiled and rec.IsTie from the recorded ballots.
func resolveVotes(rec *RoundRecord) {
	winner, tie := tallyVotes(rec.Votes)
	rec.Exiled, rec.IsTie = winner, tie
}

// applyShot kills the target and spends the hunter's shot.
func applyShot(state *GameState, hunter *Player, target int, at DeathTime) error {
	if !hunter.Role.Hunter.ready() {
		return fmt.Errorf("%w: %s can no longer shoot", ErrInvalidAction, hunter.Name)
	}
	if err := validShot(state, hunter, target); err != nil {
		return err
	}
	hunter.Role.Hunter.shoot()
	state.recordDeath(state.playerByID(target), DeathHunterShot, at)
	rec := state.currentRound()
	rec.HunterShots = append(rec.HunterShots, HunterShot{HunterID: hunter.ID, TargetID: target, Time: at})
	return nil
}

func (g *Game) startDay() {
	g.mustBeIn("startDay", PhaseDayStart)
	g.emit(publicEvent(EventDayStart, map[string]any{"round_number": g.state.Round}))
}

// deathReport announces last night's deaths with their roles. Victims of the
// first night may leave last words.
func (g *Game) deathReport(ctx context.Context) {
	g.mustBeIn("deathReport", PhaseDeathReport)
	rec := g.state.currentRound()
	nightDeaths := rec.deathsAt(TimeNight)

	deaths := make([]map[string]any, 0, len(nightDeaths))
	for _, d := range nightDeaths {
		p := g.state.playerByID(d.PlayerID)
		deaths = append(deaths, map[string]any{
			"player_name": p.Name, "role": p.Role.Name(), "reason": string(d.Reason),
		})
	}
	g.emit(publicEvent(EventDeathAnnounce, map[string]any{"deaths": deaths}))

	if rec.Number != 0 {
		return
	}
	for _, d := range nightDeaths {
		g.lastWords(ctx, g.state.playerByID(d.PlayerID))
	}
}

// discussion gives each living player one speech in seating order.
func (g *Game) discussion(ctx context.Context) {
	g.mustBeIn("discussion", PhaseDiscussion)
	for _, p := range g.state.alivePlayers() {
		msg, err := g.provider.ProposeDiscussion(ctx, p.view(), g.view(p))
		if err != nil {
			g.providerError("discussion", p, err)
			continue
		}
		msg = strings.TrimSpace(msg)
		if msg == "" {
			DebugLog("discussion", "Player '%s' stayed silent", p.Name)
			continue
		}
		p.addChat(msg)
		g.emit(publicEvent(EventPlayerSpeak, map[string]any{"player_name": p.Name, "message": msg}))
	}
}

// vote collects one ballot per living player and tallies them. The exile
// itself happens in the following phase.
func (g *Game) vote(ctx context.Context) {
	g.mustBeIn("vote", PhaseVote)
	rec := g.state.currentRound()
	g.emit(publicEvent(EventVoteStart, map[string]any{"round_number": g.state.Round}))

	voters := g.state.alivePlayers()
	forcing := g.cfg.StalemateDays > 0 && g.state.ConsecutiveIdleDays >= g.cfg.StalemateDays
	for _, p := range voters {
		target, err := g.provider.ProposeVote(ctx, p.view(), g.view(p))
		if err != nil {
			g.providerError("vote", p, err)
			target = 0
		}
		if target != 0 {
			if err := validBallot(g.state, target); err != nil {
				logError(fmt.Sprintf("vote: %s", p.Name), err)
				target = 0
			}
		}
		if target == 0 && forcing {
			target = g.randomTarget(p)
			if target != 0 {
				rec.Forced = append(rec.Forced, p.ID)
			}
		}
		if target == 0 {
			DebugLog("vote", "Player '%s' abstained", p.Name)
			continue
		}
		rec.Votes[p.ID] = target
	}
	if len(rec.Forced) > 0 {
		log.Printf("Stalemate guard: %d ballots drawn at random after %d idle days", len(rec.Forced), g.state.ConsecutiveIdleDays)
	}

	if len(rec.Votes) == 0 {
		g.state.ConsecutiveIdleDays++
	} else {
		g.state.ConsecutiveIdleDays = 0
	}

	resolveVotes(rec)

	tally := make(map[string]int)
	for _, target := range rec.Votes {
		tally[g.state.playerByID(target).Name]++
	}
	details := map[string]any{"tally": tally, "is_tie": rec.IsTie, "forced": len(rec.Forced)}
	if rec.Exiled != 0 {
		p := g.state.playerByID(rec.Exiled)
		details["voted_name"] = p.Name
		details["role"] = p.Role.Name()
	}
	log.Printf("Vote result in round %d: %d ballots, exiled=%d tie=%v", rec.Number, len(rec.Votes), rec.Exiled, rec.IsTie)
	g.emit(publicEvent(EventVoteResult, details))
}

// randomTarget draws a living player other than voter from the game's rng.
func (g *Game) randomTarget(voter *Player) int {
	var candidates []int
	for _, p := range g.state.alivePlayers() {
		if p.ID != voter.ID {
			candidates = append(candidates, p.ID)
		}
	}
	if len(candidates) == 0 {
		return 0
	}
	return candidates[g.rng.Intn(len(candidates))]
}

// exile executes the vote result and lets the exiled player speak.
func (g *Game) exile(ctx context.Context) {
	g.mustBeIn("exile", PhaseExile)
	rec := g.state.currentRound()
	if rec.Exiled == 0 {
		return
	}
	p := g.state.playerByID(rec.Exiled)
	if !g.state.recordDeath(p, DeathVoted, TimeExile) {
		panic(fmt.Errorf("%w: exiled player %s already dead", ErrIllegalPhaseOperation, p.Name))
	}
	log.Printf("Village exiled %s (%s)", p.Name, p.Role.Name())
	g.lastWords(ctx, p)
}

// hunterShot asks the eligible dead hunter for a target and fires once.
func (g *Game) hunterShot(ctx context.Context) {
	g.mustBeIn("hunterShot", PhaseFirstHunterShot, PhaseExileHunterShot)
	rec := g.state.currentRound()

	var hunter *Player
	at := TimeDayStart
	if g.state.Phase == PhaseExileHunterShot {
		at = TimeExile
		hunter = g.state.playerByID(rec.Exiled)
	} else {
		for _, d := range rec.deathsAt(TimeNight) {
			if p := g.state.playerByID(d.PlayerID); p.Role.Kind == RoleHunter {
				hunter = p
			}
		}
	}
	if hunter == nil || hunter.Role.Kind != RoleHunter {
		panic(fmt.Errorf("%w: no hunter to shoot in %s", ErrIllegalPhaseOperation, g.state.Phase))
	}

	action, err := g.provider.ProposeNightAction(ctx, hunter.view(), g.view(hunter))
	if err != nil {
		g.providerError("hunterShot", hunter, err)
		return
	}
	if action.Shot == nil {
		log.Printf("Hunter '%s' held fire", hunter.Name)
		return
	}
	if err := applyShot(g.state, hunter, *action.Shot, at); err != nil {
		logError("hunterShot", err)
		return
	}
	target := g.state.playerByID(*action.Shot)
	log.Printf("Hunter '%s' shot '%s'", hunter.Name, target.Name)
	g.emit(publicEvent(EventHunterShot, map[string]any{
		"hunter_name": hunter.Name, "target_name": target.Name, "target_role": target.Role.Name(), "time": string(at),
	}))
}

func (g *Game) endDay() {
	g.mustBeIn("endDay", PhaseDayEnd)
	g.emit(publicEvent(EventDayEnd, map[string]any{"round_number": g.state.Round}))
}

// lastWords lets a dead player speak once.
func (g *Game) lastWords(ctx context.Context, p *Player) {
	if p == nil || p.Alive || p.LastWordsGiven {
		return
	}
	p.LastWordsGiven = true
	msg, err := g.provider.ProposeLastWords(ctx, p.view(), g.view(p))
	if err != nil {
		g.providerError("lastWords", p, err)
		return
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	p.addChat(msg)
	g.emit(publicEvent(EventLastWords, map[string]any{"player_name": p.Name, "message": msg}))
}
