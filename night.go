package main

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"
)

// WerewolfVote is one werewolf's kill ballot.
type WerewolfVote struct {
	VoterID  int
	TargetID int
}

// tallyVotes returns the unique top vote-getter among ballots (voter -> target).
// It returns tie=true when several targets share the top count and 0 when
// there are no ballots.
func tallyVotes(ballots map[int]int) (winner int, tie bool) {
	counts := make(map[int]int)
	for _, target := range ballots {
		counts[target]++
	}
	best := 0
	for target, n := range counts {
		switch {
		case n > best:
			best, winner, tie = n, target, false
		case n == best:
			tie = true
		}
	}
	if tie {
		return 0, true
	}
	return winner, false
}

// validKillTarget: a living player outside the werewolf team.
func validKillTarget(state *GameState, id int) error {
	p := state.playerByID(id)
	switch {
	case p == nil:
		return fmt.Errorf("%w: unknown player %d", ErrInvalidAction, id)
	case !p.Alive:
		return fmt.Errorf("%w: %s is dead", ErrInvalidAction, p.Name)
	case p.isWerewolf():
		return fmt.Errorf("%w: %s is a werewolf", ErrInvalidAction, p.Name)
	}
	return nil
}

// validCheckTarget: any living player, the seer included.
func validCheckTarget(state *GameState, id int) error {
	p := state.playerByID(id)
	switch {
	case p == nil:
		return fmt.Errorf("%w: unknown player %d", ErrInvalidAction, id)
	case !p.Alive:
		return fmt.Errorf("%w: %s is dead", ErrInvalidAction, p.Name)
	}
	return nil
}

// canSave reports whether the witch's save potion would take effect tonight.
func canSave(rec *RoundRecord, witch *Player) bool {
	target := rec.Night.WerewolfTarget
	if target == 0 || !witch.Role.Witch.SaveAvailable {
		return false
	}
	return target != witch.ID || rec.Number == 0
}

// applyPotion records the witch's decision on rec. At most one potion is
// used per night: a valid save wins over a poison in the same action.
// It returns the potion that took effect ("" for none).
func applyPotion(state *GameState, rec *RoundRecord, witch *Player, potion *PotionAction) (string, error) {
	if potion == nil {
		return "", nil
	}
	if potion.Save {
		if canSave(rec, witch) {
			witch.Role.Witch.usePotion(true)
			rec.Night.WitchSaved = true
			return ActionWitchSave, nil
		}
		if potion.PoisonTarget == nil {
			return "", fmt.Errorf("%w: save not possible", ErrInvalidAction)
		}
	}
	if potion.PoisonTarget == nil {
		return "", nil
	}
	target := state.playerByID(*potion.PoisonTarget)
	switch {
	case !witch.Role.Witch.PoisonAvailable:
		return "", fmt.Errorf("%w: poison already used", ErrInvalidAction)
	case target == nil:
		return "", fmt.Errorf("%w: unknown player %d", ErrInvalidAction, *potion.PoisonTarget)
	case !target.Alive:
		return "", fmt.Errorf("%w: %s is dead", ErrInvalidAction, target.Name)
	}
	witch.Role.Witch.usePotion(false)
	rec.Night.WitchPoison = target.ID
	return ActionWitchPoison, nil
}

// resolveNight applies the night's intents: an unsaved werewolf kill first,
// then the poison unless its target already died this round. It returns the
// deaths it caused.
func resolveNight(state *GameState) []Death {
	rec := state.currentRound()
	if rec == nil {
		panic(fmt.Errorf("%w: night resolution without a round", ErrIllegalPhaseOperation))
	}
	before := len(rec.Deaths)
	if t := rec.Night.WerewolfTarget; t != 0 && !rec.Night.WitchSaved {
		state.recordDeath(state.playerByID(t), DeathWerewolf, TimeNight)
	}
	if t := rec.Night.WitchPoison; t != 0 && !rec.diedThisRound(t) {
		state.recordDeath(state.playerByID(t), DeathPoison, TimeNight)
	}
	return append([]Death(nil), rec.Deaths[before:]...)
}

// werewolfTurn collects the pack's proposals and fixes tonight's target.
func (g *Game) werewolfTurn(ctx context.Context) {
	g.mustBeIn("werewolfTurn", PhaseWerewolfTurn0, PhaseWerewolfTurn)
	rec := g.state.currentRound()
	wolves := g.state.aliveWithRole(RoleWerewolf)
	if len(wolves) == 0 {
		return
	}
	pack := make([]int, len(wolves))
	for i, w := range wolves {
		pack[i] = w.ID
	}

	if g.cfg.WerewolfChat {
		for _, w := range wolves {
			msg, err := g.provider.ProposeDiscussion(ctx, w.view(), g.view(w))
			if err != nil {
				g.providerError("werewolfTurn: chat", w, err)
				continue
			}
			if msg == "" {
				continue
			}
			rec.Night.WerewolfChat = append(rec.Night.WerewolfChat, w.Name+": "+msg)
			g.emit(privateEvent(EventNightAction, map[string]any{
				"action": ActionWerewolfChat, "player_name": w.Name, "message": msg,
			}, pack...))
		}
	}

	// Snapshots are built before fan-out; providers never touch state.
	selves := make([]PlayerView, len(wolves))
	views := make([]StateView, len(wolves))
	for i, w := range wolves {
		selves[i], views[i] = w.view(), g.view(w)
	}
	actions := make([]NightAction, len(wolves))
	errs := make([]error, len(wolves))
	var eg errgroup.Group
	for i := range wolves {
		eg.Go(func() error {
			actions[i], errs[i] = g.provider.ProposeNightAction(ctx, selves[i], views[i])
			return nil
		})
	}
	eg.Wait()

	for i, w := range wolves {
		if errs[i] != nil {
			g.providerError("werewolfTurn", w, errs[i])
			continue
		}
		if actions[i].Kill == nil {
			DebugLog("werewolfTurn", "Werewolf '%s' abstained", w.Name)
			continue
		}
		target := *actions[i].Kill
		if err := validKillTarget(g.state, target); err != nil {
			logError(fmt.Sprintf("werewolfTurn: %s", w.Name), err)
			continue
		}
		rec.Night.WerewolfVotes[w.ID] = target
		g.emit(privateEvent(EventNightAction, map[string]any{
			"action": ActionWerewolfVote, "player_name": w.Name, "target_name": g.state.playerByID(target).Name,
		}, pack...))
	}

	victim, tie := tallyVotes(rec.Night.WerewolfVotes)
	if victim == 0 {
		log.Printf("Werewolves chose no victim in round %d (votes: %d, tie: %v)", rec.Number, len(rec.Night.WerewolfVotes), tie)
		return
	}
	rec.Night.WerewolfTarget = victim
	name := g.state.playerByID(victim).Name
	log.Printf("Werewolves chose %s in round %d", name, rec.Number)
	g.emit(privateEvent(EventNightAction, map[string]any{
		"action": ActionWerewolfKill, "target_name": name,
	}, pack...))
}

func (g *Game) seerTurn(ctx context.Context) {
	g.mustBeIn("seerTurn", PhaseSeerTurn0, PhaseSeerTurn)
	rec := g.state.currentRound()
	for _, seer := range g.state.aliveWithRole(RoleSeer) {
		action, err := g.provider.ProposeNightAction(ctx, seer.view(), g.view(seer))
		if err != nil {
			g.providerError("seerTurn", seer, err)
			continue
		}
		if action.Check == nil {
			DebugLog("seerTurn", "Seer '%s' skipped the check", seer.Name)
			continue
		}
		if err := validCheckTarget(g.state, *action.Check); err != nil {
			logError("seerTurn", err)
			continue
		}
		target := g.state.playerByID(*action.Check)
		seer.Role.Seer.Checked[target.ID] = true
		rec.Night.SeerTarget = target.ID
		rec.Night.SeerIsWerewolf = target.isWerewolf()
		log.Printf("Seer '%s' checked '%s' (werewolf: %v)", seer.Name, target.Name, target.isWerewolf())
		g.emit(privateEvent(EventNightAction, map[string]any{
			"action": ActionSeerCheck, "target_name": target.Name, "is_werewolf": target.isWerewolf(),
		}, seer.ID))
	}
}

func (g *Game) witchTurn(ctx context.Context) {
	g.mustBeIn("witchTurn", PhaseWitchTurn0, PhaseWitchTurn)
	rec := g.state.currentRound()
	for _, witch := range g.state.aliveWithRole(RoleWitch) {
		w := witch.Role.Witch
		if !w.SaveAvailable && !w.PoisonAvailable {
			continue
		}
		action, err := g.provider.ProposeNightAction(ctx, witch.view(), g.view(witch))
		if err != nil {
			g.providerError("witchTurn", witch, err)
			continue
		}
		used, err := applyPotion(g.state, rec, witch, action.Potion)
		if err != nil {
			logError("witchTurn", err)
		}
		switch used {
		case ActionWitchSave:
			name := g.state.playerByID(rec.Night.WerewolfTarget).Name
			log.Printf("Witch '%s' saved '%s'", witch.Name, name)
			g.emit(privateEvent(EventNightAction, map[string]any{"action": used, "target_name": name}, witch.ID))
		case ActionWitchPoison:
			name := g.state.playerByID(rec.Night.WitchPoison).Name
			log.Printf("Witch '%s' poisoned '%s'", witch.Name, name)
			g.emit(privateEvent(EventNightAction, map[string]any{"action": used, "target_name": name}, witch.ID))
		}
	}
}

// endNight resolves the intents and closes the night.
func (g *Game) endNight() {
	g.mustBeIn("endNight", PhaseNightEnd0, PhaseNightEnd)
	deaths := resolveNight(g.state)
	for _, d := range deaths {
		log.Printf("%s died in the night (%s)", g.state.playerByID(d.PlayerID).Name, d.Reason)
	}
	g.emit(publicEvent(EventNightEnd, map[string]any{"round_number": g.state.Round}))
}
