package main

import (
	"context"
)

// DecisionProvider supplies every player decision. Implementations receive
// snapshots and must not hold on to them across calls.
type DecisionProvider interface {
	// ProposeNightAction covers werewolf kills, seer checks, witch potions
	// and hunter shots; the field matching the player's role is read.
	ProposeNightAction(ctx context.Context, self PlayerView, view StateView) (NightAction, error)
	ProposeDiscussion(ctx context.Context, self PlayerView, view StateView) (string, error)
	// ProposeVote returns the target id, or 0 to abstain.
	ProposeVote(ctx context.Context, self PlayerView, view StateView) (int, error)
	ProposeLastWords(ctx context.Context, self PlayerView, view StateView) (string, error)
}

// PotionAction is the witch's choice for one night.
type PotionAction struct {
	Save         bool
	PoisonTarget *int
}

// NightAction is a structured decision. Nil fields mean "no action".
type NightAction struct {
	Kill   *int
	Check  *int
	Potion *PotionAction
	Shot   *int
}

func (a NightAction) IsEmpty() bool {
	return a.Kill == nil && a.Check == nil && a.Potion == nil && a.Shot == nil
}

// SeerCheck is one past check as remembered by the seer.
type SeerCheck struct {
	Round      int
	TargetID   int
	TargetName string
	IsWerewolf bool
}

// ChatLines is the recent speech of one player.
type ChatLines struct {
	PlayerID int
	Name     string
	Lines    []string
}

// StateView is the role-scoped snapshot a player decides from. Other
// players' roles are blank unless the viewer is entitled to know them.
type StateView struct {
	Round   int
	Phase   Phase
	Players []PlayerView
	Alive   []PlayerView

	Teammates    []PlayerView // werewolves only
	WerewolfChat []string     // werewolves only, current night

	SeerChecks []SeerCheck // seer only

	PendingKill     *PlayerView // witch only, during her turn
	SaveAvailable   bool
	PoisonAvailable bool

	RecentChat []ChatLines
	Events     []string
}

const recentChatLines = 5

// buildStateView assembles the snapshot for player p.
func buildStateView(state *GameState, events *EventLog, p *Player) StateView {
	view := StateView{Round: state.Round, Phase: state.Phase}

	for _, q := range state.Players {
		pv := q.view()
		if q.ID != p.ID && !(p.isWerewolf() && q.isWerewolf()) {
			pv.Role = ""
		}
		view.Players = append(view.Players, pv)
		if q.Alive {
			view.Alive = append(view.Alive, pv)
		}
		if p.isWerewolf() && q.isWerewolf() && q.ID != p.ID {
			view.Teammates = append(view.Teammates, pv)
		}
		if n := len(q.ChatHistory); n > 0 {
			lines := q.ChatHistory[max(0, n-recentChatLines):]
			view.RecentChat = append(view.RecentChat, ChatLines{PlayerID: q.ID, Name: q.Name, Lines: append([]string(nil), lines...)})
		}
	}

	rec := state.currentRound()
	switch p.Role.Kind {
	case RoleWerewolf:
		if rec != nil {
			view.WerewolfChat = append([]string(nil), rec.Night.WerewolfChat...)
		}
	case RoleSeer:
		for _, r := range state.Rounds {
			if r.Night.SeerTarget == 0 {
				continue
			}
			t := state.playerByID(r.Night.SeerTarget)
			view.SeerChecks = append(view.SeerChecks, SeerCheck{
				Round: r.Number, TargetID: t.ID, TargetName: t.Name, IsWerewolf: r.Night.SeerIsWerewolf,
			})
		}
	case RoleWitch:
		view.SaveAvailable = p.Role.Witch.SaveAvailable
		view.PoisonAvailable = p.Role.Witch.PoisonAvailable
		if rec != nil && rec.Night.WerewolfTarget != 0 && (state.Phase == PhaseWitchTurn0 || state.Phase == PhaseWitchTurn) {
			pv := state.playerByID(rec.Night.WerewolfTarget).view()
			pv.Role = ""
			view.PendingKill = &pv
		}
	}

	if events != nil {
		for _, ev := range events.VisibleTo(p.ID) {
			view.Events = append(view.Events, FormatEvent(ev))
		}
	}
	return view
}

// playerByName resolves a name case-insensitively among the view's players.
func (v StateView) playerByName(name string) (PlayerView, bool) {
	for _, p := range v.Players {
		if equalFoldTrim(p.Name, name) {
			return p, true
		}
	}
	return PlayerView{}, false
}
