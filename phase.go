package main

// Phase is a node of the game's state machine.
type Phase string

const (
	PhaseInit           Phase = "INIT"
	PhaseRoleAssignment Phase = "ROLE_ASSIGNMENT"

	PhaseNightStart0   Phase = "NIGHT_START_0"
	PhaseWerewolfTurn0 Phase = "WEREWOLF_TURN_0"
	PhaseSeerTurn0     Phase = "SEER_TURN_0"
	PhaseWitchTurn0    Phase = "WITCH_TURN_0"
	PhaseNightEnd0     Phase = "NIGHT_END_0"

	PhaseDayStart        Phase = "DAY_START"
	PhaseDeathReport     Phase = "DEATH_REPORT"
	PhaseFirstHunterShot Phase = "FIRST_HUNTER_SHOT"
	PhaseDiscussion      Phase = "DISCUSSION"
	PhaseVote            Phase = "VOTE"
	PhaseExile           Phase = "EXILE"
	PhaseExileHunterShot Phase = "EXILE_HUNTER_SHOT"
	PhaseDayEnd          Phase = "DAY_END"

	PhaseNightStart   Phase = "NIGHT_START"
	PhaseWerewolfTurn Phase = "WEREWOLF_TURN"
	PhaseSeerTurn     Phase = "SEER_TURN"
	PhaseWitchTurn    Phase = "WITCH_TURN"
	PhaseNightEnd     Phase = "NIGHT_END"

	PhaseGameOver Phase = "GAME_OVER"
)

// isNight reports whether the phase belongs to either night structure.
func (p Phase) isNight() bool {
	switch p {
	case PhaseNightStart0, PhaseWerewolfTurn0, PhaseSeerTurn0, PhaseWitchTurn0, PhaseNightEnd0,
		PhaseNightStart, PhaseWerewolfTurn, PhaseSeerTurn, PhaseWitchTurn, PhaseNightEnd:
		return true
	}
	return false
}

// NextPhase maps the current phase and state to the successor. The terminal
// condition is checked first: once a faction has won every edge leads to
// GAME_OVER. GAME_OVER has no successor.
func NextPhase(current Phase, state *GameState) (Phase, bool) {
	if current == PhaseGameOver {
		return "", false
	}
	if _, over := state.winner(); over {
		return PhaseGameOver, true
	}

	switch current {
	case PhaseInit:
		return PhaseRoleAssignment, true
	case PhaseRoleAssignment:
		return PhaseNightStart0, true

	case PhaseNightStart0:
		return PhaseWerewolfTurn0, true
	case PhaseWerewolfTurn0:
		return PhaseSeerTurn0, true
	case PhaseSeerTurn0:
		return PhaseWitchTurn0, true
	case PhaseWitchTurn0:
		return PhaseNightEnd0, true
	case PhaseNightEnd0:
		return PhaseDayStart, true

	case PhaseDayStart:
		return PhaseDeathReport, true
	case PhaseDeathReport:
		if nightHunterCanShoot(state) {
			return PhaseFirstHunterShot, true
		}
		return PhaseDiscussion, true
	case PhaseFirstHunterShot:
		return PhaseDiscussion, true
	case PhaseDiscussion:
		return PhaseVote, true
	case PhaseVote:
		return PhaseExile, true
	case PhaseExile:
		if exiledHunterCanShoot(state) {
			return PhaseExileHunterShot, true
		}
		return PhaseDayEnd, true
	case PhaseExileHunterShot:
		return PhaseDayEnd, true
	case PhaseDayEnd:
		return PhaseNightStart, true

	case PhaseNightStart:
		return PhaseWerewolfTurn, true
	case PhaseWerewolfTurn:
		return PhaseSeerTurn, true
	case PhaseSeerTurn:
		return PhaseWitchTurn, true
	case PhaseWitchTurn:
		return PhaseNightEnd, true
	case PhaseNightEnd:
		return PhaseDayStart, true
	}
	return "", false
}

// nightHunterCanShoot reports whether a hunter died in the current round's
// night and still holds the shot.
func nightHunterCanShoot(state *GameState) bool {
	rec := state.currentRound()
	if rec == nil {
		return false
	}
	for _, d := range rec.deathsAt(TimeNight) {
		if d.Reason != DeathWerewolf && d.Reason != DeathPoison {
			continue
		}
		p := state.playerByID(d.PlayerID)
		if p != nil && p.Role.Kind == RoleHunter && p.Role.Hunter.ready() {
			return true
		}
	}
	return false
}

func exiledHunterCanShoot(state *GameState) bool {
	rec := state.currentRound()
	if rec == nil || rec.Exiled == 0 {
		return false
	}
	p := state.playerByID(rec.Exiled)
	return p != nil && p.Role.Kind == RoleHunter && p.Role.Hunter.ready()
}
