package main

// DeathTime tags when in the round a death happened.
type DeathTime string

const (
	TimeNight    DeathTime = "night"
	TimeDayStart DeathTime = "day_start"
	TimeExile    DeathTime = "exile"
)

// Death is one entry of a round's death list.
type Death struct {
	PlayerID int
	Reason   DeathReason
	Time     DeathTime
}

// HunterShot records a fired shot.
type HunterShot struct {
	HunterID int
	TargetID int
	Time     DeathTime
}

// NightIntents are the actions collected during a night before resolution.
// Player ids are 0 when unset.
type NightIntents struct {
	WerewolfVotes  map[int]int // werewolf id -> target id
	WerewolfTarget int         // provisional kill
	WitchSaved     bool
	WitchPoison    int
	SeerTarget     int
	SeerIsWerewolf bool
	WerewolfChat   []string
}

// RoundRecord holds everything that happened in one night+day cycle.
// Round 0 is the first night and the day that follows it.
type RoundRecord struct {
	Number      int
	Night       NightIntents
	Deaths      []Death
	Votes       map[int]int // voter id -> target id, valid ballots only
	Forced      []int       // voters whose ballot was drawn by the stalemate guard
	IsTie       bool
	Exiled      int
	HunterShots []HunterShot
}

func newRoundRecord(number int) *RoundRecord {
	return &RoundRecord{
		Number: number,
		Night:  NightIntents{WerewolfVotes: make(map[int]int)},
		Votes:  make(map[int]int),
	}
}

// deathsAt returns the round's deaths with the given time tag.
func (r *RoundRecord) deathsAt(t DeathTime) []Death {
	var out []Death
	for _, d := range r.Deaths {
		if d.Time == t {
			out = append(out, d)
		}
	}
	return out
}

func (r *RoundRecord) diedThisRound(playerID int) bool {
	for _, d := range r.Deaths {
		if d.PlayerID == playerID {
			return true
		}
	}
	return false
}

// GameState is the authoritative store for one game. The engine is its only
// mutator; resolvers receive it explicitly.
type GameState struct {
	Players []*Player
	Phase   Phase
	Round   int
	Rounds  []*RoundRecord
	Outcome Team // empty while the game is running

	// ConsecutiveIdleDays counts days in a row that ended without a single valid ballot.
	ConsecutiveIdleDays int
}

func newGameState() *GameState {
	return &GameState{Phase: PhaseInit}
}

func (s *GameState) playerByID(id int) *Player {
	if id < 1 || id > len(s.Players) {
		return nil
	}
	// Ids are 1-based seat numbers.
	p := s.Players[id-1]
	if p.ID != id {
		for _, q := range s.Players {
			if q.ID == id {
				return q
			}
		}
		return nil
	}
	return p
}

func (s *GameState) alivePlayers() []*Player {
	var out []*Player
	for _, p := range s.Players {
		if p.Alive {
			out = append(out, p)
		}
	}
	return out
}

func (s *GameState) aliveWithRole(kind RoleKind) []*Player {
	var out []*Player
	for _, p := range s.Players {
		if p.Alive && p.Role.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// firstWithRole returns the first player (alive or dead) holding kind.
func (s *GameState) firstWithRole(kind RoleKind) *Player {
	for _, p := range s.Players {
		if p.Role.Kind == kind {
			return p
		}
	}
	return nil
}

func (s *GameState) currentRound() *RoundRecord {
	if len(s.Rounds) == 0 {
		return nil
	}
	return s.Rounds[len(s.Rounds)-1]
}

// startRound appends the record for the night being entered. Night 0 keeps the
// counter at 0; every later night increments it first.
func (s *GameState) startRound(first bool) *RoundRecord {
	if !first {
		s.Round++
	}
	rec := newRoundRecord(s.Round)
	s.Rounds = append(s.Rounds, rec)
	return rec
}

// recordDeath kills the player and appends the death to the current round.
// It returns false when the player was already dead.
func (s *GameState) recordDeath(p *Player, reason DeathReason, at DeathTime) bool {
	if p == nil || !p.Alive {
		return false
	}
	p.kill(reason)
	if rec := s.currentRound(); rec != nil {
		rec.Deaths = append(rec.Deaths, Death{PlayerID: p.ID, Reason: reason, Time: at})
	}
	return true
}

// factionCounts returns the living werewolves and living non-werewolves.
func (s *GameState) factionCounts() (werewolves, others int) {
	for _, p := range s.Players {
		if !p.Alive {
			continue
		}
		if p.isWerewolf() {
			werewolves++
		} else {
			others++
		}
	}
	return werewolves, others
}

// winner evaluates the terminal condition. A game already decided (including
// a draw from the round cap) keeps its outcome.
func (s *GameState) winner() (Team, bool) {
	if s.Outcome != "" {
		return s.Outcome, true
	}
	if len(s.Players) == 0 {
		return "", false
	}
	w, v := s.factionCounts()
	if w == 0 {
		return TeamVillagers, true
	}
	if w >= v {
		return TeamWerewolves, true
	}
	return "", false
}
