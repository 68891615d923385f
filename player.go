package main

// DeathReason records how a player died; empty while alive.
type DeathReason string

const (
	DeathNone       DeathReason = ""
	DeathWerewolf   DeathReason = "werewolf"
	DeathPoison     DeathReason = "poison"
	DeathVoted      DeathReason = "voted"
	DeathHunterShot DeathReason = "hunter_shot"
)

// Player is a seat at the table. Players are never removed from the roster;
// dead players stay for lookups and the end-of-game summary.
type Player struct {
	ID             int
	Name           string
	Role           Role
	Alive          bool
	DeathReason    DeathReason
	LastWordsGiven bool
	ChatHistory    []string
}

func newPlayer(id int, name string, kind RoleKind) *Player {
	return &Player{ID: id, Name: name, Role: NewRole(kind), Alive: true}
}

// kill marks the player dead. The first recorded reason is kept.
// A hunter killed by poison loses the shot for good.
func (p *Player) kill(reason DeathReason) {
	if !p.Alive {
		return
	}
	p.Alive = false
	p.DeathReason = reason
	if p.Role.Kind == RoleHunter && reason == DeathPoison {
		p.Role.Hunter.CanShoot = false
	}
}

func (p *Player) isWerewolf() bool {
	return p.Role.Kind == RoleWerewolf
}

func (p *Player) addChat(message string) {
	p.ChatHistory = append(p.ChatHistory, message)
}

// PlayerView is a read-only copy of a player handed to a DecisionProvider.
type PlayerView struct {
	ID    int
	Name  string
	Role  RoleKind
	Alive bool
}

func (p *Player) view() PlayerView {
	return PlayerView{ID: p.ID, Name: p.Name, Role: p.Role.Kind, Alive: p.Alive}
}
