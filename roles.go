package main

import (
	"fmt"
	"math/rand"
)

// RoleKind is the discriminant of Role.
type RoleKind string

const (
	RoleWerewolf RoleKind = "werewolf"
	RoleVillager RoleKind = "villager"
	RoleSeer     RoleKind = "seer"
	RoleWitch    RoleKind = "witch"
	RoleHunter   RoleKind = "hunter"
)

// Team is a faction; TeamNone is used for a drawn game.
type Team string

const (
	TeamVillagers  Team = "villagers"
	TeamWerewolves Team = "werewolves"
	TeamNone       Team = "none"
)

// SeerState holds the ids the seer has already checked.
type SeerState struct {
	Checked map[int]bool
}

// WitchState holds the two one-shot potions.
type WitchState struct {
	SaveAvailable   bool
	PoisonAvailable bool
}

// HunterState tracks whether the hunter may still fire.
type HunterState struct {
	CanShoot bool
	HasShot  bool
}

// Role is a tagged variant: Kind selects which state record is set.
// Werewolf and Villager carry no extra state.
type Role struct {
	Kind   RoleKind
	Seer   *SeerState
	Witch  *WitchState
	Hunter *HunterState
}

func NewRole(kind RoleKind) Role {
	switch kind {
	case RoleSeer:
		return Role{Kind: kind, Seer: &SeerState{Checked: make(map[int]bool)}}
	case RoleWitch:
		return Role{Kind: kind, Witch: &WitchState{SaveAvailable: true, PoisonAvailable: true}}
	case RoleHunter:
		return Role{Kind: kind, Hunter: &HunterState{CanShoot: true}}
	case RoleWerewolf, RoleVillager:
		return Role{Kind: kind}
	default:
		panic(fmt.Sprintf("unknown role kind %q", kind))
	}
}

// Team returns the faction of the role.
func (r Role) Team() Team {
	if r.Kind == RoleWerewolf {
		return TeamWerewolves
	}
	return TeamVillagers
}

// Name is the display name used in prompts and logs.
func (r Role) Name() string {
	switch r.Kind {
	case RoleWerewolf:
		return "Werewolf"
	case RoleVillager:
		return "Villager"
	case RoleSeer:
		return "Seer"
	case RoleWitch:
		return "Witch"
	case RoleHunter:
		return "Hunter"
	}
	return string(r.Kind)
}

// Description is shown to a player when their role is revealed to them.
func (r Role) Description() string {
	switch r.Kind {
	case RoleWerewolf:
		return "Knows the other werewolves and votes with them to kill one villager each night."
	case RoleVillager:
		return "No special powers, relies on deduction and discussion."
	case RoleSeer:
		return "Checks one player per night to learn whether they are a werewolf."
	case RoleWitch:
		return "Has one save potion and one poison potion, and may use at most one per night."
	case RoleHunter:
		return "When killed by werewolves or exiled, immediately shoots one player. Poison takes the gun away."
	}
	return ""
}

// usePotion consumes one potion and reports whether it was still available.
func (w *WitchState) usePotion(save bool) bool {
	if save {
		if !w.SaveAvailable {
			return false
		}
		w.SaveAvailable = false
		return true
	}
	if !w.PoisonAvailable {
		return false
	}
	w.PoisonAvailable = false
	return true
}

// shoot marks the single shot as used. It fails once poisoned or already fired.
func (h *HunterState) shoot() bool {
	if !h.CanShoot || h.HasShot {
		return false
	}
	h.HasShot = true
	return true
}

func (h *HunterState) ready() bool {
	return h.CanShoot && !h.HasShot
}

// roleDeck is the fixed nine-player distribution.
var roleDeck = []RoleKind{
	RoleWerewolf, RoleWerewolf, RoleWerewolf,
	RoleSeer, RoleWitch, RoleHunter,
	RoleVillager, RoleVillager, RoleVillager,
}

// dealRoles returns the deck shuffled with rng.
func dealRoles(rng *rand.Rand) []RoleKind {
	roles := make([]RoleKind, len(roleDeck))
	copy(roles, roleDeck)
	rng.Shuffle(len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})
	return roles
}
