package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
)

var randomSpeeches = []string{
	"I have a bad feeling about this village.",
	"I am just a simple villager, I swear.",
	"Someone here is lying and I intend to find out who.",
	"Let's not rush the vote today.",
	"I was asleep all night, as everyone should be.",
	"Watch who stays quiet, that is where the wolves hide.",
}

// randomProvider plays legal but uninformed moves. Every decision draws from
// an rng derived from the seed, the player, the round and the phase, so a
// game replays identically even though werewolves are asked concurrently.
type randomProvider struct {
	seed int64
}

func newRandomProvider(seed int64) *randomProvider {
	return &randomProvider{seed: seed}
}

func (r *randomProvider) rngFor(self PlayerView, view StateView, decision string) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d/%d/%d/%s/%s", r.seed, self.ID, view.Round, view.Phase, decision)
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

func pick(rng *rand.Rand, candidates []int) *int {
	if len(candidates) == 0 {
		return nil
	}
	id := candidates[rng.Intn(len(candidates))]
	return &id
}

func (r *randomProvider) ProposeNightAction(_ context.Context, self PlayerView, view StateView) (NightAction, error) {
	rng := r.rngFor(self, view, "night")
	others := aliveIDs(view, func(p PlayerView) bool { return p.ID != self.ID })

	var action NightAction
	switch self.Role {
	case RoleWerewolf:
		// Teammates carry their role in a werewolf's view.
		action.Kill = pick(rng, aliveIDs(view, func(p PlayerView) bool { return p.Role != RoleWerewolf }))
	case RoleSeer:
		action.Check = pick(rng, others)
	case RoleWitch:
		switch {
		case view.SaveAvailable && view.PendingKill != nil && rng.Float64() < 0.5:
			action.Potion = &PotionAction{Save: true}
		case view.PoisonAvailable && rng.Float64() < 0.2:
			action.Potion = &PotionAction{PoisonTarget: pick(rng, others)}
		}
	case RoleHunter:
		action.Shot = pick(rng, others)
	}
	return action, nil
}

func (r *randomProvider) ProposeDiscussion(_ context.Context, self PlayerView, view StateView) (string, error) {
	rng := r.rngFor(self, view, "speech")
	return randomSpeeches[rng.Intn(len(randomSpeeches))], nil
}

func (r *randomProvider) ProposeVote(_ context.Context, self PlayerView, view StateView) (int, error) {
	target := pick(r.rngFor(self, view, "vote"), aliveIDs(view, func(p PlayerView) bool { return p.ID != self.ID }))
	if target == nil {
		return 0, nil
	}
	return *target, nil
}

func (r *randomProvider) ProposeLastWords(_ context.Context, self PlayerView, _ StateView) (string, error) {
	return fmt.Sprintf("%s has nothing more to say. Good luck.", self.Name), nil
}

func aliveIDs(view StateView, keep func(PlayerView) bool) []int {
	var ids []int
	for _, p := range view.Alive {
		if keep(p) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
