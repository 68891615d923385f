package main

import (
	"math/rand"
	"testing"
	"testing/quick"
)

func TestDealRolesKeepsDistribution(t *testing.T) {
	f := func(seed int64) bool {
		roles := dealRoles(rand.New(rand.NewSource(seed)))
		if len(roles) != playerCount {
			t.Logf("dealt %d roles", len(roles))
			return false
		}
		counts := make(map[RoleKind]int)
		for _, r := range roles {
			counts[r]++
		}
		want := map[RoleKind]int{RoleWerewolf: 3, RoleSeer: 1, RoleWitch: 1, RoleHunter: 1, RoleVillager: 3}
		for kind, n := range want {
			if counts[kind] != n {
				t.Logf("seed %d: %s dealt %d times, want %d", seed, kind, counts[kind], n)
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 5}); err != nil {
		t.Error(err)
	}
}

func TestDealRolesIsSeeded(t *testing.T) {
	a := dealRoles(rand.New(rand.NewSource(42)))
	b := dealRoles(rand.New(rand.NewSource(42)))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed dealt %v and %v", a, b)
		}
	}
}

func TestNewRoleState(t *testing.T) {
	if r := NewRole(RoleWitch); r.Witch == nil || !r.Witch.SaveAvailable || !r.Witch.PoisonAvailable {
		t.Errorf("witch should start with both potions, got %+v", r.Witch)
	}
	if r := NewRole(RoleHunter); r.Hunter == nil || !r.Hunter.ready() {
		t.Errorf("hunter should start ready, got %+v", r.Hunter)
	}
	if r := NewRole(RoleSeer); r.Seer == nil || len(r.Seer.Checked) != 0 {
		t.Errorf("seer should start with no checks, got %+v", r.Seer)
	}
	if r := NewRole(RoleVillager); r.Seer != nil || r.Witch != nil || r.Hunter != nil {
		t.Errorf("villager should carry no state, got %+v", r)
	}
	if NewRole(RoleWerewolf).Team() != TeamWerewolves || NewRole(RoleSeer).Team() != TeamVillagers {
		t.Error("wrong team mapping")
	}

	defer func() {
		if recover() == nil {
			t.Error("unknown role kind should panic")
		}
	}()
	NewRole("cupid")
}

func TestPotionsAreSingleUse(t *testing.T) {
	w := NewRole(RoleWitch).Witch
	if !w.usePotion(true) {
		t.Fatal("first save should succeed")
	}
	if w.usePotion(true) {
		t.Error("second save should fail")
	}
	if !w.PoisonAvailable {
		t.Error("using the save must not touch the poison")
	}
	if !w.usePotion(false) || w.usePotion(false) {
		t.Error("poison should work exactly once")
	}
}

func TestHunterShootsOnce(t *testing.T) {
	h := NewRole(RoleHunter).Hunter
	if !h.shoot() {
		t.Fatal("first shot should succeed")
	}
	if h.shoot() || h.ready() {
		t.Error("hunter fired twice")
	}
}

func TestKillKeepsFirstReason(t *testing.T) {
	p := newPlayer(6, "Frank", RoleHunter)
	p.kill(DeathPoison)
	p.kill(DeathVoted)
	if p.Alive || p.DeathReason != DeathPoison {
		t.Errorf("got alive=%v reason=%s, want dead by poison", p.Alive, p.DeathReason)
	}
	if p.Role.Hunter.CanShoot {
		t.Error("poisoned hunter must lose the shot")
	}

	q := newPlayer(6, "Frank", RoleHunter)
	q.kill(DeathWerewolf)
	if !q.Role.Hunter.ready() {
		t.Error("hunter killed by werewolves keeps the shot")
	}
}
