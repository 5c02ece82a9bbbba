package assign_test

import (
	"testing"

	"reqline/internal/assign"
	"reqline/internal/domain"
)

func executor(id, role string, priority, capacity, load int) assign.Candidate {
	return assign.Candidate{
		ID:           id,
		Role:         role,
		Priority:     priority,
		Capacity:     capacity,
		Available:    true,
		AllowedTypes: []string{domain.DesignTypeAll},
		CurrentLoad:  load,
	}
}

func TestExpressAssignsHighestTierEvenNearCapacity(t *testing.T) {
	e1 := executor("e1", domain.RoleGerente, 1, 15, 14)
	req := domain.Request{ID: "r1", Type: "video", Urgency: domain.UrgencyExpress}
	chosen, err := assign.Select(&req, []assign.Candidate{e1})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if chosen == nil || chosen.ID != "e1" {
		t.Fatalf("expected e1, got %+v", chosen)
	}
}

func TestFullExecutorYieldsUnassigned(t *testing.T) {
	e1 := executor("e1", domain.RoleGerente, 1, 15, 15)
	req := domain.Request{ID: "r2", Type: "video", Urgency: domain.UrgencyNormal}
	chosen, err := assign.Select(&req, []assign.Candidate{e1})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if chosen != nil {
		t.Fatalf("expected unassigned, got %s", chosen.ID)
	}
}

func TestDesignTypeEligibility(t *testing.T) {
	e := executor("e1", domain.RolePracticante, 3, 5, 0)
	e.AllowedTypes = []string{"redes", "pieza_impresa"}
	req := domain.Request{ID: "r5", Type: "video"}
	chosen, err := assign.Select(&req, []assign.Candidate{e})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if chosen != nil {
		t.Fatalf("type-ineligible executor chosen: %s", chosen.ID)
	}
}

func TestLowestLoadPercentageWins(t *testing.T) {
	// 4/8 = 50% vs 2/5 = 40%; the intern should win despite lower tier.
	designer := executor("designer", domain.RoleDisenador, 2, 8, 4)
	intern := executor("intern", domain.RolePracticante, 3, 5, 2)
	req := domain.Request{ID: "r", Type: "redes", Urgency: domain.UrgencyNormal}
	chosen, err := assign.Select(&req, []assign.Candidate{designer, intern})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if chosen.ID != "intern" {
		t.Fatalf("expected intern, got %s", chosen.ID)
	}
}

func TestExpressPrefersTierOverLoad(t *testing.T) {
	manager := executor("manager", domain.RoleGerente, 1, 15, 10)
	intern := executor("intern", domain.RolePracticante, 3, 5, 0)
	req := domain.Request{ID: "r", Type: "redes", Urgency: domain.UrgencyExpress}
	chosen, err := assign.Select(&req, []assign.Candidate{intern, manager})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if chosen.ID != "manager" {
		t.Fatalf("express should go to tier 1, got %s", chosen.ID)
	}
}

func TestTieBreaksOnExecutorID(t *testing.T) {
	a := executor("a", domain.RoleDisenador, 2, 8, 2)
	b := executor("b", domain.RoleDisenador, 2, 8, 2)
	req := domain.Request{ID: "r", Type: "banner", Urgency: domain.UrgencyNormal}
	for i := 0; i < 10; i++ {
		chosen, err := assign.Select(&req, []assign.Candidate{b, a})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if chosen.ID != "a" {
			t.Fatalf("run %d: expected deterministic winner a, got %s", i, chosen.ID)
		}
	}
}

func TestPreferredRoleNarrowsPool(t *testing.T) {
	manager := executor("manager", domain.RoleGerente, 1, 15, 0)
	designer := executor("designer", domain.RoleDisenador, 2, 8, 7)
	req := domain.Request{ID: "r", Type: "banner", PreferredRole: domain.RoleDisenador}
	chosen, err := assign.Select(&req, []assign.Candidate{manager, designer})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if chosen.ID != "designer" {
		t.Fatalf("preferred role ignored, got %s", chosen.ID)
	}
}

func TestUnavailableExecutorSkipped(t *testing.T) {
	e := executor("e1", domain.RoleDisenador, 2, 8, 0)
	e.Available = false
	req := domain.Request{ID: "r", Type: "banner"}
	chosen, err := assign.Select(&req, []assign.Candidate{e})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if chosen != nil {
		t.Fatalf("unavailable executor chosen")
	}
}

func TestEmptyRosterUnassignedButNilRosterFatal(t *testing.T) {
	req := domain.Request{ID: "r", Type: "banner"}
	chosen, err := assign.Select(&req, []assign.Candidate{})
	if err != nil || chosen != nil {
		t.Fatalf("empty roster should be a normal unassigned outcome: %v %v", chosen, err)
	}
	if _, err := assign.Select(&req, nil); err == nil {
		t.Fatalf("nil roster should be fatal")
	}
	if _, err := assign.Select(nil, []assign.Candidate{}); err == nil {
		t.Fatalf("nil request should be fatal")
	}
}

func TestNonPositiveCapacityFatal(t *testing.T) {
	bad := executor("bad", domain.RoleDisenador, 2, 0, 0)
	req := domain.Request{ID: "r", Type: "banner"}
	if _, err := assign.Select(&req, []assign.Candidate{bad}); err == nil {
		t.Fatalf("expected error for non-positive capacity")
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	roster := []assign.Candidate{
		executor("a", domain.RoleDisenador, 2, 2, 0),
		executor("b", domain.RolePracticante, 3, 1, 0),
	}
	assigned := 0
	for i := 0; i < 10; i++ {
		req := domain.Request{ID: "r", Type: "redes", Urgency: domain.UrgencyNormal}
		chosen, err := assign.Select(&req, roster)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if chosen == nil {
			break
		}
		assigned++
		for j := range roster {
			if roster[j].ID == chosen.ID {
				roster[j].CurrentLoad++
				if roster[j].CurrentLoad > roster[j].Capacity {
					t.Fatalf("executor %s over capacity", roster[j].ID)
				}
			}
		}
	}
	if assigned != 3 {
		t.Fatalf("expected exactly 3 assignments before exhaustion, got %d", assigned)
	}
}
