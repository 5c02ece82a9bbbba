package queue_test

import (
	"reflect"
	"testing"
	"time"

	"reqline/internal/domain"
	"reqline/internal/queue"
)

var t0 = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

func ts(d time.Duration) string {
	return t0.Add(d).Format(time.RFC3339)
}

func pending(id, area, role, urgency string, queued time.Duration) domain.Request {
	return domain.Request{
		ID:            id,
		Area:          area,
		PreferredRole: role,
		Urgency:       urgency,
		Status:        domain.StatusPending,
		QueuedAt:      ts(queued),
		CreatedAt:     ts(queued),
		UpdatedAt:     ts(queued),
	}
}

func assigned(id, area, role, urgency, executor string, at time.Duration) domain.Request {
	r := pending(id, area, role, urgency, at)
	r.Status = domain.StatusInProcess
	r.AssignedTo = &executor
	assignedAt := ts(at)
	r.AssignedAt = &assignedAt
	return r
}

func TestUrgencyOutranksArrivalOrder(t *testing.T) {
	r3 := pending("r3", "Comercial", domain.RoleDisenador, domain.UrgencyNormal, 0)
	r4 := pending("r4", "Comercial", domain.RoleDisenador, domain.UrgencyUrgent, time.Minute)
	index := queue.Rank([]domain.Request{r3, r4})
	if got := index["r4"]; got.Position != 1 || got.Ahead != 0 {
		t.Fatalf("urgent request should lead: %+v", got)
	}
	if got := index["r3"]; got.Position != 2 || got.Ahead != 1 {
		t.Fatalf("normal request should trail: %+v", got)
	}
}

func TestRankIsDeterministic(t *testing.T) {
	requests := []domain.Request{
		pending("a", "Comercial", "", domain.UrgencyNormal, 0),
		pending("b", "Comercial", "", domain.UrgencyExpress, time.Hour),
		pending("c", "Jurídico", "", domain.UrgencyNormal, time.Minute),
		assigned("d", "Comercial", "", domain.UrgencyNormal, "e1", 2*time.Minute),
	}
	first := queue.Rank(requests)
	second := queue.Rank(requests)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("ranking not deterministic:\n%v\n%v", first, second)
	}
}

func TestIdenticalTimestampsStillTotallyOrdered(t *testing.T) {
	a := pending("aaa", "Comercial", "", domain.UrgencyNormal, 0)
	b := pending("bbb", "Comercial", "", domain.UrgencyNormal, 0)
	index := queue.Rank([]domain.Request{b, a})
	pa, pb := index["aaa"].Position, index["bbb"].Position
	if pa == pb {
		t.Fatalf("tie survived the id tiebreak: %d %d", pa, pb)
	}
	if pa != 1 || pb != 2 {
		t.Fatalf("expected lexicographic id order, got a=%d b=%d", pa, pb)
	}
}

func TestGroupsDoNotMixStagesOrScopes(t *testing.T) {
	p := pending("p", "Comercial", domain.RoleDisenador, domain.UrgencyNormal, 0)
	a := assigned("a", "Comercial", domain.RoleDisenador, domain.UrgencyNormal, "e1", 0)
	other := pending("o", "Jurídico", domain.RoleDisenador, domain.UrgencyNormal, 0)
	index := queue.Rank([]domain.Request{p, a, other})
	for _, id := range []string{"p", "a", "o"} {
		entry := index[id]
		if entry.Position != 1 || entry.Total != 1 {
			t.Fatalf("%s should be alone in its group: %+v", id, entry)
		}
	}
}

func TestTerminalRemovalShiftsPositionsWithoutGaps(t *testing.T) {
	reqs := []domain.Request{
		pending("a", "Comercial", "", domain.UrgencyNormal, 0),
		pending("b", "Comercial", "", domain.UrgencyNormal, time.Minute),
		pending("c", "Comercial", "", domain.UrgencyNormal, 2*time.Minute),
	}
	before := queue.Rank(reqs)
	if before["a"].Position != 1 || before["b"].Position != 2 || before["c"].Position != 3 {
		t.Fatalf("unexpected initial order: %v", before)
	}
	reqs[0].Status = domain.StatusCompleted
	after := queue.Rank(reqs)
	if _, ok := after["a"]; ok {
		t.Fatalf("terminal request still ranked")
	}
	if after["b"].Position != 1 || after["c"].Position != 2 {
		t.Fatalf("positions should shift down by one: %v", after)
	}
	if after["b"].Total != 2 || after["c"].Total != 2 {
		t.Fatalf("group total not recomputed: %v", after)
	}
}

func TestAssignedStageUsesAssignedAt(t *testing.T) {
	early := assigned("early", "Comercial", "", domain.UrgencyNormal, "e1", 0)
	late := assigned("late", "Comercial", "", domain.UrgencyNormal, "e2", time.Hour)
	// creation order says otherwise
	early.CreatedAt = ts(2 * time.Hour)
	index := queue.Rank([]domain.Request{late, early})
	if index["early"].Position != 1 {
		t.Fatalf("assigned stage should order by assignedAt: %v", index)
	}
}

func TestMalformedScopeNormalized(t *testing.T) {
	r := pending("r", "", "something-else", domain.UrgencyNormal, 0)
	entry := queue.For(r, []domain.Request{r})
	if entry == nil {
		t.Fatalf("expected an entry")
	}
	if entry.Scope.Department != queue.DefaultArea {
		t.Fatalf("missing area should map to default bucket, got %q", entry.Scope.Department)
	}
	if entry.Scope.ExecutorType != domain.RoleDisenador {
		t.Fatalf("unknown executor type should map to most-general, got %q", entry.Scope.ExecutorType)
	}
}

func TestExecutorTypeAliases(t *testing.T) {
	cases := map[string]string{
		"manager":   domain.RoleGerente,
		"designer":  domain.RoleDisenador,
		"disenador": domain.RoleDisenador,
		"GERENTE":   domain.RoleGerente,
		"":          domain.RoleDisenador,
	}
	for in, want := range cases {
		if got := queue.NormalizeExecutorType(in); got != want {
			t.Errorf("NormalizeExecutorType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestForReturnsNilForInactiveRequest(t *testing.T) {
	done := pending("r", "Comercial", "", domain.UrgencyNormal, 0)
	done.Status = domain.StatusCompleted
	if entry := queue.For(done, []domain.Request{done}); entry != nil {
		t.Fatalf("inactive request should have no queue entry: %+v", entry)
	}
}

func TestEmptySetYieldsEmptyIndex(t *testing.T) {
	if index := queue.Rank(nil); len(index) != 0 {
		t.Fatalf("expected empty index, got %v", index)
	}
}
