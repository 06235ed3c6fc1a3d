package store

import (
	"context"
	"errors"
	"testing"

	"reqtriage/internal/lifecycle"
	"reqtriage/internal/scoring"
)

// newTestStore creates a Store in a temp directory for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestRequest(t *testing.T, s *Store) Request {
	t.Helper()
	r, err := s.CreateRequest(context.Background(), CreateRequestParams{
		OrgID:       "org-1",
		RequesterID: "user-1",
		Title:       "Dark mode for the dashboard",
		Description: "Stakeholders want a dark theme across the reporting screens",
	})
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	return r
}

// --- Requests ---

func TestCreateRequest_Defaults(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)

	if r.Status != lifecycle.StatusDraft {
		t.Errorf("status = %s, want DRAFT", r.Status)
	}
	if r.Version != 1 {
		t.Errorf("version = %d, want 1", r.Version)
	}
	if r.QualityScore != nil || r.BusinessScore != nil || r.Complexity != nil {
		t.Error("scores must be nil before assessment")
	}
}

func TestCreateRequest_RequiresTitle(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateRequest(context.Background(), CreateRequestParams{
		OrgID: "org-1", RequesterID: "user-1", Title: "   ",
	})
	if err == nil {
		t.Fatal("empty title should fail")
	}
}

func TestGetRequest_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRequest(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetOrgRequest_CrossTenantIsNotFound(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)

	if _, err := s.GetOrgRequest(context.Background(), r.ID, "org-1"); err != nil {
		t.Fatalf("same-org lookup failed: %v", err)
	}
	_, err := s.GetOrgRequest(context.Background(), r.ID, "org-2")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant error = %v, want ErrNotFound", err)
	}
}

func TestUpdateRequest_BumpsVersion(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)

	r.Status = lifecycle.StatusIntakeInProgress
	saved, err := s.UpdateRequest(context.Background(), r)
	if err != nil {
		t.Fatalf("UpdateRequest failed: %v", err)
	}
	if saved.Version != 2 {
		t.Errorf("version = %d, want 2", saved.Version)
	}

	got, err := s.GetRequest(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if got.Status != lifecycle.StatusIntakeInProgress {
		t.Errorf("status = %s, want INTAKE_IN_PROGRESS", got.Status)
	}
}

func TestUpdateRequest_StaleVersionConflicts(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)

	// First writer wins.
	first := r
	first.Status = lifecycle.StatusIntakeInProgress
	if _, err := s.UpdateRequest(context.Background(), first); err != nil {
		t.Fatalf("first write failed: %v", err)
	}

	// Second writer read the same version and must lose.
	second := r
	second.Title = "Renamed"
	_, err := s.UpdateRequest(context.Background(), second)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("stale write error = %v, want ErrConflict", err)
	}
}

func TestUpdateRequest_IntakeDataRoundtrip(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)

	r.IntakeData["problem"] = IntakeSection{
		Data:         map[string]any{"statement": "reports are unreadable at night"},
		Completeness: 80,
	}
	saved, err := s.UpdateRequest(context.Background(), r)
	if err != nil {
		t.Fatalf("UpdateRequest failed: %v", err)
	}

	got, err := s.GetRequest(context.Background(), saved.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	section, ok := got.IntakeData["problem"]
	if !ok {
		t.Fatal("intake section lost in roundtrip")
	}
	if section.Completeness != 80 {
		t.Errorf("completeness = %d, want 80", section.Completeness)
	}
	if section.Data["statement"] != "reports are unreadable at night" {
		t.Errorf("section data lost: %v", section.Data)
	}
}

func TestListRequests_FilterByStatus(t *testing.T) {
	s := newTestStore(t)
	r1 := createTestRequest(t, s)
	createTestRequest(t, s)

	r1.Status = lifecycle.StatusIntakeInProgress
	if _, err := s.UpdateRequest(context.Background(), r1); err != nil {
		t.Fatalf("UpdateRequest failed: %v", err)
	}

	drafts, err := s.ListRequests(context.Background(), "org-1", lifecycle.StatusDraft)
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Errorf("draft count = %d, want 1", len(drafts))
	}

	all, err := s.ListRequests(context.Background(), "org-1", "")
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("total count = %d, want 2", len(all))
	}
}

// --- Decisions ---

func TestRecordDecision_AtomicWithStatus(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)
	r.Status = lifecycle.StatusApproved

	d, saved, err := s.RecordDecision(context.Background(), InsertDecisionParams{
		RequestID: r.ID,
		OrgID:     r.OrgID,
		Decision:  lifecycle.DecisionApprove,
		Rationale: "clear business value",
		DecidedBy: "reviewer-1",
	}, r)
	if err != nil {
		t.Fatalf("RecordDecision failed: %v", err)
	}
	if saved.Status != lifecycle.StatusApproved {
		t.Errorf("status = %s, want APPROVED", saved.Status)
	}
	if d.Outcome != nil {
		t.Error("outcome must be nil at decision time")
	}

	list, err := s.ListDecisions(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("ListDecisions failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != d.ID {
		t.Errorf("decision list = %v, want one row %s", list, d.ID)
	}
}

func TestRecordDecision_ConflictRollsBackDecision(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)

	// Bump the version behind the writer's back.
	fresh := r
	fresh.Description = "edited"
	if _, err := s.UpdateRequest(context.Background(), fresh); err != nil {
		t.Fatalf("concurrent edit failed: %v", err)
	}

	stale := r
	stale.Status = lifecycle.StatusApproved
	_, _, err := s.RecordDecision(context.Background(), InsertDecisionParams{
		RequestID: r.ID,
		OrgID:     r.OrgID,
		Decision:  lifecycle.DecisionApprove,
		Rationale: "stale",
		DecidedBy: "reviewer-1",
	}, stale)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("stale decision error = %v, want ErrConflict", err)
	}

	// The decision row must not be visible.
	list, err := s.ListDecisions(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("ListDecisions failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("decision persisted despite conflict: %v", list)
	}
}

func TestSetDecisionOutcome_Overwrites(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)
	r.Status = lifecycle.StatusApproved
	d, _, err := s.RecordDecision(context.Background(), InsertDecisionParams{
		RequestID: r.ID, OrgID: r.OrgID,
		Decision: lifecycle.DecisionApprove, Rationale: "ok", DecidedBy: "rev",
	}, r)
	if err != nil {
		t.Fatalf("RecordDecision failed: %v", err)
	}

	first, err := s.SetDecisionOutcome(context.Background(), d.ID, lifecycle.OutcomePending, "")
	if err != nil {
		t.Fatalf("SetDecisionOutcome failed: %v", err)
	}
	if first.Outcome == nil || *first.Outcome != lifecycle.OutcomePending {
		t.Errorf("outcome = %v, want PENDING", first.Outcome)
	}

	second, err := s.SetDecisionOutcome(context.Background(), d.ID, lifecycle.OutcomeCorrect, "shipped and adopted")
	if err != nil {
		t.Fatalf("second SetDecisionOutcome failed: %v", err)
	}
	if second.Outcome == nil || *second.Outcome != lifecycle.OutcomeCorrect {
		t.Errorf("outcome = %v, want CORRECT (overwrite, not append)", second.Outcome)
	}
	if second.OutcomeNotes == nil || *second.OutcomeNotes != "shipped and adopted" {
		t.Errorf("notes = %v, want overwritten value", second.OutcomeNotes)
	}
}

func TestSetDecisionOutcome_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SetDecisionOutcome(context.Background(), "missing", lifecycle.OutcomeCorrect, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// --- Epics & stories ---

func TestCreateEpic_RejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)

	p := CreateEpicParams{
		RequestID: r.ID, OrgID: r.OrgID,
		Title: "Dark mode", Goals: []string{"theme switcher"},
	}
	if _, err := s.CreateEpic(context.Background(), p); err != nil {
		t.Fatalf("first CreateEpic failed: %v", err)
	}
	_, err := s.CreateEpic(context.Background(), p)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate epic error = %v, want ErrConflict", err)
	}
}

func TestGetOrgEpic_CrossTenantIsNotFound(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)
	e, err := s.CreateEpic(context.Background(), CreateEpicParams{
		RequestID: r.ID, OrgID: r.OrgID, Title: "Dark mode",
	})
	if err != nil {
		t.Fatalf("CreateEpic failed: %v", err)
	}

	if _, err := s.GetOrgEpic(context.Background(), e.ID, "org-1"); err != nil {
		t.Fatalf("same-org lookup failed: %v", err)
	}
	_, err = s.GetOrgEpic(context.Background(), e.ID, "org-2")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant error = %v, want ErrNotFound", err)
	}
}

func TestAddStory_PositionsAreOrdinal(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)
	e, err := s.CreateEpic(context.Background(), CreateEpicParams{
		RequestID: r.ID, OrgID: r.OrgID, Title: "Dark mode",
	})
	if err != nil {
		t.Fatalf("CreateEpic failed: %v", err)
	}

	for _, title := range []string{"toggle", "persist preference", "charts"} {
		if _, err := s.AddStory(context.Background(), AddStoryParams{
			EpicID: e.ID, Title: title, AsA: "user",
			IWant: "dark " + title, SoThat: "my eyes rest",
			Priority: "MEDIUM",
		}); err != nil {
			t.Fatalf("AddStory(%s) failed: %v", title, err)
		}
	}

	stories, err := s.ListStories(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("ListStories failed: %v", err)
	}
	if len(stories) != 3 {
		t.Fatalf("story count = %d, want 3", len(stories))
	}
	for i, st := range stories {
		if st.Position != i+1 {
			t.Errorf("story %d position = %d, want %d", i, st.Position, i+1)
		}
	}
}

func TestAddStory_UnknownEpic(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddStory(context.Background(), AddStoryParams{
		EpicID: "missing", Title: "x", AsA: "a", IWant: "b", SoThat: "c", Priority: "LOW",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestHasEpic(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)

	has, err := s.HasEpic(context.Background(), r.ID)
	if err != nil || has {
		t.Errorf("HasEpic before creation = %v, %v; want false, nil", has, err)
	}
	if _, err := s.CreateEpic(context.Background(), CreateEpicParams{
		RequestID: r.ID, OrgID: r.OrgID, Title: "Epic",
	}); err != nil {
		t.Fatalf("CreateEpic failed: %v", err)
	}
	has, err = s.HasEpic(context.Background(), r.ID)
	if err != nil || !has {
		t.Errorf("HasEpic after creation = %v, %v; want true, nil", has, err)
	}
}

// --- Duplicate search ---

func TestSearchSimilar_MatchesAndExcludesSelf(t *testing.T) {
	s := newTestStore(t)
	r1 := createTestRequest(t, s) // "Dark mode for the dashboard"
	r2, err := s.CreateRequest(context.Background(), CreateRequestParams{
		OrgID: "org-1", RequesterID: "user-2",
		Title:       "Export dashboard to PDF",
		Description: "Finance wants scheduled PDF exports",
	})
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	hits, err := s.SearchSimilar(context.Background(), "org-1", r2.ID, []string{"dashboard", "dark"}, 5)
	if err != nil {
		t.Fatalf("SearchSimilar failed: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.ID == r2.ID {
			t.Error("search must exclude the request itself")
		}
		if h.ID == r1.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s in hits, got %v", r1.ID, hits)
	}
}

func TestSearchSimilar_EmptyKeywords(t *testing.T) {
	s := newTestStore(t)
	createTestRequest(t, s)

	hits, err := s.SearchSimilar(context.Background(), "org-1", "", nil, 5)
	if err != nil {
		t.Fatalf("SearchSimilar with no keywords failed: %v", err)
	}
	if hits != nil {
		t.Errorf("hits = %v, want nil for empty keywords", hits)
	}
}

func TestSearchSimilar_OtherOrgInvisible(t *testing.T) {
	s := newTestStore(t)
	createTestRequest(t, s)

	hits, err := s.SearchSimilar(context.Background(), "org-2", "", []string{"dashboard"}, 5)
	if err != nil {
		t.Fatalf("SearchSimilar failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("cross-org hits = %v, want none", hits)
	}
}

// --- Scoring config ---

func TestScoringConfig_AbsentIsNil(t *testing.T) {
	s := newTestStore(t)
	cfg, err := s.GetScoringConfig(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("GetScoringConfig failed: %v", err)
	}
	if cfg != nil {
		t.Errorf("cfg = %+v, want nil when unset", cfg)
	}
}

func TestScoringConfig_Roundtrip(t *testing.T) {
	s := newTestStore(t)
	want := scoring.Config{
		Framework:  scoring.FrameworkWSJF,
		Weights:    scoring.Weights{Business: 0.5, Technical: 0.2, Risk: 0.3},
		Thresholds: scoring.Thresholds{HighPriority: 80, MediumPriority: 40},
	}
	if err := s.SaveScoringConfig(context.Background(), "org-1", want); err != nil {
		t.Fatalf("SaveScoringConfig failed: %v", err)
	}
	got, err := s.GetScoringConfig(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("GetScoringConfig failed: %v", err)
	}
	if got == nil || *got != want {
		t.Errorf("config roundtrip = %+v, want %+v", got, want)
	}
}

// --- Context queries ---

func TestCountByStatus(t *testing.T) {
	s := newTestStore(t)
	createTestRequest(t, s)
	r := createTestRequest(t, s)
	r.Status = lifecycle.StatusIntakeInProgress
	if _, err := s.UpdateRequest(context.Background(), r); err != nil {
		t.Fatalf("UpdateRequest failed: %v", err)
	}

	counts, err := s.CountByStatus(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[lifecycle.StatusDraft] != 1 || counts[lifecycle.StatusIntakeInProgress] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestListBacklog_OrderedByPriority(t *testing.T) {
	s := newTestStore(t)

	mk := func(title string, priority float64) {
		t.Helper()
		r, err := s.CreateRequest(context.Background(), CreateRequestParams{
			OrgID: "org-1", RequesterID: "u", Title: title,
		})
		if err != nil {
			t.Fatalf("CreateRequest failed: %v", err)
		}
		r.Status = lifecycle.StatusInBacklog
		r.PriorityScore = &priority
		if _, err := s.UpdateRequest(context.Background(), r); err != nil {
			t.Fatalf("UpdateRequest failed: %v", err)
		}
	}
	mk("low", 20)
	mk("high", 90)

	backlog, err := s.ListBacklog(context.Background(), "org-1", 10)
	if err != nil {
		t.Fatalf("ListBacklog failed: %v", err)
	}
	if len(backlog) != 2 || backlog[0].Title != "high" {
		t.Errorf("backlog order wrong: %v", backlog)
	}
}

func TestListHistoricalEstimates_OnlyCompletedWithComplexity(t *testing.T) {
	s := newTestStore(t)
	r := createTestRequest(t, s)
	cm := lifecycle.ComplexityM
	ca := lifecycle.ComplexityL
	days := 12.0
	r.Status = lifecycle.StatusCompleted
	r.Complexity = &cm
	r.ActualComplexity = &ca
	r.ActualEffortDays = &days
	if _, err := s.UpdateRequest(context.Background(), r); err != nil {
		t.Fatalf("UpdateRequest failed: %v", err)
	}
	createTestRequest(t, s) // still DRAFT, must not appear

	est, err := s.ListHistoricalEstimates(context.Background(), "org-1", 10)
	if err != nil {
		t.Fatalf("ListHistoricalEstimates failed: %v", err)
	}
	if len(est) != 1 {
		t.Fatalf("estimate count = %d, want 1", len(est))
	}
	if est[0].Complexity == nil || *est[0].Complexity != lifecycle.ComplexityM {
		t.Errorf("complexity = %v, want M", est[0].Complexity)
	}
	if est[0].ActualEffortDays == nil || *est[0].ActualEffortDays != 12 {
		t.Errorf("effort = %v, want 12", est[0].ActualEffortDays)
	}
}

// --- Users ---

func TestUsers_UpsertAndList(t *testing.T) {
	s := newTestStore(t)
	users := []User{
		{ID: "u1", OrgID: "org-1", Name: "Ana", Role: lifecycle.RoleReviewer},
		{ID: "u2", OrgID: "org-1", Name: "Ben", Role: lifecycle.RoleStakeholder},
		{ID: "u3", OrgID: "org-2", Name: "Eva", Role: lifecycle.RoleAdmin},
	}
	for _, u := range users {
		if err := s.UpsertUser(context.Background(), u); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
	}

	got, err := s.ListOrgMembers(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("ListOrgMembers failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("member count = %d, want 2", len(got))
	}

	u, err := s.GetUser(context.Background(), "u1")
	if err != nil || u.Role != lifecycle.RoleReviewer {
		t.Errorf("GetUser = %+v, %v", u, err)
	}
	if _, err := s.GetUser(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing user error = %v, want ErrNotFound", err)
	}
}
