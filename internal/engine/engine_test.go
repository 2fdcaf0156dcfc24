package engine_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"clearline/internal/config"
	"clearline/internal/db"
	"clearline/internal/domain"
	"clearline/internal/engine"
	"clearline/internal/migrate"
	"clearline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("test"))
	eng.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	eng.Events.Now = eng.Now
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) addUser(t *testing.T, id, role string) {
	t.Helper()
	if _, err := env.Engine.CreateUser(env.Ctx, "tester", id, id, role); err != nil {
		t.Fatalf("add user %s: %v", id, err)
	}
}

func strPtr(s string) *string { return &s }

func taskFilter(projectID string) repo.TaskFilters {
	return repo.TaskFilters{ProjectID: projectID}
}

func TestShipmentTypeInference(t *testing.T) {
	cases := []struct {
		systems []string
		want    string
	}{
		{[]string{"IMPORT_SEA_FCL"}, domain.ShipmentImport},
		{[]string{"EXPORT_AIR"}, domain.ShipmentExport},
		{[]string{"import_sea", "Sea Export"}, domain.ShipmentExport},
		{nil, domain.ShipmentImport},
	}
	for _, tc := range cases {
		if got := engine.InferShipmentType(tc.systems); got != tc.want {
			t.Errorf("InferShipmentType(%v) = %s, want %s", tc.systems, got, tc.want)
		}
	}
}

func TestShipmentPartiesFollowDirection(t *testing.T) {
	env := newTestEnv(t)
	imp, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		Systems:      []string{"IMPORT_SEA_FCL"},
	})
	if err != nil {
		t.Fatalf("create import project: %v", err)
	}
	if imp.Cascade.Shipment.Consignee != "Acme Trading" || imp.Cascade.Shipment.Consignor != "" {
		t.Errorf("import parties = consignor %q / consignee %q, customer must be the consignee",
			imp.Cascade.Shipment.Consignor, imp.Cascade.Shipment.Consignee)
	}

	exp, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		Systems:      []string{"EXPORT_AIR"},
	})
	if err != nil {
		t.Fatalf("create export project: %v", err)
	}
	if exp.Cascade.Shipment.Consignor != "Acme Trading" || exp.Cascade.Shipment.Consignee != "" {
		t.Errorf("export parties = consignor %q / consignee %q, customer must be the consignor",
			exp.Cascade.Shipment.Consignor, exp.Cascade.Shipment.Consignee)
	}
}

func TestCascadeCreatesElevenStages(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		Systems:      []string{"IMPORT_SEA_FCL"},
		StartDate:    strPtr("2024-03-01T00:00:00Z"),
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if res.Cascade.Shipment == nil {
		t.Fatal("expected shipment")
	}
	if res.Cascade.Shipment.Type != domain.ShipmentImport {
		t.Fatalf("shipment type = %s, want IMPORT", res.Cascade.Shipment.Type)
	}
	if res.Cascade.StagesCreated != 11 {
		t.Fatalf("stages created = %d, want 11", res.Cascade.StagesCreated)
	}

	stages, err := env.Engine.Repo.ListStagesByShipment(env.Ctx, res.Cascade.Shipment.ID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	if len(stages) != 11 {
		t.Fatalf("got %d stages, want 11", len(stages))
	}
	for i, st := range stages {
		if st.StageType != domain.TrackingStageTypes[i] {
			t.Errorf("stage %d = %s, want %s", i, st.StageType, domain.TrackingStageTypes[i])
		}
		if i == 0 {
			if st.Status != domain.StatusInProgress || st.StartedAt == nil {
				t.Errorf("first stage should be IN_PROGRESS and started, got %s", st.Status)
			}
		} else if st.Status != domain.StatusPending {
			t.Errorf("stage %d status = %s, want PENDING", i, st.Status)
		}
		if st.EstimatedStart == nil || st.EstimatedCompletion == nil {
			t.Errorf("stage %s missing ETA estimates", st.StageType)
		}
	}
}

func TestCascadeWithoutStartDateHasNoETAs(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	stages, err := env.Engine.Repo.ListStagesByShipment(env.Ctx, res.Cascade.Shipment.ID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	for _, st := range stages {
		if st.EstimatedStart != nil || st.EstimatedCompletion != nil {
			t.Errorf("stage %s has estimates without a start date", st.StageType)
		}
	}
}

func TestActivityGroupingMergesTaskNames(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		Systems:      []string{"IMPORT_SEA_FCL"},
		Activities: []engine.Activity{
			{ShipmentType: "IMPORT_SEA_FCL", Stage: "Documentation", Substage: "Documentation", Task: "Bill of Lading Collection"},
			{ShipmentType: "IMPORT_SEA_FCL", Stage: "Documentation", Substage: "Documentation", Task: "Certificate of Origin"},
		},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if res.Cascade.TasksCreated != 1 {
		t.Fatalf("tasks created = %d, want 1", res.Cascade.TasksCreated)
	}
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, taskFilter(res.Project.ID))
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	task := tasks[0]
	if task.Category != domain.CategoryDocumentation {
		t.Errorf("category = %s, want DOCUMENTATION", task.Category)
	}
	if task.Title != "Documentation" {
		t.Errorf("title = %q, want Documentation", task.Title)
	}
	if task.LinkedActivity == nil {
		t.Fatal("missing linked activity")
	}
	if task.LinkedActivity.Task != "Bill of Lading Collection, Certificate of Origin" {
		t.Errorf("linked task = %q", task.LinkedActivity.Task)
	}
	if task.LinkedActivity.ProjectID != res.Project.ID {
		t.Errorf("linked project = %q", task.LinkedActivity.ProjectID)
	}
}

func TestDefaultTemplateTwelveTasksOneDayApart(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		StartDate:    strPtr("2024-03-01T00:00:00Z"),
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if res.Cascade.TasksCreated != 12 {
		t.Fatalf("tasks created = %d, want 12", res.Cascade.TasksCreated)
	}
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, taskFilter(res.Project.ID))
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	var dues []time.Time
	for _, task := range tasks {
		if task.DueDate == nil {
			t.Fatalf("task %q has no due date", task.Title)
		}
		due, err := time.Parse(time.RFC3339, *task.DueDate)
		if err != nil {
			t.Fatalf("parse due date: %v", err)
		}
		dues = append(dues, due)
	}
	sort.Slice(dues, func(i, j int) bool { return dues[i].Before(dues[j]) })
	// The schedule starts at the project start date itself, not the day after.
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, due := range dues {
		if !due.Equal(want.AddDate(0, 0, i)) {
			t.Errorf("due date %d = %s, want %s", i, due, want.AddDate(0, 0, i))
		}
	}
}

func TestDefaultTemplateWithoutStartDateHasNilDues(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, taskFilter(res.Project.ID))
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 12 {
		t.Fatalf("got %d tasks, want 12", len(tasks))
	}
	for _, task := range tasks {
		if task.DueDate != nil {
			t.Errorf("task %q has due date %s without a project start", task.Title, *task.DueDate)
		}
	}
}

func TestTeamSeededTasksReportAlreadyAssigned(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u-clerk", domain.RoleClerk)
	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		Team:         []string{"u-clerk"},
		Activities: []engine.Activity{
			{ShipmentType: "IMPORT_SEA_FCL", Stage: "Documentation", Substage: "Docs", Task: "Collect BL"},
		},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if len(res.Cascade.Assignments) != 1 {
		t.Fatalf("got %d assignments, want 1", len(res.Cascade.Assignments))
	}
	a := res.Cascade.Assignments[0]
	if a.Reason != "Already assigned" {
		t.Errorf("reason = %q, want Already assigned", a.Reason)
	}
	if a.Applied {
		t.Error("resolver must not reassign seeded tasks")
	}
	tasks, _ := env.Engine.Repo.ListTasks(env.Ctx, taskFilter(res.Project.ID))
	if len(tasks) != 1 || len(tasks[0].AssignedTo) != 1 || tasks[0].AssignedTo[0] != "u-clerk" {
		t.Fatalf("seeded assignees changed: %+v", tasks[0].AssignedTo)
	}
}

func TestRulePriorityOrdering(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u-first", domain.RoleManager)
	env.addUser(t, "u-second", domain.RoleManager)

	if _, err := env.Engine.CreateRule(env.Ctx, "tester", engine.RuleCreateOptions{
		Category: domain.CategoryDocumentation, UserID: strPtr("u-second"), Priority: 5,
	}); err != nil {
		t.Fatalf("rule 2: %v", err)
	}
	if _, err := env.Engine.CreateRule(env.Ctx, "tester", engine.RuleCreateOptions{
		Category: domain.CategoryDocumentation, UserID: strPtr("u-first"), Priority: 1,
	}); err != nil {
		t.Fatalf("rule 1: %v", err)
	}

	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		Activities: []engine.Activity{
			{ShipmentType: "IMPORT_SEA_FCL", Stage: "Documentation", Substage: "Docs", Task: "Collect BL"},
		},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	a := res.Cascade.Assignments[0]
	if a.UserID == nil || *a.UserID != "u-first" {
		t.Fatalf("assigned to %v, want u-first (lowest priority rule)", a.UserID)
	}
}

func TestRoleRuleBalancesLoadWithinBatch(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "agent-a", domain.RoleAgent)
	env.addUser(t, "agent-b", domain.RoleAgent)
	if _, err := env.Engine.CreateRule(env.Ctx, "tester", engine.RuleCreateOptions{
		Category: domain.CategoryDocumentation, RoleTarget: strPtr(domain.RoleAgent), Priority: 1,
	}); err != nil {
		t.Fatalf("rule: %v", err)
	}

	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		Activities: []engine.Activity{
			{ShipmentType: "IMPORT_SEA_FCL", Stage: "Documentation", Substage: "Docs A", Task: "Collect BL"},
			{ShipmentType: "IMPORT_SEA_FCL", Stage: "Documentation", Substage: "Docs B", Task: "Check invoice"},
		},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if res.Cascade.TasksAssigned != 2 {
		t.Fatalf("assigned = %d, want 2", res.Cascade.TasksAssigned)
	}
	got := map[string]int{}
	for _, a := range res.Cascade.Assignments {
		if a.UserID != nil {
			got[*a.UserID]++
		}
	}
	// Ties break toward the lowest id, then the local counter spreads work.
	if got["agent-a"] != 1 || got["agent-b"] != 1 {
		t.Fatalf("load not balanced across batch: %v", got)
	}
}

func TestTeamFallbackAssignment(t *testing.T) {
	env := newTestEnv(t)
	// Template tasks carry no seeded assignees. The only user holds a role
	// outside the DOCUMENTATION defaults (CLERK, AGENT), so documentation
	// tasks fall through rules and defaults to the project team.
	env.addUser(t, "u-team", domain.RoleAccountant)

	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		Team:         []string{"ghost-user", "u-team"},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	var teamFallbacks int
	for _, a := range res.Cascade.Assignments {
		if a.Reason == "Assigned to project team member" {
			teamFallbacks++
			if a.UserID == nil || *a.UserID != "u-team" {
				t.Fatalf("team fallback picked %v, want u-team (ghost skipped)", a.UserID)
			}
		}
	}
	if teamFallbacks == 0 {
		t.Fatal("no task used the team fallback")
	}
}

func TestNoSuitableAssignee(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		Activities: []engine.Activity{
			{ShipmentType: "IMPORT_SEA_FCL", Stage: "Documentation", Substage: "Docs", Task: "Collect BL"},
		},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	a := res.Cascade.Assignments[0]
	if a.UserID != nil || a.Applied {
		t.Fatal("expected task left unassigned")
	}
	if a.Reason != "No suitable assignee found" {
		t.Errorf("reason = %q, want No suitable assignee found", a.Reason)
	}
}

func TestSyncTasksIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		Activities: []engine.Activity{
			{ShipmentType: "IMPORT_SEA_FCL", Stage: "Documentation", Substage: "Docs", Task: "Collect BL"},
			{ShipmentType: "IMPORT_SEA_FCL", Stage: "Duty Payment", Substage: "Payment", Task: "Pay duty"},
		},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	first, err := env.Engine.SyncTasks(env.Ctx, "tester", res.Project.ID)
	if err != nil {
		t.Fatalf("sync 1: %v", err)
	}
	if first.TasksDeleted != 2 || first.TasksCreated != 2 {
		t.Fatalf("sync 1 deleted=%d created=%d, want 2/2", first.TasksDeleted, first.TasksCreated)
	}
	second, err := env.Engine.SyncTasks(env.Ctx, "tester", res.Project.ID)
	if err != nil {
		t.Fatalf("sync 2: %v", err)
	}
	if second.TasksDeleted != 2 || second.TasksCreated != 2 {
		t.Fatalf("sync 2 deleted=%d created=%d, want 2/2", second.TasksDeleted, second.TasksCreated)
	}
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, taskFilter(res.Project.ID))
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("final task count = %d, want 2", len(tasks))
	}
}

func TestSkipCascadeCreatesNothing(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		SkipCascade:  true,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if res.Cascade.Shipment != nil || res.Cascade.StagesCreated != 0 || res.Cascade.TasksCreated != 0 {
		t.Fatalf("cascade ran despite skip: %+v", res.Cascade)
	}
	if _, err := env.Engine.Repo.GetShipmentByProject(env.Ctx, res.Project.ID); err == nil {
		t.Fatal("shipment exists despite skip")
	}
	tasks, _ := env.Engine.Repo.ListTasks(env.Ctx, taskFilter(res.Project.ID))
	if len(tasks) != 0 {
		t.Fatalf("got %d tasks despite skip", len(tasks))
	}
}

func TestUnknownStatusAndPriorityFallBack(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
		Status:       "SHIPPED",
		Priority:     "whenever",
		SkipCascade:  true,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if res.Project.Status != domain.StatusPending {
		t.Errorf("status = %s, want PENDING", res.Project.Status)
	}
	if res.Project.Priority != domain.PriorityMedium {
		t.Errorf("priority = %s, want MEDIUM", res.Project.Priority)
	}

	p, err := env.Engine.UpdateProject(env.Ctx, "tester", res.Project.ID, strPtr("nonsense"), strPtr("ASAP"))
	if err != nil {
		t.Fatalf("update project: %v", err)
	}
	if p.Status != domain.StatusPending || p.Priority != domain.PriorityMedium {
		t.Errorf("update fallback: status=%s priority=%s", p.Status, p.Priority)
	}
}

func TestStageLifecycleStamps(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CreateProject(env.Ctx, "tester", engine.ProjectCreateOptions{
		CustomerName: "Acme Trading",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	stages, _ := env.Engine.Repo.ListStagesByShipment(env.Ctx, res.Cascade.Shipment.ID)
	second := stages[1]

	st, err := env.Engine.UpdateStage(env.Ctx, "tester", second.ID, engine.StagePatch{Status: strPtr(domain.StatusInProgress)})
	if err != nil {
		t.Fatalf("start stage: %v", err)
	}
	if st.StartedAt == nil {
		t.Fatal("started_at not stamped")
	}
	st, err = env.Engine.UpdateStage(env.Ctx, "tester", second.ID, engine.StagePatch{Status: strPtr(domain.StatusCompleted)})
	if err != nil {
		t.Fatalf("complete stage: %v", err)
	}
	if st.CompletedAt == nil {
		t.Fatal("completed_at not stamped")
	}
}
