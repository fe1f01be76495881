package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"sitework/internal/config"
	"sitework/internal/db"
	"sitework/internal/domain"
	"sitework/internal/engine"
	"sitework/internal/migrate"
	"sitework/internal/repo"
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
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("site")
	eng := engine.New(conn, cfg)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	step := 0
	eng.Now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}
	ctx := context.Background()
	if err := eng.SyncTaskCatalog(ctx, "tester"); err != nil {
		t.Fatalf("sync catalog: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func ptr(s string) *string { return &s }

func createResource(t *testing.T, env testEnv, name, rtype string) domain.Resource {
	t.Helper()
	r, err := env.Engine.CreateResource(env.Ctx, engine.ResourceInput{Name: &name, Type: &rtype}, "tester")
	if err != nil {
		t.Fatalf("create resource %s: %v", name, err)
	}
	return r
}

func validJobInput() engine.JobInput {
	return engine.JobInput{
		Title:     ptr("Pour foundation slab"),
		TaskID:    ptr("task-foundation"),
		StartTime: ptr("2026-03-02T07:30:00Z"),
		EndTime:   ptr("2026-03-02T16:00:00Z"),
		Status:    ptr("scheduled"),
	}
}

func fieldErrors(t *testing.T, err error) engine.FieldErrors {
	t.Helper()
	var fe engine.FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("expected field errors, got %v", err)
	}
	return fe
}

func TestCreateJobAccumulatesMissingFields(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateJob(env.Ctx, engine.JobInput{}, "tester")
	fe := fieldErrors(t, err)
	want := map[string]string{
		"title":     "Job title is required",
		"taskId":    "Task ID is required",
		"startTime": "Start time is required",
		"endTime":   "End time is required",
		"status":    "Status is required",
	}
	for field, msg := range want {
		if fe[field] != msg {
			t.Errorf("field %s: got %q, want %q", field, fe[field], msg)
		}
	}
	if len(fe) != len(want) {
		t.Errorf("got %d errors %v, want %d", len(fe), fe, len(want))
	}
}

func TestCreateJobUnknownTask(t *testing.T) {
	env := newTestEnv(t)
	in := validJobInput()
	in.TaskID = ptr("task-demolition")
	_, err := env.Engine.CreateJob(env.Ctx, in, "tester")
	fe := fieldErrors(t, err)
	if fe["taskId"] != "Invalid task ID" {
		t.Fatalf("got %v", fe)
	}
}

func TestCreateJobDateRange(t *testing.T) {
	env := newTestEnv(t)

	in := validJobInput()
	in.EndTime = ptr("2026-03-02T07:30:00Z") // equal to start
	_, err := env.Engine.CreateJob(env.Ctx, in, "tester")
	fe := fieldErrors(t, err)
	if fe["dateRange"] != "End time must be after start time" {
		t.Fatalf("equal boundary: got %v", fe)
	}

	in = validJobInput()
	in.StartTime = ptr("yesterday")
	_, err = env.Engine.CreateJob(env.Ctx, in, "tester")
	fe = fieldErrors(t, err)
	if fe["startTime"] != "Invalid start time" {
		t.Fatalf("bad format: got %v", fe)
	}
	if _, ok := fe["dateRange"]; ok {
		t.Fatalf("dateRange should not fire without both bounds parsed: %v", fe)
	}

	// inverted range reported alongside other field errors
	in = validJobInput()
	in.Title = nil
	in.StartTime = ptr("2026-03-02T16:00:00Z")
	in.EndTime = ptr("2026-03-02T07:30:00Z")
	_, err = env.Engine.CreateJob(env.Ctx, in, "tester")
	fe = fieldErrors(t, err)
	if fe["title"] != "Job title is required" {
		t.Errorf("missing title: got %v", fe)
	}
	if fe["dateRange"] != "End time must be after start time" {
		t.Errorf("inverted range: got %v", fe)
	}
}

func TestCreateJobUnknownResource(t *testing.T) {
	env := newTestEnv(t)
	worker := createResource(t, env, "Jean Dupont", domain.ResourceHuman)
	in := validJobInput()
	in.Assigned = []domain.Assignment{
		{ResourceID: worker.ID, Type: domain.ResourceHuman},
		{ResourceID: "ghost-1", Type: domain.ResourceEquipment},
	}
	_, err := env.Engine.CreateJob(env.Ctx, in, "tester")
	fe := fieldErrors(t, err)
	if !strings.Contains(fe["assignedResources"], "Unknown resource ID") || !strings.Contains(fe["assignedResources"], "ghost-1") {
		t.Fatalf("got %v", fe)
	}
}

func TestCreateJobPersists(t *testing.T) {
	env := newTestEnv(t)
	worker := createResource(t, env, "Jean Dupont", domain.ResourceHuman)
	crane := createResource(t, env, "Tower crane TC-5", domain.ResourceEquipment)

	in := validJobInput()
	in.Description = ptr("Zone A concrete pour")
	// duplicates are kept as given
	in.Assigned = []domain.Assignment{
		{ResourceID: crane.ID, Type: domain.ResourceEquipment},
		{ResourceID: worker.ID, Type: domain.ResourceHuman},
		{ResourceID: worker.ID, Type: domain.ResourceHuman},
	}
	created, err := env.Engine.CreateJob(env.Ctx, in, "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.TaskName != "Foundation works" {
		t.Errorf("task name not denormalized: %q", created.TaskName)
	}

	got, err := env.Engine.Repo.GetJob(env.Ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Pour foundation slab" || got.Status != domain.JobScheduled {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Assigned) != 3 {
		t.Fatalf("assignments: got %d, want 3 (duplicates kept)", len(got.Assigned))
	}
	if got.Assigned[0].ResourceID != crane.ID || got.Assigned[1].ResourceID != worker.ID {
		t.Fatalf("assignment order not preserved: %+v", got.Assigned)
	}
}

func TestCreateJobLegacyShape(t *testing.T) {
	env := newTestEnv(t)
	worker := createResource(t, env, "Jean Dupont", domain.ResourceHuman)
	crane := createResource(t, env, "Tower crane TC-5", domain.ResourceEquipment)

	in := engine.JobInput{
		Title:             ptr("Erect scaffolding"),
		TaskID:            ptr("task-framing"),
		StartDate:         ptr("2026-03-03T07:30"),
		EndDate:           ptr("2026-03-03T17:00"),
		Status:            ptr("Planning"),
		AssignedHumans:    []string{worker.ID},
		AssignedEquipment: []string{crane.ID},
	}
	j, err := env.Engine.CreateJob(env.Ctx, in, "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if j.Status != domain.JobScheduled {
		t.Errorf("legacy status label: got %q", j.Status)
	}
	if j.StartTime != "2026-03-03T07:30:00Z" {
		t.Errorf("datetime-local not normalized: %q", j.StartTime)
	}
	if len(j.Assigned) != 2 || j.Assigned[0].Type != domain.ResourceHuman || j.Assigned[1].Type != domain.ResourceEquipment {
		t.Fatalf("legacy lists not folded humans-first: %+v", j.Assigned)
	}
}

func TestCanonicalStatus(t *testing.T) {
	cases := map[string]string{
		"scheduled":   domain.JobScheduled,
		"Planifié":    domain.JobScheduled,
		"En cours":    domain.JobInProgress,
		"Terminé":     domain.JobDone,
		"In Progress": domain.JobInProgress,
		"On Hold":     domain.JobOnHold,
	}
	for label, want := range cases {
		got, ok := engine.CanonicalStatus(label)
		if !ok || got != want {
			t.Errorf("%q: got %q ok=%v, want %q", label, got, ok, want)
		}
	}
	if _, ok := engine.CanonicalStatus("paused"); ok {
		t.Error("unknown label accepted")
	}
}

func TestUpdateJobMergesStoredFields(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.Engine.CreateJob(env.Ctx, validJobInput(), "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// endTime alone, before the stored start: rejected against stored startTime
	_, err = env.Engine.UpdateJob(env.Ctx, created.ID, engine.JobInput{EndTime: ptr("2026-03-02T06:00:00Z")}, "tester")
	fe := fieldErrors(t, err)
	if fe["dateRange"] != "End time must be after start time" {
		t.Fatalf("got %v", fe)
	}

	// endTime alone, after the stored start: accepted, everything else kept
	updated, err := env.Engine.UpdateJob(env.Ctx, created.ID, engine.JobInput{EndTime: ptr("2026-03-02T18:00:00Z")}, "tester")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.EndTime != "2026-03-02T18:00:00Z" {
		t.Errorf("end not updated: %q", updated.EndTime)
	}
	if updated.Title != created.Title || updated.StartTime != created.StartTime || updated.Status != created.Status {
		t.Errorf("unrelated fields changed: %+v", updated)
	}
	if updated.CreatedAt != created.CreatedAt {
		t.Errorf("createdAt changed on update")
	}
}

func TestUpdateJobUnknownID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.UpdateJob(env.Ctx, "no-such-job", engine.JobInput{Title: ptr("x")}, "tester")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestResourceValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.CreateResource(env.Ctx, engine.ResourceInput{}, "tester")
	fe := fieldErrors(t, err)
	if fe["name"] != "Resource name is required" || fe["type"] != "Type must be Human or Equipment" {
		t.Fatalf("got %v", fe)
	}

	_, err = env.Engine.CreateResource(env.Ctx, engine.ResourceInput{Name: ptr("Drone"), Type: ptr("Robot")}, "tester")
	fe = fieldErrors(t, err)
	if fe["type"] != "Type must be Human or Equipment" {
		t.Fatalf("got %v", fe)
	}

	r := createResource(t, env, "Jean Dupont", domain.ResourceHuman)
	if !r.Availability {
		t.Error("availability should default to true")
	}

	_, err = env.Engine.UpdateResource(env.Ctx, r.ID, engine.ResourceInput{Type: ptr(domain.ResourceEquipment)}, "tester")
	fe = fieldErrors(t, err)
	if fe["type"] != "Resource type cannot be changed" {
		t.Fatalf("got %v", fe)
	}

	avail := false
	updated, err := env.Engine.UpdateResource(env.Ctx, r.ID, engine.ResourceInput{Role: ptr("Crane operator"), Availability: &avail}, "tester")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Role != "Crane operator" || updated.Availability {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.Name != "Jean Dupont" {
		t.Fatalf("name changed on partial update: %q", updated.Name)
	}
}

func TestListResourcesByType(t *testing.T) {
	env := newTestEnv(t)
	createResource(t, env, "Jean Dupont", domain.ResourceHuman)
	createResource(t, env, "Marie Laurent", domain.ResourceHuman)
	crane := createResource(t, env, "Tower crane TC-5", domain.ResourceEquipment)

	humans, err := env.Engine.ListResources(env.Ctx, "human", "")
	if err != nil {
		t.Fatalf("list humans: %v", err)
	}
	if len(humans) != 2 {
		t.Fatalf("got %d humans, want 2: %+v", len(humans), humans)
	}

	// filter matches regardless of case
	equipment, err := env.Engine.ListResources(env.Ctx, "Equipment", "")
	if err != nil {
		t.Fatalf("list equipment: %v", err)
	}
	if len(equipment) != 1 || equipment[0].ID != crane.ID {
		t.Fatalf("got %+v", equipment)
	}

	narrowed, err := env.Engine.ListResources(env.Ctx, "equipment", "crane")
	if err != nil {
		t.Fatalf("narrowed list: %v", err)
	}
	if len(narrowed) != 1 || narrowed[0].ID != crane.ID {
		t.Fatalf("got %+v", narrowed)
	}
}

func TestDeleteResourceLeavesAssignmentsDangling(t *testing.T) {
	env := newTestEnv(t)
	worker := createResource(t, env, "Jean Dupont", domain.ResourceHuman)

	in := validJobInput()
	in.Assigned = []domain.Assignment{{ResourceID: worker.ID, Type: domain.ResourceHuman}}
	j, err := env.Engine.CreateJob(env.Ctx, in, "tester")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := env.Engine.DeleteResource(env.Ctx, worker.ID, "tester"); err != nil {
		t.Fatalf("delete resource: %v", err)
	}

	got, err := env.Engine.Repo.GetJob(env.Ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if len(got.Assigned) != 1 || got.Assigned[0].ResourceID != worker.ID {
		t.Fatalf("assignment should survive resource deletion: %+v", got.Assigned)
	}

	// but new writes must not reference the deleted id
	in2 := validJobInput()
	in2.Assigned = []domain.Assignment{{ResourceID: worker.ID, Type: domain.ResourceHuman}}
	_, err = env.Engine.CreateJob(env.Ctx, in2, "tester")
	fe := fieldErrors(t, err)
	if !strings.Contains(fe["assignedResources"], worker.ID) {
		t.Fatalf("got %v", fe)
	}
}

func TestUpdateJobKeepsDanglingAssignments(t *testing.T) {
	env := newTestEnv(t)
	worker := createResource(t, env, "Jean Dupont", domain.ResourceHuman)

	in := validJobInput()
	in.Assigned = []domain.Assignment{{ResourceID: worker.ID, Type: domain.ResourceHuman}}
	j, err := env.Engine.CreateJob(env.Ctx, in, "tester")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := env.Engine.DeleteResource(env.Ctx, worker.ID, "tester"); err != nil {
		t.Fatalf("delete resource: %v", err)
	}

	// a status-only update must not trip over the stale assignment
	updated, err := env.Engine.UpdateJob(env.Ctx, j.ID, engine.JobInput{Status: ptr("in_progress")}, "tester")
	if err != nil {
		t.Fatalf("status update: %v", err)
	}
	if updated.Status != domain.JobInProgress {
		t.Errorf("status: got %q", updated.Status)
	}
	if len(updated.Assigned) != 1 || updated.Assigned[0].ResourceID != worker.ID {
		t.Fatalf("stored assignment lost: %+v", updated.Assigned)
	}

	// explicitly re-sending the list puts it back under existence checks
	_, err = env.Engine.UpdateJob(env.Ctx, j.ID, engine.JobInput{
		Assigned: []domain.Assignment{{ResourceID: worker.ID, Type: domain.ResourceHuman}},
	}, "tester")
	fe := fieldErrors(t, err)
	if !strings.Contains(fe["assignedResources"], worker.ID) {
		t.Fatalf("got %v", fe)
	}
}

func TestListJobsNewestFirstAndFiltered(t *testing.T) {
	env := newTestEnv(t)
	mk := func(title, status string) string {
		in := validJobInput()
		in.Title = ptr(title)
		in.Status = ptr(status)
		j, err := env.Engine.CreateJob(env.Ctx, in, "tester")
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		return j.ID
	}
	first := mk("Pour foundation slab", "scheduled")
	second := mk("Concrete curing check", "in_progress")
	third := mk("Site cleanup", "done")

	all, err := env.Engine.ListJobs(env.Ctx, "", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != third || all[1].ID != second || all[2].ID != first {
		t.Fatalf("order: %+v", all)
	}

	again, err := env.Engine.ListJobs(env.Ctx, "", "")
	if err != nil || len(again) != 3 {
		t.Fatalf("repeat list changed results: %v %d", err, len(again))
	}

	filtered, err := env.Engine.ListJobs(env.Ctx, "in_progress", "concrete")
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != second {
		t.Fatalf("filter: %+v", filtered)
	}
}

func TestEventLogRecordsWrites(t *testing.T) {
	env := newTestEnv(t)
	j, err := env.Engine.CreateJob(env.Ctx, validJobInput(), "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.UpdateJob(env.Ctx, j.ID, engine.JobInput{Status: ptr("in_progress")}, "tester"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := env.Engine.DeleteJob(env.Ctx, j.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	events, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{EntityKind: "job", EntityID: j.ID})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	// newest first
	wantTypes := []string{"job.deleted", "job.updated", "job.created"}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event %d: got %s, want %s", i, events[i].Type, want)
		}
		if events[i].ActorID != "tester" {
			t.Errorf("event %d actor: %s", i, events[i].ActorID)
		}
	}
}
