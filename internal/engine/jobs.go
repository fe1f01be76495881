package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitework/internal/domain"
	"sitework/internal/events"
	"sitework/internal/query"
	"sitework/internal/repo"
)

// JobInput carries job fields for create and update. Nil pointers are
// absent fields. Besides the current shape it accepts the older one:
// startDate/endDate aliases and the assignedHumans/assignedEquipment id
// lists, which normalization folds into the typed assignment list.
type JobInput struct {
	Title       *string
	Description *string
	TaskID      *string
	StartTime   *string
	EndTime     *string
	Status      *string

	Assigned []domain.Assignment

	StartDate         *string
	EndDate           *string
	AssignedHumans    []string
	AssignedEquipment []string
}

// statusLabels maps every accepted status spelling to its canonical
// value. Canonical values map to themselves so normalization is
// idempotent.
var statusLabels = map[string]string{
	domain.JobScheduled:  domain.JobScheduled,
	domain.JobInProgress: domain.JobInProgress,
	domain.JobDone:       domain.JobDone,
	domain.JobOnHold:     domain.JobOnHold,
	"Planifié":           domain.JobScheduled,
	"En cours":           domain.JobInProgress,
	"Terminé":            domain.JobDone,
	"Planning":           domain.JobScheduled,
	"In Progress":        domain.JobInProgress,
	"Completed":          domain.JobDone,
	"On Hold":            domain.JobOnHold,
}

// CanonicalStatus resolves a status label, canonical or legacy, to its
// canonical value.
func CanonicalStatus(label string) (string, bool) {
	s, ok := statusLabels[label]
	return s, ok
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// normalized returns a copy with the older field shapes folded into the
// current ones. Aliases only apply when the current field is absent.
func (in JobInput) normalized() JobInput {
	if in.StartTime == nil {
		in.StartTime = in.StartDate
	}
	if in.EndTime == nil {
		in.EndTime = in.EndDate
	}
	if in.Assigned == nil && (in.AssignedHumans != nil || in.AssignedEquipment != nil) {
		assigned := make([]domain.Assignment, 0, len(in.AssignedHumans)+len(in.AssignedEquipment))
		for _, id := range in.AssignedHumans {
			assigned = append(assigned, domain.Assignment{ResourceID: id, Type: domain.ResourceHuman})
		}
		for _, id := range in.AssignedEquipment {
			assigned = append(assigned, domain.Assignment{ResourceID: id, Type: domain.ResourceEquipment})
		}
		in.Assigned = assigned
	}
	return in
}

// PrepareCreate validates a job input and returns the draft that would be
// persisted. All field checks run; the returned FieldErrors carries one
// message per failing field.
func (e Engine) PrepareCreate(ctx context.Context, in JobInput) (domain.Job, error) {
	return e.prepare(ctx, in, true)
}

func (e Engine) prepare(ctx context.Context, in JobInput, verifyAssigned bool) (domain.Job, error) {
	in = in.normalized()
	errs := FieldErrors{}
	draft := domain.Job{Assigned: []domain.Assignment{}}

	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		errs["title"] = "Job title is required"
	} else {
		draft.Title = *in.Title
	}
	if in.Description != nil {
		draft.Description = *in.Description
	}

	if in.TaskID == nil || strings.TrimSpace(*in.TaskID) == "" {
		errs["taskId"] = "Task ID is required"
	} else {
		task, err := e.Repo.GetTask(ctx, *in.TaskID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			errs["taskId"] = "Invalid task ID"
		case err != nil:
			return domain.Job{}, err
		default:
			draft.TaskID = task.ID
			draft.TaskName = task.Title
		}
	}

	var start, end time.Time
	var haveStart, haveEnd bool
	if in.StartTime == nil || strings.TrimSpace(*in.StartTime) == "" {
		errs["startTime"] = "Start time is required"
	} else if t, err := parseTime(*in.StartTime); err != nil {
		errs["startTime"] = "Invalid start time"
	} else {
		start, haveStart = t, true
		draft.StartTime = t.UTC().Format(time.RFC3339)
	}
	if in.EndTime == nil || strings.TrimSpace(*in.EndTime) == "" {
		errs["endTime"] = "End time is required"
	} else if t, err := parseTime(*in.EndTime); err != nil {
		errs["endTime"] = "Invalid end time"
	} else {
		end, haveEnd = t, true
		draft.EndTime = t.UTC().Format(time.RFC3339)
	}
	if haveStart && haveEnd && !end.After(start) {
		errs["dateRange"] = "End time must be after start time"
	}

	if in.Status == nil || strings.TrimSpace(*in.Status) == "" {
		errs["status"] = "Status is required"
	} else if s, ok := CanonicalStatus(*in.Status); ok {
		draft.Status = s
	} else {
		errs["status"] = "Invalid status"
	}

	if len(in.Assigned) > 0 {
		msg, err := e.checkAssignments(ctx, in.Assigned, verifyAssigned)
		if err != nil {
			return domain.Job{}, err
		}
		if msg != "" {
			errs["assignedResources"] = msg
		} else {
			draft.Assigned = in.Assigned
		}
	}

	if len(errs) > 0 {
		return domain.Job{}, errs
	}
	return draft, nil
}

// checkAssignments verifies assignment shape and, when verify is set,
// that each referenced resource exists. Duplicate entries are allowed
// and each id is only reported once. A storage failure propagates as an
// error, never as a field message.
func (e Engine) checkAssignments(ctx context.Context, assigned []domain.Assignment, verify bool) (string, error) {
	var unknown []string
	seen := map[string]bool{}
	for _, a := range assigned {
		if strings.TrimSpace(a.ResourceID) == "" {
			return "Assignment resource ID is required", nil
		}
		if !domain.ValidResourceType(a.Type) {
			return "Assignment type must be Human or Equipment", nil
		}
		if !verify || seen[a.ResourceID] {
			continue
		}
		seen[a.ResourceID] = true
		ok, err := e.Repo.ResourceExists(ctx, a.ResourceID)
		if err != nil {
			return "", err
		}
		if !ok {
			unknown = append(unknown, a.ResourceID)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return "Unknown resource ID: " + strings.Join(unknown, ", "), nil
	}
	return "", nil
}

// PrepareUpdate merges a partial input over the stored job and validates
// the result, so an update that only moves endTime is checked against the
// stored startTime.
func (e Engine) PrepareUpdate(ctx context.Context, id string, in JobInput) (domain.Job, error) {
	existing, err := e.Repo.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	return e.mergeAndValidate(ctx, existing, in)
}

// mergeAndValidate fills absent input fields from the stored job before
// validation. Resource existence is only re-checked for an assignment
// list the caller actually sent: the stored list may reference resources
// deleted since the job was written, and a stale id there must not block
// updates to unrelated fields.
func (e Engine) mergeAndValidate(ctx context.Context, existing domain.Job, in JobInput) (domain.Job, error) {
	in = in.normalized()
	verifyAssigned := in.Assigned != nil
	if in.Title == nil {
		in.Title = &existing.Title
	}
	if in.Description == nil {
		in.Description = &existing.Description
	}
	if in.TaskID == nil {
		in.TaskID = &existing.TaskID
	}
	if in.StartTime == nil {
		in.StartTime = &existing.StartTime
	}
	if in.EndTime == nil {
		in.EndTime = &existing.EndTime
	}
	if in.Status == nil {
		in.Status = &existing.Status
	}
	if in.Assigned == nil {
		in.Assigned = existing.Assigned
	}
	draft, err := e.prepare(ctx, in, verifyAssigned)
	if err != nil {
		return domain.Job{}, err
	}
	draft.ID = existing.ID
	draft.CreatedAt = existing.CreatedAt
	return draft, nil
}

// CreateJob validates the input and persists the job with its assignment
// list, appending a job.created audit event in the same transaction.
func (e Engine) CreateJob(ctx context.Context, in JobInput, actorID string) (domain.Job, error) {
	job, err := e.PrepareCreate(ctx, in)
	if err != nil {
		return domain.Job{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertJob(ctx, tx, job); err != nil {
		return domain.Job{}, err
	}
	if err := e.Events.Append(ctx, tx, "job.created", "job", job.ID, actorID, events.EventPayload{"title": job.Title, "taskId": job.TaskID, "status": job.Status}); err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// UpdateJob merges, validates and replaces a stored job.
func (e Engine) UpdateJob(ctx context.Context, id string, in JobInput, actorID string) (domain.Job, error) {
	existing, err := e.Repo.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	job, err := e.mergeAndValidate(ctx, existing, in)
	if err != nil {
		return domain.Job{}, err
	}
	job.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.ReplaceJob(ctx, tx, job); err != nil {
		return domain.Job{}, err
	}
	payload := events.EventPayload{"status": job.Status}
	if existing.Status != job.Status {
		payload["previousStatus"] = existing.Status
	}
	if err := e.Events.Append(ctx, tx, "job.updated", "job", job.ID, actorID, payload); err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// ListJobs returns stored jobs newest first, narrowed by the query
// filters.
func (e Engine) ListJobs(ctx context.Context, status, search string) ([]domain.Job, error) {
	items, err := e.Repo.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	return query.FilterJobs(items, status, search), nil
}

// DeleteJob removes a job and its assignment rows.
func (e Engine) DeleteJob(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteJob(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "job.deleted", "job", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}
