package engine

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitework/internal/config"
	"sitework/internal/domain"
	"sitework/internal/events"
	"sitework/internal/query"
	"sitework/internal/repo"
)

// Engine is the single validation and assignment entry point: every write
// to jobs or resources goes through it, so all callers share one set of
// invariants.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// FieldErrors reports validation failures keyed by input field. Checks
// accumulate: a request missing several fields gets one message per field,
// never just the first.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	if len(fe) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return strings.Join(parts, "; ")
}

// ResourceInput carries resource fields for create and update. Nil fields
// are absent; on update they keep the stored value.
type ResourceInput struct {
	Name         *string
	Type         *string
	Role         *string
	Availability *bool
}

// CreateResource validates and persists a new resource. Availability
// defaults to true when not supplied.
func (e Engine) CreateResource(ctx context.Context, in ResourceInput, actorID string) (domain.Resource, error) {
	errs := FieldErrors{}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		errs["name"] = "Resource name is required"
	}
	if in.Type == nil || !domain.ValidResourceType(*in.Type) {
		errs["type"] = "Type must be Human or Equipment"
	}
	if len(errs) > 0 {
		return domain.Resource{}, errs
	}
	now := e.now().UTC().Format(time.RFC3339)
	res := domain.Resource{
		ID:           uuid.New().String(),
		Type:         *in.Type,
		Name:         strings.TrimSpace(*in.Name),
		Availability: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Role != nil {
		res.Role = strings.TrimSpace(*in.Role)
	}
	if in.Availability != nil {
		res.Availability = *in.Availability
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Resource{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertResource(ctx, tx, res); err != nil {
		return domain.Resource{}, err
	}
	if err := e.Events.Append(ctx, tx, "resource.created", "resource", res.ID, actorID, events.EventPayload{"type": res.Type, "name": res.Name}); err != nil {
		return domain.Resource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Resource{}, err
	}
	return res, nil
}

// UpdateResource applies a partial update. Unsupplied fields keep their
// stored values; the resource type is immutable.
func (e Engine) UpdateResource(ctx context.Context, id string, in ResourceInput, actorID string) (domain.Resource, error) {
	existing, err := e.Repo.GetResource(ctx, id)
	if err != nil {
		return domain.Resource{}, err
	}
	errs := FieldErrors{}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		errs["name"] = "Resource name is required"
	}
	if in.Type != nil && *in.Type != existing.Type {
		errs["type"] = "Resource type cannot be changed"
	}
	if len(errs) > 0 {
		return domain.Resource{}, errs
	}
	u := repo.ResourceUpdate{
		Role:         in.Role,
		Availability: in.Availability,
		UpdatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		u.Name = &trimmed
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Resource{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateResource(ctx, tx, id, u); err != nil {
		return domain.Resource{}, err
	}
	if err := e.Events.Append(ctx, tx, "resource.updated", "resource", id, actorID, events.EventPayload{}); err != nil {
		return domain.Resource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Resource{}, err
	}
	return e.Repo.GetResource(ctx, id)
}

// ListResources returns stored resources newest first. The type filter
// is pushed down to the store; search narrows the result in memory.
func (e Engine) ListResources(ctx context.Context, rtype, search string) ([]domain.Resource, error) {
	items, err := e.Repo.ListResources(ctx, rtype)
	if err != nil {
		return nil, err
	}
	return query.FilterResources(items, "", search), nil
}

// DeleteResource removes a resource by id. Jobs that reference it keep
// their assignment entries; those ids simply stop resolving.
func (e Engine) DeleteResource(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteResource(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "resource.deleted", "resource", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// SyncTaskCatalog upserts the configured task catalog into the tasks
// table. Sync is additive so jobs linked to removed entries keep
// resolving.
func (e Engine) SyncTaskCatalog(ctx context.Context, actorID string) error {
	if e.Config == nil || len(e.Config.Tasks) == 0 {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, t := range e.Config.Tasks {
		if err := e.Repo.UpsertTask(ctx, tx, domain.Task{ID: t.ID, Title: t.Title, Project: t.Project}); err != nil {
			return err
		}
	}
	if err := e.Events.Append(ctx, tx, "task.catalog.synced", "task", "", actorID, events.EventPayload{"count": len(e.Config.Tasks)}); err != nil {
		return err
	}
	return tx.Commit()
}
