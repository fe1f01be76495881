package domain

// Resource types.
const (
	ResourceHuman     = "Human"
	ResourceEquipment = "Equipment"
)

// Canonical job statuses. The HTTP boundary also accepts the labels used
// by earlier generations of the API ("Planning", "Planifié", ...) and maps
// them onto these values before anything else sees them.
const (
	JobScheduled  = "scheduled"
	JobInProgress = "in_progress"
	JobDone       = "done"
	JobOnHold     = "on_hold"
)

type Resource struct {
	ID           string `json:"id"`
	Type         string `json:"type" enum:"Human,Equipment"`
	Name         string `json:"name"`
	Role         string `json:"role,omitempty"`
	Availability bool   `json:"availability"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

// Task is an externally managed catalog entry. This service only reads
// tasks; the catalog is authored in sitework.yml and synced at startup.
type Task struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Project string `json:"project,omitempty"`
}

// Assignment links a job to one resource. The referenced resource may no
// longer exist: resources can be deleted after the assignment was made and
// nothing cascades, so consumers must tolerate ids that do not resolve.
type Assignment struct {
	ResourceID string `json:"resource_id"`
	Type       string `json:"type" enum:"Human,Equipment"`
}

type Job struct {
	ID          string       `json:"id"`
	TaskID      string       `json:"task_id"`
	TaskName    string       `json:"task_name,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	StartTime   string       `json:"start_time" format:"date-time"`
	EndTime     string       `json:"end_time" format:"date-time"`
	Status      string       `json:"status" enum:"scheduled,in_progress,done,on_hold"`
	Assigned    []Assignment `json:"assigned_resources"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
	UpdatedAt   string       `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ValidResourceType reports whether t is a known resource type.
func ValidResourceType(t string) bool {
	return t == ResourceHuman || t == ResourceEquipment
}

// ValidJobStatus reports whether s is a canonical job status.
func ValidJobStatus(s string) bool {
	switch s {
	case JobScheduled, JobInProgress, JobDone, JobOnHold:
		return true
	}
	return false
}
