package server

import (
	"encoding/json"

	"sitework/internal/domain"
	"sitework/internal/engine"
)

// AssignmentRequest is one entry of a job's assignedResources list.
type AssignmentRequest struct {
	ResourceID string `json:"resourceId" example:"7f9c61a2-0a47-4c39-b2de-5a1df0f0b929"`
	Type       string `json:"type" enum:"Human,Equipment"`
}

// JobRequest is the write payload for jobs. Every field is optional so
// the same shape serves create and partial update; create rejects
// missing required fields with one message per field. The older client
// shape is accepted too: startDate/endDate and the assignedHumans /
// assignedEquipment id lists.
type JobRequest struct {
	Title             *string             `json:"title,omitempty" example:"Pour foundation slab"`
	Description       *string             `json:"description,omitempty"`
	TaskID            *string             `json:"taskId,omitempty" example:"task-foundations"`
	StartTime         *string             `json:"startTime,omitempty" example:"2026-03-02T07:30:00Z"`
	EndTime           *string             `json:"endTime,omitempty" example:"2026-03-02T16:00:00Z"`
	Status            *string             `json:"status,omitempty" example:"scheduled"`
	AssignedResources []AssignmentRequest `json:"assignedResources,omitempty"`

	StartDate         *string  `json:"startDate,omitempty"`
	EndDate           *string  `json:"endDate,omitempty"`
	AssignedHumans    []string `json:"assignedHumans,omitempty"`
	AssignedEquipment []string `json:"assignedEquipment,omitempty"`
}

func (r JobRequest) input() engine.JobInput {
	in := engine.JobInput{
		Title:             r.Title,
		Description:       r.Description,
		TaskID:            r.TaskID,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		Status:            r.Status,
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
		AssignedHumans:    r.AssignedHumans,
		AssignedEquipment: r.AssignedEquipment,
	}
	if r.AssignedResources != nil {
		in.Assigned = make([]domain.Assignment, 0, len(r.AssignedResources))
		for _, a := range r.AssignedResources {
			in.Assigned = append(in.Assigned, domain.Assignment{ResourceID: a.ResourceID, Type: a.Type})
		}
	}
	return in
}

// ResourceRequest is the write payload for resources.
type ResourceRequest struct {
	Name         *string `json:"name,omitempty" example:"Tower crane TC-5"`
	Type         *string `json:"type,omitempty" enum:"Human,Equipment"`
	Role         *string `json:"role,omitempty" example:"Crane operator"`
	Availability *bool   `json:"availability,omitempty"`
}

func (r ResourceRequest) input() engine.ResourceInput {
	return engine.ResourceInput{
		Name:         r.Name,
		Type:         r.Type,
		Role:         r.Role,
		Availability: r.Availability,
	}
}

// JobResponse mirrors a stored job. assignedResources is always present,
// empty when nothing is assigned.
type JobResponse struct {
	ID                string              `json:"id"`
	TaskID            string              `json:"taskId"`
	TaskName          string              `json:"taskName"`
	Title             string              `json:"title"`
	Description       string              `json:"description,omitempty"`
	StartTime         string              `json:"startTime"`
	EndTime           string              `json:"endTime"`
	Status            string              `json:"status"`
	AssignedResources []AssignmentRequest `json:"assignedResources"`
	CreatedAt         string              `json:"createdAt"`
	UpdatedAt         string              `json:"updatedAt"`
}

func jobResponse(j domain.Job) JobResponse {
	assigned := make([]AssignmentRequest, 0, len(j.Assigned))
	for _, a := range j.Assigned {
		assigned = append(assigned, AssignmentRequest{ResourceID: a.ResourceID, Type: a.Type})
	}
	return JobResponse{
		ID:                j.ID,
		TaskID:            j.TaskID,
		TaskName:          j.TaskName,
		Title:             j.Title,
		Description:       j.Description,
		StartTime:         j.StartTime,
		EndTime:           j.EndTime,
		Status:            j.Status,
		AssignedResources: assigned,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
	}
}

func mapJobs(items []domain.Job) []JobResponse {
	out := make([]JobResponse, 0, len(items))
	for _, j := range items {
		out = append(out, jobResponse(j))
	}
	return out
}

type ResourceResponse struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	Role         string `json:"role,omitempty"`
	Availability bool   `json:"availability"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

func resourceResponse(r domain.Resource) ResourceResponse {
	return ResourceResponse{
		ID:           r.ID,
		Type:         r.Type,
		Name:         r.Name,
		Role:         r.Role,
		Availability: r.Availability,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func mapResources(items []domain.Resource) []ResourceResponse {
	out := make([]ResourceResponse, 0, len(items))
	for _, r := range items {
		out = append(out, resourceResponse(r))
	}
	return out
}

type TaskResponse struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Project string `json:"project,omitempty"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{ID: t.ID, Title: t.Title, Project: t.Project}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId,omitempty"`
	ActorID    string         `json:"actorId,omitempty"`
	Payload    map[string]any `json:"payload,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

func eventResponse(e domain.Event) EventResponse {
	out := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
	}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &out.Payload)
	}
	return out
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse(e))
	}
	return out
}
