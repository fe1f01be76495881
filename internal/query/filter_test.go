package query

import (
	"testing"

	"sitework/internal/domain"
)

func jobList() []domain.Job {
	return []domain.Job{
		{ID: "j1", Title: "Pour foundation slab", Description: "Zone A concrete pour", Status: domain.JobScheduled},
		{ID: "j2", Title: "Erect scaffolding", Description: "North face", Status: domain.JobInProgress},
		{ID: "j3", Title: "Concrete curing check", Description: "", Status: domain.JobInProgress},
		{ID: "j4", Title: "Site cleanup", Description: "Final pass", Status: domain.JobDone},
	}
}

func ids(jobs []domain.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}

func TestFilterJobs(t *testing.T) {
	cases := []struct {
		name   string
		status string
		search string
		want   []string
	}{
		{"no filters", "", "", []string{"j1", "j2", "j3", "j4"}},
		{"by status", "in_progress", "", []string{"j2", "j3"}},
		{"status is exact", "In Progress", "", nil},
		{"search title", "", "scaffolding", []string{"j2"}},
		{"search is case-insensitive", "", "CONCRETE", []string{"j1", "j3"}},
		{"search covers description", "", "zone a", []string{"j1"}},
		{"status and search combine", "in_progress", "concrete", []string{"j3"}},
		{"no match", "done", "scaffolding", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(FilterJobs(jobList(), tc.status, tc.search))
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestFilterJobsDoesNotMutateInput(t *testing.T) {
	jobs := jobList()
	FilterJobs(jobs, "done", "cleanup")
	if jobs[0].ID != "j1" || len(jobs) != 4 {
		t.Fatal("input slice changed")
	}
}

func TestFilterResources(t *testing.T) {
	resources := []domain.Resource{
		{ID: "r1", Type: domain.ResourceHuman, Name: "Jean Dupont", Role: "Crane operator"},
		{ID: "r2", Type: domain.ResourceEquipment, Name: "Tower crane TC-5"},
		{ID: "r3", Type: domain.ResourceHuman, Name: "Aline Besse", Role: "Site engineer"},
	}
	cases := []struct {
		name   string
		rtype  string
		search string
		want   []string
	}{
		{"by type", "Human", "", []string{"r1", "r3"}},
		{"type ignores case", "equipment", "", []string{"r2"}},
		{"search covers role", "", "engineer", []string{"r3"}},
		{"search covers name", "", "crane tc", []string{"r2"}},
		{"type and search combine", "Human", "crane", []string{"r1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FilterResources(resources, tc.rtype, tc.search)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d results, want %v", len(got), tc.want)
			}
			for i := range got {
				if got[i].ID != tc.want[i] {
					t.Fatalf("got %s at %d, want %v", got[i].ID, i, tc.want)
				}
			}
		})
	}
}
