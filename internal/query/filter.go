// Package query filters job and resource lists in memory. Filters are
// pure and order preserving: they never mutate their input and returned
// slices keep the input ordering.
package query

import (
	"strings"

	"sitework/internal/domain"
)

// FilterJobs returns the jobs matching the given criteria. An empty
// status matches every status; an empty search matches every job. Both
// criteria must hold for a job to pass. Status comparison is exact;
// search is a case-insensitive substring match over title and
// description.
func FilterJobs(jobs []domain.Job, status, search string) []domain.Job {
	out := make([]domain.Job, 0, len(jobs))
	needle := strings.ToLower(search)
	for _, j := range jobs {
		if status != "" && j.Status != status {
			continue
		}
		if needle != "" && !matches(needle, j.Title, j.Description) {
			continue
		}
		out = append(out, j)
	}
	return out
}

// FilterResources returns the resources matching the given criteria. Type
// comparison is case-insensitive; search covers name and role.
func FilterResources(resources []domain.Resource, rtype, search string) []domain.Resource {
	out := make([]domain.Resource, 0, len(resources))
	needle := strings.ToLower(search)
	for _, r := range resources {
		if rtype != "" && !strings.EqualFold(r.Type, rtype) {
			continue
		}
		if needle != "" && !matches(needle, r.Name, r.Role) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matches(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
