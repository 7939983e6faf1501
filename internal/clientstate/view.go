package clientstate

import (
	"sort"

	"visibility-backend/internal/visibility"
)

// Providers lists the providers seen in the task grid, lexically ordered.
func (s State) Providers() []string {
	seen := make(map[string]struct{})
	for k := range s.Tasks {
		seen[k.Provider] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Tiles derives the display grid in prompt order × provider order. Combinations not yet
// seen in any event are shown as pending.
func (s State) Tiles() []TaskDisplayState {
	providers := s.Providers()
	out := make([]TaskDisplayState, 0, len(s.Prompts)*len(providers))
	for _, p := range s.Prompts {
		for _, provider := range providers {
			key := visibility.TaskKey{Prompt: p.Text, Provider: provider}
			if c, ok := s.Tasks[key]; ok {
				out = append(out, c)
				continue
			}
			out = append(out, TaskDisplayState{Prompt: p.Text, Provider: provider, Status: visibility.TaskPending})
		}
	}
	return out
}

// Counts tallies known tasks by status.
type Counts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Total is the number of counted tasks.
func (c Counts) Total() int {
	return c.Pending + c.Running + c.Completed + c.Failed + c.Skipped
}

// Counts tallies the task grid.
func (s State) Counts() Counts {
	var c Counts
	for _, t := range s.Tasks {
		switch t.Status {
		case visibility.TaskRunning:
			c.Running++
		case visibility.TaskCompleted:
			c.Completed++
		case visibility.TaskFailed:
			c.Failed++
		case visibility.TaskSkipped:
			c.Skipped++
		default:
			c.Pending++
		}
	}
	return c
}
