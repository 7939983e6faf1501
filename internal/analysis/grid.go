package analysis

import (
	"visibility-backend/internal/visibility"
)

// grid is the task set of one run in prompt-major order. Only the run goroutine
// appends; each task goroutine writes only its own cell, so cells need no lock.
type grid struct {
	providers []string
	prompts   []string
	tasks     []*visibility.Task
}

func newGrid(providers []string) *grid {
	return &grid{providers: append([]string(nil), providers...)}
}

// Append adds one pending task per provider for prompt and returns them.
func (g *grid) Append(prompt string) []*visibility.Task {
	index := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	added := make([]*visibility.Task, 0, len(g.providers))
	for _, provider := range g.providers {
		t := &visibility.Task{
			Key:         visibility.TaskKey{Prompt: prompt, Provider: provider},
			PromptIndex: index,
			Status:      visibility.TaskPending,
		}
		g.tasks = append(g.tasks, t)
		added = append(added, t)
	}
	return added
}

// Len is the number of tasks appended so far.
func (g *grid) Len() int { return len(g.tasks) }

// Prompts lists prompts in the order they were appended.
func (g *grid) Prompts() []string { return append([]string(nil), g.prompts...) }

// Snapshot copies every task. Call only after all task goroutines have returned.
func (g *grid) Snapshot() []visibility.Task {
	out := make([]visibility.Task, len(g.tasks))
	for i, t := range g.tasks {
		out[i] = *t
	}
	return out
}
