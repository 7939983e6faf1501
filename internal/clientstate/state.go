// Package clientstate rebuilds the task grid a client displays from the progress event
// stream. Apply is a pure function: it never mutates the prior state, and the result does
// not depend on how events for different tasks were interleaved.
package clientstate

import (
	"sort"

	"visibility-backend/internal/events"
	"visibility-backend/internal/visibility"
)

// TaskDisplayState is what the client knows about one grid cell.
type TaskDisplayState struct {
	Prompt    string                 `json:"prompt"`
	Provider  string                 `json:"provider"`
	Status    visibility.TaskStatus  `json:"status"`
	Result    *visibility.TaskResult `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorCode string                 `json:"errorCode,omitempty"`
}

// PromptEntry is a prompt in the ordered prompt set. Index is -1 until a prompt-generated
// event reports it.
type PromptEntry struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// CompetitorEntry is a competitor in the ordered competitor set.
type CompetitorEntry struct {
	Competitor visibility.Competitor `json:"competitor"`
	Index      int                   `json:"index"`
}

// State is the reconstructed client view of one run. Treat it as a value: Apply returns a
// new State and leaves its argument untouched.
type State struct {
	Tasks        map[visibility.TaskKey]TaskDisplayState `json:"tasks"`
	Prompts      []PromptEntry                           `json:"prompts"`
	Competitors  []CompetitorEntry                       `json:"competitors"`
	FinalResult  *visibility.AggregatedPayload           `json:"finalResult,omitempty"`
	ErrorMessage string                                  `json:"errorMessage,omitempty"`
	ErrorCode    string                                  `json:"errorCode,omitempty"`
	Stage        events.Stage                            `json:"stage,omitempty"`
	Progress     int                                     `json:"progress"`
	Message      string                                  `json:"message,omitempty"`
	RunID        string                                  `json:"runId,omitempty"`
}

// Halted reports whether an error event ended the run.
func (s State) Halted() bool {
	return s.ErrorMessage != ""
}

// Done reports whether a terminal event has been applied.
func (s State) Done() bool {
	return s.Halted() || s.FinalResult != nil
}

// Apply folds one event into prior and returns the new state.
func Apply(prior State, ev events.Event) State {
	if prior.Halted() || ev.Data == nil {
		return prior
	}
	next := prior.clone()
	next.observeStage(ev.Stage)
	ev.Accept(&applier{s: &next})
	return next
}

// Fold applies events in order starting from the empty state.
func Fold(evs ...events.Event) State {
	var s State
	for _, ev := range evs {
		s = Apply(s, ev)
	}
	return s
}

func (s State) clone() State {
	out := s
	out.Tasks = make(map[visibility.TaskKey]TaskDisplayState, len(s.Tasks)+1)
	for k, v := range s.Tasks {
		out.Tasks[k] = v
	}
	out.Prompts = append([]PromptEntry(nil), s.Prompts...)
	out.Competitors = append([]CompetitorEntry(nil), s.Competitors...)
	return out
}

func (s *State) observeStage(stage events.Stage) {
	if stage.Rank() > s.Stage.Rank() {
		s.Stage = stage
	}
}

// cell returns the display state for key, synthesizing a pending cell when unknown.
func (s *State) cell(key visibility.TaskKey) TaskDisplayState {
	if c, ok := s.Tasks[key]; ok {
		return c
	}
	s.addPrompt(key.Prompt, -1)
	return TaskDisplayState{Prompt: key.Prompt, Provider: key.Provider, Status: visibility.TaskPending}
}

func (s *State) addPrompt(text string, index int) {
	for i, p := range s.Prompts {
		if p.Text != text {
			continue
		}
		if index >= 0 && (p.Index < 0 || index < p.Index) {
			s.Prompts[i].Index = index
			sortPrompts(s.Prompts)
		}
		return
	}
	s.Prompts = append(s.Prompts, PromptEntry{Text: text, Index: index})
	sortPrompts(s.Prompts)
}

func (s *State) addCompetitor(c visibility.Competitor, index int) {
	norm := visibility.NormalizeName(c.Name)
	for i, existing := range s.Competitors {
		if visibility.NormalizeName(existing.Competitor.Name) != norm {
			continue
		}
		if index < existing.Index || (index == existing.Index && less(c, existing.Competitor)) {
			s.Competitors[i] = CompetitorEntry{Competitor: c, Index: index}
			sortCompetitors(s.Competitors)
		}
		return
	}
	s.Competitors = append(s.Competitors, CompetitorEntry{Competitor: c, Index: index})
	sortCompetitors(s.Competitors)
}

func less(a, b visibility.Competitor) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.URL < b.URL
}

func sortPrompts(list []PromptEntry) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch {
		case a.Index >= 0 && b.Index >= 0 && a.Index != b.Index:
			return a.Index < b.Index
		case a.Index >= 0 && b.Index < 0:
			return true
		case a.Index < 0 && b.Index >= 0:
			return false
		}
		return a.Text < b.Text
	})
}

func sortCompetitors(list []CompetitorEntry) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Index != list[j].Index {
			return list[i].Index < list[j].Index
		}
		return less(list[i].Competitor, list[j].Competitor)
	})
}

type applier struct {
	s *State
}

func (a *applier) Progress(p events.Progress) {
	s := a.s
	if p.RunID != "" {
		s.RunID = p.RunID
	}
	switch {
	case p.Progress > s.Progress:
		s.Progress = p.Progress
		s.Message = p.Message
	case p.Progress == s.Progress && p.Message > s.Message:
		s.Message = p.Message
	}
}

func (a *applier) CompetitorFound(p events.CompetitorFound) {
	if p.Competitor.Name == "" {
		return
	}
	a.s.addCompetitor(p.Competitor, p.Index)
}

func (a *applier) PromptGenerated(p events.PromptGenerated) {
	if p.Prompt == "" {
		return
	}
	index := p.Index
	if index < 0 {
		index = -1
	}
	a.s.addPrompt(p.Prompt, index)
}

func (a *applier) AnalysisStart(p events.AnalysisStart) {
	key := p.Key()
	c := a.s.cell(key)
	if c.Status.Rank() < visibility.TaskRunning.Rank() {
		c.Status = visibility.TaskRunning
	}
	a.s.Tasks[key] = c
}

func (a *applier) PartialResult(p events.PartialResult) {
	key := p.Key()
	c := a.s.cell(key)
	res := p.Response
	c.Result = &res
	if !c.Status.Terminal() {
		c.Status = visibility.TaskCompleted
	}
	a.s.Tasks[key] = c
}

func (a *applier) AnalysisComplete(p events.AnalysisComplete) {
	key := p.Key()
	c := a.s.cell(key)
	status := p.Status
	if !status.Terminal() {
		status = visibility.TaskFailed
	}
	if !c.Status.Terminal() {
		c.Status = status
	}
	if status != visibility.TaskCompleted {
		c.Error = p.Error
		c.ErrorCode = p.ErrorCode
	}
	a.s.Tasks[key] = c
}

func (a *applier) Complete(p events.Complete) {
	payload := p.Analysis
	a.s.FinalResult = &payload
	if a.s.Progress < 100 {
		a.s.Progress = 100
	}
}

func (a *applier) Error(p events.Error) {
	msg := p.Message
	if msg == "" {
		msg = "analysis failed"
	}
	a.s.ErrorMessage = msg
	a.s.ErrorCode = p.Code
}

var _ events.Visitor = (*applier)(nil)
