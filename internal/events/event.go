// Package events defines the progress event protocol carried from the orchestrator
// to a subscriber: eight payload kinds, their JSON envelope and SSE framing.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"visibility-backend/internal/visibility"
)

// Type names an event kind on the wire.
type Type string

const (
	TypeProgress         Type = "progress"
	TypeCompetitorFound  Type = "competitor-found"
	TypePromptGenerated  Type = "prompt-generated"
	TypeAnalysisStart    Type = "analysis-start"
	TypePartialResult    Type = "partial-result"
	TypeAnalysisComplete Type = "analysis-complete"
	TypeComplete         Type = "complete"
	TypeError            Type = "error"
)

// Stage is a coarse phase of a run.
type Stage string

const (
	StageInitializing           Stage = "initializing"
	StageIdentifyingCompetitors Stage = "identifying-competitors"
	StageGeneratingPrompts      Stage = "generating-prompts"
	StageAnalyzing              Stage = "analyzing"
	StageFinalizing             Stage = "finalizing"
)

// Rank orders stages; unknown stages rank lowest.
func (s Stage) Rank() int {
	switch s {
	case StageInitializing:
		return 1
	case StageIdentifyingCompetitors:
		return 2
	case StageGeneratingPrompts:
		return 3
	case StageAnalyzing:
		return 4
	case StageFinalizing:
		return 5
	default:
		return 0
	}
}

// ErrUnknownType is returned when decoding an event kind this version does not know.
var ErrUnknownType = errors.New("unknown event type")

// Payload is the closed set of event bodies. Implementations live in this package only.
type Payload interface {
	Type() Type
	accept(Visitor)
}

// Visitor handles every payload kind. Adding a kind adds a method here, so every
// consumer fails to compile until it handles the new kind.
type Visitor interface {
	Progress(Progress)
	CompetitorFound(CompetitorFound)
	PromptGenerated(PromptGenerated)
	AnalysisStart(AnalysisStart)
	PartialResult(PartialResult)
	AnalysisComplete(AnalysisComplete)
	Complete(Complete)
	Error(Error)
}

// Progress reports coarse run progress for display only.
type Progress struct {
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	RunID    string `json:"runId,omitempty"`
}

// CompetitorFound announces a competitor discovered during the run.
type CompetitorFound struct {
	Competitor visibility.Competitor `json:"competitor"`
	Index      int                   `json:"index"`
}

// PromptGenerated announces a prompt added to the grid.
type PromptGenerated struct {
	Prompt string `json:"prompt"`
	Index  int    `json:"index"`
}

// AnalysisStart is sent immediately before a task is dispatched.
type AnalysisStart struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
}

// PartialResult carries the extraction for one completed task.
type PartialResult struct {
	Prompt   string                `json:"prompt"`
	Provider string                `json:"provider"`
	Response visibility.TaskResult `json:"response"`
}

// AnalysisComplete closes one task's lifecycle.
type AnalysisComplete struct {
	Prompt    string                `json:"prompt"`
	Provider  string                `json:"provider"`
	Status    visibility.TaskStatus `json:"status"`
	Error     string                `json:"error,omitempty"`
	ErrorCode string                `json:"errorCode,omitempty"`
}

// Complete is the successful terminal event.
type Complete struct {
	Analysis visibility.AggregatedPayload `json:"analysis"`
}

// Error is the failing terminal event.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (Progress) Type() Type         { return TypeProgress }
func (CompetitorFound) Type() Type  { return TypeCompetitorFound }
func (PromptGenerated) Type() Type  { return TypePromptGenerated }
func (AnalysisStart) Type() Type    { return TypeAnalysisStart }
func (PartialResult) Type() Type    { return TypePartialResult }
func (AnalysisComplete) Type() Type { return TypeAnalysisComplete }
func (Complete) Type() Type         { return TypeComplete }
func (Error) Type() Type            { return TypeError }

func (p Progress) accept(v Visitor)         { v.Progress(p) }
func (p CompetitorFound) accept(v Visitor)  { v.CompetitorFound(p) }
func (p PromptGenerated) accept(v Visitor)  { v.PromptGenerated(p) }
func (p AnalysisStart) accept(v Visitor)    { v.AnalysisStart(p) }
func (p PartialResult) accept(v Visitor)    { v.PartialResult(p) }
func (p AnalysisComplete) accept(v Visitor) { v.AnalysisComplete(p) }
func (p Complete) accept(v Visitor)         { v.Complete(p) }
func (p Error) accept(v Visitor)            { v.Error(p) }

// Key returns the task key an event refers to, if any.
func (p AnalysisStart) Key() visibility.TaskKey {
	return visibility.TaskKey{Prompt: p.Prompt, Provider: p.Provider}
}

func (p PartialResult) Key() visibility.TaskKey {
	return visibility.TaskKey{Prompt: p.Prompt, Provider: p.Provider}
}

func (p AnalysisComplete) Key() visibility.TaskKey {
	return visibility.TaskKey{Prompt: p.Prompt, Provider: p.Provider}
}

// Event is one frame of the stream.
type Event struct {
	Type      Type      `json:"type"`
	Stage     Stage     `json:"stage"`
	Data      Payload   `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// New stamps a payload with its type, the stage and the current time.
func New(stage Stage, data Payload) Event {
	return Event{
		Type:      data.Type(),
		Stage:     stage,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Accept dispatches the payload to the matching visitor method.
func (e Event) Accept(v Visitor) {
	if e.Data != nil {
		e.Data.accept(v)
	}
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

type envelope struct {
	Type      Type            `json:"type"`
	Stage     Stage           `json:"stage"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarshalJSON writes the envelope, deriving the type from the payload.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Data == nil {
		return nil, errors.New("event has no payload")
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Data.Type(), err)
	}
	return json.Marshal(envelope{
		Type:      e.Data.Type(),
		Stage:     e.Stage,
		Data:      data,
		Timestamp: e.Timestamp,
	})
}

// UnmarshalJSON decodes the envelope into the concrete payload for its type.
func (e *Event) UnmarshalJSON(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	payload, err := decodePayload(env.Type, env.Data)
	if err != nil {
		return err
	}
	*e = Event{Type: env.Type, Stage: env.Stage, Data: payload, Timestamp: env.Timestamp}
	return nil
}

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	switch t {
	case TypeProgress:
		return decodeAs[Progress](raw)
	case TypeCompetitorFound:
		return decodeAs[CompetitorFound](raw)
	case TypePromptGenerated:
		return decodeAs[PromptGenerated](raw)
	case TypeAnalysisStart:
		return decodeAs[AnalysisStart](raw)
	case TypePartialResult:
		return decodeAs[PartialResult](raw)
	case TypeAnalysisComplete:
		return decodeAs[AnalysisComplete](raw)
	case TypeComplete:
		return decodeAs[Complete](raw)
	case TypeError:
		return decodeAs[Error](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", p.Type(), err)
	}
	return p, nil
}
