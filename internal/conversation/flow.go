package conversation

import (
	"context"
	"time"

	"chatagent/internal/domain"

	"github.com/google/uuid"
)

// Kind identifies a multi-step dialogue
type Kind int

const (
	KindLogin Kind = iota + 1
	KindSettings
	KindBatch
	KindBroadcast
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindSettings:
		return "settings"
	case KindBatch:
		return "batch"
	case KindBroadcast:
		return "broadcast"
	}
	return "unknown"
}

// Setting selects a settings sub-flow
type Setting int

const (
	SettingNone Setting = iota
	SettingChangeThumbnail
	SettingReplaceWord
	SettingDeleteWord
)

func (s Setting) String() string {
	switch s {
	case SettingChangeThumbnail:
		return "change_thumb"
	case SettingReplaceWord:
		return "replace_word"
	case SettingDeleteWord:
		return "delete_word"
	}
	return "none"
}

// Phase is the current step within a flow
type Phase int

const (
	PhaseAwaitingPhone Phase = iota
	PhaseAwaitingCode
	PhaseAwaitingThumbnail
	PhaseAwaitingReplacement
	PhaseAwaitingDeletion
	PhaseAwaitingLinks
	PhaseAwaitingBroadcastText

	phaseCount
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingPhone:
		return "awaiting_phone"
	case PhaseAwaitingCode:
		return "awaiting_code"
	case PhaseAwaitingThumbnail:
		return "awaiting_thumbnail"
	case PhaseAwaitingReplacement:
		return "awaiting_replacement"
	case PhaseAwaitingDeletion:
		return "awaiting_deletion"
	case PhaseAwaitingLinks:
		return "awaiting_links"
	case PhaseAwaitingBroadcastText:
		return "awaiting_broadcast_text"
	}
	return "unknown"
}

// Phases returns every phase a flow can be in
func Phases() []Phase {
	phases := make([]Phase, 0, phaseCount)
	for p := Phase(0); p < phaseCount; p++ {
		phases = append(phases, p)
	}
	return phases
}

// initialPhase returns the first phase of a flow kind
func initialPhase(kind Kind, setting Setting) (Phase, bool) {
	switch kind {
	case KindLogin:
		return PhaseAwaitingPhone, true
	case KindSettings:
		switch setting {
		case SettingChangeThumbnail:
			return PhaseAwaitingThumbnail, true
		case SettingReplaceWord:
			return PhaseAwaitingReplacement, true
		case SettingDeleteWord:
			return PhaseAwaitingDeletion, true
		}
	case KindBatch:
		return PhaseAwaitingLinks, true
	case KindBroadcast:
		return PhaseAwaitingBroadcastText, true
	}
	return 0, false
}

// Credentials hold the transient login state. They never leave the flow.
type Credentials struct {
	Phone      string
	CodeHandle string
}

// Flow is a snapshot of one user's active dialogue
type Flow struct {
	ID          uuid.UUID
	User        int64
	Chat        int64
	Kind        Kind
	Setting     Setting
	Phase       Phase
	Credentials *Credentials
	StartedAt   time.Time
	Deadline    time.Time
}

// Params describe a flow being started
type Params struct {
	Chat    int64
	Setting Setting
}

// Input is one inbound message routed to a flow
type Input struct {
	Chat      int64
	MessageID int
	Text      string
	PhotoID   string
	Sender    domain.UserProfile
}

// Action is the transition requested by a step
type Action int

const (
	ActionAdvance Action = iota + 1
	ActionComplete
	ActionAbort
)

// Step is the result of a step function
type Step struct {
	Action      Action
	Phase       Phase
	Credentials *Credentials
	Reason      string
}

// Advance moves the flow to the next phase
func Advance(phase Phase) Step {
	return Step{Action: ActionAdvance, Phase: phase}
}

// AdvanceWith moves the flow to the next phase and replaces its credentials
func AdvanceWith(phase Phase, creds *Credentials) Step {
	return Step{Action: ActionAdvance, Phase: phase, Credentials: creds}
}

// Complete ends the flow successfully
func Complete() Step {
	return Step{Action: ActionComplete}
}

// Abort ends the flow with a reason
func Abort(reason string) Step {
	return Step{Action: ActionAbort, Reason: reason}
}

// StepFunc consumes one input for the flow's current phase
type StepFunc func(ctx context.Context, flow Flow, in Input) Step

// Steps is the dispatch table indexed by phase
type Steps [phaseCount]StepFunc
