package conversation

import (
	"slices"

	"regbot/internal/domain"
)

// EventKind tags an inbound event.
type EventKind int

const (
	EventStart EventKind = iota + 1
	EventText
	EventChoice
	EventCancel
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventText:
		return "text"
	case EventChoice:
		return "choice"
	case EventCancel:
		return "cancel"
	}
	return "unknown"
}

// Event is one inbound user action.
type Event struct {
	Kind  EventKind
	Value string
}

func Start() Event              { return Event{Kind: EventStart} }
func Cancel() Event             { return Event{Kind: EventCancel} }
func Text(content string) Event { return Event{Kind: EventText, Value: content} }
func Choice(value string) Event { return Event{Kind: EventChoice, Value: value} }

// ReplyKind selects how a reply is rendered by the transport.
type ReplyKind int

const (
	ReplyPrompt ReplyKind = iota + 1
	ReplyChoices
	ReplyNotify
)

// Reply is an outbound message produced by a transition.
type Reply struct {
	Kind    ReplyKind
	Text    string
	Options []string
}

// Action is the side effect the controller has to carry out for a step.
type Action int

const (
	ActionIgnore Action = iota
	ActionStart
	ActionAdvance
	ActionPersist
	ActionCancel
)

// Step is the result of applying an event to a state.
type Step struct {
	Action  Action
	Next    domain.State
	Field   string
	Value   string
	Replies []Reply
}

// Transition computes the next state and side effects for ev. It has no
// side effects of its own; rejected events yield ActionIgnore with the
// state unchanged.
func Transition(state domain.State, ev Event, platforms []string, texts Texts) Step {
	ignore := Step{Action: ActionIgnore, Next: state}

	if ev.Kind == EventStart {
		return Step{
			Action:  ActionStart,
			Next:    domain.StateAwaitFirstName,
			Replies: []Reply{{Kind: ReplyPrompt, Text: texts.Welcome}},
		}
	}

	if !state.Awaiting() {
		return ignore
	}

	switch ev.Kind {
	case EventCancel:
		return Step{
			Action:  ActionCancel,
			Next:    domain.StateInactive,
			Replies: []Reply{{Kind: ReplyNotify, Text: texts.Cancelled}},
		}

	case EventChoice:
		if state != domain.StateAwaitSocialChoice || !slices.Contains(platforms, ev.Value) {
			return ignore
		}
		return Step{
			Action:  ActionAdvance,
			Next:    state.Next(),
			Field:   state.Field(),
			Value:   ev.Value,
			Replies: []Reply{{Kind: ReplyPrompt, Text: texts.confirmChoice(ev.Value)}},
		}

	case EventText:
		if state == domain.StateAwaitSocialChoice || ev.Value == "" {
			return ignore
		}
		next := state.Next()
		step := Step{
			Action: ActionAdvance,
			Next:   next,
			Field:  state.Field(),
			Value:  ev.Value,
		}
		switch next {
		case domain.StateDone:
			step.Action = ActionPersist
		case domain.StateAwaitSocialChoice:
			step.Replies = []Reply{{
				Kind:    ReplyChoices,
				Text:    texts.prompt(next),
				Options: slices.Clone(platforms),
			}}
		default:
			step.Replies = []Reply{{Kind: ReplyPrompt, Text: texts.prompt(next)}}
		}
		return step
	}

	return ignore
}
