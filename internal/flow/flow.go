// ABOUTME: Flow and step identifiers, event/reply types, and the step-handler registry
// ABOUTME: Handlers are pure functions so every step is unit-testable without store or network

package flow

import (
	"context"
	"time"

	"github.com/pasarbot/pasarbot/internal/session"
)

// Flow identifies a multi-step dialogue.
type Flow string

const (
	FlowRegistration Flow = "registration"
	FlowMarketplace  Flow = "marketplace"
	FlowCommunity    Flow = "community"
	FlowPayment      Flow = "payment"
	FlowUtility      Flow = "utility"
	FlowAdmin        Flow = "admin"
)

// Step identifies a position within a flow.
type Step string

// EventKind distinguishes free text from button presses.
type EventKind string

const (
	EventText   EventKind = "text"
	EventButton EventKind = "button"
)

// Event is a normalized inbound event as delivered by the intake boundary.
type Event struct {
	UserID     string
	Kind       EventKind
	Payload    string
	EventID    string
	ReceivedAt time.Time
}

// Reply is one outbound message produced by the core.
type Reply struct {
	UserID       string
	Text         string
	QuickReplies []string
}

// Result is a step handler's verdict on an event.
//
// Exactly one of three outcomes applies:
//   - advance: NextStep (and optionally NextFlow for cross-flow handoff) set
//   - stay: NextStep empty and Terminate false; the handler re-prompts
//   - terminate: Terminate true; the dispatcher clears the session
type Result struct {
	NextFlow  Flow // non-empty switches flows (explicit handoff)
	NextStep  Step
	Set       map[string]string
	Replies   []Reply
	Terminate bool
}

// HandlerFunc processes one event at one step. State is the session as
// loaded; handlers must not mutate it and return data changes via Result.Set.
type HandlerFunc func(ctx context.Context, state *session.State, ev Event) (Result, error)

// StepSpec couples a step's prompt with its handler. The prompt is what the
// dispatcher re-displays when an event cannot be routed to the step.
type StepSpec struct {
	Prompt       string
	QuickReplies []string
	Handle       HandlerFunc
}

// MenuOption is one entry of the using-bot flow menu.
type MenuOption struct {
	Payload string
	Label   string
	Flow    Flow
}

// Registry maps (flow, step) to step specs and owns the flow menu.
type Registry struct {
	handlers map[Flow]map[Step]StepSpec
	entry    map[Flow]Step
	menu     []MenuOption
}

// NewRegistry returns a registry with all built-in flows registered.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[Flow]map[Step]StepSpec),
		entry:    make(map[Flow]Step),
	}
	registerRegistration(r)
	registerMarketplace(r)
	registerCommunity(r)
	registerPayment(r)
	registerUtility(r)
	registerAdmin(r)
	return r
}

// Register adds a step spec for (flow, step).
func (r *Registry) Register(f Flow, s Step, spec StepSpec) {
	steps, ok := r.handlers[f]
	if !ok {
		steps = make(map[Step]StepSpec)
		r.handlers[f] = steps
	}
	steps[s] = spec
}

// RegisterEntry declares the flow's first step and adds it to the menu.
func (r *Registry) RegisterEntry(f Flow, s Step, payload, label string) {
	r.entry[f] = s
	r.menu = append(r.menu, MenuOption{Payload: payload, Label: label, Flow: f})
}

// Step returns the spec registered for (flow, step).
func (r *Registry) Step(f Flow, s Step) (StepSpec, bool) {
	spec, ok := r.handlers[f][s]
	return spec, ok
}

// Entry returns the first step of a flow.
func (r *Registry) Entry(f Flow) (Step, bool) {
	s, ok := r.entry[f]
	return s, ok
}

// Menu returns the flow menu in registration order.
func (r *Registry) Menu() []MenuOption {
	return r.menu
}

// FlowForMenuPayload resolves a menu selection to its flow.
func (r *Registry) FlowForMenuPayload(payload string) (Flow, bool) {
	for _, opt := range r.menu {
		if opt.Payload == payload {
			return opt.Flow, true
		}
	}
	return "", false
}

// reply is a convenience constructor used by the flow files.
func reply(userID, text string, quickReplies ...string) Reply {
	return Reply{UserID: userID, Text: text, QuickReplies: quickReplies}
}

// stay re-prompts the current step without advancing.
func stay(replies ...Reply) Result {
	return Result{Replies: replies}
}

// advance moves to the next step within the current flow.
func advance(next Step, set map[string]string, replies ...Reply) Result {
	return Result{NextStep: next, Set: set, Replies: replies}
}

// terminate ends the flow; the dispatcher clears the session.
func terminate(replies ...Reply) Result {
	return Result{Terminate: true, Replies: replies}
}
