// ABOUTME: Gateway: the single entry point routing every inbound event to the right handler
// ABOUTME: Serializes per user, arbitrates modes, dispatches flow steps, and delivers replies

package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pasarbot/pasarbot/internal/flow"
	"github.com/pasarbot/pasarbot/internal/guard"
	"github.com/pasarbot/pasarbot/internal/mode"
	"github.com/pasarbot/pasarbot/internal/session"
	"github.com/pasarbot/pasarbot/internal/store"
	"github.com/pasarbot/pasarbot/internal/takeover"
	"github.com/pasarbot/pasarbot/internal/transcript"
)

// Sender delivers replies to the user on the chat platform
type Sender interface {
	Send(ctx context.Context, userID, text string, quickReplies []string) error
}

// User-visible copy for the fixed surfaces of the conversation
const (
	welcomeText = "Welcome! I'm the community assistant."
	retryText   = "Something went wrong on our side. Please try again in a moment."

	menuPayloadUseBot    = "use_bot"
	menuPayloadTalkAdmin = "talk_admin"
	menuPayloadBack      = "back"
)

const (
	// DefaultWelcomeCooldown suppresses repeat welcome greetings.
	DefaultWelcomeCooldown = 12 * time.Hour
	// DefaultFlowTimeout clears a flow the user abandoned mid-way.
	DefaultFlowTimeout = time.Hour
)

// Options configures the gateway. Zero values select the defaults.
type Options struct {
	WelcomeCooldown time.Duration
	FlowTimeout     time.Duration
}

// Gateway wires the guard, session manager, mode controller, takeover
// coordinator and flow registry behind one Handle call. All processing for a
// given user, inbound events and operator actions alike, runs under the same
// per-user lock, so no two handlers for one user are ever in flight at once.
type Gateway struct {
	guard    *guard.Guard
	sessions *session.Manager
	modes    *mode.Controller
	takeover *takeover.Coordinator
	flows    *flow.Registry
	journal  *transcript.Recorder
	sender   Sender
	logger   *slog.Logger

	locks       *keyedMutex
	welcomed    *guard.Cache
	flowTimeout time.Duration
}

// New creates a gateway.
func New(
	g *guard.Guard,
	sessions *session.Manager,
	modes *mode.Controller,
	coordinator *takeover.Coordinator,
	flows *flow.Registry,
	journal *transcript.Recorder,
	sender Sender,
	logger *slog.Logger,
	opts Options,
) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WelcomeCooldown == 0 {
		opts.WelcomeCooldown = DefaultWelcomeCooldown
	}
	if opts.FlowTimeout == 0 {
		opts.FlowTimeout = DefaultFlowTimeout
	}

	return &Gateway{
		guard:       g,
		sessions:    sessions,
		modes:       modes,
		takeover:    coordinator,
		flows:       flows,
		journal:     journal,
		sender:      sender,
		logger:      logger.With("component", "dispatch"),
		locks:       newKeyedMutex(),
		welcomed:    guard.NewCache(opts.WelcomeCooldown, guard.DefaultMaxFingerprints),
		flowTimeout: opts.FlowTimeout,
	}
}

// Close releases background resources.
func (g *Gateway) Close() {
	g.welcomed.Close()
}

// Handle processes one normalized inbound event end to end: guard, session
// load, mode resolution, flow dispatch, persistence, reply delivery.
func (g *Gateway) Handle(ctx context.Context, ev flow.Event) error {
	unlock := g.locks.lock(ev.UserID)
	defer unlock()

	// Admission runs under the per-user lock so guard decisions land in the
	// same order the user's events are processed.
	if !g.guard.Admit(ev.UserID, fingerprint(ev)) {
		return nil
	}

	g.journal.RecordInbound(ev.UserID, ev.Payload)

	state, err := g.sessions.Load(ctx, ev.UserID)
	if err != nil {
		g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
		return fmt.Errorf("loading session: %w", err)
	}

	state, err = g.expireStaleFlow(ctx, state)
	if err != nil {
		g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
		return err
	}

	rec, err := g.modes.Current(ctx, ev.UserID)
	if err != nil {
		g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
		return fmt.Errorf("loading mode: %w", err)
	}

	switch rec.CurrentMode {
	case store.ModeChattingAdmin:
		// The transcript is the operator's queue; nothing is auto-replied
		// while a human holds the conversation.
		g.logger.Debug("event held for operator", "user_id", ev.UserID)
		return nil
	case store.ModeChoosing:
		return g.handleChoosing(ctx, ev)
	case store.ModeUsingBot:
		return g.handleUsingBot(ctx, state, ev)
	default:
		g.logger.Error("unknown mode", "user_id", ev.UserID, "mode", rec.CurrentMode)
		g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
		return fmt.Errorf("unknown mode %q", rec.CurrentMode)
	}
}

// handleChoosing serves the top-level menu and applies the user's choice.
func (g *Gateway) handleChoosing(ctx context.Context, ev flow.Event) error {
	switch normalizePayload(ev.Payload) {
	case menuPayloadUseBot, "bot", "use bot":
		if _, err := g.modes.Transition(ctx, ev.UserID, mode.TriggerChooseBot); err != nil {
			g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
			return err
		}
		g.reply(ctx, g.flowMenuReply(ev.UserID))
		return nil
	case menuPayloadTalkAdmin, "admin", "human", "talk to admin":
		if _, err := g.modes.Transition(ctx, ev.UserID, mode.TriggerChooseAdmin); err != nil {
			g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
			return err
		}
		g.reply(ctx, flow.Reply{
			UserID: ev.UserID,
			Text:   "Got it — a human operator will be with you shortly.",
		})
		return nil
	default:
		// Anything else just re-displays the menu. The welcome greeting is
		// sent at most once per cooldown window, checked here before any
		// dispatch rather than inside individual flows.
		menu := g.topMenuReply(ev.UserID)
		if !g.welcomed.Seen(ev.UserID) {
			menu.Text = welcomeText + "\n\n" + menu.Text
		}
		g.reply(ctx, menu)
		return nil
	}
}

// handleUsingBot routes an event to the flow menu or the active step handler.
func (g *Gateway) handleUsingBot(ctx context.Context, state *session.State, ev flow.Event) error {
	payload := normalizePayload(ev.Payload)

	// Explicit reset abandons any in-progress flow and returns to the
	// top-level menu.
	if payload == menuPayloadBack || payload == "menu" || payload == "/menu" || payload == "reset" {
		if err := g.sessions.Clear(ctx, ev.UserID); err != nil {
			g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
			return err
		}
		if _, err := g.modes.Transition(ctx, ev.UserID, mode.TriggerBackToMenu); err != nil {
			g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
			return err
		}
		g.reply(ctx, g.topMenuReply(ev.UserID))
		return nil
	}

	if !state.InFlow() {
		return g.handleFlowMenu(ctx, ev, payload)
	}
	return g.dispatchStep(ctx, state, ev)
}

// handleFlowMenu interprets the event as a flow selection.
func (g *Gateway) handleFlowMenu(ctx context.Context, ev flow.Event, payload string) error {
	f, ok := g.flows.FlowForMenuPayload(payload)
	if !ok {
		g.reply(ctx, g.flowMenuReply(ev.UserID))
		return nil
	}

	entry, ok := g.flows.Entry(f)
	if !ok {
		g.logger.Error("flow has no entry step", "flow", f)
		g.reply(ctx, g.flowMenuReply(ev.UserID))
		return nil
	}
	spec, _ := g.flows.Step(f, entry)

	flowName := string(f)
	stepName := string(entry)
	if _, err := g.sessions.Update(ctx, ev.UserID, session.Mutation{
		Flow: &flowName,
		Step: &stepName,
	}); err != nil {
		g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
		return err
	}

	g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: spec.Prompt, QuickReplies: spec.QuickReplies})
	return nil
}

// dispatchStep invokes the handler registered for the session's current step
// and applies its result.
func (g *Gateway) dispatchStep(ctx context.Context, state *session.State, ev flow.Event) error {
	f := flow.Flow(state.Flow)
	s := flow.Step(state.Step)

	spec, ok := g.flows.Step(f, s)
	if !ok {
		// The stored step no longer exists (renamed flow, corrupt state).
		// There is no prompt to re-display, so reset to the flow menu.
		g.logger.Warn("session points at unknown step, clearing",
			"user_id", ev.UserID,
			"flow", state.Flow,
			"step", state.Step)
		if err := g.sessions.Clear(ctx, ev.UserID); err != nil {
			g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
			return err
		}
		g.reply(ctx, g.flowMenuReply(ev.UserID))
		return nil
	}

	res, err := spec.Handle(ctx, state, ev)
	if err != nil {
		g.logger.Error("step handler failed",
			"error", err,
			"flow", state.Flow,
			"step", state.Step,
			"user_id", ev.UserID)
		g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
		return nil
	}

	switch {
	case res.Terminate:
		if err := g.sessions.Clear(ctx, ev.UserID); err != nil {
			g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
			return err
		}
		if _, err := g.modes.Transition(ctx, ev.UserID, mode.TriggerFlowComplete); err != nil {
			return err
		}
		g.replyAll(ctx, res.Replies)
		g.reply(ctx, g.topMenuReply(ev.UserID))
		return nil

	case res.NextStep != "":
		mut := session.Mutation{Set: res.Set}
		stepName := string(res.NextStep)
		mut.Step = &stepName
		if res.NextFlow != "" {
			flowName := string(res.NextFlow)
			mut.Flow = &flowName
		}
		if _, err := g.sessions.Update(ctx, ev.UserID, mut); err != nil {
			g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: retryText})
			return err
		}
		g.replyAll(ctx, res.Replies)
		return nil

	default:
		// Stay on the current step. If the handler produced no prompt of
		// its own, re-display the step's prompt rather than advancing on
		// input we could not route.
		if len(res.Replies) == 0 {
			g.reply(ctx, flow.Reply{UserID: ev.UserID, Text: spec.Prompt, QuickReplies: spec.QuickReplies})
			return nil
		}
		g.replyAll(ctx, res.Replies)
		return nil
	}
}

// StartTakeover puts the user's conversation in an operator's hands. Runs
// under the same per-user lock as inbound events, so a takeover and a
// concurrently arriving bot event can never observe a stale mode.
func (g *Gateway) StartTakeover(ctx context.Context, userID, adminID string) error {
	unlock := g.locks.lock(userID)
	defer unlock()

	if _, err := g.takeover.Start(ctx, userID, adminID); err != nil {
		return err
	}
	g.reply(ctx, flow.Reply{
		UserID: userID,
		Text:   "You're now chatting with a human operator.",
	})
	return nil
}

// StopTakeover returns the conversation to the bot. If the user has a
// preserved in-progress flow, its current prompt is re-sent so the dialogue
// resumes where it left off.
func (g *Gateway) StopTakeover(ctx context.Context, userID, adminID string) error {
	unlock := g.locks.lock(userID)
	defer unlock()

	if err := g.takeover.Stop(ctx, userID, adminID); err != nil {
		return err
	}

	state, err := g.sessions.Load(ctx, userID)
	if err != nil {
		return err
	}
	if state.InFlow() {
		if spec, ok := g.flows.Step(flow.Flow(state.Flow), flow.Step(state.Step)); ok {
			g.reply(ctx, flow.Reply{
				UserID:       userID,
				Text:         "You're back with the bot. Picking up where we left off:\n" + spec.Prompt,
				QuickReplies: spec.QuickReplies,
			})
			return nil
		}
	}
	g.reply(ctx, flow.Reply{
		UserID: userID,
		Text:   "You're back with the bot. Send anything to see the menu.",
	})
	return nil
}

// SendAsOperator relays an operator message under the per-user lock.
func (g *Gateway) SendAsOperator(ctx context.Context, userID, adminID, text string) error {
	unlock := g.locks.lock(userID)
	defer unlock()

	return g.takeover.SendAsOperator(ctx, userID, adminID, text)
}

// expireStaleFlow clears a flow the user walked away from.
func (g *Gateway) expireStaleFlow(ctx context.Context, state *session.State) (*session.State, error) {
	if !state.InFlow() || state.StartedAt.IsZero() {
		return state, nil
	}
	if time.Since(state.StartedAt) <= g.flowTimeout {
		return state, nil
	}

	g.logger.Debug("clearing stale flow",
		"user_id", state.UserID,
		"flow", state.Flow,
		"started_at", state.StartedAt)
	if err := g.sessions.Clear(ctx, state.UserID); err != nil {
		return nil, fmt.Errorf("clearing stale flow: %w", err)
	}
	return g.sessions.Load(ctx, state.UserID)
}

// reply journals and delivers one outbound message.
func (g *Gateway) reply(ctx context.Context, r flow.Reply) {
	g.journal.RecordBot(r.UserID, r.Text)
	if err := g.sender.Send(ctx, r.UserID, r.Text, r.QuickReplies); err != nil {
		g.logger.Error("failed to deliver reply",
			"error", err,
			"user_id", r.UserID)
	}
}

func (g *Gateway) replyAll(ctx context.Context, replies []flow.Reply) {
	for _, r := range replies {
		g.reply(ctx, r)
	}
}

// topMenuReply is the choosing-mode menu.
func (g *Gateway) topMenuReply(userID string) flow.Reply {
	return flow.Reply{
		UserID:       userID,
		Text:         "What would you like to do?\n• use bot — self-service menu\n• talk to admin — chat with a human",
		QuickReplies: []string{"use bot", "talk to admin"},
	}
}

// flowMenuReply is the using-bot flow menu, built from the registry.
func (g *Gateway) flowMenuReply(userID string) flow.Reply {
	var b strings.Builder
	b.WriteString("Pick an option:")
	quick := make([]string, 0, len(g.flows.Menu())+1)
	for _, opt := range g.flows.Menu() {
		fmt.Fprintf(&b, "\n• %s — %s", opt.Payload, opt.Label)
		quick = append(quick, opt.Payload)
	}
	b.WriteString("\n• back — return to the main menu")
	quick = append(quick, menuPayloadBack)
	return flow.Reply{UserID: userID, Text: b.String(), QuickReplies: quick}
}

// fingerprint identifies an event for deduplication: the platform event ID
// when present, otherwise a content hash.
func fingerprint(ev flow.Event) string {
	if ev.EventID != "" {
		return ev.EventID
	}
	sum := sha256.Sum256([]byte(ev.UserID + "|" + string(ev.Kind) + "|" + ev.Payload))
	return hex.EncodeToString(sum[:])
}

func normalizePayload(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
