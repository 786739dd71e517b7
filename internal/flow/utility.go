// ABOUTME: Utility flow: help text and feedback collection

package flow

import (
	"context"
	"strings"

	"github.com/pasarbot/pasarbot/internal/session"
)

// Utility steps
const (
	StepUtilityMenu     Step = "menu"
	StepUtilityFeedback Step = "feedback"
)

func registerUtility(r *Registry) {
	r.RegisterEntry(FlowUtility, StepUtilityMenu, "utility", "Help & feedback")

	r.Register(FlowUtility, StepUtilityMenu, StepSpec{
		Prompt:       "What do you need?",
		QuickReplies: []string{"help", "feedback"},
		Handle:       handleUtilityMenu,
	})
	r.Register(FlowUtility, StepUtilityFeedback, StepSpec{
		Prompt: "Tell us what you think — send your feedback as a message.",
		Handle: handleUtilityFeedback,
	})
}

func handleUtilityMenu(ctx context.Context, state *session.State, ev Event) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(ev.Payload)) {
	case "help":
		return terminate(reply(ev.UserID,
			"Use the menu to register, browse the marketplace, manage announcements or make a payment. "+
				"Send \"menu\" anytime to start over, or ask for a human and an operator will join.",
		)), nil
	case "feedback":
		return advance(StepUtilityFeedback, nil,
			reply(ev.UserID, "Tell us what you think — send your feedback as a message."),
		), nil
	default:
		return stay(reply(ev.UserID, "Please choose: help or feedback.", "help", "feedback")), nil
	}
}

func handleUtilityFeedback(ctx context.Context, state *session.State, ev Event) (Result, error) {
	text := strings.TrimSpace(ev.Payload)
	if text == "" {
		return stay(reply(ev.UserID, "Send your feedback as a message.")), nil
	}
	return terminate(reply(ev.UserID, "Thank you! Your feedback has been passed on.")), nil
}
