// ABOUTME: Admin flow: collects an issue description for the operator queue

package flow

import (
	"context"
	"strings"

	"github.com/pasarbot/pasarbot/internal/session"
)

// Admin steps
const (
	StepAdminDescribe Step = "describe"
	StepAdminConfirm  Step = "confirm"
)

func registerAdmin(r *Registry) {
	r.RegisterEntry(FlowAdmin, StepAdminDescribe, "admin", "Contact an operator")

	r.Register(FlowAdmin, StepAdminDescribe, StepSpec{
		Prompt: "Describe your issue in one message and we will pass it to an operator.",
		Handle: handleAdminDescribe,
	})
	r.Register(FlowAdmin, StepAdminConfirm, StepSpec{
		Prompt:       "Send this to our operators?",
		QuickReplies: []string{"yes", "no"},
		Handle:       handleAdminConfirm,
	})
}

func handleAdminDescribe(ctx context.Context, state *session.State, ev Event) (Result, error) {
	text := strings.TrimSpace(ev.Payload)
	if text == "" {
		return stay(reply(ev.UserID, "Describe your issue in one message and we will pass it to an operator.")), nil
	}
	return advance(StepAdminConfirm, map[string]string{"issue": text},
		reply(ev.UserID, "Send this to our operators?", "yes", "no"),
	), nil
}

func handleAdminConfirm(ctx context.Context, state *session.State, ev Event) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(ev.Payload)) {
	case "yes":
		// The issue text is already journaled in the transcript, which is
		// what operators review before starting a takeover.
		return terminate(reply(ev.UserID,
			"Got it. An operator will review your message and reply here shortly.",
		)), nil
	case "no":
		return terminate(reply(ev.UserID, "Okay, nothing was sent. Back to the menu.")), nil
	default:
		return stay(reply(ev.UserID, "Please answer yes or no.", "yes", "no")), nil
	}
}
