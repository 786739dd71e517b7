// ABOUTME: Payment flow: amount, method, confirm, then handoff to the payment provider

package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pasarbot/pasarbot/internal/session"
)

// Payment steps
const (
	StepPayAmount  Step = "amount"
	StepPayMethod  Step = "method"
	StepPayConfirm Step = "confirm"
)

func registerPayment(r *Registry) {
	r.RegisterEntry(FlowPayment, StepPayAmount, "payment", "Make a payment")

	r.Register(FlowPayment, StepPayAmount, StepSpec{
		Prompt: "How much would you like to pay?",
		Handle: handlePayAmount,
	})
	r.Register(FlowPayment, StepPayMethod, StepSpec{
		Prompt:       "How would you like to pay?",
		QuickReplies: []string{"bank transfer", "e-wallet"},
		Handle:       handlePayMethod,
	})
	r.Register(FlowPayment, StepPayConfirm, StepSpec{
		Prompt:       "Confirm this payment?",
		QuickReplies: []string{"yes", "no"},
		Handle:       handlePayConfirm,
	})
}

func handlePayAmount(ctx context.Context, state *session.State, ev Event) (Result, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(ev.Payload), ".", "")
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount <= 0 {
		return stay(reply(ev.UserID, "Please send the amount as a number, e.g. 50000.")), nil
	}
	return advance(StepPayMethod,
		map[string]string{"pay_amount": strconv.FormatInt(amount, 10)},
		reply(ev.UserID, "How would you like to pay?", "bank transfer", "e-wallet"),
	), nil
}

func handlePayMethod(ctx context.Context, state *session.State, ev Event) (Result, error) {
	method := strings.ToLower(strings.TrimSpace(ev.Payload))
	switch method {
	case "bank transfer", "transfer", "e-wallet", "ewallet":
		amount := state.Data["pay_amount"]
		return advance(StepPayConfirm,
			map[string]string{"pay_method": method},
			reply(ev.UserID,
				fmt.Sprintf("Pay %s via %s?", amount, method),
				"yes", "no"),
		), nil
	default:
		return stay(reply(ev.UserID, "Please choose a payment method.", "bank transfer", "e-wallet")), nil
	}
}

func handlePayConfirm(ctx context.Context, state *session.State, ev Event) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(ev.Payload)) {
	case "yes", "y":
		// Actual charging happens in the external payment integration;
		// the dialogue ends once the instruction is sent.
		return terminate(reply(ev.UserID,
			"Payment instructions are on their way. Thank you!",
		)), nil
	case "no", "n":
		return terminate(reply(ev.UserID, "Payment cancelled.")), nil
	default:
		return stay(reply(ev.UserID, "Please answer yes or no. Confirm this payment?", "yes", "no")), nil
	}
}
