// ABOUTME: Registration flow: name, phone, location, birth year, confirmation
// ABOUTME: Carries the hard birth-year eligibility gate; failing it terminates the flow

package flow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pasarbot/pasarbot/internal/session"
)

// Registration steps
const (
	StepRegName            Step = "name"
	StepRegPhone           Step = "phone"
	StepRegLocation        Step = "location"
	StepRegBirthYear       Step = "birth_year"
	StepRegBirthdayConfirm Step = "birthday_confirm"
)

// Membership is limited to people born within this range. The gate is
// terminal: failing it rejects the registration outright, it is not a
// retryable step.
const (
	eligibleMinBirthYear = 1940
	eligibleMaxBirthYear = 2008
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

func registerRegistration(r *Registry) {
	r.RegisterEntry(FlowRegistration, StepRegName, "register", "Register as a member")

	r.Register(FlowRegistration, StepRegName, StepSpec{
		Prompt: "Welcome! Let's get you registered. What is your full name?",
		Handle: handleRegName,
	})
	r.Register(FlowRegistration, StepRegPhone, StepSpec{
		Prompt: "What is your phone number?",
		Handle: handleRegPhone,
	})
	r.Register(FlowRegistration, StepRegLocation, StepSpec{
		Prompt: "Which city do you live in?",
		Handle: handleRegLocation,
	})
	r.Register(FlowRegistration, StepRegBirthYear, StepSpec{
		Prompt: "What year were you born?",
		Handle: handleRegBirthYear,
	})
	r.Register(FlowRegistration, StepRegBirthdayConfirm, StepSpec{
		Prompt:       "Is that correct?",
		QuickReplies: []string{"yes", "no"},
		Handle:       handleRegBirthdayConfirm,
	})
}

func handleRegName(ctx context.Context, state *session.State, ev Event) (Result, error) {
	name := strings.TrimSpace(ev.Payload)
	if len(name) < 2 {
		return stay(reply(ev.UserID, "That name looks too short. What is your full name?")), nil
	}
	return advance(StepRegPhone,
		map[string]string{"name": name},
		reply(ev.UserID, fmt.Sprintf("Thanks %s! What is your phone number?", name)),
	), nil
}

func handleRegPhone(ctx context.Context, state *session.State, ev Event) (Result, error) {
	phone := strings.ReplaceAll(strings.TrimSpace(ev.Payload), " ", "")
	if !phonePattern.MatchString(phone) {
		return stay(reply(ev.UserID, "That doesn't look like a phone number. Please send digits only, e.g. 081234567890.")), nil
	}
	return advance(StepRegLocation,
		map[string]string{"phone": phone},
		reply(ev.UserID, "Got it. Which city do you live in?"),
	), nil
}

func handleRegLocation(ctx context.Context, state *session.State, ev Event) (Result, error) {
	location := strings.TrimSpace(ev.Payload)
	if location == "" {
		return stay(reply(ev.UserID, "Please tell me which city you live in.")), nil
	}
	return advance(StepRegBirthYear,
		map[string]string{"location": location},
		reply(ev.UserID, "What year were you born?"),
	), nil
}

func handleRegBirthYear(ctx context.Context, state *session.State, ev Event) (Result, error) {
	year, err := strconv.Atoi(strings.TrimSpace(ev.Payload))
	if err != nil {
		return stay(reply(ev.UserID, "Please send your birth year as a number, e.g. 1990.")), nil
	}

	if year < eligibleMinBirthYear || year > eligibleMaxBirthYear {
		// Terminal rejection, not a retryable step
		return terminate(reply(ev.UserID,
			"Sorry, you are not eligible to join at this time. Thank you for your interest!",
		)), nil
	}

	return advance(StepRegBirthdayConfirm,
		map[string]string{"birth_year": strconv.Itoa(year)},
		reply(ev.UserID,
			fmt.Sprintf("You were born in %d, is that correct?", year),
			"yes", "no"),
	), nil
}

func handleRegBirthdayConfirm(ctx context.Context, state *session.State, ev Event) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(ev.Payload)) {
	case "yes", "y", "ya":
		name := state.Data["name"]
		return terminate(reply(ev.UserID,
			fmt.Sprintf("All done, %s! Your registration is complete. Welcome aboard!", name),
		)), nil
	case "no", "n":
		return terminate(reply(ev.UserID,
			"Registration cancelled. If that was a mistake, you can register again from the menu.",
		)), nil
	default:
		return stay(reply(ev.UserID, "Please answer yes or no. Is your birth year correct?", "yes", "no")), nil
	}
}
