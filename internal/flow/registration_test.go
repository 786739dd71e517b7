// ABOUTME: Unit tests for the registration flow step handlers
// ABOUTME: Handlers are pure functions, so steps are tested in isolation

package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasarbot/pasarbot/internal/session"
)

func testState(flow Flow, step Step, data map[string]string) *session.State {
	if data == nil {
		data = make(map[string]string)
	}
	return &session.State{UserID: "user-1", Flow: string(flow), Step: string(step), Data: data}
}

func textEvent(payload string) Event {
	return Event{UserID: "user-1", Kind: EventText, Payload: payload, EventID: "ev-1"}
}

func TestRegName_Advances(t *testing.T) {
	res, err := handleRegName(context.Background(), testState(FlowRegistration, StepRegName, nil), textEvent("Ari Wibowo"))
	require.NoError(t, err)

	assert.Equal(t, StepRegPhone, res.NextStep)
	assert.Equal(t, "Ari Wibowo", res.Set["name"])
	assert.False(t, res.Terminate)
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0].Text, "Ari Wibowo")
}

func TestRegName_TooShortStays(t *testing.T) {
	res, err := handleRegName(context.Background(), testState(FlowRegistration, StepRegName, nil), textEvent("A"))
	require.NoError(t, err)

	assert.Empty(t, res.NextStep, "invalid input must not advance the step")
	assert.Empty(t, res.Set)
	assert.False(t, res.Terminate)
}

func TestRegPhone(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		advance bool
	}{
		{"plain digits", "081234567890", true},
		{"with country code", "+6281234567890", true},
		{"with spaces", "0812 3456 7890", true},
		{"letters", "call me maybe", false},
		{"too short", "0812", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := handleRegPhone(context.Background(), testState(FlowRegistration, StepRegPhone, nil), textEvent(tc.payload))
			require.NoError(t, err)
			if tc.advance {
				assert.Equal(t, StepRegLocation, res.NextStep)
				assert.NotEmpty(t, res.Set["phone"])
			} else {
				assert.Empty(t, res.NextStep)
			}
		})
	}
}

func TestRegBirthYear_EligibleAdvancesToConfirm(t *testing.T) {
	res, err := handleRegBirthYear(context.Background(), testState(FlowRegistration, StepRegBirthYear, nil), textEvent("1990"))
	require.NoError(t, err)

	assert.Equal(t, StepRegBirthdayConfirm, res.NextStep)
	assert.Equal(t, "1990", res.Set["birth_year"])
	require.Len(t, res.Replies, 1)
	assert.Equal(t, []string{"yes", "no"}, res.Replies[0].QuickReplies)
}

func TestRegBirthYear_IneligibleIsTerminal(t *testing.T) {
	for _, year := range []string{"1925", "2015"} {
		res, err := handleRegBirthYear(context.Background(), testState(FlowRegistration, StepRegBirthYear, nil), textEvent(year))
		require.NoError(t, err)

		assert.True(t, res.Terminate, "year %s must be a terminal rejection", year)
		assert.Empty(t, res.NextStep)
		require.Len(t, res.Replies, 1)
		assert.Contains(t, res.Replies[0].Text, "not eligible")
	}
}

func TestRegBirthYear_GarbageStays(t *testing.T) {
	res, err := handleRegBirthYear(context.Background(), testState(FlowRegistration, StepRegBirthYear, nil), textEvent("ninety"))
	require.NoError(t, err)

	assert.False(t, res.Terminate, "unparseable input is retryable, not a rejection")
	assert.Empty(t, res.NextStep)
}

func TestRegBirthdayConfirm_Yes(t *testing.T) {
	state := testState(FlowRegistration, StepRegBirthdayConfirm, map[string]string{
		"name": "Ari", "birth_year": "1990",
	})
	res, err := handleRegBirthdayConfirm(context.Background(), state, textEvent("yes"))
	require.NoError(t, err)

	assert.True(t, res.Terminate)
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0].Text, "Ari")
	assert.Contains(t, res.Replies[0].Text, "complete")
}

func TestRegBirthdayConfirm_NoIsTerminal(t *testing.T) {
	state := testState(FlowRegistration, StepRegBirthdayConfirm, map[string]string{"birth_year": "1990"})
	res, err := handleRegBirthdayConfirm(context.Background(), state, textEvent("no"))
	require.NoError(t, err)

	assert.True(t, res.Terminate)
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0].Text, "cancelled")
}

func TestRegBirthdayConfirm_OtherStays(t *testing.T) {
	state := testState(FlowRegistration, StepRegBirthdayConfirm, nil)
	res, err := handleRegBirthdayConfirm(context.Background(), state, textEvent("maybe"))
	require.NoError(t, err)

	assert.False(t, res.Terminate)
	assert.Empty(t, res.NextStep)
}
