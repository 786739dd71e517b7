// ABOUTME: Mode Controller: per-user three-state conversation mode machine
// ABOUTME: choosing / using_bot / chatting_admin with an explicit total transition table

package mode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pasarbot/pasarbot/internal/store"
)

// ErrInvalidTransition is returned when a trigger has no edge from the
// current mode. The mode record is left unchanged.
var ErrInvalidTransition = errors.New("invalid mode transition")

// Trigger identifies the explicit event causing a mode transition.
// Every transition is the result of exactly one trigger; nothing is inferred.
type Trigger string

const (
	// TriggerChooseBot fires when the user selects the bot-usage menu option.
	TriggerChooseBot Trigger = "choose_bot"
	// TriggerChooseAdmin fires when the user asks to talk to a human.
	TriggerChooseAdmin Trigger = "choose_admin"
	// TriggerBackToMenu fires when the user returns to the top-level menu.
	TriggerBackToMenu Trigger = "back_to_menu"
	// TriggerFlowComplete fires when a dialogue flow finishes and offers the menu again.
	TriggerFlowComplete Trigger = "flow_complete"
	// TriggerOperatorTakeover fires when an operator starts a takeover.
	TriggerOperatorTakeover Trigger = "operator_takeover"
	// TriggerOperatorRelease fires when an operator ends a takeover.
	TriggerOperatorRelease Trigger = "operator_release"
)

type edge struct {
	from    string
	trigger Trigger
}

// ModeStore defines what the controller needs from storage
type ModeStore interface {
	GetModeRecord(ctx context.Context, userID string) (*store.ModeRecord, error)
	PutModeRecord(ctx context.Context, rec *store.ModeRecord) error
}

// Controller owns the per-user mode machine. Callers serialize operations
// per user; the controller performs plain read-modify-write.
type Controller struct {
	store  ModeStore
	logger *slog.Logger

	// releaseMode is the mode a user lands in when an operator releases a
	// takeover. Either store.ModeUsingBot (default) or store.ModeChoosing.
	releaseMode string

	edges map[edge]string
}

// New creates a mode controller. releaseMode selects where operator_release
// lands the user; an empty string means using_bot.
func New(st ModeStore, logger *slog.Logger, releaseMode string) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if releaseMode == "" {
		releaseMode = store.ModeUsingBot
	}

	c := &Controller{
		store:       st,
		logger:      logger.With("component", "mode"),
		releaseMode: releaseMode,
	}
	c.edges = map[edge]string{
		{store.ModeChoosing, TriggerChooseBot}:            store.ModeUsingBot,
		{store.ModeChoosing, TriggerChooseAdmin}:          store.ModeChattingAdmin,
		{store.ModeChoosing, TriggerOperatorTakeover}:     store.ModeChattingAdmin,
		{store.ModeUsingBot, TriggerBackToMenu}:           store.ModeChoosing,
		{store.ModeUsingBot, TriggerFlowComplete}:         store.ModeChoosing,
		{store.ModeUsingBot, TriggerOperatorTakeover}:     store.ModeChattingAdmin,
		{store.ModeChattingAdmin, TriggerOperatorRelease}: releaseMode,
	}
	return c
}

// Current returns the user's mode record. First contact yields a choosing
// record that is not persisted until the first transition.
func (c *Controller) Current(ctx context.Context, userID string) (*store.ModeRecord, error) {
	var rec *store.ModeRecord
	err := c.withRetry(ctx, func() error {
		var getErr error
		rec, getErr = c.store.GetModeRecord(ctx, userID)
		if errors.Is(getErr, store.ErrNotFound) {
			rec = nil
			return nil
		}
		return getErr
	})
	if err != nil {
		return nil, fmt.Errorf("loading mode record for %s: %w", userID, err)
	}

	if rec == nil {
		return &store.ModeRecord{
			UserID:      userID,
			CurrentMode: store.ModeChoosing,
		}, nil
	}
	return rec, nil
}

// Transition applies a trigger to the user's current mode. Returns the
// updated record, or ErrInvalidTransition if no edge matches; in that case
// nothing is written.
func (c *Controller) Transition(ctx context.Context, userID string, trigger Trigger) (*store.ModeRecord, error) {
	rec, err := c.Current(ctx, userID)
	if err != nil {
		return nil, err
	}

	next, ok := c.edges[edge{rec.CurrentMode, trigger}]
	if !ok {
		return nil, fmt.Errorf("%w: no edge from %s on %s", ErrInvalidTransition, rec.CurrentMode, trigger)
	}

	// Stamps stay strictly increasing even under clock regression, so
	// transitions are never recorded out of order.
	now := time.Now().UTC()
	if !now.After(rec.LastModeChange) {
		now = rec.LastModeChange.Add(time.Nanosecond)
	}

	prev := rec.CurrentMode
	rec.CurrentMode = next
	rec.LastModeChange = now
	rec.ModeChangeCount++

	err = c.withRetry(ctx, func() error {
		return c.store.PutModeRecord(ctx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("persisting mode record for %s: %w", userID, err)
	}

	c.logger.Debug("mode transition",
		"user_id", userID,
		"from", prev,
		"to", next,
		"trigger", trigger,
		"change_count", rec.ModeChangeCount)
	return rec, nil
}

// withRetry runs op with bounded exponential backoff.
func (c *Controller) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), 3))
}
