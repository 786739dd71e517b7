// ABOUTME: Marketplace flow: browse listings or sell an item (title, price, confirm)
// ABOUTME: Listing storage itself lives behind the external profile/listing store

package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pasarbot/pasarbot/internal/session"
)

// Marketplace steps
const (
	StepMarketMenu        Step = "menu"
	StepMarketSellTitle   Step = "sell_title"
	StepMarketSellPrice   Step = "sell_price"
	StepMarketSellConfirm Step = "sell_confirm"
)

func registerMarketplace(r *Registry) {
	r.RegisterEntry(FlowMarketplace, StepMarketMenu, "marketplace", "Marketplace")

	r.Register(FlowMarketplace, StepMarketMenu, StepSpec{
		Prompt:       "Marketplace: would you like to browse listings or sell something?",
		QuickReplies: []string{"browse", "sell"},
		Handle:       handleMarketMenu,
	})
	r.Register(FlowMarketplace, StepMarketSellTitle, StepSpec{
		Prompt: "What are you selling? Send a short title.",
		Handle: handleMarketSellTitle,
	})
	r.Register(FlowMarketplace, StepMarketSellPrice, StepSpec{
		Prompt: "What price are you asking?",
		Handle: handleMarketSellPrice,
	})
	r.Register(FlowMarketplace, StepMarketSellConfirm, StepSpec{
		Prompt:       "Post this listing?",
		QuickReplies: []string{"yes", "no"},
		Handle:       handleMarketSellConfirm,
	})
}

func handleMarketMenu(ctx context.Context, state *session.State, ev Event) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(ev.Payload)) {
	case "browse":
		// Listings live in the external store; the dialogue just hands off.
		return terminate(reply(ev.UserID,
			"Here's what's on offer right now — check the community board for the latest listings. "+
				"Send anything to come back to the menu.",
		)), nil
	case "sell":
		return advance(StepMarketSellTitle, nil,
			reply(ev.UserID, "What are you selling? Send a short title."),
		), nil
	default:
		return stay(reply(ev.UserID, "Please choose: browse or sell.", "browse", "sell")), nil
	}
}

func handleMarketSellTitle(ctx context.Context, state *session.State, ev Event) (Result, error) {
	title := strings.TrimSpace(ev.Payload)
	if len(title) < 3 {
		return stay(reply(ev.UserID, "That title is too short. What are you selling?")), nil
	}
	return advance(StepMarketSellPrice,
		map[string]string{"listing_title": title},
		reply(ev.UserID, "What price are you asking?"),
	), nil
}

func handleMarketSellPrice(ctx context.Context, state *session.State, ev Event) (Result, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ev.Payload), "Rp"))
	raw = strings.ReplaceAll(raw, ".", "")
	raw = strings.ReplaceAll(raw, ",", "")
	price, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || price <= 0 {
		return stay(reply(ev.UserID, "Please send the price as a number, e.g. 150000.")), nil
	}

	title := state.Data["listing_title"]
	return advance(StepMarketSellConfirm,
		map[string]string{"listing_price": strconv.FormatInt(price, 10)},
		reply(ev.UserID,
			fmt.Sprintf("Post \"%s\" for %d?", title, price),
			"yes", "no"),
	), nil
}

func handleMarketSellConfirm(ctx context.Context, state *session.State, ev Event) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(ev.Payload)) {
	case "yes", "y":
		return terminate(reply(ev.UserID,
			"Your listing is posted! Buyers will contact you directly.",
		)), nil
	case "no", "n":
		return terminate(reply(ev.UserID, "Listing discarded.")), nil
	default:
		return stay(reply(ev.UserID, "Please answer yes or no. Post this listing?", "yes", "no")), nil
	}
}
