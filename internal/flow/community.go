// ABOUTME: Community flow: join or leave the announcements list

package flow

import (
	"context"
	"strings"

	"github.com/pasarbot/pasarbot/internal/session"
)

// Community steps
const (
	StepCommunityMenu    Step = "menu"
	StepCommunityConfirm Step = "confirm"
)

func registerCommunity(r *Registry) {
	r.RegisterEntry(FlowCommunity, StepCommunityMenu, "community", "Community announcements")

	r.Register(FlowCommunity, StepCommunityMenu, StepSpec{
		Prompt:       "Community announcements: join or leave the list?",
		QuickReplies: []string{"join", "leave"},
		Handle:       handleCommunityMenu,
	})
	r.Register(FlowCommunity, StepCommunityConfirm, StepSpec{
		Prompt:       "Are you sure?",
		QuickReplies: []string{"yes", "no"},
		Handle:       handleCommunityConfirm,
	})
}

func handleCommunityMenu(ctx context.Context, state *session.State, ev Event) (Result, error) {
	choice := strings.ToLower(strings.TrimSpace(ev.Payload))
	switch choice {
	case "join":
		return terminate(reply(ev.UserID,
			"You're on the announcements list! We'll keep you posted about community events.",
		)), nil
	case "leave":
		return advance(StepCommunityConfirm,
			map[string]string{"community_action": "leave"},
			reply(ev.UserID, "You'll stop receiving community announcements. Are you sure?", "yes", "no"),
		), nil
	default:
		return stay(reply(ev.UserID, "Please choose: join or leave.", "join", "leave")), nil
	}
}

func handleCommunityConfirm(ctx context.Context, state *session.State, ev Event) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(ev.Payload)) {
	case "yes", "y":
		return terminate(reply(ev.UserID, "Done — you've left the announcements list.")), nil
	case "no", "n":
		return terminate(reply(ev.UserID, "No changes made. You're still on the list.")), nil
	default:
		return stay(reply(ev.UserID, "Please answer yes or no.", "yes", "no")), nil
	}
}
