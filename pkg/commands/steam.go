package commands

import (
	"context"
	"fmt"
	"strings"

	"sybot/pkg/command"
	"sybot/pkg/content"
)

// SteamStore summarizes a store app: description, release state, reviews and price.
func (s *Set) SteamStore(ctx context.Context, msg *command.Message) error {
	appID := msg.Group("appid")
	s.spawn(ctx, "steam_store", func(ctx context.Context) error {
		app, err := s.fetch.SteamApp(ctx, appID)
		if err != nil {
			return err
		}
		return s.respond(ctx, msg, steamAppSummary(msg.SenderName(), app))
	})
	return nil
}

func steamAppSummary(sender string, app *content.SteamApp) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s posted a link to <b>%s</b><br/>%s", sender, app.Name, app.ShortDescription)

	switch {
	case app.IsEarlyAccess() && app.IsUnreleased():
		b.WriteString("<br/><b>Unreleased Early Access Meme</b>")
	case app.IsEarlyAccess():
		b.WriteString("<br/><b>Early Access Meme</b>")
	case app.IsUnreleased():
		fmt.Fprintf(&b, "<br/><b>Unreleased:</b> Comes out %s", app.Released())
	}

	if !app.IsUnreleased() {
		if len(app.Reviews) == 0 {
			b.WriteString("<br/>Not enough reviews")
		}
		for _, review := range app.Reviews {
			fmt.Fprintf(&b, "<br/><b>%s:</b> %s (%s)", review.Type, review.Summary, review.Count)
		}
	}

	price := strings.TrimSpace(app.Price() + " " + app.Discount())
	fmt.Fprintf(&b, "<br/><b>Price:</b> %s", price)
	return b.String()
}

// SteamWorkshop summarizes a workshop item and its tags.
func (s *Set) SteamWorkshop(ctx context.Context, msg *command.Message) error {
	itemID := msg.Group("itemid")
	s.spawn(ctx, "steam_workshop", func(ctx context.Context) error {
		item, err := s.fetch.Workshop(ctx, itemID)
		if err != nil {
			return err
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s posted a link to <b>%s</b> for %s", msg.SenderName(), item.Title, item.AppName)
		for _, tag := range item.Tags {
			fmt.Fprintf(&b, "<br/><b>%s:</b> %s", tag.Name, tag.Value)
		}
		return s.respond(ctx, msg, b.String())
	})
	return nil
}
