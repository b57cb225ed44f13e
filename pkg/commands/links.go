package commands

import (
	"context"
	"fmt"
	"html"
	"strings"

	"sybot/pkg/command"
	"sybot/pkg/content"
)

// youTubePattern matches the usual watch, embed and short link forms.
const youTubePattern = `(?:youtube(?:-nocookie)?\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/)(?P<id>[^"&?/ ]{11})`

const (
	youTubeWatchURL = "https://www.youtube.com/watch?v=%s"
	youTubeThumbURL = "https://img.youtube.com/vi/%s/mqdefault.jpg"
)

// YouTube posts the title and a linked thumbnail of a video.
func (s *Set) YouTube(ctx context.Context, msg *command.Message) error {
	s.unfurlVideo(ctx, msg, msg.Group("id"))
	return nil
}

// Veoh rehosts YouTube videos under their YouTube id.
func (s *Set) Veoh(ctx context.Context, msg *command.Message) error {
	s.unfurlVideo(ctx, msg, msg.Group("id"))
	return nil
}

func (s *Set) unfurlVideo(ctx context.Context, msg *command.Message, id string) {
	s.spawn(ctx, "youtube", func(ctx context.Context) error {
		title, err := s.fetch.PageTitle(ctx, fmt.Sprintf(youTubeWatchURL, id))
		if err != nil {
			return err
		}
		title = strings.TrimSuffix(title, " - YouTube")

		// Link the whole posted text so timestamps and playlists survive.
		link := html.EscapeString(strings.TrimSpace(content.StripHTML(msg.Text)))

		preview := link
		thumbnail, err := s.fetch.ImageDataURI(ctx, fmt.Sprintf(youTubeThumbURL, id))
		if err != nil {
			s.log.Warn("Thumbnail lookup failed", "video", id, "error", err)
		} else {
			preview = fmt.Sprintf(`<img src="%s"/>`, thumbnail)
		}

		text := fmt.Sprintf(`%s posted a link to <b>%s</b><br/><a href="%s">%s</a>`,
			msg.SenderName(), html.EscapeString(title), link, preview)
		return s.respond(ctx, msg, text)
	})
}

// Vimeo posts the title of a video.
func (s *Set) Vimeo(ctx context.Context, msg *command.Message) error {
	url := msg.Group("url")
	s.spawn(ctx, "vimeo", func(ctx context.Context) error {
		title, err := s.fetch.PageTitle(ctx, url)
		if err != nil {
			return err
		}
		title = strings.TrimSuffix(title, " on Vimeo")

		text := fmt.Sprintf("%s posted a link to <b>%s</b>", msg.SenderName(), html.EscapeString(title))
		return s.respond(ctx, msg, text)
	})
	return nil
}
