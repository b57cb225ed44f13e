package commands

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"sybot/pkg/command"
	"sybot/pkg/content"
	"sybot/pkg/murmur"
	"sybot/pkg/murmur/murmurtest"
	"sybot/pkg/response"
)

type fakeFetcher struct {
	mu       sync.Mutex
	requests []string

	titles     map[string]string
	images     map[string]string
	apps       map[string]*content.SteamApp
	items      map[string]*content.WorkshopItem
	imageError error
}

func (f *fakeFetcher) record(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, url)
}

func (f *fakeFetcher) PageTitle(_ context.Context, url string) (string, error) {
	f.record(url)
	title, ok := f.titles[url]
	if !ok {
		return "", errors.New("no such page")
	}
	return title, nil
}

func (f *fakeFetcher) ImageDataURI(_ context.Context, url string) (string, error) {
	f.record(url)
	if f.imageError != nil {
		return "", f.imageError
	}
	return f.images[url], nil
}

func (f *fakeFetcher) SteamApp(_ context.Context, appID string) (*content.SteamApp, error) {
	f.record("app:" + appID)
	app, ok := f.apps[appID]
	if !ok {
		return nil, content.ErrInvalidApp
	}
	return app, nil
}

func (f *fakeFetcher) Workshop(_ context.Context, itemID string) (*content.WorkshopItem, error) {
	f.record("item:" + itemID)
	item, ok := f.items[itemID]
	if !ok {
		return nil, errors.New("not found")
	}
	return item, nil
}

type fixture struct {
	router *command.Router
	set    *Set
	server *murmurtest.Server
	fetch  *fakeFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	server := murmurtest.NewServer(1)
	router := command.NewRouter(nil, nil)
	fetch := &fakeFetcher{
		titles: map[string]string{},
		images: map[string]string{},
		apps:   map[string]*content.SteamApp{},
		items:  map[string]*content.WorkshopItem{},
	}
	dispatcher := response.NewDispatcher(nil, nil, nil)
	set := NewSet(router, dispatcher, fetch, nil, WithRandSource(rand.NewPCG(1, 2)))
	require.NoError(t, set.Register())

	return &fixture{router: router, set: set, server: server, fetch: fetch}
}

func (f *fixture) say(t *testing.T, text string) {
	t.Helper()

	msg := command.NewMessage(f.server, &murmur.User{Session: 4, Name: "Mock"}, murmur.TextMessage{
		Channels: []int{2},
		Text:     text,
	})
	if !f.router.Dispatch(context.Background(), msg) {
		t.Fatalf("no command matched %q", text)
	}
	f.set.Wait()
}

func (f *fixture) channelTexts() []string {
	var texts []string
	for _, send := range f.server.ChannelSends() {
		texts = append(texts, send.Text)
	}
	return texts
}

func TestRegisterIsIdempotent(t *testing.T) {
	f := newFixture(t)
	count := f.router.Len()

	require.NoError(t, f.set.Register())
	require.Equal(t, count, f.router.Len())
	require.Equal(t, 9, count)
}

func TestHelpListsVisibleCommands(t *testing.T) {
	f := newFixture(t)
	f.say(t, "!help")

	sends := f.server.UserSends()
	require.Len(t, sends, 1)
	require.Equal(t, 4, sends[0].Session)
	require.Equal(t, "Available commands:<ul>"+
		"<li>!help - Prints this help message</li>"+
		"<li>!pickone - Select one item from a list at random. Eg: !pickone Gfro, Phantom, Mark</li>"+
		"<li>!#d# - Roll dice. Eg: !2d6 will roll 2 six-sided dice</li>"+
		"</ul>", sends[0].Text)
	require.Empty(t, f.server.ChannelSends())
}

func TestHalpAlsoWorks(t *testing.T) {
	f := newFixture(t)
	f.say(t, "!HALP")
	require.Len(t, f.server.UserSends(), 1)
}

func TestHelloRepliesToChannel(t *testing.T) {
	f := newFixture(t)
	f.say(t, "Hello")

	sends := f.server.ChannelSends()
	require.Len(t, sends, 1)
	require.Equal(t, 2, sends[0].Channel)
	require.False(t, sends[0].Tree)
	require.Contains(t, greetings, sends[0].Text)
}

func TestHelloIsAnchored(t *testing.T) {
	f := newFixture(t)
	msg := command.NewMessage(f.server, nil, murmur.TextMessage{Text: "oh hello there"})
	require.False(t, f.router.Dispatch(context.Background(), msg))
}

func TestPickOneChoosesFromList(t *testing.T) {
	f := newFixture(t)
	f.say(t, "!pickone Gfro, Phantom, Mark")

	texts := f.channelTexts()
	require.Len(t, texts, 1)

	found := false
	for _, name := range []string{"Gfro", "Phantom", "Mark"} {
		if strings.Contains(texts[0], name) {
			found = true
		}
	}
	require.True(t, found, "reply %q names no choice", texts[0])
}

func TestPickOneWithFoldedPrefix(t *testing.T) {
	f := newFixture(t)
	// U+212A KELVIN SIGN folds to k, making the prefix longer than "!pickone".
	f.say(t, "!PIC\u212aONE Gfro, Phantom")

	texts := f.channelTexts()
	require.Len(t, texts, 1)
	require.True(t, utf8.ValidString(texts[0]), "reply %q is not valid UTF-8", texts[0])
	require.NotContains(t, texts[0], "ONE")
	require.True(t, strings.Contains(texts[0], "Gfro") || strings.Contains(texts[0], "Phantom"), texts[0])
}

func TestPickOneReadsEveryLine(t *testing.T) {
	f := newFixture(t)
	f.say(t, "!pickone\nGfro")

	texts := f.channelTexts()
	require.Len(t, texts, 1)
	require.Contains(t, texts[0], "Gfro")
}

func TestPickOneWithoutChoices(t *testing.T) {
	f := newFixture(t)
	f.say(t, "!pickone   ")
	require.Equal(t, []string{"Give me something to pick from."}, f.channelTexts())
}

func TestRoll(t *testing.T) {
	f := newFixture(t)
	f.say(t, "!2d6")

	texts := f.channelTexts()
	require.Len(t, texts, 1)
	require.True(t, strings.HasPrefix(texts[0], "Mock rolled "), texts[0])

	rolls := strings.Split(strings.TrimPrefix(texts[0], "Mock rolled "), ", ")
	require.Len(t, rolls, 2)
	for _, roll := range rolls {
		require.Contains(t, []string{"1", "2", "3", "4", "5", "6"}, roll)
	}
}

func TestRollEdgeCases(t *testing.T) {
	cases := map[string]string{
		"!2d0":                    "How Can Dice Be Real If Their Sides Are Not?",
		"!0d6":                    "How Can Sides Be Real If Dice Are Not?",
		"!6d6":                    "I don't have that many dice.",
		"!99999999999999999999d6": "I don't have that many dice.",
	}

	for text, want := range cases {
		f := newFixture(t)
		f.say(t, text)
		require.Equal(t, []string{want}, f.channelTexts(), text)
	}
}

func TestRollIsDeterministicWithSeed(t *testing.T) {
	first := newFixture(t)
	second := newFixture(t)

	first.say(t, "!5d20")
	second.say(t, "!5d20")
	require.Equal(t, first.channelTexts(), second.channelTexts())
}

func TestYouTubeUnfurl(t *testing.T) {
	f := newFixture(t)
	f.fetch.titles["https://www.youtube.com/watch?v=dQw4w9WgXcQ"] = "Never Gonna Give You Up - YouTube"
	f.fetch.images["https://img.youtube.com/vi/dQw4w9WgXcQ/mqdefault.jpg"] = "data:image/jpeg;base64,AAAA"

	f.say(t, `<a href="https://www.youtube.com/watch?v=dQw4w9WgXcQ&amp;t=42">https://www.youtube.com/watch?v=dQw4w9WgXcQ&amp;t=42</a>`)

	require.Equal(t, []string{
		`Mock posted a link to <b>Never Gonna Give You Up</b><br/>` +
			`<a href="https://www.youtube.com/watch?v=dQw4w9WgXcQ&amp;t=42"><img src="data:image/jpeg;base64,AAAA"/></a>`,
	}, f.channelTexts())
}

func TestYouTubeShortLinkWithoutThumbnail(t *testing.T) {
	f := newFixture(t)
	f.fetch.titles["https://www.youtube.com/watch?v=dQw4w9WgXcQ"] = "Song - YouTube"
	f.fetch.imageError = errors.New("no thumbnail")

	f.say(t, "https://youtu.be/dQw4w9WgXcQ")

	require.Equal(t, []string{
		`Mock posted a link to <b>Song</b><br/><a href="https://youtu.be/dQw4w9WgXcQ">https://youtu.be/dQw4w9WgXcQ</a>`,
	}, f.channelTexts())
}

func TestFailedLookupIsSilent(t *testing.T) {
	f := newFixture(t)
	f.say(t, "https://youtu.be/aaaaaaaaaaa")
	require.Empty(t, f.channelTexts())
}

func TestVeohDelegatesToYouTube(t *testing.T) {
	f := newFixture(t)
	f.fetch.titles["https://www.youtube.com/watch?v=dQw4w9WgXcQ"] = "Song - YouTube"

	f.say(t, `<a href="https://www.veoh.com/watch/yapi-dQw4w9WgXcQ">veoh</a>`)

	require.Contains(t, f.fetch.requests, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.Len(t, f.channelTexts(), 1)
}

func TestVimeoUnfurl(t *testing.T) {
	f := newFixture(t)
	f.fetch.titles["https://vimeo.com/76979871"] = "The New Vimeo Player on Vimeo"

	f.say(t, `<a href="https://vimeo.com/76979871">https://vimeo.com/76979871</a>`)

	require.Equal(t, []string{"Mock posted a link to <b>The New Vimeo Player</b>"}, f.channelTexts())
}

func TestSteamStoreSummary(t *testing.T) {
	f := newFixture(t)
	f.fetch.apps["440"] = &content.SteamApp{
		Name:             "Team Fortress 2",
		ShortDescription: "Nine classes.",
		Genres:           []string{"Action"},
		ReleaseDate:      content.ReleaseDate{Date: "Oct 10, 2007"},
		PriceOverview:    &content.PriceOverview{Final: 999, DiscountPercent: 50},
		Reviews: []content.Review{
			{Type: "Recent Reviews", Summary: "Very Positive", Count: "1,234"},
			{Type: "All Reviews", Summary: "Mixed", Count: "98,765"},
		},
	}

	f.say(t, "check https://store.steampowered.com/app/440/Team_Fortress_2/")

	require.Equal(t, []string{
		"Mock posted a link to <b>Team Fortress 2</b><br/>Nine classes." +
			"<br/><b>Recent Reviews:</b> Very Positive (1,234)" +
			"<br/><b>All Reviews:</b> Mixed (98,765)" +
			"<br/><b>Price:</b> $9.99 (-50%)",
	}, f.channelTexts())
}

func TestSteamAppSummaryStates(t *testing.T) {
	unreleasedEarly := &content.SteamApp{
		Name:        "Rocket",
		Genres:      []string{"Early Access"},
		ReleaseDate: content.ReleaseDate{ComingSoon: true},
	}
	require.Equal(t, "Mock posted a link to <b>Rocket</b><br/>"+
		"<br/><b>Unreleased Early Access Meme</b>"+
		"<br/><b>Price:</b> Not Available", steamAppSummary("Mock", unreleasedEarly))

	unreleased := &content.SteamApp{Name: "Soon", ReleaseDate: content.ReleaseDate{ComingSoon: true, Date: "Q3 2027"}}
	require.Contains(t, steamAppSummary("Mock", unreleased), "<br/><b>Unreleased:</b> Comes out Q3 2027")

	early := &content.SteamApp{Name: "Alpha", IsFree: true, Genres: []string{"Early Access"}}
	summary := steamAppSummary("Mock", early)
	require.Contains(t, summary, "<br/><b>Early Access Meme</b>")
	require.Contains(t, summary, "<br/>Not enough reviews")
	require.True(t, strings.HasSuffix(summary, "<b>Price:</b> Free"), summary)
}

func TestSteamWorkshopSummary(t *testing.T) {
	f := newFixture(t)
	f.fetch.items["123"] = &content.WorkshopItem{
		Title:   "Cool Hat",
		AppName: "Team Fortress 2",
		Tags:    []content.WorkshopTag{{Name: "Class", Value: "Scout"}},
	}

	f.say(t, "https://steamcommunity.com/sharedfiles/filedetails/?id=123&searchtext=")

	require.Equal(t, []string{
		"Mock posted a link to <b>Cool Hat</b> for Team Fortress 2<br/><b>Class:</b> Scout",
	}, f.channelTexts())
}

func TestReplyWithoutChannelsGoesToSender(t *testing.T) {
	f := newFixture(t)

	msg := command.NewMessage(f.server, &murmur.User{Session: 8, Name: "Solo"}, murmur.TextMessage{
		Sessions: []int{1},
		Text:     "!1d1",
	})
	require.True(t, f.router.Dispatch(context.Background(), msg))

	require.Equal(t, []murmurtest.UserSend{{Session: 8, Text: "Solo rolled 1"}}, f.server.UserSends())
}
