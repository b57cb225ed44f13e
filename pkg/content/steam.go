package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ErrInvalidApp is returned when the store does not know an app id.
var ErrInvalidApp = errors.New("invalid steam app id")

const earlyAccessGenre = "Early Access"

// SteamApp is the store summary of one app.
type SteamApp struct {
	AppID            string
	Name             string
	ShortDescription string
	IsFree           bool
	HeaderImage      string
	Genres           []string
	Categories       []string
	ReleaseDate      ReleaseDate
	PriceOverview    *PriceOverview
	Reviews          []Review
}

type ReleaseDate struct {
	ComingSoon bool   `json:"coming_soon"`
	Date       string `json:"date"`
}

// PriceOverview holds prices in cents.
type PriceOverview struct {
	Currency        string `json:"currency"`
	Initial         int    `json:"initial"`
	Final           int    `json:"final"`
	DiscountPercent int    `json:"discount_percent"`
}

// Review is one review aggregate scraped from the store page.
type Review struct {
	Type    string
	Summary string
	Count   string
}

type appDetailsEnvelope struct {
	Success bool           `json:"success"`
	Data    appDetailsData `json:"data"`
}

type appDetailsData struct {
	Name             string         `json:"name"`
	ShortDescription string         `json:"short_description"`
	IsFree           bool           `json:"is_free"`
	HeaderImage      string         `json:"header_image"`
	Genres           []described    `json:"genres"`
	Categories       []described    `json:"categories"`
	ReleaseDate      ReleaseDate    `json:"release_date"`
	PriceOverview    *PriceOverview `json:"price_overview"`
}

type described struct {
	Description string `json:"description"`
}

func descriptions(items []described) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Description)
	}
	return out
}

// SteamApp loads app details from the store API and review aggregates from the store
// page, which is the only place recent and overall reviews are split.
func (c *Client) SteamApp(ctx context.Context, appID string) (*SteamApp, error) {
	detailsURL := fmt.Sprintf("%s/api/appdetails/?appids=%s&cc=us&l=en&json=1", c.storeURL, url.QueryEscape(appID))
	body, _, err := c.fetch(ctx, detailsURL)
	if err != nil {
		return nil, err
	}

	var envelope map[string]appDetailsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode app details for %s: %w", appID, err)
	}

	details, ok := envelope[appID]
	if !ok || !details.Success {
		return nil, fmt.Errorf("%w: %s", ErrInvalidApp, appID)
	}

	app := &SteamApp{
		AppID:            appID,
		Name:             details.Data.Name,
		ShortDescription: details.Data.ShortDescription,
		IsFree:           details.Data.IsFree,
		HeaderImage:      details.Data.HeaderImage,
		Genres:           descriptions(details.Data.Genres),
		Categories:       descriptions(details.Data.Categories),
		ReleaseDate:      details.Data.ReleaseDate,
		PriceOverview:    details.Data.PriceOverview,
	}

	reviews, err := c.storeReviews(ctx, appID)
	if err != nil {
		return nil, err
	}
	app.Reviews = reviews

	return app, nil
}

func (c *Client) storeReviews(ctx context.Context, appID string) ([]Review, error) {
	body, _, err := c.fetch(ctx, fmt.Sprintf("%s/app/%s", c.storeURL, url.PathEscape(appID)))
	if err != nil {
		return nil, err
	}

	doc, err := parseHTML(body)
	if err != nil {
		return nil, fmt.Errorf("parse store page for %s: %w", appID, err)
	}

	var reviews []Review
	for _, subtitle := range findAll(doc, hasClass("div", "subtitle")) {
		for _, caption := range strippedStrings(subtitle) {
			if caption != "Recent Reviews:" && caption != "All Reviews:" {
				continue
			}
			if subtitle.Parent == nil {
				continue
			}

			summary := findFirst(subtitle.Parent, hasClass("span", "game_review_summary"))
			count := findFirst(subtitle.Parent, hasClass("span", "responsive_hidden"))
			if summary == nil || count == nil {
				continue
			}

			reviews = append(reviews, Review{
				Type:    strings.TrimSuffix(caption, ":"),
				Summary: strings.TrimSpace(textContent(summary)),
				Count:   strings.Trim(strings.TrimSpace(textContent(count)), "()"),
			})
		}
	}
	return reviews, nil
}

// Price renders the final price, "Free", or "Not Available" for apps without one.
func (a *SteamApp) Price() string {
	if a.IsFree {
		return "Free"
	}
	if a.PriceOverview == nil {
		return "Not Available"
	}
	return fmt.Sprintf("$%.2f", float64(a.PriceOverview.Final)/100)
}

// Discount renders the discount as "(-50%)", or "" without one.
func (a *SteamApp) Discount() string {
	if a.PriceOverview == nil || a.PriceOverview.DiscountPercent == 0 {
		return ""
	}
	return fmt.Sprintf("(-%d%%)", a.PriceOverview.DiscountPercent)
}

func (a *SteamApp) IsEarlyAccess() bool {
	return slices.Contains(a.Genres, earlyAccessGenre)
}

func (a *SteamApp) IsUnreleased() bool {
	return a.ReleaseDate.ComingSoon
}

// Released returns the release date text, or "No release date".
func (a *SteamApp) Released() string {
	if strings.TrimSpace(a.ReleaseDate.Date) == "" {
		return "No release date"
	}
	return a.ReleaseDate.Date
}

// WorkshopItem is the scraped summary of a workshop file.
type WorkshopItem struct {
	ItemID  string
	Title   string
	AppName string
	LogoURL string
	Tags    []WorkshopTag
}

type WorkshopTag struct {
	Name  string
	Value string
}

// Workshop scrapes a workshop file page. There is no public API for it.
func (c *Client) Workshop(ctx context.Context, itemID string) (*WorkshopItem, error) {
	pageURL := fmt.Sprintf("%s/sharedfiles/filedetails/?id=%s", c.communityURL, url.QueryEscape(itemID))
	body, _, err := c.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := parseHTML(body)
	if err != nil {
		return nil, fmt.Errorf("parse workshop page for %s: %w", itemID, err)
	}

	title := findFirst(doc, hasClass("", "workshopItemTitle"))
	appName := findFirst(doc, hasClass("", "apphub_AppName"))
	if title == nil || appName == nil {
		return nil, fmt.Errorf("workshop item %s: page has no item details", itemID)
	}

	item := &WorkshopItem{
		ItemID:  itemID,
		Title:   strings.TrimSpace(textContent(title)),
		AppName: strings.TrimSpace(textContent(appName)),
	}
	if logo := findFirst(doc, hasAttr("link", "rel", "image_src")); logo != nil {
		item.LogoURL = attr(logo, "href")
	}

	for _, tag := range findAll(doc, hasClass("div", "workshopTags")) {
		name, value, ok := strings.Cut(textContent(tag), ":\u00a0")
		if !ok {
			continue
		}
		item.Tags = append(item.Tags, WorkshopTag{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}

	return item, nil
}
