package ingest

import (
	"regexp"
	"strings"
	"time"

	markdown "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/odysseus0/campusfeed/internal/model"
)

var wsRegexp = regexp.MustCompile(`\s+`)

// Renderer converts sanitized feed HTML into markdown.
type Renderer struct {
	converter *markdown.Converter
}

func NewRenderer() *Renderer {
	return &Renderer{converter: markdown.NewConverter("", true, nil)}
}

func (r *Renderer) HTMLToMarkdown(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	out, err := r.converter.ConvertString(raw)
	if err != nil {
		return compactText(raw)
	}
	return strings.TrimSpace(out)
}

// PlainText returns the visible text of an HTML fragment with whitespace
// collapsed.
func PlainText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return compactText(raw)
	}
	doc.Find("script, style").Remove()
	return compactText(doc.Text())
}

func compactText(v string) string {
	return strings.TrimSpace(wsRegexp.ReplaceAllString(v, " "))
}

// normalizeItem maps a parsed entry onto a FeedItem. now fills publishedAt
// when the entry carries no usable date.
func normalizeItem(item *gofeed.Item, r *Renderer, now time.Time) model.FeedItem {
	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}

	out := model.FeedItem{
		Title: strings.TrimSpace(item.Title),
		Link:  link,
		GUID:  strings.TrimSpace(item.GUID),
	}
	if out.GUID == "" {
		out.GUID = link
	}

	switch {
	case item.PublishedParsed != nil:
		out.PublishedAt = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		out.PublishedAt = item.UpdatedParsed.UTC()
	default:
		out.PublishedAt = now.UTC()
		out.DateInferred = true
	}

	rawContent := strings.TrimSpace(item.Content)
	if rawContent == "" {
		rawContent = strings.TrimSpace(item.Description)
	}
	if rawContent != "" {
		clean := SanitizeHTML(rawContent)
		out.RawContent = &clean
		if md := r.HTMLToMarkdown(clean); md != "" {
			out.ContentMarkdown = &md
		}
	}

	out.Description = PlainText(rawContent)
	if out.Description == "" && out.RawContent != nil {
		out.Description = *out.RawContent
	}

	if author := itemAuthor(item); author != "" {
		out.Author = &author
	}
	if len(item.Categories) > 0 {
		cats := make([]string, 0, len(item.Categories))
		for _, c := range item.Categories {
			if c = strings.TrimSpace(c); c != "" {
				cats = append(cats, c)
			}
		}
		if len(cats) > 0 {
			out.Categories = cats
		}
	}
	return out
}

func itemAuthor(item *gofeed.Item) string {
	if dc := item.DublinCoreExt; dc != nil {
		for _, c := range dc.Creator {
			if c = strings.TrimSpace(c); c != "" {
				return c
			}
		}
	}
	if item.Author != nil {
		if name := strings.TrimSpace(item.Author.Name); name != "" {
			return name
		}
		return strings.TrimSpace(item.Author.Email)
	}
	for _, a := range item.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			return strings.TrimSpace(a.Name)
		}
	}
	return ""
}
