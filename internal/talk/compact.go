package talk

import (
	"fmt"
	"strings"
	"time"

	"github.com/odysseus0/campusfeed/internal/model"
)

// Japan has no DST, so a fixed zone avoids depending on tzdata.
var jst = time.FixedZone("JST", 9*60*60)

const (
	noPostsText        = "No student posts."
	noStudentRSSText   = "No student social posts."
	noOfficialNewsText = "No official news."
)

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(jst).Format("01/02 15:04")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(jst).Format("01/02")
}

// isReplyOrRepost matches the prefixes nitter uses for replies ("R to ...")
// and retweets ("RT by ...").
func isReplyOrRepost(text string) bool {
	n := strings.ToLower(strings.TrimSpace(text))
	return strings.HasPrefix(n, "r to ") || strings.HasPrefix(n, "rt by ")
}

func itemText(item model.StoredItem) string {
	if item.Title != "" {
		return item.Title
	}
	if item.Description != "" {
		return item.Description
	}
	if item.RawContent != nil {
		return *item.RawContent
	}
	return ""
}

// PostsList renders posts as "- author [category] (MM/DD HH:mm): text".
func PostsList(posts []model.Post) string {
	if len(posts) == 0 {
		return noPostsText
	}
	lines := make([]string, 0, len(posts))
	for _, p := range posts {
		author := p.AuthorName
		if author == "" {
			author = "@unknown"
		}
		var b strings.Builder
		b.WriteString("- " + author)
		if p.Category != "" {
			b.WriteString(" [" + string(p.Category) + "]")
		}
		if ts := formatDateTime(p.CreatedAt); ts != "" {
			b.WriteString(" (" + ts + ")")
		}
		b.WriteString(": " + oneLine(p.Content))
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

// StudentRSSList renders social items as "- @author (MM/DD HH:mm): text",
// dropping replies and reposts.
func StudentRSSList(items []model.StoredItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		text := itemText(item)
		if isReplyOrRepost(text) {
			continue
		}
		author := "@unknown"
		if item.Author != nil && *item.Author != "" {
			author = "@" + strings.TrimPrefix(*item.Author, "@")
		}
		line := "- " + author
		if ts := formatDateTime(item.PublishedAt); ts != "" {
			line += " (" + ts + ")"
		}
		lines = append(lines, line+": "+oneLine(text))
	}
	if len(lines) == 0 {
		return noStudentRSSText
	}
	return strings.Join(lines, "\n")
}

// OfficialNewsList renders news items as "- [MM/DD] title".
func OfficialNewsList(items []model.StoredItem) string {
	if len(items) == 0 {
		return noOfficialNewsText
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		label := ""
		if d := formatDate(item.PublishedAt); d != "" {
			label = fmt.Sprintf("[%s] ", d)
		}
		lines = append(lines, "- "+label+oneLine(itemText(item)))
	}
	return strings.Join(lines, "\n")
}
