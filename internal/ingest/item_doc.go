package ingest

import (
	"time"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/model"
)

const publishedAtField = "publishedAt"

// itemDocument is the write payload for item. Absent optional fields are left
// out so that a merge never clears previously stored values.
func itemDocument(item model.FeedItem, fetchedAt time.Time) docstore.Document {
	doc := docstore.Document{
		"title":           item.Title,
		"link":            item.Link,
		publishedAtField:  item.PublishedAt.UTC(),
		"description":     item.Description,
		"guid":            item.GUID,
		"author":          item.Author,
		"content":         item.RawContent,
		"contentMarkdown": item.ContentMarkdown,
		"fetchedAt":       fetchedAt.UTC(),
	}
	if len(item.Categories) > 0 {
		doc["categories"] = item.Categories
	}
	if item.DateInferred {
		doc["dateInferred"] = true
	}
	return docstore.Compact(doc)
}

func storedItemFromRecord(rec docstore.Record) model.StoredItem {
	d := rec.Data
	item := model.StoredItem{
		ID: rec.ID,
		FeedItem: model.FeedItem{
			Title:           d.String("title"),
			Link:            d.String("link"),
			DateInferred:    d.Bool("dateInferred"),
			Description:     d.String("description"),
			Author:          d.StringPtr("author"),
			RawContent:      d.StringPtr("content"),
			ContentMarkdown: d.StringPtr("contentMarkdown"),
			Categories:      d.Strings("categories"),
			GUID:            d.String("guid"),
		},
	}
	if t, ok := d.Time(publishedAtField); ok {
		item.PublishedAt = t
	}
	if t, ok := d.Time("fetchedAt"); ok {
		item.FetchedAt = &t
	}
	return item
}
