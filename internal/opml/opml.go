// Package opml reads and writes feed source lists as OPML. The outline
// category attribute carries the target collection.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/model"
)

const collectionBase = "rss_items"

type opmlDoc struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr,omitempty"`
	Head    opmlHead `xml:"head"`
	Body    opmlBody `xml:"body"`
}

type opmlHead struct {
	Title string `xml:"title,omitempty"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Text        string        `xml:"text,attr,omitempty"`
	Title       string        `xml:"title,attr,omitempty"`
	Type        string        `xml:"type,attr,omitempty"`
	Category    string        `xml:"category,attr,omitempty"`
	XMLURL      string        `xml:"xmlUrl,attr,omitempty"`
	XMLURLLower string        `xml:"xmlurl,attr,omitempty"`
	Outlines    []opmlOutline `xml:"outline,omitempty"`
}

// ReadSlots parses path (a file or an http(s) URL) into feed slots. Outlines
// without a usable category get rss_items, rss_items_2, rss_items_3, ... in
// document order. Duplicate URLs are dropped.
func ReadSlots(path string) ([]model.FeedSlot, error) {
	r, err := openOPML(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return DecodeSlots(r)
}

func DecodeSlots(r io.Reader) ([]model.FeedSlot, error) {
	var doc opmlDoc
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity
	decoder.CharsetReader = charset.NewReaderLabel
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}

	var slots []model.FeedSlot
	seen := make(map[string]struct{})
	var walk func([]opmlOutline)
	walk = func(outlines []opmlOutline) {
		for _, o := range outlines {
			if feedURL := o.FeedURL(); feedURL != "" {
				if _, dup := seen[feedURL]; !dup {
					seen[feedURL] = struct{}{}
					slots = append(slots, model.FeedSlot{
						Name:   fallback(strings.TrimSpace(o.Text), strings.TrimSpace(o.Title)),
						Source: model.FeedSource{URL: feedURL, Collection: strings.TrimSpace(o.Category)},
					})
				}
			}
			if len(o.Outlines) > 0 {
				walk(o.Outlines)
			}
		}
	}
	walk(doc.Body.Outlines)

	// The first outline naming a valid collection claims it.
	owner := make(map[string]int, len(slots))
	for i, s := range slots {
		c := s.Source.Collection
		if _, taken := owner[c]; !taken && docstore.ValidCollectionName(c) {
			owner[c] = i
		}
	}
	next := 1
	for i := range slots {
		if idx, ok := owner[slots[i].Source.Collection]; ok && idx == i {
			continue
		}
		for {
			name := collectionName(next)
			next++
			if _, taken := owner[name]; !taken {
				slots[i].Source.Collection = name
				owner[name] = i
				break
			}
		}
	}
	return slots, nil
}

func collectionName(n int) string {
	if n == 1 {
		return collectionBase
	}
	return collectionBase + "_" + strconv.Itoa(n)
}

func openOPML(path string) (io.ReadCloser, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(path)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: %s", path, resp.Status)
		}
		return resp.Body, nil
	}
	return os.Open(path)
}

// WriteSlots writes every slot with a URL as one outline.
func WriteSlots(w io.Writer, slots []model.FeedSlot) error {
	outlines := make([]opmlOutline, 0, len(slots))
	for _, s := range slots {
		if strings.TrimSpace(s.Source.URL) == "" {
			continue
		}
		label := fallback(strings.TrimSpace(s.Name), s.Source.Collection)
		outlines = append(outlines, opmlOutline{
			Text:     label,
			Title:    label,
			Type:     "rss",
			Category: s.Source.Collection,
			XMLURL:   s.Source.URL,
		})
	}

	doc := opmlDoc{
		Version: "2.0",
		Head: opmlHead{
			Title: "campusfeed sources",
		},
		Body: opmlBody{
			Outlines: []opmlOutline{{
				Text:     "Feeds",
				Title:    "Feeds",
				Outlines: outlines,
			}},
		},
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Flush()
}

func fallback(v, fb string) string {
	if strings.TrimSpace(v) == "" {
		return fb
	}
	return v
}

func (o opmlOutline) FeedURL() string {
	if v := strings.TrimSpace(o.XMLURL); v != "" {
		return v
	}
	if v := strings.TrimSpace(o.XMLURLLower); v != "" {
		return v
	}
	return ""
}
