package ingest

import (
	"strings"

	"golang.org/x/net/html"
)

var blockedTags = map[string]struct{}{
	"base":     {},
	"embed":    {},
	"form":     {},
	"iframe":   {},
	"input":    {},
	"link":     {},
	"meta":     {},
	"noscript": {},
	"object":   {},
	"script":   {},
	"style":    {},
	"textarea": {},
}

// SanitizeHTML drops active markup from feed content: blocked tags, event
// handler and style attributes, and script or data URLs (except inline images).
func SanitizeHTML(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	doc, err := html.Parse(strings.NewReader("<body>" + raw + "</body>"))
	if err != nil {
		return raw
	}
	body := findBody(doc)
	if body == nil {
		return raw
	}

	var b strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if clean := sanitizeNode(c); clean != nil {
			_ = html.Render(&b, clean)
		}
	}
	return strings.TrimSpace(b.String())
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, "body") {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func sanitizeNode(n *html.Node) *html.Node {
	switch n.Type {
	case html.TextNode:
		return &html.Node{Type: html.TextNode, Data: n.Data}
	case html.CommentNode, html.DoctypeNode:
		return nil
	case html.ElementNode:
		tag := strings.ToLower(strings.TrimSpace(n.Data))
		if _, blocked := blockedTags[tag]; blocked {
			return nil
		}
		clone := &html.Node{Type: html.ElementNode, Data: n.Data, DataAtom: n.DataAtom, Namespace: n.Namespace}
		for _, a := range n.Attr {
			if keepAttr(tag, a) {
				clone.Attr = append(clone.Attr, a)
			}
		}
		appendSanitizedChildren(clone, n)
		return clone
	default:
		clone := &html.Node{Type: n.Type, Data: n.Data, Namespace: n.Namespace}
		appendSanitizedChildren(clone, n)
		return clone
	}
}

func appendSanitizedChildren(dst, src *html.Node) {
	for c := src.FirstChild; c != nil; c = c.NextSibling {
		if child := sanitizeNode(c); child != nil {
			dst.AppendChild(child)
		}
	}
}

func keepAttr(tag string, a html.Attribute) bool {
	k := strings.ToLower(strings.TrimSpace(a.Key))
	if k == "" || strings.HasPrefix(k, "on") || k == "style" || k == "srcdoc" {
		return false
	}
	switch k {
	case "href", "src", "poster", "cite", "action", "formaction", "data":
		return safeURL(a.Val, tag, k)
	}
	return true
}

func safeURL(v, tag, attr string) bool {
	u := strings.ToLower(strings.TrimSpace(v))
	switch {
	case u == "":
		return true
	case strings.HasPrefix(u, "javascript:"), strings.HasPrefix(u, "vbscript:"):
		return false
	case strings.HasPrefix(u, "data:"):
		return tag == "img" && attr == "src" && strings.HasPrefix(u, "data:image/")
	}
	return true
}
