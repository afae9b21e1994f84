package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/odysseus0/campusfeed/internal/model"
)

func TestDeriveID(t *testing.T) {
	hash := func(s string) string {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	}

	withGUID := model.FeedItem{GUID: "urn:1", Link: "https://example.com/1"}
	if got := DeriveID(withGUID); got != hash("urn:1") {
		t.Fatalf("guid id = %s", got)
	}
	linkOnly := model.FeedItem{Link: "https://example.com/1"}
	if got := DeriveID(linkOnly); got != hash("https://example.com/1") {
		t.Fatalf("link id = %s", got)
	}
	if got := DeriveID(model.FeedItem{}); got != hash("") {
		t.Fatalf("empty id = %s", got)
	}
	if len(DeriveID(withGUID)) != 64 {
		t.Fatal("id is not fixed width")
	}
	if DeriveID(withGUID) != DeriveID(model.FeedItem{GUID: "urn:1", Title: "changed"}) {
		t.Fatal("same guid produced different ids")
	}
}
