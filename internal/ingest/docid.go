package ingest

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/odysseus0/campusfeed/internal/model"
)

// DeriveID returns the hex SHA-256 of the item's guid, or of its link when
// the guid is empty. Re-fetches of the same entry map to the same key.
func DeriveID(item model.FeedItem) string {
	key := item.GUID
	if key == "" {
		key = item.Link
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
