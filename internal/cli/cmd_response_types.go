package cli

import "time"

type FetchResponse struct {
	SavedCount     int    `json:"savedCount"`
	CollectionName string `json:"collectionName"`
	Trimmed        int    `json:"trimmedCount,omitempty"`
	Skipped        bool   `json:"skipped,omitempty"`
}

type FeedStatus struct {
	Name        string     `json:"name,omitempty"`
	Collection  string     `json:"collectionName"`
	URL         string     `json:"url,omitempty"`
	LastRun     *time.Time `json:"lastExecutionTime,omitempty"`
	NextAllowed *time.Time `json:"nextAllowed,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type AddPostResponse struct {
	Post Post `json:"post"`
}
