package model

import "time"

type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputWide  OutputFormat = "wide"
)

// FeedSource identifies one external feed and the collection it writes into.
type FeedSource struct {
	URL        string `json:"url" toml:"url"`
	Collection string `json:"collectionName" toml:"collection"`
}

// FeedSlot is one configured orchestrator entry. An empty Source.URL means
// the slot is unconfigured and gets skipped.
type FeedSlot struct {
	Name   string     `json:"name"`
	Source FeedSource `json:"source"`
}

type FeedItem struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"publishedAt"`
	// DateInferred is set when the entry carried no usable date and
	// PublishedAt was filled with the fetch time.
	DateInferred    bool     `json:"dateInferred,omitempty"`
	Description     string   `json:"description"`
	Author          *string  `json:"author,omitempty"`
	RawContent      *string  `json:"content,omitempty"`
	ContentMarkdown *string  `json:"contentMarkdown,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	GUID            string   `json:"guid"`
}

type StoredItem struct {
	ID string `json:"id"`
	FeedItem
	FetchedAt *time.Time `json:"fetchedAt,omitempty"`
}

type ExecutionMarker struct {
	Collection        string    `json:"collectionName"`
	LastExecutionTime time.Time `json:"lastExecutionTime"`
}

type FeedResult struct {
	Collection string `json:"collectionName"`
	SavedCount int    `json:"savedCount"`
	Trimmed    int    `json:"trimmedCount,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}

type IngestReport struct {
	Success   bool         `json:"success"`
	StartedAt time.Time    `json:"startedAt"`
	EndedAt   time.Time    `json:"endedAt"`
	Results   []FeedResult `json:"results"`
}

type PostCategory string

const (
	CategoryClass PostCategory = "class"
	CategoryOther PostCategory = "other"
)

type Post struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	AuthorName  string       `json:"authorName"`
	Category    PostCategory `json:"category"`
	TargetYear  *int         `json:"targetYear,omitempty"`
	TargetMajor *string      `json:"targetMajor,omitempty"`
	TargetClass *string      `json:"targetClass,omitempty"`
	LikeCount   int          `json:"likeCount"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type PostPage struct {
	Posts   []Post `json:"posts"`
	HasMore bool   `json:"hasMore"`
}

type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type TalkLog struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Prompt    string    `json:"prompt,omitempty"`
	Model     string    `json:"model,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Usage     *Usage    `json:"usage,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Answer struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
