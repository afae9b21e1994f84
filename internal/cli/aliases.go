package cli

import "github.com/odysseus0/campusfeed/internal/model"

type OutputFormat = model.OutputFormat
type StoredItem = model.StoredItem
type Post = model.Post
type FeedResult = model.FeedResult
type IngestReport = model.IngestReport

const (
	OutputTable = model.OutputTable
	OutputJSON  = model.OutputJSON
	OutputWide  = model.OutputWide
)
