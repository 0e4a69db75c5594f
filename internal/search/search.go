package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultStory ResultType = "story"
	ResultTopic ResultType = "topic"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	Author  string     `json:"author,omitempty"`
}

// Query describes a search request. Only published content is ever
// indexed, so results are safe to show to any caller.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	TopicID    string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexStory(item StoryRecord) error
	IndexTopic(item TopicRecord) error
	DeleteStory(id string) error
	DeleteTopic(id string) error
}

// StoryRecord is the data we index for a published story.
type StoryRecord struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Author   string   `json:"author"`
	TopicIDs []string `json:"topicIds"`
}

// TopicRecord is the data we index for an approved topic.
type TopicRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Author string `json:"author"`
}
