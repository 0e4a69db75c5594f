package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxStories = "newsdesk_stories"
	idxTopics  = "newsdesk_topics"

	healthInterval = 10 * time.Second
	defaultLimit   = 20
)

type indexSpec struct {
	uid        string
	rtyp       ResultType
	filterable []string
	searchable []string
}

var indexSpecs = []indexSpec{
	{
		uid:        idxStories,
		rtyp:       ResultStory,
		filterable: []string{"topicIds", "author"},
		searchable: []string{"title", "body"},
	},
	{
		uid:        idxTopics,
		rtyp:       ResultTopic,
		filterable: []string{"author"},
		searchable: []string{"name"},
	},
}

// Meili implements Searcher and Indexer against a Meilisearch server.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili connects to Meilisearch and configures the story and topic
// indexes. The client is returned even when the server is down; a background
// probe reconfigures the indexes once it comes back.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		log.Printf("search: meilisearch not reachable at %s: %v", url, err)
	} else {
		m.healthy.Store(true)
		for _, spec := range indexSpecs {
			m.ensureIndex(spec)
		}
	}

	go m.probe()
	return m
}

func (m *Meili) ensureIndex(spec indexSpec) {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        spec.uid,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", spec.uid, err)
	}

	index := m.client.Index(spec.uid)
	filterable := make([]interface{}, len(spec.filterable))
	for i, attr := range spec.filterable {
		filterable[i] = attr
	}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: set filterable attrs on %s: %v", spec.uid, err)
	}
	searchable := spec.searchable
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: set searchable attrs on %s: %v", spec.uid, err)
	}
}

func (m *Meili) probe() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			recovered := err == nil && !m.healthy.Load()
			m.healthy.Store(err == nil)
			if recovered {
				log.Println("search: meilisearch back, reconfiguring indexes")
				for _, spec := range indexSpecs {
					m.ensureIndex(spec)
				}
			}
		}
	}
}

// Close stops the background health probe.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether the last probe reached the server.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search runs one multi-search over the story and topic indexes, or the
// subset the query's type filter selects, and merges the hits.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = defaultLimit
	}

	var queries []*meili.SearchRequest
	for _, spec := range indexSpecs {
		if q.FilterType != "" && q.FilterType != spec.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              spec.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}
		if q.TopicID != "" && spec.rtyp == ResultStory {
			sr.Filter = []string{fmt.Sprintf("topicIds = %q", q.TopicID)}
		}
		queries = append(queries, sr)
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := resultTypeFor(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}
	return results, total, nil
}

func resultTypeFor(uid string) ResultType {
	for _, spec := range indexSpecs {
		if spec.uid == uid {
			return spec.rtyp
		}
	}
	return ""
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{
		Type:   rtyp,
		ID:     hitString(hit, "id"),
		Author: hitString(hit, "author"),
	}
	switch rtyp {
	case ResultStory:
		r.Title = pickHighlighted(hit, "title")
		r.Snippet = pickHighlighted(hit, "body")
	case ResultTopic:
		r.Title = pickHighlighted(hit, "name")
	}
	return r
}

// pickHighlighted prefers the <mark>-annotated variant of a field, falling
// back to the raw value.
func pickHighlighted(hit meili.Hit, key string) string {
	if raw, ok := hit["_formatted"]; ok {
		var formatted map[string]string
		if err := json.Unmarshal(raw, &formatted); err == nil {
			if v := strings.TrimSpace(formatted[key]); v != "" {
				return v
			}
		}
	}
	return hitString(hit, key)
}

func hitString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func (m *Meili) IndexStory(item StoryRecord) error {
	_, err := m.client.Index(idxStories).AddDocuments([]StoryRecord{item}, nil)
	return err
}

func (m *Meili) IndexTopic(item TopicRecord) error {
	_, err := m.client.Index(idxTopics).AddDocuments([]TopicRecord{item}, nil)
	return err
}

func (m *Meili) DeleteStory(id string) error {
	_, err := m.client.Index(idxStories).DeleteDocument(id, nil)
	return err
}

func (m *Meili) DeleteTopic(id string) error {
	_, err := m.client.Index(idxTopics).DeleteDocument(id, nil)
	return err
}

// IndexStories bulk-loads story records, used by the boot reindex.
func (m *Meili) IndexStories(stories []StoryRecord) error {
	if len(stories) == 0 {
		return nil
	}
	_, err := m.client.Index(idxStories).AddDocuments(stories, nil)
	return err
}

// IndexTopics bulk-loads topic records, used by the boot reindex.
func (m *Meili) IndexTopics(topics []TopicRecord) error {
	if len(topics) == 0 {
		return nil
	}
	_, err := m.client.Index(idxTopics).AddDocuments(topics, nil)
	return err
}
