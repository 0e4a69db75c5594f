package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// Only publicly visible rows are considered: PUBLISHED stories and APPROVED
// topics, matching what the primary index holds.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across stories and topics using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultStory {
		storyWhere := "s.fts @@ " + tsQuery + " AND s.state = 'PUBLISHED'"
		if q.TopicID != "" {
			storyWhere += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM story_topics st WHERE st.story_id = s.id AND st.topic_id = $%d)", argN)
			args = append(args, q.TopicID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'story'::text AS type, s.id, s.title,
				ts_headline('english', coalesce(s.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				s.author,
				ts_rank(s.fts, %s) AS rank
			FROM stories s
			WHERE %s`, tsQuery, tsQuery, storyWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultTopic {
		topicWhere := "t.fts @@ " + tsQuery + " AND t.state = 'APPROVED'"
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'topic'::text AS type, t.id, t.name AS title,
				''::text AS snippet,
				t.author,
				ts_rank(t.fts, %s) AS rank
			FROM topics t
			WHERE %s`, tsQuery, topicWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, author
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Author); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all publicly visible records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]StoryRecord, []TopicRecord, error) {
	storyRows, err := p.db.QueryContext(ctx, `
		SELECT s.id, s.title, s.body, s.author,
			coalesce(array_agg(st.topic_id) FILTER (WHERE st.topic_id IS NOT NULL), '{}')
		FROM stories s
		LEFT JOIN story_topics st ON st.story_id = s.id
		WHERE s.state = 'PUBLISHED'
		GROUP BY s.id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load stories: %w", err)
	}
	defer storyRows.Close()

	stories := make([]StoryRecord, 0)
	for storyRows.Next() {
		var s StoryRecord
		if err := storyRows.Scan(&s.ID, &s.Title, &s.Body, &s.Author, pq.Array(&s.TopicIDs)); err != nil {
			return nil, nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, s)
	}
	if err := storyRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate stories: %w", err)
	}

	topicRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, author
		FROM topics
		WHERE state = 'APPROVED'
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load topics: %w", err)
	}
	defer topicRows.Close()

	topics := make([]TopicRecord, 0)
	for topicRows.Next() {
		var t TopicRecord
		if err := topicRows.Scan(&t.ID, &t.Name, &t.Author); err != nil {
			return nil, nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := topicRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate topics: %w", err)
	}

	return stories, topics, nil
}
