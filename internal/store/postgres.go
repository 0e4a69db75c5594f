package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrVersionConflict is returned when an optimistic-concurrency update loses
// to a concurrent writer: the row exists but its version moved on.
var ErrVersionConflict = errors.New("version conflict")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn inside a transaction, rolling back on error. Cascading deletes
// go through here so no partial mutation is ever observable.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// checkVersioned interprets the outcome of a versioned UPDATE: zero rows
// means either the row is gone or a concurrent writer won.
func (s *PostgresStore) checkVersioned(ctx context.Context, res sql.Result, table, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id=$1)`, table)
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s row: %w", table, err)
	}
	if exists {
		return ErrVersionConflict
	}
	return sql.ErrNoRows
}

// --- users ---

func (s *PostgresStore) GetUserByName(ctx context.Context, name string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, password_hash, role, created_at FROM users WHERE name=$1
	`, name).Scan(&user.ID, &user.Name, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, password_hash, role, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Name, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) InsertUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
	`, user.ID, user.Name, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// --- stories ---

const storyColumns = `id, title, body, state, author, rejection_reason, version, created_at, updated_at`

func scanStory(row interface{ Scan(...any) error }) (Story, error) {
	var item Story
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Body,
		&item.State,
		&item.Author,
		&item.RejectionReason,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

// InsertStoryWithTopics persists a story and its initial topic associations
// as one unit: if any insert fails, nothing is kept.
func (s *PostgresStore) InsertStoryWithTopics(ctx context.Context, item Story, topicIDs []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stories (id, title, body, state, author, rejection_reason)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.ID, item.Title, item.Body, item.State, item.Author, item.RejectionReason); err != nil {
			return fmt.Errorf("insert story: %w", err)
		}
		for _, topicID := range topicIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO story_topics (story_id, topic_id)
				VALUES ($1, $2)
				ON CONFLICT (story_id, topic_id) DO NOTHING
			`, item.ID, topicID); err != nil {
				return fmt.Errorf("attach initial topic: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetStory(ctx context.Context, storyID string) (Story, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE id=$1`, storyID)
	return scanStory(row)
}

func (s *PostgresStore) ListStories(ctx context.Context) ([]Story, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+storyColumns+` FROM stories ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	items := make([]Story, 0)
	for rows.Next() {
		item, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateStoryContent(ctx context.Context, storyID, title, body string, version int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stories
		SET title=$2, body=$3, version=version+1, updated_at=NOW()
		WHERE id=$1 AND version=$4
	`, storyID, title, body, version)
	if err != nil {
		return fmt.Errorf("update story content: %w", err)
	}
	return s.checkVersioned(ctx, res, "stories", storyID)
}

func (s *PostgresStore) UpdateStoryState(ctx context.Context, storyID, state, rejectionReason string, version int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stories
		SET state=$2, rejection_reason=$3, version=version+1, updated_at=NOW()
		WHERE id=$1 AND version=$4
	`, storyID, state, rejectionReason, version)
	if err != nil {
		return fmt.Errorf("update story state: %w", err)
	}
	return s.checkVersioned(ctx, res, "stories", storyID)
}

// DeleteStory removes a story together with its comments, asset records and
// topic associations in one transaction. Topics themselves survive.
func (s *PostgresStore) DeleteStory(ctx context.Context, storyID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE story_id=$1`, storyID); err != nil {
			return fmt.Errorf("delete story comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE story_id=$1`, storyID); err != nil {
			return fmt.Errorf("delete story assets: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM story_topics WHERE story_id=$1`, storyID); err != nil {
			return fmt.Errorf("detach story topics: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM stories WHERE id=$1`, storyID)
		if err != nil {
			return fmt.Errorf("delete story: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// --- story <-> topic associations ---

// AttachTopic links a topic to a story. Re-attaching an existing pair is a
// no-op. State gating happens in the service layer.
func (s *PostgresStore) AttachTopic(ctx context.Context, storyID, topicID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO story_topics (story_id, topic_id)
		VALUES ($1, $2)
		ON CONFLICT (story_id, topic_id) DO NOTHING
	`, storyID, topicID)
	if err != nil {
		return fmt.Errorf("attach topic: %w", err)
	}
	return nil
}

// DetachTopic removes an association; detaching a pair that does not exist is
// silently ignored.
func (s *PostgresStore) DetachTopic(ctx context.Context, storyID, topicID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM story_topics WHERE story_id=$1 AND topic_id=$2
	`, storyID, topicID)
	if err != nil {
		return fmt.Errorf("detach topic: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStoryTopicIDs(ctx context.Context, storyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT topic_id FROM story_topics WHERE story_id=$1 ORDER BY topic_id
	`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list story topics: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan story topic: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate story topics: %w", err)
	}
	return ids, nil
}

// --- topics ---

const topicColumns = `id, name, state, author, parent_id, version, created_at`

func scanTopic(row interface{ Scan(...any) error }) (Topic, error) {
	var item Topic
	err := row.Scan(&item.ID, &item.Name, &item.State, &item.Author, &item.ParentID, &item.Version, &item.CreatedAt)
	return item, err
}

func (s *PostgresStore) InsertTopic(ctx context.Context, item Topic) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topics (id, name, state, author, parent_id)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.Name, item.State, item.Author, item.ParentID)
	if err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, topicID string) (Topic, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id=$1`, topicID)
	return scanTopic(row)
}

func (s *PostgresStore) ListTopics(ctx context.Context) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+topicColumns+` FROM topics ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	items := make([]Topic, 0)
	for rows.Next() {
		item, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTopicName(ctx context.Context, topicID, name string, version int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE topics SET name=$2, version=version+1 WHERE id=$1 AND version=$3
	`, topicID, name, version)
	if err != nil {
		return fmt.Errorf("update topic name: %w", err)
	}
	return s.checkVersioned(ctx, res, "topics", topicID)
}

func (s *PostgresStore) UpdateTopicState(ctx context.Context, topicID, state string, version int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE topics SET state=$2, version=version+1 WHERE id=$1 AND version=$3
	`, topicID, state, version)
	if err != nil {
		return fmt.Errorf("update topic state: %w", err)
	}
	return s.checkVersioned(ctx, res, "topics", topicID)
}

func (s *PostgresStore) SetTopicParent(ctx context.Context, topicID string, parentID *string, version int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE topics SET parent_id=$2, version=version+1 WHERE id=$1 AND version=$3
	`, topicID, parentID, version)
	if err != nil {
		return fmt.Errorf("set topic parent: %w", err)
	}
	return s.checkVersioned(ctx, res, "topics", topicID)
}

// DeleteTopic removes a topic, detaching it from all stories and orphaning
// its direct children (their parent becomes NULL; they are not deleted).
// All three steps commit together or not at all.
func (s *PostgresStore) DeleteTopic(ctx context.Context, topicID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM story_topics WHERE topic_id=$1`, topicID); err != nil {
			return fmt.Errorf("detach topic from stories: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE topics SET parent_id=NULL, version=version+1 WHERE parent_id=$1`, topicID); err != nil {
			return fmt.Errorf("orphan topic children: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM topics WHERE id=$1`, topicID)
		if err != nil {
			return fmt.Errorf("delete topic: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// --- comments ---

const commentColumns = `id, story_id, body, state, author, version, created_at`

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var item Comment
	err := row.Scan(&item.ID, &item.StoryID, &item.Body, &item.State, &item.Author, &item.Version, &item.CreatedAt)
	return item, err
}

func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, story_id, body, state, author)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.StoryID, item.Body, item.State, item.Author)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id=$1`, commentID)
	return scanComment(row)
}

func (s *PostgresStore) ListStoryComments(ctx context.Context, storyID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+` FROM comments WHERE story_id=$1 ORDER BY created_at
	`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list story comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateCommentBody(ctx context.Context, commentID, body string, version int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE comments SET body=$2, version=version+1 WHERE id=$1 AND version=$3
	`, commentID, body, version)
	if err != nil {
		return fmt.Errorf("update comment body: %w", err)
	}
	return s.checkVersioned(ctx, res, "comments", commentID)
}

func (s *PostgresStore) UpdateCommentState(ctx context.Context, commentID, state string, version int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE comments SET state=$2, version=version+1 WHERE id=$1 AND version=$3
	`, commentID, state, version)
	if err != nil {
		return fmt.Errorf("update comment state: %w", err)
	}
	return s.checkVersioned(ctx, res, "comments", commentID)
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- assets ---

func (s *PostgresStore) InsertAsset(ctx context.Context, item Asset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (id, story_id, filename, content_type, size, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.StoryID, item.Filename, item.ContentType, item.Size, item.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStoryAssets(ctx context.Context, storyID string) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, story_id, filename, content_type, size, uploaded_by, created_at
		FROM assets WHERE story_id=$1 ORDER BY created_at
	`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list story assets: %w", err)
	}
	defer rows.Close()

	items := make([]Asset, 0)
	for rows.Next() {
		var item Asset
		if err := rows.Scan(&item.ID, &item.StoryID, &item.Filename, &item.ContentType, &item.Size, &item.UploadedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return items, nil
}
