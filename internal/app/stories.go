package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"newsdesk/api/internal/drafts"
	"newsdesk/api/internal/roles"
	"newsdesk/api/internal/search"
	"newsdesk/api/internal/store"
	"newsdesk/api/internal/util"
	"newsdesk/api/internal/workflow"
)

type StorySnapshot struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	State           string    `json:"state"`
	Author          string    `json:"author"`
	RejectionReason string    `json:"rejectionReason,omitempty"`
	TopicIDs        []string  `json:"topicIds"`
	Version         int       `json:"version"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type CreateStoryInput struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	TopicIDs []string `json:"topicIds"`
}

type UpdateStoryInput struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type StoryFilter struct {
	State   string
	TopicID string
	Limit   int
	Offset  int
}

func (s *Service) storySnapshot(ctx context.Context, item store.Story) (StorySnapshot, error) {
	topicIDs, err := s.store.ListStoryTopicIDs(ctx, item.ID)
	if err != nil {
		return StorySnapshot{}, storeErr(err)
	}
	return StorySnapshot{
		ID:              item.ID,
		Title:           item.Title,
		Body:            item.Body,
		State:           item.State,
		Author:          item.Author,
		RejectionReason: item.RejectionReason,
		TopicIDs:        topicIDs,
		Version:         item.Version,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}, nil
}

// CreateStory persists a new author-private story. Initial topic IDs are
// validated like attach: blank entries are a validation error, while unknown
// or not-yet-approved topics are silently skipped.
func (s *Service) CreateStory(ctx context.Context, caller roles.Caller, input CreateStoryInput) (StorySnapshot, error) {
	if !roles.Can(caller.Role, roles.ActionCreateStory) {
		return StorySnapshot{}, errForbidden()
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return StorySnapshot{}, errValidation("title is required")
	}
	body := strings.TrimSpace(input.Body)

	topicIDs := make([]string, 0, len(input.TopicIDs))
	for _, topicID := range input.TopicIDs {
		if strings.TrimSpace(topicID) == "" {
			return StorySnapshot{}, errValidation("topic id must not be blank")
		}
		topic, err := s.store.GetTopic(ctx, topicID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return StorySnapshot{}, storeErr(err)
		}
		if topic.State != string(workflow.StateApproved) {
			continue
		}
		topicIDs = append(topicIDs, topicID)
	}

	item := store.Story{
		ID:     util.NewID("sty"),
		Title:  title,
		Body:   body,
		State:  string(workflow.InitialState(workflow.KindStory)),
		Author: caller.Name,
	}
	if err := s.store.InsertStoryWithTopics(ctx, item, topicIDs); err != nil {
		return StorySnapshot{}, storeErr(err)
	}

	if s.drafts != nil {
		if err := s.drafts.EnsureStoryRepo(item.ID, drafts.Content{Title: title, Body: body}, caller.Name); err != nil {
			log.Printf("drafts: init repo for %s: %v", item.ID, err)
		}
	}

	created, err := s.store.GetStory(ctx, item.ID)
	if err != nil {
		return StorySnapshot{}, storeErr(err)
	}
	return s.storySnapshot(ctx, created)
}

// GetStory reads a story through the visibility filter; a story the caller
// may not see reads as absent.
func (s *Service) GetStory(ctx context.Context, caller roles.Caller, storyID string) (StorySnapshot, error) {
	item, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return StorySnapshot{}, storeErr(err)
	}
	if !storyVisible(caller, item) {
		return StorySnapshot{}, errNotFound()
	}
	return s.storySnapshot(ctx, item)
}

// ListStories applies the visibility filter over the full story set before
// any pagination, so hidden entities never affect offsets or totals.
func (s *Service) ListStories(ctx context.Context, caller roles.Caller, filter StoryFilter) ([]StorySnapshot, error) {
	all, err := s.store.ListStories(ctx)
	if err != nil {
		return nil, storeErr(err)
	}

	visible := make([]store.Story, 0, len(all))
	for _, item := range all {
		if !storyVisible(caller, item) {
			continue
		}
		if filter.State != "" && item.State != filter.State {
			continue
		}
		visible = append(visible, item)
	}

	if filter.TopicID != "" {
		withTopic := visible[:0]
		for _, item := range visible {
			topicIDs, err := s.store.ListStoryTopicIDs(ctx, item.ID)
			if err != nil {
				return nil, storeErr(err)
			}
			for _, id := range topicIDs {
				if id == filter.TopicID {
					withTopic = append(withTopic, item)
					break
				}
			}
		}
		visible = withTopic
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(visible) {
			visible = nil
		} else {
			visible = visible[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(visible) > filter.Limit {
		visible = visible[:filter.Limit]
	}

	items := make([]StorySnapshot, 0, len(visible))
	for _, item := range visible {
		snapshot, err := s.storySnapshot(ctx, item)
		if err != nil {
			return nil, err
		}
		items = append(items, snapshot)
	}
	return items, nil
}

// UpdateStory edits story fields. Only the owning journalist may edit, and
// only while the story is CREATED.
func (s *Service) UpdateStory(ctx context.Context, caller roles.Caller, storyID string, input UpdateStoryInput) (StorySnapshot, error) {
	item, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return StorySnapshot{}, storeErr(err)
	}
	if !storyVisible(caller, item) {
		return StorySnapshot{}, errNotFound()
	}
	if !caller.Owns(item.Author) {
		return StorySnapshot{}, errForbidden()
	}
	if item.State != string(workflow.StateCreated) {
		return StorySnapshot{}, errInvalidTransition("story is no longer editable")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return StorySnapshot{}, errValidation("title is required")
	}
	body := strings.TrimSpace(input.Body)

	if err := s.store.UpdateStoryContent(ctx, storyID, title, body, item.Version); err != nil {
		return StorySnapshot{}, storeErr(err)
	}
	s.commitDraftRevision(storyID, drafts.Content{Title: title, Body: body}, caller.Name, "Revise draft")

	updated, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return StorySnapshot{}, storeErr(err)
	}
	return s.storySnapshot(ctx, updated)
}

// ModerateStory applies a workflow command (submit, approve, publish,
// reject). A lost optimistic-concurrency race is retried once against a
// fresh snapshot before CONFLICT is surfaced.
func (s *Service) ModerateStory(ctx context.Context, caller roles.Caller, storyID string, cmd workflow.Command, reason string) (StorySnapshot, error) {
	// Role check precedes any entity load: an unauthorized caller learns
	// nothing about existence or state.
	if !workflow.Authorized(workflow.KindStory, cmd, caller.Role) {
		return StorySnapshot{}, errForbidden()
	}
	reason = strings.TrimSpace(reason)
	if cmd == workflow.CommandReject && reason == "" {
		return StorySnapshot{}, errValidation("a rejection reason is required")
	}

	for attempt := 0; ; attempt++ {
		item, err := s.store.GetStory(ctx, storyID)
		if err != nil {
			return StorySnapshot{}, storeErr(err)
		}

		decision, err := workflow.AttemptTransition(workflow.KindStory, workflow.State(item.State), cmd, caller, item.Author)
		if errors.Is(err, workflow.ErrDenied) {
			// An ownership denial on a story the caller cannot see must
			// match what the read path reports, or probing a moderation
			// verb would confirm the story exists.
			if !storyVisible(caller, item) {
				return StorySnapshot{}, errNotFound()
			}
			return StorySnapshot{}, errForbidden()
		}
		if errors.Is(err, workflow.ErrInvalidTransition) {
			return StorySnapshot{}, errInvalidTransition("command " + string(cmd) + " is not valid for state " + item.State)
		}

		rejectionReason := ""
		if cmd == workflow.CommandReject {
			rejectionReason = reason
		}
		err = s.store.UpdateStoryState(ctx, storyID, string(decision.Next), rejectionReason, item.Version)
		if errors.Is(err, store.ErrVersionConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return StorySnapshot{}, storeErr(err)
		}

		switch cmd {
		case workflow.CommandPublish:
			s.indexStory(ctx, storyID)
		case workflow.CommandReject:
			s.commitDraftRevision(storyID, drafts.Content{Title: item.Title, Body: item.Body}, caller.Name, "Rejected: "+reason)
		}

		updated, err := s.store.GetStory(ctx, storyID)
		if err != nil {
			return StorySnapshot{}, storeErr(err)
		}
		return s.storySnapshot(ctx, updated)
	}
}

// DeleteStory removes a story and, by cascade, all its comments and asset
// records. Associated topics survive. Curators may delete any story they can
// see; the owning journalist may delete only while it is still
// author-private.
func (s *Service) DeleteStory(ctx context.Context, caller roles.Caller, storyID string) error {
	item, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return storeErr(err)
	}
	if !storyVisible(caller, item) {
		return errNotFound()
	}
	switch {
	case caller.IsCurator():
	case caller.Owns(item.Author) && item.State == string(workflow.StateCreated):
	default:
		return errForbidden()
	}

	assets, err := s.store.ListStoryAssets(ctx, storyID)
	if err != nil {
		return storeErr(err)
	}

	if err := s.store.DeleteStory(ctx, storyID); err != nil {
		return storeErr(err)
	}
	if s.media != nil {
		for _, asset := range assets {
			if err := s.media.Remove(ctx, asset.ID, asset.Filename); err != nil {
				log.Printf("media: remove object for asset %s: %v", asset.ID, err)
			}
		}
	}
	if s.search != nil {
		s.search.RemoveStory(storyID)
	}
	return nil
}

// AttachTopic associates an APPROVED topic with a story. Attaching an
// already-attached topic is a no-op.
func (s *Service) AttachTopic(ctx context.Context, caller roles.Caller, storyID, topicID string) (StorySnapshot, error) {
	item, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return StorySnapshot{}, storeErr(err)
	}
	if !storyVisible(caller, item) {
		return StorySnapshot{}, errNotFound()
	}
	if !caller.Owns(item.Author) && !caller.IsCurator() {
		return StorySnapshot{}, errForbidden()
	}

	topic, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return StorySnapshot{}, storeErr(err)
	}
	if topic.State != string(workflow.StateApproved) {
		return StorySnapshot{}, domainError(http.StatusUnprocessableEntity, CodeTopicNotApproved, "only approved topics can be attached", map[string]any{
			"topicId": topicID,
		})
	}

	if err := s.store.AttachTopic(ctx, storyID, topicID); err != nil {
		return StorySnapshot{}, storeErr(err)
	}
	return s.storySnapshot(ctx, item)
}

// DetachTopic removes an association. Detaching a topic that is not attached
// (or no longer exists) is silently ignored.
func (s *Service) DetachTopic(ctx context.Context, caller roles.Caller, storyID, topicID string) (StorySnapshot, error) {
	item, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return StorySnapshot{}, storeErr(err)
	}
	if !storyVisible(caller, item) {
		return StorySnapshot{}, errNotFound()
	}
	if !caller.Owns(item.Author) && !caller.IsCurator() {
		return StorySnapshot{}, errForbidden()
	}

	if err := s.store.DetachTopic(ctx, storyID, topicID); err != nil {
		return StorySnapshot{}, storeErr(err)
	}
	return s.storySnapshot(ctx, item)
}

// StoryHistory lists draft revisions. Drafts are author-private: only the
// owner and curators may read them.
func (s *Service) StoryHistory(ctx context.Context, caller roles.Caller, storyID string, limit int) ([]store.CommitInfo, error) {
	item, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !caller.Owns(item.Author) && !caller.IsCurator() {
		return nil, errNotFound()
	}
	if s.drafts == nil {
		return nil, domainError(http.StatusServiceUnavailable, CodeStorageUnavailable, "draft history is not configured", nil)
	}
	items, err := s.drafts.History(storyID, limit)
	if err != nil {
		return nil, errStorage(err)
	}
	return items, nil
}

func (s *Service) indexStory(ctx context.Context, storyID string) {
	if s.search == nil {
		return
	}
	item, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		log.Printf("search: load story %s for indexing: %v", storyID, err)
		return
	}
	topicIDs, err := s.store.ListStoryTopicIDs(ctx, storyID)
	if err != nil {
		topicIDs = nil
	}
	s.search.IndexStory(search.StoryRecord{
		ID:       item.ID,
		Title:    item.Title,
		Body:     item.Body,
		Author:   item.Author,
		TopicIDs: topicIDs,
	})
}
