package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"newsdesk/api/internal/roles"
	"newsdesk/api/internal/search"
	"newsdesk/api/internal/store"
	"newsdesk/api/internal/util"
	"newsdesk/api/internal/workflow"
)

type TopicSnapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Author    string    `json:"author"`
	ParentID  *string   `json:"parentId"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreateTopicInput struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
}

func topicSnapshot(item store.Topic) TopicSnapshot {
	return TopicSnapshot{
		ID:        item.ID,
		Name:      item.Name,
		State:     item.State,
		Author:    item.Author,
		ParentID:  item.ParentID,
		Version:   item.Version,
		CreatedAt: item.CreatedAt,
	}
}

// CreateTopic persists a new topic in the moderation queue. Unlike story
// attachment, a parent link carries no state precondition: a child may hang
// off a still-SUBMITTED parent.
func (s *Service) CreateTopic(ctx context.Context, caller roles.Caller, input CreateTopicInput) (TopicSnapshot, error) {
	if !roles.Can(caller.Role, roles.ActionCreateTopic) {
		return TopicSnapshot{}, errForbidden()
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return TopicSnapshot{}, errValidation("name is required")
	}

	if input.ParentID != nil {
		if _, err := s.store.GetTopic(ctx, *input.ParentID); err != nil {
			return TopicSnapshot{}, parentErr(err)
		}
	}

	item := store.Topic{
		ID:       util.NewID("top"),
		Name:     name,
		State:    string(workflow.InitialState(workflow.KindTopic)),
		Author:   caller.Name,
		ParentID: input.ParentID,
	}
	if err := s.store.InsertTopic(ctx, item); err != nil {
		return TopicSnapshot{}, storeErr(err)
	}
	created, err := s.store.GetTopic(ctx, item.ID)
	if err != nil {
		return TopicSnapshot{}, storeErr(err)
	}
	return topicSnapshot(created), nil
}

func (s *Service) GetTopic(ctx context.Context, caller roles.Caller, topicID string) (TopicSnapshot, error) {
	item, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return TopicSnapshot{}, storeErr(err)
	}
	if !topicVisible(caller, item) {
		return TopicSnapshot{}, errNotFound()
	}
	return topicSnapshot(item), nil
}

// ListTopics returns the topics the caller may see, visibility-filtered
// before pagination.
func (s *Service) ListTopics(ctx context.Context, caller roles.Caller, limit, offset int) ([]TopicSnapshot, error) {
	all, err := s.store.ListTopics(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	visible := make([]store.Topic, 0, len(all))
	for _, item := range all {
		if topicVisible(caller, item) {
			visible = append(visible, item)
		}
	}
	if offset > 0 {
		if offset >= len(visible) {
			visible = nil
		} else {
			visible = visible[offset:]
		}
	}
	if limit > 0 && len(visible) > limit {
		visible = visible[:limit]
	}
	items := make([]TopicSnapshot, 0, len(visible))
	for _, item := range visible {
		items = append(items, topicSnapshot(item))
	}
	return items, nil
}

// UpdateTopicName edits a topic's name. An APPROVED topic is immutable.
func (s *Service) UpdateTopicName(ctx context.Context, caller roles.Caller, topicID, name string) (TopicSnapshot, error) {
	item, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return TopicSnapshot{}, storeErr(err)
	}
	if !topicVisible(caller, item) {
		return TopicSnapshot{}, errNotFound()
	}
	if !caller.Owns(item.Author) {
		return TopicSnapshot{}, errForbidden()
	}
	if item.State != string(workflow.StateSubmitted) {
		return TopicSnapshot{}, errInvalidTransition("an approved topic cannot be edited")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return TopicSnapshot{}, errValidation("name is required")
	}
	if err := s.store.UpdateTopicName(ctx, topicID, name, item.Version); err != nil {
		return TopicSnapshot{}, storeErr(err)
	}
	updated, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return TopicSnapshot{}, storeErr(err)
	}
	return topicSnapshot(updated), nil
}

// SetTopicParent re-parents a topic within the forest. A nil parent makes the
// topic a root. The new parent must exist and must not be the topic itself or
// any of its descendants.
func (s *Service) SetTopicParent(ctx context.Context, caller roles.Caller, topicID string, parentID *string) (TopicSnapshot, error) {
	item, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return TopicSnapshot{}, storeErr(err)
	}
	if !topicVisible(caller, item) {
		return TopicSnapshot{}, errNotFound()
	}
	if !caller.Owns(item.Author) && !caller.IsCurator() {
		return TopicSnapshot{}, errForbidden()
	}

	if parentID != nil {
		if err := s.checkNoCycle(ctx, topicID, *parentID); err != nil {
			return TopicSnapshot{}, err
		}
	}

	if err := s.store.SetTopicParent(ctx, topicID, parentID, item.Version); err != nil {
		return TopicSnapshot{}, storeErr(err)
	}
	updated, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return TopicSnapshot{}, storeErr(err)
	}
	return topicSnapshot(updated), nil
}

// checkNoCycle walks the ancestor chain of the proposed parent up to the
// root. Finding topicID on the way (or as the parent itself) means the edit
// would close a cycle. The visited set bounds the walk even if stored data
// is already corrupt.
func (s *Service) checkNoCycle(ctx context.Context, topicID, parentID string) error {
	if parentID == topicID {
		return domainError(http.StatusConflict, CodeCycleDetected, "a topic cannot be its own parent", nil)
	}
	parent, err := s.store.GetTopic(ctx, parentID)
	if err != nil {
		return parentErr(err)
	}
	visited := map[string]struct{}{parentID: {}}
	for parent.ParentID != nil {
		ancestorID := *parent.ParentID
		if ancestorID == topicID {
			return domainError(http.StatusConflict, CodeCycleDetected, "new parent is a descendant of the topic", nil)
		}
		if _, seen := visited[ancestorID]; seen {
			return domainError(http.StatusConflict, CodeCycleDetected, "topic hierarchy already contains a cycle", nil)
		}
		visited[ancestorID] = struct{}{}
		parent, err = s.store.GetTopic(ctx, ancestorID)
		if err != nil {
			return parentErr(err)
		}
	}
	return nil
}

func parentErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusUnprocessableEntity, CodeParentNotFound, "parent topic does not exist", nil)
	}
	return storeErr(err)
}

// ModerateTopic approves or rejects a SUBMITTED topic. Reject is terminal:
// the topic is deleted outright, cascading like any topic deletion.
func (s *Service) ModerateTopic(ctx context.Context, caller roles.Caller, topicID string, cmd workflow.Command) (TopicSnapshot, error) {
	if !workflow.Authorized(workflow.KindTopic, cmd, caller.Role) {
		return TopicSnapshot{}, errForbidden()
	}

	for attempt := 0; ; attempt++ {
		item, err := s.store.GetTopic(ctx, topicID)
		if err != nil {
			return TopicSnapshot{}, storeErr(err)
		}

		decision, err := workflow.AttemptTransition(workflow.KindTopic, workflow.State(item.State), cmd, caller, item.Author)
		if errors.Is(err, workflow.ErrDenied) {
			return TopicSnapshot{}, errForbidden()
		}
		if errors.Is(err, workflow.ErrInvalidTransition) {
			return TopicSnapshot{}, errInvalidTransition("command " + string(cmd) + " is not valid for state " + item.State)
		}

		if decision.Delete {
			if err := s.store.DeleteTopic(ctx, topicID); err != nil {
				return TopicSnapshot{}, storeErr(err)
			}
			if s.search != nil {
				s.search.RemoveTopic(topicID)
			}
			return topicSnapshot(item), nil
		}

		err = s.store.UpdateTopicState(ctx, topicID, string(decision.Next), item.Version)
		if errors.Is(err, store.ErrVersionConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return TopicSnapshot{}, storeErr(err)
		}
		if s.search != nil {
			s.search.IndexTopic(search.TopicRecord{ID: item.ID, Name: item.Name, Author: item.Author})
		}
		updated, err := s.store.GetTopic(ctx, topicID)
		if err != nil {
			return TopicSnapshot{}, storeErr(err)
		}
		return topicSnapshot(updated), nil
	}
}

// DeleteTopic removes a topic regardless of state: associations to stories
// are dropped, direct children become roots, and the topic row goes away,
// all in one transaction.
func (s *Service) DeleteTopic(ctx context.Context, caller roles.Caller, topicID string) error {
	if !caller.IsCurator() {
		return errForbidden()
	}
	if _, err := s.store.GetTopic(ctx, topicID); err != nil {
		return storeErr(err)
	}
	if err := s.store.DeleteTopic(ctx, topicID); err != nil {
		return storeErr(err)
	}
	if s.search != nil {
		s.search.RemoveTopic(topicID)
	}
	return nil
}
