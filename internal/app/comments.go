package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"newsdesk/api/internal/roles"
	"newsdesk/api/internal/store"
	"newsdesk/api/internal/util"
	"newsdesk/api/internal/workflow"
)

type CommentSnapshot struct {
	ID        string    `json:"id"`
	StoryID   string    `json:"storyId"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	Author    string    `json:"author"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

func commentSnapshot(item store.Comment) CommentSnapshot {
	return CommentSnapshot{
		ID:        item.ID,
		StoryID:   item.StoryID,
		Body:      item.Body,
		State:     item.State,
		Author:    item.Author,
		Version:   item.Version,
		CreatedAt: item.CreatedAt,
	}
}

// CreateComment files a comment against a story the caller can see. Every
// role may comment, including anonymous visitors, whose comments carry an
// empty author and are therefore unownable.
func (s *Service) CreateComment(ctx context.Context, caller roles.Caller, storyID, body string) (CommentSnapshot, error) {
	story, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return CommentSnapshot{}, storeErr(err)
	}
	if !storyVisible(caller, story) {
		return CommentSnapshot{}, errNotFound()
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return CommentSnapshot{}, errValidation("body is required")
	}

	item := store.Comment{
		ID:      util.NewID("cmt"),
		StoryID: storyID,
		Body:    body,
		State:   string(workflow.InitialState(workflow.KindComment)),
		Author:  caller.Name,
	}
	if caller.Role == roles.RoleAnonymous {
		item.Author = ""
	}
	if err := s.store.InsertComment(ctx, item); err != nil {
		return CommentSnapshot{}, storeErr(err)
	}
	created, err := s.store.GetComment(ctx, item.ID)
	if err != nil {
		return CommentSnapshot{}, storeErr(err)
	}
	return commentSnapshot(created), nil
}

func (s *Service) GetComment(ctx context.Context, caller roles.Caller, commentID string) (CommentSnapshot, error) {
	item, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return CommentSnapshot{}, storeErr(err)
	}
	if !commentVisible(caller, item) {
		return CommentSnapshot{}, errNotFound()
	}
	return commentSnapshot(item), nil
}

// ListStoryComments lists the comments on a story the caller can see,
// visibility-filtered per comment. The story itself must be visible first.
func (s *Service) ListStoryComments(ctx context.Context, caller roles.Caller, storyID string) ([]CommentSnapshot, error) {
	story, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !storyVisible(caller, story) {
		return nil, errNotFound()
	}
	all, err := s.store.ListStoryComments(ctx, storyID)
	if err != nil {
		return nil, storeErr(err)
	}
	items := make([]CommentSnapshot, 0, len(all))
	for _, item := range all {
		if commentVisible(caller, item) {
			items = append(items, commentSnapshot(item))
		}
	}
	return items, nil
}

// UpdateComment edits a comment body. The owner may edit while the comment
// is still SUBMITTED; a curator may edit at any time.
func (s *Service) UpdateComment(ctx context.Context, caller roles.Caller, commentID, body string) (CommentSnapshot, error) {
	item, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return CommentSnapshot{}, storeErr(err)
	}
	if !commentVisible(caller, item) {
		return CommentSnapshot{}, errNotFound()
	}
	switch {
	case caller.IsCurator():
	case caller.Owns(item.Author) && item.State == string(workflow.StateSubmitted):
	case caller.Owns(item.Author):
		return CommentSnapshot{}, errInvalidTransition("an approved comment cannot be edited by its author")
	default:
		return CommentSnapshot{}, errForbidden()
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return CommentSnapshot{}, errValidation("body is required")
	}
	if err := s.store.UpdateCommentBody(ctx, commentID, body, item.Version); err != nil {
		return CommentSnapshot{}, storeErr(err)
	}
	updated, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return CommentSnapshot{}, storeErr(err)
	}
	return commentSnapshot(updated), nil
}

// ModerateComment approves or rejects a SUBMITTED comment. Reject deletes
// the comment outright.
func (s *Service) ModerateComment(ctx context.Context, caller roles.Caller, commentID string, cmd workflow.Command) (CommentSnapshot, error) {
	if !workflow.Authorized(workflow.KindComment, cmd, caller.Role) {
		return CommentSnapshot{}, errForbidden()
	}

	for attempt := 0; ; attempt++ {
		item, err := s.store.GetComment(ctx, commentID)
		if err != nil {
			return CommentSnapshot{}, storeErr(err)
		}

		decision, err := workflow.AttemptTransition(workflow.KindComment, workflow.State(item.State), cmd, caller, item.Author)
		if errors.Is(err, workflow.ErrDenied) {
			return CommentSnapshot{}, errForbidden()
		}
		if errors.Is(err, workflow.ErrInvalidTransition) {
			return CommentSnapshot{}, errInvalidTransition("command " + string(cmd) + " is not valid for state " + item.State)
		}

		if decision.Delete {
			if err := s.store.DeleteComment(ctx, commentID); err != nil {
				return CommentSnapshot{}, storeErr(err)
			}
			return commentSnapshot(item), nil
		}

		err = s.store.UpdateCommentState(ctx, commentID, string(decision.Next), item.Version)
		if errors.Is(err, store.ErrVersionConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return CommentSnapshot{}, storeErr(err)
		}
		updated, err := s.store.GetComment(ctx, commentID)
		if err != nil {
			return CommentSnapshot{}, storeErr(err)
		}
		return commentSnapshot(updated), nil
	}
}

// DeleteComment removes a comment. Curators only.
func (s *Service) DeleteComment(ctx context.Context, caller roles.Caller, commentID string) error {
	if !caller.IsCurator() {
		return errForbidden()
	}
	if _, err := s.store.GetComment(ctx, commentID); err != nil {
		return storeErr(err)
	}
	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return storeErr(err)
	}
	return nil
}
