package app

import (
	"context"
	"io"
	"time"

	"newsdesk/api/internal/export"
	"newsdesk/api/internal/roles"
	"newsdesk/api/internal/store"
	"newsdesk/api/internal/util"
	"newsdesk/api/internal/workflow"
)

type AssetSnapshot struct {
	ID          string    `json:"id"`
	StoryID     string    `json:"storyId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

func assetSnapshot(item store.Asset) AssetSnapshot {
	return AssetSnapshot{
		ID:          item.ID,
		StoryID:     item.StoryID,
		Filename:    item.Filename,
		ContentType: item.ContentType,
		Size:        item.Size,
		UploadedBy:  item.UploadedBy,
		CreatedAt:   item.CreatedAt,
	}
}

// UploadAsset stores a media file against a story. Only the story's author
// or a curator may upload.
func (s *Service) UploadAsset(ctx context.Context, caller roles.Caller, storyID, filename, contentType string, size int64, r io.Reader) (AssetSnapshot, error) {
	if s.media == nil {
		return AssetSnapshot{}, errStorage(errMediaDisabled)
	}
	story, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return AssetSnapshot{}, storeErr(err)
	}
	if !storyVisible(caller, story) {
		return AssetSnapshot{}, errNotFound()
	}
	if !caller.Owns(story.Author) && !caller.IsCurator() {
		return AssetSnapshot{}, errForbidden()
	}
	if filename == "" {
		return AssetSnapshot{}, errValidation("filename is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	item := store.Asset{
		ID:          util.NewID("ast"),
		StoryID:     storyID,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  caller.Name,
	}
	if err := s.media.Put(ctx, item.ID, filename, contentType, size, r); err != nil {
		return AssetSnapshot{}, errStorage(err)
	}
	if err := s.store.InsertAsset(ctx, item); err != nil {
		return AssetSnapshot{}, storeErr(err)
	}
	return assetSnapshot(item), nil
}

// ListAssets lists the assets attached to a story the caller can see.
func (s *Service) ListAssets(ctx context.Context, caller roles.Caller, storyID string) ([]AssetSnapshot, error) {
	story, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !storyVisible(caller, story) {
		return nil, errNotFound()
	}
	all, err := s.store.ListStoryAssets(ctx, storyID)
	if err != nil {
		return nil, storeErr(err)
	}
	items := make([]AssetSnapshot, 0, len(all))
	for _, item := range all {
		items = append(items, assetSnapshot(item))
	}
	return items, nil
}

// AssetDownloadURL returns a presigned URL for an asset on a visible story.
func (s *Service) AssetDownloadURL(ctx context.Context, caller roles.Caller, storyID, assetID string) (string, error) {
	if s.media == nil {
		return "", errStorage(errMediaDisabled)
	}
	story, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return "", storeErr(err)
	}
	if !storyVisible(caller, story) {
		return "", errNotFound()
	}
	assets, err := s.store.ListStoryAssets(ctx, storyID)
	if err != nil {
		return "", storeErr(err)
	}
	for _, item := range assets {
		if item.ID == assetID {
			u, err := s.media.PresignedURL(ctx, item.ID, item.Filename, 15*time.Minute)
			if err != nil {
				return "", errStorage(err)
			}
			return u, nil
		}
	}
	return "", errNotFound()
}

// ExportStory renders a story to PDF or DOCX. The story must be visible to
// the caller; approved comments are included on request.
func (s *Service) ExportStory(ctx context.Context, caller roles.Caller, storyID string, format export.Format, includeComments bool) (*export.Result, error) {
	if s.exporter == nil {
		return nil, errStorage(errExportDisabled)
	}
	story, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !storyVisible(caller, story) {
		return nil, errNotFound()
	}
	result, err := s.exporter.Export(ctx, export.Request{
		StoryID:         storyID,
		Format:          format,
		IncludeComments: includeComments,
	})
	if err != nil {
		return nil, errStorage(err)
	}
	return result, nil
}

// exportData adapts the service's data store to the exporter's needs.
type exportData struct {
	store dataStore
}

func (d *exportData) GetStory(ctx context.Context, storyID string) (export.StoryInfo, error) {
	item, err := d.store.GetStory(ctx, storyID)
	if err != nil {
		return export.StoryInfo{}, err
	}
	return export.StoryInfo{
		ID:        item.ID,
		Title:     item.Title,
		Body:      item.Body,
		Author:    item.Author,
		UpdatedAt: item.UpdatedAt,
	}, nil
}

func (d *exportData) ListStoryTopicNames(ctx context.Context, storyID string) ([]string, error) {
	ids, err := d.store.ListStoryTopicIDs(ctx, storyID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		topic, err := d.store.GetTopic(ctx, id)
		if err != nil {
			continue
		}
		names = append(names, topic.Name)
	}
	return names, nil
}

func (d *exportData) ListApprovedComments(ctx context.Context, storyID string) ([]export.CommentInfo, error) {
	all, err := d.store.ListStoryComments(ctx, storyID)
	if err != nil {
		return nil, err
	}
	comments := make([]export.CommentInfo, 0, len(all))
	for _, item := range all {
		if item.State != string(workflow.StateApproved) {
			continue
		}
		comments = append(comments, export.CommentInfo{Author: item.Author, Body: item.Body})
	}
	return comments, nil
}
