package export

import (
	"context"
	"fmt"
	"time"
)

// DataStore defines the data access the exporter needs.
type DataStore interface {
	GetStory(ctx context.Context, storyID string) (StoryInfo, error)
	ListStoryTopicNames(ctx context.Context, storyID string) ([]string, error)
	ListApprovedComments(ctx context.Context, storyID string) ([]CommentInfo, error)
}

// StoryInfo holds story metadata and content for export.
type StoryInfo struct {
	ID        string
	Title     string
	Body      string
	Author    string
	UpdatedAt time.Time
}

// CommentInfo holds comment data for export.
type CommentInfo struct {
	Author string
	Body   string
}

// Service renders stories to downloadable formats.
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	info, err := s.store.GetStory(ctx, req.StoryID)
	if err != nil {
		return nil, fmt.Errorf("get story: %w", err)
	}

	topics, err := s.store.ListStoryTopicNames(ctx, req.StoryID)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}

	data := TemplateData{
		Title:     info.Title,
		BodyHTML:  BodyToHTML(info.Body),
		Author:    info.Author,
		Topics:    topics,
		UpdatedAt: info.UpdatedAt,
	}

	if req.IncludeComments {
		comments, err := s.store.ListApprovedComments(ctx, req.StoryID)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		for _, c := range comments {
			data.Comments = append(data.Comments, TemplateComment{
				Author: c.Author,
				Body:   c.Body,
			})
		}
	}

	html, err := RenderStoryHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return renderPDF(ctx, html, info.Title)
	case FormatDOCX:
		return renderDOCX(ctx, html, info.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
