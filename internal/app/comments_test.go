package app

import (
	"context"
	"testing"

	"newsdesk/api/internal/workflow"
)

func publishedStory(t *testing.T, env *testEnv) StorySnapshot {
	t.Helper()
	ctx := context.Background()
	story, err := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "Published piece", Body: "Text"})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	if _, err := env.service.ModerateStory(ctx, ana, story.ID, workflow.CommandSubmit, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.service.ModerateStory(ctx, mona, story.ID, workflow.CommandApprove, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	published, err := env.service.ModerateStory(ctx, mona, story.ID, workflow.CommandPublish, "")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return published
}

func TestAnonymousCommentFlow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	story := publishedStory(t, env)

	comment, err := env.service.CreateComment(ctx, visitor, story.ID, "great reporting")
	if err != nil {
		t.Fatalf("anonymous comment: %v", err)
	}
	if comment.State != "SUBMITTED" {
		t.Fatalf("expected SUBMITTED, got %s", comment.State)
	}
	if comment.Author != "" {
		t.Fatalf("anonymous comments carry no author, got %q", comment.Author)
	}

	// Pending comments are invisible to the public.
	visible, _ := env.service.ListStoryComments(ctx, visitor, story.ID)
	if len(visible) != 0 {
		t.Fatalf("visitor should not see pending comments, got %d", len(visible))
	}
	queued, _ := env.service.ListStoryComments(ctx, mona, story.ID)
	if len(queued) != 1 {
		t.Fatalf("curator should see the pending comment, got %d", len(queued))
	}

	if _, err := env.service.ModerateComment(ctx, mona, comment.ID, workflow.CommandApprove); err != nil {
		t.Fatalf("approve comment: %v", err)
	}
	visible, _ = env.service.ListStoryComments(ctx, visitor, story.ID)
	if len(visible) != 1 {
		t.Fatalf("visitor should see the approved comment, got %d", len(visible))
	}
}

func TestCommentOnHiddenStoryReadsAsAbsent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	story, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "Private"})
	_, err := env.service.CreateComment(ctx, visitor, story.ID, "hello?")
	wantCode(t, err, CodeNotFound)
}

func TestCommentRejectDeletes(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	story := publishedStory(t, env)

	comment, _ := env.service.CreateComment(ctx, ben, story.ID, "spam spam")
	if _, err := env.service.ModerateComment(ctx, mona, comment.ID, workflow.CommandReject); err != nil {
		t.Fatalf("reject comment: %v", err)
	}
	if _, err := env.service.GetComment(ctx, mona, comment.ID); err == nil {
		t.Fatal("rejected comment should be gone")
	}
}

func TestCommentEditRules(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	story := publishedStory(t, env)

	comment, _ := env.service.CreateComment(ctx, ben, story.ID, "first draft")

	// Owner edits while SUBMITTED.
	if _, err := env.service.UpdateComment(ctx, ben, comment.ID, "second draft"); err != nil {
		t.Fatalf("owner edit while SUBMITTED: %v", err)
	}

	// Other journalists cannot see it, let alone edit it.
	_, err := env.service.UpdateComment(ctx, ana, comment.ID, "hijack")
	wantCode(t, err, CodeNotFound)

	if _, err := env.service.ModerateComment(ctx, mona, comment.ID, workflow.CommandApprove); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// After approval the owner is locked out, the curator is not.
	_, err = env.service.UpdateComment(ctx, ben, comment.ID, "too late")
	wantCode(t, err, CodeInvalidTransition)
	if _, err := env.service.UpdateComment(ctx, mona, comment.ID, "redacted"); err != nil {
		t.Fatalf("curator edit after approval: %v", err)
	}

	// Anonymous comments are unownable, so only curators can ever edit them.
	anon, _ := env.service.CreateComment(ctx, visitor, story.ID, "mine forever")
	_, err = env.service.UpdateComment(ctx, visitor, anon.ID, "edited")
	wantCode(t, err, CodeNotFound)
}

func TestCommentDeleteIsCuratorOnly(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	story := publishedStory(t, env)

	comment, _ := env.service.CreateComment(ctx, ben, story.ID, "keep me")
	err := env.service.DeleteComment(ctx, ben, comment.ID)
	wantCode(t, err, CodeForbidden)

	if err := env.service.DeleteComment(ctx, mona, comment.ID); err != nil {
		t.Fatalf("curator delete: %v", err)
	}
}

func TestCommentModerationRetriesVersionConflictOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	story := publishedStory(t, env)

	first, err := env.service.CreateComment(ctx, ben, story.ID, "First")
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}

	env.store.forceCommentConflicts = 1
	approved, err := env.service.ModerateComment(ctx, mona, first.ID, workflow.CommandApprove)
	if err != nil {
		t.Fatalf("expected single conflict to be retried: %v", err)
	}
	if approved.State != "APPROVED" {
		t.Fatalf("expected APPROVED after retry, got %s", approved.State)
	}

	second, err := env.service.CreateComment(ctx, ben, story.ID, "Second")
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	env.store.forceCommentConflicts = 2
	_, err = env.service.ModerateComment(ctx, mona, second.ID, workflow.CommandApprove)
	wantCode(t, err, CodeConflict)

	// A curator losing the race to another approval reloads and finds the
	// command no longer applies.
	_, err = env.service.ModerateComment(ctx, mona, first.ID, workflow.CommandApprove)
	wantCode(t, err, CodeInvalidTransition)
}
