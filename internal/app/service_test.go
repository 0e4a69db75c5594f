package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"newsdesk/api/internal/config"
	"newsdesk/api/internal/drafts"
	"newsdesk/api/internal/roles"
	"newsdesk/api/internal/search"
	"newsdesk/api/internal/store"
	"newsdesk/api/internal/workflow"
)

// memStore is an in-memory dataStore used across the service tests. It
// mirrors the Postgres store's semantics: versioned updates fail with
// ErrVersionConflict on a stale version, and deletes cascade.
type memStore struct {
	mu       sync.Mutex
	users    map[string]store.User
	stories  map[string]store.Story
	topics   map[string]store.Topic
	comments map[string]store.Comment
	assets   map[string][]store.Asset
	links    map[string]map[string]bool

	storyOrder []string
	topicOrder []string

	// forceStoryConflicts and forceCommentConflicts make the next n state
	// updates of that kind lose the version race regardless of the
	// supplied version.
	forceStoryConflicts   int
	forceCommentConflicts int
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]store.User{},
		stories:  map[string]store.Story{},
		topics:   map[string]store.Topic{},
		comments: map[string]store.Comment{},
		assets:   map[string][]store.Asset{},
		links:    map[string]map[string]bool{},
	}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) GetUserByName(_ context.Context, name string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[name]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID == userID {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) InsertUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.Name]; !exists {
		m.users[user.Name] = user
	}
	return nil
}

func (m *memStore) InsertStoryWithTopics(_ context.Context, item store.Story, topicIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	m.stories[item.ID] = item
	m.storyOrder = append(m.storyOrder, item.ID)
	for _, topicID := range topicIDs {
		if m.links[item.ID] == nil {
			m.links[item.ID] = map[string]bool{}
		}
		m.links[item.ID][topicID] = true
	}
	return nil
}

func (m *memStore) GetStory(_ context.Context, storyID string) (store.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.stories[storyID]
	if !ok {
		return store.Story{}, sql.ErrNoRows
	}
	return item, nil
}

func (m *memStore) ListStories(context.Context) ([]store.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Story, 0, len(m.storyOrder))
	for _, id := range m.storyOrder {
		if item, ok := m.stories[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (m *memStore) UpdateStoryContent(_ context.Context, storyID, title, body string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.stories[storyID]
	if !ok {
		return sql.ErrNoRows
	}
	if item.Version != version {
		return store.ErrVersionConflict
	}
	item.Title = title
	item.Body = body
	item.Version++
	item.UpdatedAt = time.Now()
	m.stories[storyID] = item
	return nil
}

func (m *memStore) UpdateStoryState(_ context.Context, storyID, state, rejectionReason string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.stories[storyID]
	if !ok {
		return sql.ErrNoRows
	}
	if m.forceStoryConflicts > 0 {
		m.forceStoryConflicts--
		return store.ErrVersionConflict
	}
	if item.Version != version {
		return store.ErrVersionConflict
	}
	item.State = state
	item.RejectionReason = rejectionReason
	item.Version++
	item.UpdatedAt = time.Now()
	m.stories[storyID] = item
	return nil
}

func (m *memStore) DeleteStory(_ context.Context, storyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stories[storyID]; !ok {
		return sql.ErrNoRows
	}
	for commentID, item := range m.comments {
		if item.StoryID == storyID {
			delete(m.comments, commentID)
		}
	}
	delete(m.assets, storyID)
	delete(m.links, storyID)
	delete(m.stories, storyID)
	return nil
}

func (m *memStore) AttachTopic(_ context.Context, storyID, topicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links[storyID] == nil {
		m.links[storyID] = map[string]bool{}
	}
	m.links[storyID][topicID] = true
	return nil
}

func (m *memStore) DetachTopic(_ context.Context, storyID, topicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.links[storyID], topicID)
	return nil
}

func (m *memStore) ListStoryTopicIDs(_ context.Context, storyID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.links[storyID]))
	for _, topicID := range m.topicOrder {
		if m.links[storyID][topicID] {
			ids = append(ids, topicID)
		}
	}
	return ids, nil
}

func (m *memStore) InsertTopic(_ context.Context, item store.Topic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.CreatedAt = time.Now()
	m.topics[item.ID] = item
	m.topicOrder = append(m.topicOrder, item.ID)
	return nil
}

func (m *memStore) GetTopic(_ context.Context, topicID string) (store.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.topics[topicID]
	if !ok {
		return store.Topic{}, sql.ErrNoRows
	}
	return item, nil
}

func (m *memStore) ListTopics(context.Context) ([]store.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Topic, 0, len(m.topicOrder))
	for _, id := range m.topicOrder {
		if item, ok := m.topics[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (m *memStore) UpdateTopicName(_ context.Context, topicID, name string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.topics[topicID]
	if !ok {
		return sql.ErrNoRows
	}
	if item.Version != version {
		return store.ErrVersionConflict
	}
	item.Name = name
	item.Version++
	m.topics[topicID] = item
	return nil
}

func (m *memStore) UpdateTopicState(_ context.Context, topicID, state string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.topics[topicID]
	if !ok {
		return sql.ErrNoRows
	}
	if item.Version != version {
		return store.ErrVersionConflict
	}
	item.State = state
	item.Version++
	m.topics[topicID] = item
	return nil
}

func (m *memStore) SetTopicParent(_ context.Context, topicID string, parentID *string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.topics[topicID]
	if !ok {
		return sql.ErrNoRows
	}
	if item.Version != version {
		return store.ErrVersionConflict
	}
	item.ParentID = parentID
	item.Version++
	m.topics[topicID] = item
	return nil
}

func (m *memStore) DeleteTopic(_ context.Context, topicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.topics[topicID]; !ok {
		return sql.ErrNoRows
	}
	for storyID := range m.links {
		delete(m.links[storyID], topicID)
	}
	for id, item := range m.topics {
		if item.ParentID != nil && *item.ParentID == topicID {
			item.ParentID = nil
			m.topics[id] = item
		}
	}
	delete(m.topics, topicID)
	return nil
}

func (m *memStore) InsertComment(_ context.Context, item store.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.CreatedAt = time.Now()
	m.comments[item.ID] = item
	return nil
}

func (m *memStore) GetComment(_ context.Context, commentID string) (store.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.comments[commentID]
	if !ok {
		return store.Comment{}, sql.ErrNoRows
	}
	return item, nil
}

func (m *memStore) ListStoryComments(_ context.Context, storyID string) ([]store.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []store.Comment
	for _, item := range m.comments {
		if item.StoryID == storyID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (m *memStore) UpdateCommentBody(_ context.Context, commentID, body string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.comments[commentID]
	if !ok {
		return sql.ErrNoRows
	}
	if item.Version != version {
		return store.ErrVersionConflict
	}
	item.Body = body
	item.Version++
	m.comments[commentID] = item
	return nil
}

func (m *memStore) UpdateCommentState(_ context.Context, commentID, state string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.comments[commentID]
	if !ok {
		return sql.ErrNoRows
	}
	if m.forceCommentConflicts > 0 {
		m.forceCommentConflicts--
		return store.ErrVersionConflict
	}
	if item.Version != version {
		return store.ErrVersionConflict
	}
	item.State = state
	item.Version++
	m.comments[commentID] = item
	return nil
}

func (m *memStore) DeleteComment(_ context.Context, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[commentID]; !ok {
		return sql.ErrNoRows
	}
	delete(m.comments, commentID)
	return nil
}

func (m *memStore) InsertAsset(_ context.Context, item store.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[item.StoryID] = append(m.assets[item.StoryID], item)
	return nil
}

func (m *memStore) ListStoryAssets(_ context.Context, storyID string) ([]store.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assets[storyID], nil
}

type fakeSessions struct {
	mu    sync.Mutex
	saved map[string]store.User
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]store.User{}
	}
	f.saved[tokenHash] = user
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.saved[tokenHash]
	if !ok {
		return store.User{}, errors.New("session not found")
	}
	return user, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, tokenHash)
	return nil
}

type fakeSearch struct {
	mu            sync.Mutex
	storyIndexed  []string
	storyRemoved  []string
	topicIndexed  []string
	topicRemoved  []string
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearch) IndexStory(item search.StoryRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storyIndexed = append(f.storyIndexed, item.ID)
}

func (f *fakeSearch) RemoveStory(storyID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storyRemoved = append(f.storyRemoved, storyID)
}

func (f *fakeSearch) IndexTopic(item search.TopicRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topicIndexed = append(f.topicIndexed, item.ID)
}

func (f *fakeSearch) RemoveTopic(topicID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topicRemoved = append(f.topicRemoved, topicID)
}

type fakeDrafts struct {
	mu      sync.Mutex
	commits map[string][]string
}

func (f *fakeDrafts) EnsureStoryRepo(storyID string, _ drafts.Content, _ string) error {
	f.record(storyID, "Initial draft")
	return nil
}

func (f *fakeDrafts) CommitDraft(storyID string, _ drafts.Content, _ string, message string) (store.CommitInfo, error) {
	f.record(storyID, message)
	return store.CommitInfo{Message: message}, nil
}

func (f *fakeDrafts) History(storyID string, _ int) ([]store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.CommitInfo
	for _, message := range f.commits[storyID] {
		items = append(items, store.CommitInfo{Message: message})
	}
	return items, nil
}

func (f *fakeDrafts) record(storyID, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commits == nil {
		f.commits = map[string][]string{}
	}
	f.commits[storyID] = append(f.commits[storyID], message)
}

type fakeMedia struct {
	mu      sync.Mutex
	stored  []string
	removed []string
}

func (f *fakeMedia) Put(_ context.Context, assetID, filename, _ string, _ int64, _ io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, assetID+"/"+filename)
	return nil
}

func (f *fakeMedia) PresignedURL(_ context.Context, assetID, filename string, _ time.Duration) (string, error) {
	return "https://media.test/" + assetID + "/" + filename, nil
}

func (f *fakeMedia) Remove(_ context.Context, assetID, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, assetID+"/"+filename)
	return nil
}

var (
	ana     = roles.Caller{Name: "ana", Role: roles.RoleJournalist}
	ben     = roles.Caller{Name: "ben", Role: roles.RoleJournalist}
	mona    = roles.Caller{Name: "mona", Role: roles.RoleCurator}
	visitor = roles.Caller{Role: roles.RoleAnonymous}
)

type testEnv struct {
	service *Service
	store   *memStore
	search  *fakeSearch
	drafts  *fakeDrafts
}

func newTestEnv() *testEnv {
	ms := newMemStore()
	fs := &fakeSearch{}
	fd := &fakeDrafts{}
	svc := &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
		},
		store:    ms,
		sessions: &fakeSessions{},
		drafts:   fd,
		search:   fs,
	}
	return &testEnv{service: svc, store: ms, search: fs, drafts: fd}
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil error", code)
	}
	var derr *DomainError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DomainError %s, got %v", code, err)
	}
	if derr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, derr.Code, derr.Message)
	}
}

func approvedTopic(t *testing.T, env *testEnv, name string) TopicSnapshot {
	t.Helper()
	ctx := context.Background()
	topic, err := env.service.CreateTopic(ctx, ana, CreateTopicInput{Name: name})
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}
	topic, err = env.service.ModerateTopic(ctx, mona, topic.ID, workflow.CommandApprove)
	if err != nil {
		t.Fatalf("approve topic: %v", err)
	}
	return topic
}

func TestStoryLifecycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	topic := approvedTopic(t, env, "City Hall")

	story, err := env.service.CreateStory(ctx, ana, CreateStoryInput{
		Title:    "Budget vote delayed",
		Body:     "The council postponed the vote.",
		TopicIDs: []string{topic.ID},
	})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	if story.State != "CREATED" {
		t.Fatalf("expected CREATED, got %s", story.State)
	}
	if len(story.TopicIDs) != 1 || story.TopicIDs[0] != topic.ID {
		t.Fatalf("expected topic attached at creation, got %v", story.TopicIDs)
	}

	// Author-private: invisible to everyone but the author.
	if _, err := env.service.GetStory(ctx, visitor, story.ID); err == nil {
		t.Fatal("visitor should not see a CREATED story")
	}
	if _, err := env.service.GetStory(ctx, mona, story.ID); err == nil {
		t.Fatal("curator should not see a CREATED story")
	}
	if _, err := env.service.GetStory(ctx, ana, story.ID); err != nil {
		t.Fatalf("owner should see own CREATED story: %v", err)
	}

	story, err = env.service.ModerateStory(ctx, ana, story.ID, workflow.CommandSubmit, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if story.State != "SUBMITTED" {
		t.Fatalf("expected SUBMITTED, got %s", story.State)
	}

	// Now on the curator's desk, still hidden from the public.
	if _, err := env.service.GetStory(ctx, mona, story.ID); err != nil {
		t.Fatalf("curator should see a SUBMITTED story: %v", err)
	}
	if _, err := env.service.GetStory(ctx, visitor, story.ID); err == nil {
		t.Fatal("visitor should not see a SUBMITTED story")
	}

	story, err = env.service.ModerateStory(ctx, mona, story.ID, workflow.CommandApprove, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if story.State != "APPROVED" {
		t.Fatalf("expected APPROVED, got %s", story.State)
	}

	story, err = env.service.ModerateStory(ctx, mona, story.ID, workflow.CommandPublish, "")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if story.State != "PUBLISHED" {
		t.Fatalf("expected PUBLISHED, got %s", story.State)
	}

	if _, err := env.service.GetStory(ctx, visitor, story.ID); err != nil {
		t.Fatalf("visitor should see a PUBLISHED story: %v", err)
	}
	if len(env.search.storyIndexed) != 1 || env.search.storyIndexed[0] != story.ID {
		t.Fatalf("expected story indexed on publish, got %v", env.search.storyIndexed)
	}
}

func TestPublishedIsTerminal(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	story, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T"})
	_, _ = env.service.ModerateStory(ctx, ana, story.ID, workflow.CommandSubmit, "")
	_, _ = env.service.ModerateStory(ctx, mona, story.ID, workflow.CommandApprove, "")
	if _, err := env.service.ModerateStory(ctx, mona, story.ID, workflow.CommandPublish, ""); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, cmd := range []workflow.Command{workflow.CommandPublish, workflow.CommandApprove, workflow.CommandReject} {
		reason := ""
		if cmd == workflow.CommandReject {
			reason = "no"
		}
		_, err := env.service.ModerateStory(ctx, mona, story.ID, cmd, reason)
		wantCode(t, err, CodeInvalidTransition)
	}
}

func TestRejectReturnsToCreatedWithReason(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	story, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T", Body: "B"})
	_, _ = env.service.ModerateStory(ctx, ana, story.ID, workflow.CommandSubmit, "")

	_, err := env.service.ModerateStory(ctx, mona, story.ID, workflow.CommandReject, "")
	wantCode(t, err, CodeValidation)

	rejected, err := env.service.ModerateStory(ctx, mona, story.ID, workflow.CommandReject, "needs sourcing")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.State != "CREATED" {
		t.Fatalf("expected CREATED after reject, got %s", rejected.State)
	}
	if rejected.RejectionReason != "needs sourcing" {
		t.Fatalf("expected rejection reason preserved, got %q", rejected.RejectionReason)
	}

	// A rejected draft can be revised and resubmitted.
	if _, err := env.service.UpdateStory(ctx, ana, story.ID, UpdateStoryInput{Title: "T2", Body: "B2"}); err != nil {
		t.Fatalf("revise after reject: %v", err)
	}
	if _, err := env.service.ModerateStory(ctx, ana, story.ID, workflow.CommandSubmit, ""); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
}

func TestModerationRoleCheckedBeforeLoad(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// A journalist probing a nonexistent story with a curator command gets
	// FORBIDDEN, not NOT_FOUND: existence leaks nothing.
	_, err := env.service.ModerateStory(ctx, ana, "sty_missing", workflow.CommandApprove, "")
	wantCode(t, err, CodeForbidden)

	// The same command from a curator reports NOT_FOUND.
	_, err = env.service.ModerateStory(ctx, mona, "sty_missing", workflow.CommandApprove, "")
	wantCode(t, err, CodeNotFound)

	// Only the owner may submit. Another journalist cannot see the
	// author-private story, so the denial must read exactly like a
	// missing ID.
	story, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T"})
	_, err = env.service.ModerateStory(ctx, ben, story.ID, workflow.CommandSubmit, "")
	wantCode(t, err, CodeNotFound)
	_, err = env.service.ModerateStory(ctx, ben, "sty_missing", workflow.CommandSubmit, "")
	wantCode(t, err, CodeNotFound)
}

func TestModerationRetriesVersionConflictOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	story, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T"})

	env.store.forceStoryConflicts = 1
	if _, err := env.service.ModerateStory(ctx, ana, story.ID, workflow.CommandSubmit, ""); err != nil {
		t.Fatalf("expected single conflict to be retried: %v", err)
	}

	story2, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T2"})
	env.store.forceStoryConflicts = 2
	_, err := env.service.ModerateStory(ctx, ana, story2.ID, workflow.CommandSubmit, "")
	wantCode(t, err, CodeConflict)
}

func TestAttachRequiresApprovedTopic(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	story, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T"})
	topic, err := env.service.CreateTopic(ctx, ben, CreateTopicInput{Name: "Transit"})
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}

	_, err = env.service.AttachTopic(ctx, ana, story.ID, topic.ID)
	wantCode(t, err, CodeTopicNotApproved)

	if _, err := env.service.ModerateTopic(ctx, mona, topic.ID, workflow.CommandApprove); err != nil {
		t.Fatalf("approve topic: %v", err)
	}
	if _, err := env.service.AttachTopic(ctx, ana, story.ID, topic.ID); err != nil {
		t.Fatalf("attach approved topic: %v", err)
	}

	// Attaching again is a no-op, not an error.
	if _, err := env.service.AttachTopic(ctx, ana, story.ID, topic.ID); err != nil {
		t.Fatalf("re-attach: %v", err)
	}
}

func TestDetachIsSilentlyPermissive(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	story, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T"})
	if _, err := env.service.DetachTopic(ctx, ana, story.ID, "top_never_attached"); err != nil {
		t.Fatalf("detach of unattached topic should succeed: %v", err)
	}
}

func TestCreateStoryTopicHandling(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// Blank topic ID is a validation error.
	_, err := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T", TopicIDs: []string{" "}})
	wantCode(t, err, CodeValidation)

	// Unknown and unapproved topics are silently skipped.
	pending, _ := env.service.CreateTopic(ctx, ana, CreateTopicInput{Name: "Pending"})
	approved := approvedTopic(t, env, "Approved")
	story, err := env.service.CreateStory(ctx, ana, CreateStoryInput{
		Title:    "T",
		TopicIDs: []string{"top_unknown", pending.ID, approved.ID},
	})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	if len(story.TopicIDs) != 1 || story.TopicIDs[0] != approved.ID {
		t.Fatalf("expected only the approved topic attached, got %v", story.TopicIDs)
	}
}

func TestStoryDeleteRules(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// Owner deletes own CREATED story.
	story, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T"})
	if err := env.service.DeleteStory(ctx, ana, story.ID); err != nil {
		t.Fatalf("owner delete of CREATED story: %v", err)
	}

	// Owner cannot delete after submit; curator can.
	story2, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T2"})
	_, _ = env.service.ModerateStory(ctx, ana, story2.ID, workflow.CommandSubmit, "")
	err := env.service.DeleteStory(ctx, ana, story2.ID)
	wantCode(t, err, CodeForbidden)
	if err := env.service.DeleteStory(ctx, mona, story2.ID); err != nil {
		t.Fatalf("curator delete: %v", err)
	}
	if len(env.search.storyRemoved) == 0 {
		t.Fatal("expected deleted story removed from search index")
	}
}

func TestStoryDeleteCascadesToComments(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	story, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T"})
	_, _ = env.service.ModerateStory(ctx, ana, story.ID, workflow.CommandSubmit, "")
	_, _ = env.service.ModerateStory(ctx, mona, story.ID, workflow.CommandApprove, "")
	_, _ = env.service.ModerateStory(ctx, mona, story.ID, workflow.CommandPublish, "")

	comment, err := env.service.CreateComment(ctx, visitor, story.ID, "nice")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}

	if err := env.service.DeleteStory(ctx, mona, story.ID); err != nil {
		t.Fatalf("delete story: %v", err)
	}
	if _, err := env.store.GetComment(ctx, comment.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatal("expected comments deleted with their story")
	}
}

func TestStoryDeleteRemovesAssets(t *testing.T) {
	env := newTestEnv()
	media := &fakeMedia{}
	env.service.WithMedia(media)
	ctx := context.Background()

	story, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T"})
	asset, err := env.service.UploadAsset(ctx, ana, story.ID, "map.png", "image/png", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("upload asset: %v", err)
	}
	if len(media.stored) != 1 {
		t.Fatalf("expected one stored object, got %v", media.stored)
	}

	if err := env.service.DeleteStory(ctx, ana, story.ID); err != nil {
		t.Fatalf("delete story with asset: %v", err)
	}

	if rows, _ := env.store.ListStoryAssets(ctx, story.ID); len(rows) != 0 {
		t.Fatalf("asset rows survived story delete: %d", len(rows))
	}
	want := asset.ID + "/map.png"
	removed := false
	for _, key := range media.removed {
		if key == want {
			removed = true
		}
	}
	if !removed {
		t.Fatalf("object %s not removed from media storage, removed=%v", want, media.removed)
	}
}

func TestDraftHistoryAccess(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	story, _ := env.service.CreateStory(ctx, ana, CreateStoryInput{Title: "T", Body: "B"})
	_, _ = env.service.UpdateStory(ctx, ana, story.ID, UpdateStoryInput{Title: "T", Body: "B2"})

	commits, err := env.service.StoryHistory(ctx, ana, story.ID, 10)
	if err != nil {
		t.Fatalf("owner history: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("expected init + revision commits, got %d", len(commits))
	}

	if _, err := env.service.StoryHistory(ctx, ben, story.ID, 10); err == nil {
		t.Fatal("non-owner journalist should not read draft history")
	}
	if _, err := env.service.StoryHistory(ctx, mona, story.ID, 10); err != nil {
		t.Fatalf("curator history: %v", err)
	}
}
