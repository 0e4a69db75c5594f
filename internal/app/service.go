package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"time"

	"newsdesk/api/internal/auth"
	"newsdesk/api/internal/authpw"
	"newsdesk/api/internal/config"
	"newsdesk/api/internal/drafts"
	"newsdesk/api/internal/export"
	"newsdesk/api/internal/roles"
	"newsdesk/api/internal/search"
	"newsdesk/api/internal/session"
	"newsdesk/api/internal/store"
	"newsdesk/api/internal/util"
)

type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByName(ctx context.Context, name string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	InsertUser(ctx context.Context, user store.User) error

	InsertStoryWithTopics(ctx context.Context, item store.Story, topicIDs []string) error
	GetStory(ctx context.Context, storyID string) (store.Story, error)
	ListStories(ctx context.Context) ([]store.Story, error)
	UpdateStoryContent(ctx context.Context, storyID, title, body string, version int) error
	UpdateStoryState(ctx context.Context, storyID, state, rejectionReason string, version int) error
	DeleteStory(ctx context.Context, storyID string) error
	AttachTopic(ctx context.Context, storyID, topicID string) error
	DetachTopic(ctx context.Context, storyID, topicID string) error
	ListStoryTopicIDs(ctx context.Context, storyID string) ([]string, error)

	InsertTopic(ctx context.Context, item store.Topic) error
	GetTopic(ctx context.Context, topicID string) (store.Topic, error)
	ListTopics(ctx context.Context) ([]store.Topic, error)
	UpdateTopicName(ctx context.Context, topicID, name string, version int) error
	UpdateTopicState(ctx context.Context, topicID, state string, version int) error
	SetTopicParent(ctx context.Context, topicID string, parentID *string, version int) error
	DeleteTopic(ctx context.Context, topicID string) error

	InsertComment(ctx context.Context, item store.Comment) error
	GetComment(ctx context.Context, commentID string) (store.Comment, error)
	ListStoryComments(ctx context.Context, storyID string) ([]store.Comment, error)
	UpdateCommentBody(ctx context.Context, commentID, body string, version int) error
	UpdateCommentState(ctx context.Context, commentID, state string, version int) error
	DeleteComment(ctx context.Context, commentID string) error

	InsertAsset(ctx context.Context, item store.Asset) error
	ListStoryAssets(ctx context.Context, storyID string) ([]store.Asset, error)
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type draftStore interface {
	EnsureStoryRepo(storyID string, initial drafts.Content, author string) error
	CommitDraft(storyID string, content drafts.Content, author, message string) (store.CommitInfo, error)
	History(storyID string, limit int) ([]store.CommitInfo, error)
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexStory(item search.StoryRecord)
	RemoveStory(storyID string)
	IndexTopic(item search.TopicRecord)
	RemoveTopic(topicID string)
}

// Search runs a full-text query over published stories and approved topics.
// The index only ever holds public content, so no per-caller filtering is
// needed here.
func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// Caller derives the identity/role pair threaded through every core call.
func (s Session) Caller() roles.Caller {
	return roles.Caller{Name: s.UserName, Role: roles.Normalize(s.Role)}
}

type mediaStore interface {
	Put(ctx context.Context, assetID, filename, contentType string, size int64, r io.Reader) error
	PresignedURL(ctx context.Context, assetID, filename string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, assetID, filename string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	pw       *authpw.Service
	drafts   draftStore
	search   searchIndex
	media    mediaStore
	exporter *export.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		pw:       authpw.NewService(dataStore),
	}
}

// WithDrafts attaches the draft revision service.
func (s *Service) WithDrafts(d *drafts.Service) *Service {
	s.drafts = d
	return s
}

// WithSearch attaches a search indexer.
func (s *Service) WithSearch(idx searchIndex) *Service {
	s.search = idx
	return s
}

// WithMedia attaches object storage for story assets.
func (s *Service) WithMedia(m mediaStore) *Service {
	s.media = m
	return s
}

// WithExport attaches the story exporter.
func (s *Service) WithExport() *Service {
	s.exporter = export.NewService(&exportData{store: s.store})
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// storeErr maps storage failures onto the core error taxonomy. Missing rows
// and visibility-filtered rows both surface as NOT_FOUND.
func storeErr(err error) error {
	var derr *DomainError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &derr):
		return derr
	case errors.Is(err, sql.ErrNoRows):
		return errNotFound()
	case errors.Is(err, store.ErrVersionConflict):
		return errConflict()
	default:
		return errStorage(err)
	}
}

// --- authentication ---

func (s *Service) Login(ctx context.Context, name, password string) (Session, error) {
	user, err := s.pw.Login(ctx, name, password)
	if err != nil {
		return Session{}, errForbidden()
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, errForbidden()
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, errStorage(err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Name,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, errStorage(err)
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, errStorage(err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// SeedUsers provisions the initial newsroom accounts when the users table is
// empty of them. Passwords come from the operator; blank passwords leave the
// account login-disabled.
func (s *Service) SeedUsers(ctx context.Context, seeds map[string]string) error {
	seedRoles := map[string]string{
		"ana":  string(roles.RoleJournalist),
		"ben":  string(roles.RoleJournalist),
		"mona": string(roles.RoleCurator),
	}
	for name, role := range seedRoles {
		hash := ""
		if pwd := seeds[name]; pwd != "" {
			var err error
			hash, err = authpw.HashPassword(pwd)
			if err != nil {
				return err
			}
		}
		if err := s.store.InsertUser(ctx, store.User{
			ID:           util.NewID("usr"),
			Name:         name,
			PasswordHash: hash,
			Role:         role,
		}); err != nil {
			return err
		}
	}
	return nil
}

// commitDraftRevision records a story revision in the drafts repo.
// Revision history is best-effort: a draft storage failure never fails the
// moderation operation that triggered it.
func (s *Service) commitDraftRevision(storyID string, content drafts.Content, author, message string) {
	if s.drafts == nil {
		return
	}
	if _, err := s.drafts.CommitDraft(storyID, content, author, message); err != nil {
		log.Printf("drafts: commit revision for %s: %v", storyID, err)
	}
}
