package padsession

import (
	"context"
	"time"

	"go.uber.org/zap"

	"padlink/api/internal/auth"
	"padlink/api/internal/cleanup"
	"padlink/api/internal/etherpad"
)

const (
	// MaxSessionsInCookie bounds the number of session ids kept in the cookie.
	MaxSessionsInCookie = 20
	DefaultSessionTTL   = 24 * time.Hour
)

// API is the part of the Etherpad client used to open sessions.
type API interface {
	CreateAuthorIfNotExistsFor(ctx context.Context, authorMapper, name string) (string, error)
	CreateSession(ctx context.Context, groupID, authorID string, validUntil int64) (string, error)
	ListSessionsOfAuthor(ctx context.Context, authorID string) (map[string]*etherpad.SessionInfo, error)
}

// Scheduler runs deletions in the background.
type Scheduler interface {
	Submit(ctx context.Context, tasks ...cleanup.Task)
}

type Options struct {
	CookieDomain string
	CookieSecure bool
	// TTL defaults to DefaultSessionTTL.
	TTL time.Duration
	// MaxSessions defaults to MaxSessionsInCookie.
	MaxSessions int
	Now         func() time.Time
	Logger      *zap.Logger
}

type Result struct {
	Cookie    Cookie
	SessionID string
	AuthorID  string
	// Evicted lists the valid sessions dropped to respect the cookie bound.
	Evicted []string
	// Removed lists every session scheduled for deletion, evicted ones included.
	Removed []string
}

// Reconciler opens a write session for a member on a pad group and rebuilds
// the member's session cookie.
type Reconciler struct {
	api          API
	cleanup      Scheduler
	cookieDomain string
	cookieSecure bool
	ttl          time.Duration
	maxSessions  int
	now          func() time.Time
	logger       *zap.Logger
}

func NewReconciler(api API, scheduler Scheduler, opts Options) *Reconciler {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	maxSessions := opts.MaxSessions
	if maxSessions <= 0 {
		maxSessions = MaxSessionsInCookie
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		api:          api,
		cleanup:      scheduler,
		cookieDomain: opts.CookieDomain,
		cookieSecure: opts.CookieSecure,
		ttl:          ttl,
		maxSessions:  maxSessions,
		now:          now,
		logger:       logger.Named("padsession"),
	}
}

// Establish creates a new session for member on groupID. The returned cookie
// always contains the new session. Expired and evicted sessions are deleted in
// the background; their failures never reach the caller.
func (r *Reconciler) Establish(ctx context.Context, member auth.Member, groupID string) (Result, error) {
	authorID, err := r.api.CreateAuthorIfNotExistsFor(ctx, member.ID, member.Name)
	if err != nil {
		return Result{}, err
	}

	now := r.now()
	validUntil := now.Add(r.ttl).Unix()
	sessionID, err := r.api.CreateSession(ctx, groupID, authorID, validUntil)
	if err != nil {
		return Result{}, err
	}

	sessions, err := r.api.ListSessionsOfAuthor(ctx, authorID)
	if err != nil {
		return Result{}, err
	}

	partition := Classify(sessions, now).Include(Session{ID: sessionID, ValidUntil: validUntil})
	partition, evicted := Evict(partition, r.maxSessions, sessionID)

	removed := partition.ExpiredIDs()
	if len(removed) > 0 {
		tasks := make([]cleanup.Task, 0, len(removed))
		for _, id := range removed {
			tasks = append(tasks, cleanup.DeleteSession(id))
		}
		if r.cleanup != nil {
			r.cleanup.Submit(ctx, tasks...)
		}
	}

	r.logger.Debug("etherpad session established",
		zap.String("member", member.ID),
		zap.String("author", authorID),
		zap.String("group", groupID),
		zap.Int("valid", len(partition.Valid)),
		zap.Int("removed", len(removed)),
	)

	return Result{
		Cookie:    newCookie(partition.ValidIDs(), r.cookieDomain, time.Unix(validUntil, 0), r.cookieSecure),
		SessionID: sessionID,
		AuthorID:  authorID,
		Evicted:   ids(evicted),
		Removed:   removed,
	}, nil
}
