package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"padlink/api/internal/auth"
	"padlink/api/internal/cleanup"
	"padlink/api/internal/config"
	"padlink/api/internal/etherpad"
	"padlink/api/internal/pad"
	"padlink/api/internal/padsession"
	"padlink/api/internal/rbac"
	"padlink/api/internal/store"
)

type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// ParseMode defaults to read for anything but "write".
func ParseMode(value string) Mode {
	if Mode(value) == ModeWrite {
		return ModeWrite
	}
	return ModeRead
}

// PadAccess is what a browser needs to open a pad. Cookie is set only for
// write access.
type PadAccess struct {
	PadURL string             `json:"padUrl"`
	Mode   Mode               `json:"-"`
	Cookie *padsession.Cookie `json:"-"`
}

type ItemStore interface {
	Ping(ctx context.Context) error
	GetItem(ctx context.Context, itemID string) (store.Item, error)
	GetPublicItem(ctx context.Context, itemID string) (store.Item, error)
	GetPermission(ctx context.Context, memberID, itemPath string) (string, error)
	CreateItem(ctx context.Context, item store.Item, parentID string) (store.Item, error)
	DeleteItem(ctx context.Context, itemID string) ([]store.Item, error)
}

type PadManager interface {
	Create(ctx context.Context, initHTML string) (pad.Ref, error)
	Copy(ctx context.Context, sourcePadID string) (pad.Ref, error)
	Delete(ctx context.Context, padID string) error
}

type SessionReconciler interface {
	Establish(ctx context.Context, member auth.Member, groupID string) (padsession.Result, error)
}

type EtherpadAPI interface {
	CheckToken(ctx context.Context) error
	GetReadOnlyID(ctx context.Context, padID string) (string, error)
}

type Scheduler interface {
	Submit(ctx context.Context, tasks ...cleanup.Task)
}

type Dependencies struct {
	Store    ItemStore
	Pads     PadManager
	Sessions SessionReconciler
	Etherpad EtherpadAPI
	Cleanup  Scheduler
	Logger   *zap.Logger
}

type Service struct {
	cfg       config.Config
	store     ItemStore
	pads      PadManager
	sessions  SessionReconciler
	etherpad  EtherpadAPI
	cleanup   Scheduler
	logger    *zap.Logger
	publicURL string
	jwtSecret []byte
}

func New(cfg config.Config, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:       cfg,
		store:     deps.Store,
		pads:      deps.Pads,
		sessions:  deps.Sessions,
		etherpad:  deps.Etherpad,
		cleanup:   deps.Cleanup,
		logger:    logger,
		publicURL: cfg.Etherpad.PublicURL,
		jwtSecret: []byte(cfg.JWTSecret),
	}
}

func (s *Service) MemberFromToken(token string) (auth.Member, error) {
	return auth.ParseToken(s.jwtSecret, token)
}

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingEtherpad checks that Etherpad answers and accepts the API key.
func (s *Service) PingEtherpad(ctx context.Context) error {
	return s.etherpad.CheckToken(ctx)
}

// CreateEtherpadItem creates a pad and the item that owns it. When the item
// cannot be stored the pad is deleted in the background and the storage error
// is returned.
func (s *Service) CreateEtherpadItem(ctx context.Context, member auth.Member, name, parentID, initHTML string) (store.Item, error) {
	if parentID != "" {
		parent, err := s.lookupItem(ctx, parentID, s.store.GetItem)
		if err != nil {
			return store.Item{}, err
		}
		if _, err := s.requirePermission(ctx, member, parent, rbac.PermissionWrite); err != nil {
			return store.Item{}, err
		}
	}

	ref, err := s.pads.Create(ctx, initHTML)
	if err != nil {
		return store.Item{}, remoteError(err)
	}

	item := store.Item{
		ID:      uuid.NewString(),
		Name:    name,
		Type:    store.ItemTypeEtherpad,
		Extra:   ref.Extra(),
		Creator: member.ID,
	}
	created, err := s.store.CreateItem(ctx, item, parentID)
	if err != nil {
		s.logger.Warn("item creation failed, deleting orphan pad",
			zap.String("pad", ref.PadID()),
			zap.Error(err),
		)
		s.submit(ctx, cleanup.DeletePad(ref.PadID()))
		return store.Item{}, fmt.Errorf("create etherpad item: %w", err)
	}
	return created, nil
}

// GetEtherpadFromItem resolves the pad of itemID for member. Write access is
// granted only when asked for and backed by a write membership; every other
// case falls back to the read-only pad.
func (s *Service) GetEtherpadFromItem(ctx context.Context, member auth.Member, itemID string, mode Mode) (PadAccess, error) {
	item, err := s.lookupItem(ctx, itemID, s.store.GetItem)
	if err != nil {
		return PadAccess{}, err
	}
	extra, err := etherpadExtra(item)
	if err != nil {
		return PadAccess{}, err
	}

	held, err := s.requirePermission(ctx, member, item, rbac.PermissionRead)
	if err != nil {
		return PadAccess{}, err
	}
	if mode != ModeWrite || !rbac.AtLeast(held, rbac.PermissionWrite) {
		return s.readOnlyAccess(ctx, extra.PadID)
	}

	groupID := extra.GroupID
	if groupID == "" {
		groupID, _, _ = pad.ParsePadID(extra.PadID)
	}
	result, err := s.sessions.Establish(ctx, member, groupID)
	if err != nil {
		return PadAccess{}, remoteError(err)
	}
	cookie := result.Cookie
	return PadAccess{
		PadURL: pad.BuildPadPath(extra.PadID, s.publicURL),
		Mode:   ModeWrite,
		Cookie: &cookie,
	}, nil
}

// GetPublicEtherpad resolves the read-only pad of a public item.
func (s *Service) GetPublicEtherpad(ctx context.Context, itemID string) (PadAccess, error) {
	item, err := s.lookupItem(ctx, itemID, s.store.GetPublicItem)
	if err != nil {
		return PadAccess{}, err
	}
	extra, err := etherpadExtra(item)
	if err != nil {
		return PadAccess{}, err
	}
	return s.readOnlyAccess(ctx, extra.PadID)
}

func (s *Service) readOnlyAccess(ctx context.Context, padID string) (PadAccess, error) {
	readOnlyID, err := s.etherpad.GetReadOnlyID(ctx, padID)
	if err != nil {
		return PadAccess{}, remoteError(err)
	}
	return PadAccess{PadURL: pad.BuildPadPath(readOnlyID, s.publicURL), Mode: ModeRead}, nil
}

func (s *Service) lookupItem(ctx context.Context, itemID string, get func(context.Context, string) (store.Item, error)) (store.Item, error) {
	item, err := get(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Item{}, errItemNotFound(itemID)
		}
		return store.Item{}, fmt.Errorf("get item %s: %w", itemID, err)
	}
	return item, nil
}

// requirePermission returns the permission member holds on item. Any lookup
// failure counts as no access.
func (s *Service) requirePermission(ctx context.Context, member auth.Member, item store.Item, required rbac.Permission) (rbac.Permission, error) {
	permission, err := s.store.GetPermission(ctx, member.ID, item.Path)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("permission lookup failed", zap.String("item", item.ID), zap.String("member", member.ID), zap.Error(err))
		}
		return "", errAccessForbidden(item.ID, err)
	}
	held := rbac.Normalize(permission)
	if !rbac.AtLeast(held, required) {
		return held, errAccessForbidden(item.ID, nil)
	}
	return held, nil
}

func (s *Service) submit(ctx context.Context, tasks ...cleanup.Task) {
	if s.cleanup == nil {
		s.logger.Warn("no cleanup scheduler, dropping tasks", zap.Int("tasks", len(tasks)))
		return
	}
	s.cleanup.Submit(ctx, tasks...)
}

func etherpadExtra(item store.Item) (*store.EtherpadExtra, error) {
	extra := item.Extra.Etherpad
	if extra == nil || extra.PadID == "" {
		return nil, errItemMissingExtra(item.ID)
	}
	return extra, nil
}

func remoteError(err error) error {
	if etherpad.IsServerError(err) {
		return errEtherpadServer(err)
	}
	return err
}
