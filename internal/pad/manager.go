package pad

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"padlink/api/internal/store"
)

// API is the part of the Etherpad client the manager drives.
type API interface {
	CreateGroupIfNotExistsFor(ctx context.Context, groupMapper string) (string, error)
	CreateGroupPad(ctx context.Context, groupID, padName string) error
	CopyPad(ctx context.Context, sourceID, destinationID string) error
	DeletePad(ctx context.Context, padID string) error
	SetHTML(ctx context.Context, padID, html string) error
}

// Ref identifies a pad created by the manager.
type Ref struct {
	GroupID string
	PadName string
}

func (r Ref) PadID() string {
	return BuildPadID(r.GroupID, r.PadName)
}

func (r Ref) Extra() store.ItemExtra {
	return BuildExtra(r.GroupID, r.PadName)
}

// Manager creates, copies and deletes pads. Every pad lives in its own group,
// mapped by the pad name.
type Manager struct {
	api     API
	newName func() string
}

type Option func(*Manager)

// WithNameFactory overrides the pad name generator.
func WithNameFactory(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newName = fn
		}
	}
}

func NewManager(api API, opts ...Option) *Manager {
	m := &Manager{api: api, newName: uuid.NewString}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create makes a new pad, seeded with initHTML when it is not empty.
func (m *Manager) Create(ctx context.Context, initHTML string) (Ref, error) {
	ref, err := m.newGroup(ctx)
	if err != nil {
		return Ref{}, err
	}
	if err := m.api.CreateGroupPad(ctx, ref.GroupID, ref.PadName); err != nil {
		return Ref{}, err
	}
	if initHTML != "" {
		if err := m.api.SetHTML(ctx, ref.PadID(), initHTML); err != nil {
			return Ref{}, err
		}
	}
	return ref, nil
}

// Copy duplicates sourcePadID, history included, into a new pad.
func (m *Manager) Copy(ctx context.Context, sourcePadID string) (Ref, error) {
	if sourcePadID == "" {
		return Ref{}, fmt.Errorf("copy pad: empty source pad id")
	}
	ref, err := m.newGroup(ctx)
	if err != nil {
		return Ref{}, err
	}
	if err := m.api.CopyPad(ctx, sourcePadID, ref.PadID()); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

func (m *Manager) Delete(ctx context.Context, padID string) error {
	return m.api.DeletePad(ctx, padID)
}

func (m *Manager) newGroup(ctx context.Context) (Ref, error) {
	padName := m.newName()
	groupID, err := m.api.CreateGroupIfNotExistsFor(ctx, padName)
	if err != nil {
		return Ref{}, err
	}
	return Ref{GroupID: groupID, PadName: padName}, nil
}
