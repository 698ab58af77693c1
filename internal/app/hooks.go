package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"padlink/api/internal/auth"
	"padlink/api/internal/cleanup"
	"padlink/api/internal/etherpad"
	"padlink/api/internal/rbac"
	"padlink/api/internal/store"
)

// DeleteEtherpadForItem deletes the pad of an etherpad item. Other items are
// ignored.
func (s *Service) DeleteEtherpadForItem(ctx context.Context, item store.Item) error {
	if item.Type != store.ItemTypeEtherpad {
		return nil
	}
	padID := ""
	if item.Extra.Etherpad != nil {
		padID = item.Extra.Etherpad.PadID
	}
	if padID == "" {
		return errMissingPadID(item.ID)
	}
	return s.pads.Delete(ctx, padID)
}

// CopyEtherpadInMutableItem gives a copied etherpad item its own copy of the
// source pad, rewriting item.Extra before the copy is stored.
func (s *Service) CopyEtherpadInMutableItem(ctx context.Context, item *store.Item) error {
	if item == nil || item.Type != store.ItemTypeEtherpad {
		return nil
	}
	padID := ""
	if item.Extra.Etherpad != nil {
		padID = item.Extra.Etherpad.PadID
	}
	if padID == "" {
		return errMissingPadID(item.ID)
	}
	ref, err := s.pads.Copy(ctx, padID)
	if err != nil {
		return err
	}
	item.Extra = ref.Extra()
	return nil
}

// DeleteItem removes an item and its descendants. Pads of deleted etherpad
// items are removed afterwards; those failures are logged and do not undo the
// deletion.
func (s *Service) DeleteItem(ctx context.Context, member auth.Member, itemID string) ([]store.Item, error) {
	item, err := s.lookupItem(ctx, itemID, s.store.GetItem)
	if err != nil {
		return nil, err
	}
	if _, err := s.requirePermission(ctx, member, item, rbac.PermissionAdmin); err != nil {
		return nil, err
	}

	deleted, err := s.store.DeleteItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errItemNotFound(itemID)
		}
		return nil, fmt.Errorf("delete item %s: %w", itemID, err)
	}

	for _, removed := range deleted {
		err := s.DeleteEtherpadForItem(ctx, removed)
		switch {
		case err == nil:
		case errors.Is(err, ErrIllegalState):
			s.logger.Error("deleted etherpad item had no pad", zap.String("item", removed.ID), zap.Error(err))
		case etherpad.IsNotFound(err):
			s.logger.Debug("pad already gone", zap.String("item", removed.ID), zap.Error(err))
		default:
			s.logger.Warn("pad deletion failed", zap.String("item", removed.ID), zap.Error(err))
		}
	}
	return deleted, nil
}

// CopyItem copies a single item under parentID, or as a root item when
// parentID is empty. An etherpad item gets a copy of the source pad.
func (s *Service) CopyItem(ctx context.Context, member auth.Member, itemID, parentID string) (store.Item, error) {
	source, err := s.lookupItem(ctx, itemID, s.store.GetItem)
	if err != nil {
		return store.Item{}, err
	}
	if _, err := s.requirePermission(ctx, member, source, rbac.PermissionRead); err != nil {
		return store.Item{}, err
	}
	if parentID != "" {
		parent, err := s.lookupItem(ctx, parentID, s.store.GetItem)
		if err != nil {
			return store.Item{}, err
		}
		if _, err := s.requirePermission(ctx, member, parent, rbac.PermissionWrite); err != nil {
			return store.Item{}, err
		}
	}

	copied := store.Item{
		ID:          uuid.NewString(),
		Name:        source.Name,
		Description: source.Description,
		Type:        source.Type,
		Extra:       source.Extra,
		Creator:     member.ID,
	}
	if err := s.CopyEtherpadInMutableItem(ctx, &copied); err != nil {
		if errors.Is(err, ErrIllegalState) {
			s.logger.Error("copied etherpad item had no pad", zap.String("item", source.ID), zap.Error(err))
			return store.Item{}, err
		}
		return store.Item{}, remoteError(err)
	}

	created, err := s.store.CreateItem(ctx, copied, parentID)
	if err != nil {
		if copied.Type == store.ItemTypeEtherpad && copied.Extra.Etherpad != nil {
			padID := copied.Extra.Etherpad.PadID
			s.logger.Warn("item copy failed, deleting orphan pad", zap.String("pad", padID), zap.Error(err))
			s.submit(ctx, cleanup.DeletePad(padID))
		}
		return store.Item{}, fmt.Errorf("copy item %s: %w", itemID, err)
	}
	return created, nil
}
