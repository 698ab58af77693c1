package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when an item or membership does not exist.
var ErrNotFound = sql.ErrNoRows

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const itemColumns = `id, name, description, type, path, extra, creator, is_public, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item  Item
		extra []byte
	)
	if err := row.Scan(&item.ID, &item.Name, &item.Description, &item.Type, &item.Path, &extra, &item.Creator, &item.IsPublic, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Item{}, err
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &item.Extra); err != nil {
			return Item{}, fmt.Errorf("decode extra of item %s: %w", item.ID, err)
		}
	}
	return item, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, itemID string) (Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, itemID))
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

// GetPublicItem returns the item when it or one of its ancestors is public.
func (s *PostgresStore) GetPublicItem(ctx context.Context, itemID string) (Item, error) {
	const query = `
		SELECT ` + itemColumns + `
		FROM items i
		WHERE i.id = $1
			AND EXISTS (
				SELECT 1 FROM items p
				WHERE p.is_public
					AND (i.path = p.path OR starts_with(i.path, p.path || '.'))
			)
	`
	return scanItem(s.db.QueryRowContext(ctx, query, itemID))
}

// GetPermission returns the highest permission memberID holds on itemPath or any ancestor.
func (s *PostgresStore) GetPermission(ctx context.Context, memberID, itemPath string) (string, error) {
	const query = `
		SELECT permission
		FROM item_memberships
		WHERE member_id = $1
			AND ($2 = item_path OR starts_with($2, item_path || '.'))
		ORDER BY CASE permission WHEN 'admin' THEN 3 WHEN 'write' THEN 2 ELSE 1 END DESC
		LIMIT 1
	`
	var permission string
	if err := s.db.QueryRowContext(ctx, query, memberID, itemPath).Scan(&permission); err != nil {
		return "", err
	}
	return permission, nil
}

// CreateItem inserts item under parentID, or as a root item when parentID is empty.
// The creator of a root item receives an admin membership on it.
func (s *PostgresStore) CreateItem(ctx context.Context, item Item, parentID string) (Item, error) {
	extra, err := json.Marshal(item.Extra)
	if err != nil {
		return Item{}, fmt.Errorf("encode extra: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, fmt.Errorf("begin create item: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	item.Path = item.ID
	if parentID != "" {
		var parentPath string
		if err := tx.QueryRowContext(ctx, `SELECT path FROM items WHERE id=$1`, parentID).Scan(&parentPath); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Item{}, err
			}
			return Item{}, fmt.Errorf("lookup parent %s: %w", parentID, err)
		}
		item.Path = parentPath + "." + item.ID
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO items (id, name, description, type, path, extra, creator, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, item.ID, item.Name, item.Description, item.Type, item.Path, extra, item.Creator, item.IsPublic).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}

	if parentID == "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO item_memberships (id, member_id, item_path, permission, creator)
			VALUES (gen_random_uuid(), $1, $2, 'admin', $1)
			ON CONFLICT (member_id, item_path) DO NOTHING
		`, item.Creator, item.Path); err != nil {
			return Item{}, fmt.Errorf("insert creator membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("commit create item: %w", err)
	}
	return item, nil
}

// DeleteItem removes the item and all of its descendants and returns what was deleted.
func (s *PostgresStore) DeleteItem(ctx context.Context, itemID string) ([]Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete item: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var path string
	if err := tx.QueryRowContext(ctx, `SELECT path FROM items WHERE id=$1`, itemID).Scan(&path); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		DELETE FROM items
		WHERE path = $1 OR starts_with(path, $1 || '.')
		RETURNING `+itemColumns, path)
	if err != nil {
		return nil, fmt.Errorf("delete item %s: %w", itemID, err)
	}
	deleted := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan deleted item: %w", err)
		}
		deleted = append(deleted, item)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate deleted items: %w", err)
	}
	_ = rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete item: %w", err)
	}
	return deleted, nil
}

// GrantPermission creates or replaces the membership of memberID on itemPath.
func (s *PostgresStore) GrantPermission(ctx context.Context, membership Membership) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_memberships (id, member_id, item_path, permission, creator)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		ON CONFLICT (member_id, item_path) DO UPDATE SET permission = EXCLUDED.permission
	`, membership.MemberID, membership.ItemPath, membership.Permission, membership.Creator)
	if err != nil {
		return fmt.Errorf("grant permission: %w", err)
	}
	return nil
}
