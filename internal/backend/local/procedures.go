package local

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"trolley/internal/backend"
	"trolley/internal/model"
)

// CreateList implements the create-list procedure: the list and its
// creator membership land in one transaction so no list ever exists
// without a member.
func (b *Backend) CreateList(ctx context.Context, name, icon string) (*model.List, error) {
	accountID, err := b.currentAccountID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := newID("lst")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lists(id, name, icon, position, created_by, created_at_unixms) VALUES(?, ?, ?, 0, ?, ?)`,
		id, name, icon, accountID, now.UnixMilli()); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memberships(list_id, account_id, created_at_unixms) VALUES(?, ?, ?)`,
		id, accountID, now.UnixMilli()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	b.hub.broadcast(backend.TableLists, id)
	b.hub.broadcast(backend.TableMemberships, id)
	return &model.List{
		ID:        id,
		Name:      name,
		Icon:      icon,
		CreatedBy: accountID,
		CreatedAt: now,
	}, nil
}

// ShareList implements the share procedure. Adding an account that is
// already a member succeeds without creating a duplicate row.
func (b *Backend) ShareList(ctx context.Context, listID, email string) error {
	accountID, err := b.currentAccountID(ctx)
	if err != nil {
		return err
	}
	if err := b.requireMember(ctx, listID, accountID); err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	var targetID string
	err = b.db.QueryRowContext(ctx, `SELECT id FROM accounts WHERE email = ?`, email).Scan(&targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	res, err := b.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO memberships(list_id, account_id, created_at_unixms) VALUES(?, ?, ?)`,
		listID, targetID, time.Now().UTC().UnixMilli())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		b.hub.broadcast(backend.TableMemberships, listID)
	}
	return nil
}
