package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trolley/internal/backend"
	"trolley/internal/model"
)

// Lists implements backend.Store: the session account's lists in render
// order.
func (b *Backend) Lists(ctx context.Context) ([]model.List, error) {
	accountID, err := b.currentAccountID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT l.id, l.name, l.icon, l.icon_image_url, l.background_image_url, l.position, l.created_by, l.created_at_unixms
		 FROM lists l JOIN memberships m ON m.list_id = l.id
		 WHERE m.account_id = ?
		 ORDER BY l.position ASC, l.created_at_unixms DESC, l.id ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.List
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if out == nil {
		out = []model.List{}
	}
	return out, rows.Err()
}

func (b *Backend) CountItems(ctx context.Context, listID string) (model.ListCounts, error) {
	accountID, err := b.currentAccountID(ctx)
	if err != nil {
		return model.ListCounts{}, err
	}
	if err := b.requireMember(ctx, listID, accountID); err != nil {
		return model.ListCounts{}, err
	}
	c := model.ListCounts{ListID: listID}
	err = b.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(CASE WHEN checked = 0 THEN 1 ELSE 0 END), 0)
		 FROM items WHERE list_id = ?`, listID).
		Scan(&c.Total, &c.Unchecked)
	return c, err
}

func (b *Backend) ListItems(ctx context.Context, listID string) ([]model.Item, error) {
	accountID, err := b.currentAccountID(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.requireMember(ctx, listID, accountID); err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, list_id, text, url, checked, position, created_by, created_at_unixms
		 FROM items WHERE list_id = ?
		 ORDER BY checked ASC, position ASC, created_at_unixms DESC, id ASC`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if out == nil {
		out = []model.Item{}
	}
	return out, rows.Err()
}

func (b *Backend) CreateItem(ctx context.Context, listID, text string) (*model.Item, error) {
	accountID, err := b.currentAccountID(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.requireMember(ctx, listID, accountID); err != nil {
		return nil, err
	}
	id, err := newID("itm")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO items(id, list_id, text, url, checked, position, created_by, created_at_unixms)
		 VALUES(?, ?, ?, '', 0, 0, ?, ?)`,
		id, listID, text, accountID, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	b.hub.broadcast(backend.TableItems, listID)
	creator := accountID
	return &model.Item{
		ID:        id,
		ListID:    listID,
		Text:      text,
		CreatedBy: &creator,
		CreatedAt: now,
	}, nil
}

var listPatchColumns = []struct{ field, col string }{
	{backend.FieldName, "name"},
	{backend.FieldIcon, "icon"},
	{backend.FieldIconImage, "icon_image_url"},
	{backend.FieldBackgroundImage, "background_image_url"},
}

func (b *Backend) UpdateList(ctx context.Context, id string, fields map[string]any) (*model.List, error) {
	accountID, err := b.currentAccountID(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.requireMember(ctx, id, accountID); err != nil {
		return nil, err
	}
	set, args, err := buildPatch(fields, listPatchColumns)
	if err != nil {
		return nil, err
	}
	args = append(args, id)
	if _, err := b.db.ExecContext(ctx, `UPDATE lists SET `+set+` WHERE id = ?`, args...); err != nil {
		return nil, err
	}
	l, err := b.getList(ctx, id)
	if err != nil {
		return nil, err
	}
	b.hub.broadcast(backend.TableLists, id)
	return l, nil
}

var itemPatchColumns = []struct{ field, col string }{
	{backend.FieldText, "text"},
	{backend.FieldURL, "url"},
	{backend.FieldChecked, "checked"},
}

func (b *Backend) UpdateItem(ctx context.Context, id string, fields map[string]any) (*model.Item, error) {
	accountID, err := b.currentAccountID(ctx)
	if err != nil {
		return nil, err
	}
	it, err := b.getItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.requireMember(ctx, it.ListID, accountID); err != nil {
		return nil, err
	}
	set, args, err := buildPatch(fields, itemPatchColumns)
	if err != nil {
		return nil, err
	}
	args = append(args, id)
	if _, err := b.db.ExecContext(ctx, `UPDATE items SET `+set+` WHERE id = ?`, args...); err != nil {
		return nil, err
	}
	updated, err := b.getItem(ctx, id)
	if err != nil {
		return nil, err
	}
	b.hub.broadcast(backend.TableItems, it.ListID)
	return updated, nil
}

// UpsertPositions writes one partition's renumbered positions in a
// single transaction.
func (b *Backend) UpsertPositions(ctx context.Context, table backend.Table, writes []backend.PositionWrite) error {
	if len(writes) == 0 {
		return nil
	}
	accountID, err := b.currentAccountID(ctx)
	if err != nil {
		return err
	}
	switch table {
	case backend.TableLists:
		for _, w := range writes {
			if err := b.requireMember(ctx, w.ID, accountID); err != nil {
				return err
			}
		}
		tx, err := b.db.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		for _, w := range writes {
			if _, err := tx.ExecContext(ctx, `UPDATE lists SET position = ? WHERE id = ?`, w.Position, w.ID); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		for _, w := range writes {
			b.hub.broadcast(backend.TableLists, w.ID)
		}
		return nil
	case backend.TableItems:
		listIDs, err := b.listIDsOfItems(ctx, writes)
		if err != nil {
			return err
		}
		for _, listID := range listIDs {
			if err := b.requireMember(ctx, listID, accountID); err != nil {
				return err
			}
		}
		tx, err := b.db.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		for _, w := range writes {
			if _, err := tx.ExecContext(ctx, `UPDATE items SET position = ? WHERE id = ?`, w.Position, w.ID); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		for _, listID := range listIDs {
			b.hub.broadcast(backend.TableItems, listID)
		}
		return nil
	default:
		return fmt.Errorf("unsupported table %q", table)
	}
}

func (b *Backend) DeleteList(ctx context.Context, id string) error {
	accountID, err := b.currentAccountID(ctx)
	if err != nil {
		return err
	}
	if err := b.requireMember(ctx, id, accountID); err != nil {
		return err
	}
	// Items and memberships go with the list via FK cascade.
	if _, err := b.db.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id); err != nil {
		return err
	}
	b.hub.broadcast(backend.TableLists, id)
	b.hub.broadcast(backend.TableItems, id)
	b.hub.broadcast(backend.TableMemberships, id)
	return nil
}

func (b *Backend) DeleteItems(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	accountID, err := b.currentAccountID(ctx)
	if err != nil {
		return err
	}
	writes := make([]backend.PositionWrite, len(ids))
	for i, id := range ids {
		writes[i] = backend.PositionWrite{ID: id}
	}
	listIDs, err := b.listIDsOfItems(ctx, writes)
	if err != nil {
		return err
	}
	for _, listID := range listIDs {
		if err := b.requireMember(ctx, listID, accountID); err != nil {
			return err
		}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := b.db.ExecContext(ctx, `DELETE FROM items WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return err
	}
	for _, listID := range listIDs {
		b.hub.broadcast(backend.TableItems, listID)
	}
	return nil
}

func (b *Backend) requireMember(ctx context.Context, listID, accountID string) error {
	var n int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM memberships WHERE list_id = ? AND account_id = ?`, listID, accountID).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return backend.ErrNotAuthorized
	}
	return nil
}

// listIDsOfItems resolves the distinct lists the given item IDs belong
// to. Unknown IDs are an error: a write naming a foreign row must not
// slip through authorization.
func (b *Backend) listIDsOfItems(ctx context.Context, writes []backend.PositionWrite) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, w := range writes {
		var listID string
		err := b.db.QueryRowContext(ctx, `SELECT list_id FROM items WHERE id = ?`, w.ID).Scan(&listID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if !seen[listID] {
			seen[listID] = true
			out = append(out, listID)
		}
	}
	return out, nil
}

func buildPatch(fields map[string]any, columns []struct{ field, col string }) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, errors.New("empty patch")
	}
	known := map[string]string{}
	for _, c := range columns {
		known[c.field] = c.col
	}
	for f := range fields {
		if _, ok := known[f]; !ok {
			return "", nil, fmt.Errorf("unknown field %q", f)
		}
	}
	var (
		sets []string
		args []any
	)
	// Fixed column order keeps the statement deterministic.
	for _, c := range columns {
		v, ok := fields[c.field]
		if !ok {
			continue
		}
		sets = append(sets, c.col+" = ?")
		if bv, isBool := v.(bool); isBool {
			args = append(args, boolToInt(bv))
		} else {
			args = append(args, v)
		}
	}
	return strings.Join(sets, ", "), args, nil
}

func (b *Backend) getList(ctx context.Context, id string) (*model.List, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id, name, icon, icon_image_url, background_image_url, position, created_by, created_at_unixms
		 FROM lists WHERE id = ?`, id)
	l, err := scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (b *Backend) getItem(ctx context.Context, id string) (*model.Item, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id, list_id, text, url, checked, position, created_by, created_at_unixms
		 FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanList(row scanner) (model.List, error) {
	var (
		l         model.List
		iconURL   sql.NullString
		bgURL     sql.NullString
		createdMs int64
	)
	err := row.Scan(&l.ID, &l.Name, &l.Icon, &iconURL, &bgURL, &l.Position, &l.CreatedBy, &createdMs)
	if err != nil {
		return model.List{}, err
	}
	if iconURL.Valid {
		l.IconImageURL = &iconURL.String
	}
	if bgURL.Valid {
		l.BackgroundImageURL = &bgURL.String
	}
	l.CreatedAt = time.UnixMilli(createdMs).UTC()
	return l, nil
}

func scanItem(row scanner) (model.Item, error) {
	var (
		it        model.Item
		createdBy sql.NullString
		checked   int
		createdMs int64
	)
	err := row.Scan(&it.ID, &it.ListID, &it.Text, &it.URL, &checked, &it.Position, &createdBy, &createdMs)
	if err != nil {
		return model.Item{}, err
	}
	it.Checked = checked != 0
	if createdBy.Valid {
		it.CreatedBy = &createdBy.String
	}
	it.CreatedAt = time.UnixMilli(createdMs).UTC()
	return it, nil
}
