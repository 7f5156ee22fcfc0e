package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trolleyctl/trolley/pkg/grocery"
)

const listColumns = "id, name, status, total_estimate, created_at, updated_at"

func scanList(r rowScanner) (grocery.List, error) {
	var (
		l            grocery.List
		status       string
		total        decimal.Decimal
		created, upd string
	)
	if err := r.Scan(&l.ID, &l.Name, &status, &total, &created, &upd); err != nil {
		return grocery.List{}, err
	}
	l.Status = grocery.ListStatus(status)
	l.TotalEstimate = total
	l.CreatedAt = parseTime(created)
	l.UpdatedAt = parseTime(upd)
	return l, nil
}

func (d *DB) CreateList(ctx context.Context, name string) (grocery.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return grocery.List{}, errors.New("list name is required")
	}
	now := formatTime(d.now())
	res, err := d.sql.ExecContext(ctx, "INSERT INTO lists(name, status, total_estimate, created_at, updated_at) VALUES(?,?,?,?,?)",
		name, string(grocery.ListActive), "0", now, now)
	if err != nil {
		return grocery.List{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return grocery.List{}, err
	}
	return d.GetList(ctx, id)
}

func (d *DB) GetList(ctx context.Context, id int64) (grocery.List, error) {
	l, err := scanList(d.sql.QueryRowContext(ctx, "SELECT "+listColumns+" FROM lists WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return grocery.List{}, ErrNotFound
	}
	return l, err
}

// FindList resolves a list reference: a numeric id, a list name (most
// recent wins), or "" for the most recent active list.
func (d *DB) FindList(ctx context.Context, ref string) (grocery.List, error) {
	ref = strings.TrimSpace(ref)
	var row *sql.Row
	switch {
	case ref == "":
		row = d.sql.QueryRowContext(ctx, "SELECT "+listColumns+" FROM lists WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT 1", string(grocery.ListActive))
	default:
		var id int64
		if _, err := fmt.Sscanf(ref, "%d", &id); err == nil && fmt.Sprint(id) == ref {
			return d.GetList(ctx, id)
		}
		row = d.sql.QueryRowContext(ctx, "SELECT "+listColumns+" FROM lists WHERE name = ? COLLATE NOCASE ORDER BY created_at DESC, id DESC LIMIT 1", ref)
	}
	l, err := scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return grocery.List{}, ErrNotFound
	}
	return l, err
}

// ListLists returns lists newest first. An empty status returns all.
func (d *DB) ListLists(ctx context.Context, status grocery.ListStatus, limit int) ([]grocery.List, error) {
	q := "SELECT " + listColumns + " FROM lists"
	var args []interface{}
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, string(status))
	}
	q += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grocery.List
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (d *DB) SetListStatus(ctx context.Context, id int64, status grocery.ListStatus) error {
	res, err := d.sql.ExecContext(ctx, "UPDATE lists SET status = ?, updated_at = ? WHERE id = ?", string(status), formatTime(d.now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) DeleteList(ctx context.Context, id int64) (err error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, "DELETE FROM list_items WHERE list_id = ?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM lists WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
		return err
	}
	return tx.Commit()
}

const itemColumns = "id, list_id, label, quantity, unit, stockcode, product_name, brand, price, on_special, status"

func scanItem(r rowScanner) (grocery.ListItem, error) {
	var (
		it                grocery.ListItem
		unit, name, brand sql.NullString
		code              sql.NullInt64
		price             decimal.Decimal
		special           int
		status            string
	)
	if err := r.Scan(&it.ID, &it.ListID, &it.Label, &it.Quantity, &unit, &code, &name, &brand, &price, &special, &status); err != nil {
		return grocery.ListItem{}, err
	}
	it.Unit = unit.String
	it.Stockcode = code.Int64
	it.ProductName = name.String
	it.Brand = brand.String
	it.Price = price
	it.OnSpecial = special == 1
	it.Status = grocery.Status(status)
	return it, nil
}

func (d *DB) ListItems(ctx context.Context, listID int64) ([]grocery.ListItem, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT "+itemColumns+" FROM list_items WHERE list_id = ? ORDER BY id", listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grocery.ListItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AddListItem appends item to the list, or bumps the quantity of an
// existing item with the same normalized label. merged reports which.
func (d *DB) AddListItem(ctx context.Context, listID int64, item grocery.ListItem) (out grocery.ListItem, merged bool, err error) {
	label := strings.TrimSpace(item.Label)
	if label == "" {
		return grocery.ListItem{}, false, errors.New("item label is required")
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	if item.Status == "" {
		item.Status = grocery.StatusUnresolved
	}

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return grocery.ListItem{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, "SELECT "+itemColumns+" FROM list_items WHERE list_id = ? ORDER BY id", listID)
	if err != nil {
		return grocery.ListItem{}, false, err
	}
	key := grocery.NormalizeLabel(label)
	var existing *grocery.ListItem
	for rows.Next() {
		it, serr := scanItem(rows)
		if serr != nil {
			rows.Close()
			err = serr
			return grocery.ListItem{}, false, err
		}
		if grocery.NormalizeLabel(it.Label) == key {
			existing = &it
			break
		}
	}
	rows.Close()

	var id int64
	if existing != nil {
		merged = true
		id = existing.ID
		if _, err = tx.ExecContext(ctx, "UPDATE list_items SET quantity = quantity + ? WHERE id = ?", item.Quantity, id); err != nil {
			return grocery.ListItem{}, false, err
		}
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx, "INSERT INTO list_items(list_id, label, quantity, unit, stockcode, product_name, brand, price, on_special, status) VALUES(?,?,?,?,?,?,?,?,?,?)",
			listID, label, item.Quantity, nullIfEmpty(item.Unit), nullIfZero(item.Stockcode), nullIfEmpty(item.ProductName),
			nullIfEmpty(item.Brand), item.Price.String(), boolToInt(item.OnSpecial), string(item.Status))
		if err != nil {
			return grocery.ListItem{}, false, err
		}
		if id, err = res.LastInsertId(); err != nil {
			return grocery.ListItem{}, false, err
		}
	}
	if err = refreshTotal(ctx, tx, listID, d.now()); err != nil {
		return grocery.ListItem{}, false, err
	}
	if out, err = scanItem(tx.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM list_items WHERE id = ?", id)); err != nil {
		return grocery.ListItem{}, false, err
	}
	return out, merged, tx.Commit()
}

// RemoveListItem deletes the item whose normalized label matches label.
func (d *DB) RemoveListItem(ctx context.Context, listID int64, label string) error {
	items, err := d.ListItems(ctx, listID)
	if err != nil {
		return err
	}
	key := grocery.NormalizeLabel(label)
	for _, it := range items {
		if grocery.NormalizeLabel(it.Label) != key {
			continue
		}
		if _, err := d.sql.ExecContext(ctx, "DELETE FROM list_items WHERE id = ?", it.ID); err != nil {
			return err
		}
		return d.refresh(ctx, listID)
	}
	return ErrNotFound
}

func (d *DB) ClearList(ctx context.Context, listID int64) error {
	if _, err := d.sql.ExecContext(ctx, "DELETE FROM list_items WHERE list_id = ?", listID); err != nil {
		return err
	}
	return d.refresh(ctx, listID)
}

// UpdateItemResolution records the outcome of a resolution attempt. A nil
// product clears any previously chosen product.
func (d *DB) UpdateItemResolution(ctx context.Context, itemID int64, status grocery.Status, p *grocery.Product) error {
	var err error
	if p == nil {
		_, err = d.sql.ExecContext(ctx, "UPDATE list_items SET status = ?, stockcode = NULL, product_name = NULL, brand = NULL, price = '0', on_special = 0 WHERE id = ?",
			string(status), itemID)
	} else {
		_, err = d.sql.ExecContext(ctx, "UPDATE list_items SET status = ?, stockcode = ?, product_name = ?, brand = ?, price = ?, on_special = ? WHERE id = ?",
			string(status), p.Stockcode, p.Name, nullIfEmpty(p.Brand), p.Price.String(), boolToInt(p.OnSpecial), itemID)
	}
	if err != nil {
		return err
	}
	var listID int64
	if err := d.sql.QueryRowContext(ctx, "SELECT list_id FROM list_items WHERE id = ?", itemID).Scan(&listID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return d.refresh(ctx, listID)
}

// ConfirmItems marks every item on an active list whose normalized label
// is label as user-confirmed for p, returning how many changed.
func (d *DB) ConfirmItems(ctx context.Context, label string, p grocery.Product) (int, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT i.id, i.list_id, i.label FROM list_items i JOIN lists l ON l.id = i.list_id WHERE l.status = ?`, string(grocery.ListActive))
	if err != nil {
		return 0, err
	}
	key := grocery.NormalizeLabel(label)
	type match struct{ id, listID int64 }
	var matches []match
	for rows.Next() {
		var (
			m match
			l string
		)
		if err := rows.Scan(&m.id, &m.listID, &l); err != nil {
			rows.Close()
			return 0, err
		}
		if grocery.NormalizeLabel(l) == key {
			matches = append(matches, m)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, m := range matches {
		if err := d.UpdateItemResolution(ctx, m.id, grocery.StatusUserConfirmed, &p); err != nil {
			return 0, err
		}
	}
	return len(matches), nil
}

func (d *DB) refresh(ctx context.Context, listID int64) (err error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = refreshTotal(ctx, tx, listID, d.now()); err != nil {
		return err
	}
	return tx.Commit()
}

func refreshTotal(ctx context.Context, tx *sql.Tx, listID int64, now time.Time) error {
	rows, err := tx.QueryContext(ctx, "SELECT quantity, price FROM list_items WHERE list_id = ?", listID)
	if err != nil {
		return err
	}
	total := decimal.Zero
	for rows.Next() {
		var (
			qty   int64
			price decimal.Decimal
		)
		if err := rows.Scan(&qty, &price); err != nil {
			rows.Close()
			return err
		}
		total = total.Add(price.Mul(decimal.NewFromInt(qty)))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "UPDATE lists SET total_estimate = ?, updated_at = ? WHERE id = ?", total.String(), formatTime(now), listID)
	return err
}
