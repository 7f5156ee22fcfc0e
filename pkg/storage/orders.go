package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trolleyctl/trolley/pkg/grocery"
)

// AppendOrder stores rec and its items in one transaction. Orders are
// never updated or deleted afterwards.
func (d *DB) AppendOrder(ctx context.Context, rec grocery.OrderRecord) (out grocery.OrderRecord, err error) {
	if len(rec.Items) == 0 {
		return grocery.OrderRecord{}, errors.New("order has no items")
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = d.now()
	}
	rec.CompletedAt = rec.CompletedAt.UTC()

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return grocery.OrderRecord{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, "INSERT INTO orders(list_id, total_estimate, total_paid, item_count, store, notes, completed_at) VALUES(?,?,?,?,?,?,?)",
		nullIfZero(rec.ListID), rec.TotalEstimate.String(), rec.TotalPaid, len(rec.Items), rec.Store, nullIfEmpty(rec.Notes), formatTime(rec.CompletedAt))
	if err != nil {
		return grocery.OrderRecord{}, err
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return grocery.OrderRecord{}, err
	}

	for _, it := range rec.Items {
		_, err = tx.ExecContext(ctx, "INSERT INTO order_items(order_id, label, stockcode, product_name, brand, quantity, unit_price, on_special) VALUES(?,?,?,?,?,?,?,?)",
			rec.ID, it.Label, it.Stockcode, it.ProductName, nullIfEmpty(it.Brand), it.Quantity, it.UnitPrice.String(), boolToInt(it.OnSpecial))
		if err != nil {
			return grocery.OrderRecord{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return grocery.OrderRecord{}, err
	}
	return rec, nil
}

// Orders returns orders newest first, items included.
func (d *DB) Orders(ctx context.Context, q OrderQuery) ([]grocery.OrderRecord, error) {
	query := "SELECT id, list_id, total_estimate, total_paid, store, notes, completed_at FROM orders"
	var args []interface{}
	if !q.Since.IsZero() {
		query += " WHERE completed_at >= ?"
		args = append(args, formatTime(q.Since))
	}
	query += " ORDER BY completed_at DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var (
		out   []grocery.OrderRecord
		index = make(map[int64]int)
	)
	for rows.Next() {
		var (
			rec       grocery.OrderRecord
			listID    sql.NullInt64
			notes     sql.NullString
			completed string
		)
		if err := rows.Scan(&rec.ID, &listID, &rec.TotalEstimate, &rec.TotalPaid, &rec.Store, &notes, &completed); err != nil {
			rows.Close()
			return nil, err
		}
		rec.ListID = listID.Int64
		rec.Notes = notes.String
		rec.CompletedAt = parseTime(completed)
		index[rec.ID] = len(out)
		out = append(out, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	placeholders := make([]string, 0, len(out))
	itemArgs := make([]interface{}, 0, len(out))
	for _, rec := range out {
		placeholders = append(placeholders, "?")
		itemArgs = append(itemArgs, rec.ID)
	}
	itemQuery := "SELECT order_id, label, stockcode, product_name, brand, quantity, unit_price, on_special FROM order_items WHERE order_id IN (" + strings.Join(placeholders, ",") + ") ORDER BY id"
	itemRows, err := d.sql.QueryContext(ctx, itemQuery, itemArgs...)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var (
			orderID int64
			it      grocery.OrderItem
			brand   sql.NullString
			special int
		)
		if err := itemRows.Scan(&orderID, &it.Label, &it.Stockcode, &it.ProductName, &brand, &it.Quantity, &it.UnitPrice, &special); err != nil {
			return nil, err
		}
		i, ok := index[orderID]
		if !ok {
			continue
		}
		it.Brand = brand.String
		it.OnSpecial = special == 1
		out[i].Items = append(out[i].Items, it)
	}
	return out, itemRows.Err()
}

// RecentOrders returns the n most recent orders.
func (d *DB) RecentOrders(ctx context.Context, n int) ([]grocery.OrderRecord, error) {
	return d.Orders(ctx, OrderQuery{Limit: n})
}

func (d *DB) AppendPricePoints(ctx context.Context, points []grocery.PricePoint) (err error) {
	if len(points) == 0 {
		return nil
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, p := range points {
		at := p.RecordedAt
		if at.IsZero() {
			at = d.now()
		}
		if _, err = tx.ExecContext(ctx, "INSERT INTO price_history(stockcode, product_name, price, on_special, recorded_at) VALUES(?,?,?,?,?)",
			p.Stockcode, p.ProductName, p.Price.String(), boolToInt(p.OnSpecial), formatTime(at)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PriceHistory returns the recorded prices for stockcode, oldest first.
func (d *DB) PriceHistory(ctx context.Context, stockcode int64, since time.Time) ([]grocery.PricePoint, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT stockcode, product_name, price, on_special, recorded_at FROM price_history WHERE stockcode = ? AND recorded_at >= ? ORDER BY recorded_at, id",
		stockcode, formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grocery.PricePoint
	for rows.Next() {
		var (
			p       grocery.PricePoint
			price   decimal.Decimal
			special int
			at      string
		)
		if err := rows.Scan(&p.Stockcode, &p.ProductName, &price, &special, &at); err != nil {
			return nil, err
		}
		p.Price = price
		p.OnSpecial = special == 1
		p.RecordedAt = parseTime(at)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) GetStats(ctx context.Context) (Stats, error) {
	var (
		s    Stats
		last sql.NullString
	)
	err := d.sql.QueryRowContext(ctx, `SELECT
  (SELECT COUNT(*) FROM preferences),
  (SELECT COUNT(*) FROM lists WHERE status = 'active'),
  (SELECT COUNT(*) FROM lists),
  (SELECT COUNT(*) FROM orders),
  (SELECT COUNT(*) FROM price_history),
  (SELECT COUNT(*) FROM search_cache),
  (SELECT MAX(completed_at) FROM orders)`).Scan(&s.Preferences, &s.ActiveLists, &s.Lists, &s.Orders, &s.PricePoints, &s.CacheEntries, &last)
	if err != nil {
		return Stats{}, err
	}
	if last.Valid {
		s.LastOrderAt = parseTime(last.String)
	}
	return s, nil
}
