package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/trolleyctl/trolley/pkg/grocery"
)

const preferenceColumns = "label, stockcode, product_name, brand, package_size, last_price, source, confidence, purchase_count, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPreference(r rowScanner) (grocery.Preference, error) {
	var (
		p           grocery.Preference
		brand, size sql.NullString
		price       decimal.Decimal
		source, upd string
	)
	if err := r.Scan(&p.Label, &p.Stockcode, &p.ProductName, &brand, &size, &price, &source, &p.Confidence, &p.PurchaseCount, &upd); err != nil {
		return grocery.Preference{}, err
	}
	p.Brand = brand.String
	p.PackageSize = size.String
	p.LastPrice = price
	p.Source = grocery.PreferenceSource(source)
	p.UpdatedAt = parseTime(upd)
	return p, nil
}

// GetPreference returns the preference stored under the normalized label.
func (d *DB) GetPreference(ctx context.Context, label string) (grocery.Preference, error) {
	row := d.sql.QueryRowContext(ctx, "SELECT "+preferenceColumns+" FROM preferences WHERE label = ?", grocery.NormalizeLabel(label))
	p, err := scanPreference(row)
	if errors.Is(err, sql.ErrNoRows) {
		return grocery.Preference{}, ErrNotFound
	}
	return p, err
}

func (d *DB) ListPreferences(ctx context.Context) ([]grocery.Preference, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT "+preferenceColumns+" FROM preferences ORDER BY label")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grocery.Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePreference inserts or overwrites the preference for p.Label.
func (d *DB) SavePreference(ctx context.Context, p grocery.Preference) error {
	p.Label = grocery.NormalizeLabel(p.Label)
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = d.now()
	}
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO preferences(`+preferenceColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(label) DO UPDATE SET
  stockcode = excluded.stockcode,
  product_name = excluded.product_name,
  brand = excluded.brand,
  package_size = excluded.package_size,
  last_price = excluded.last_price,
  source = excluded.source,
  confidence = excluded.confidence,
  purchase_count = excluded.purchase_count,
  updated_at = excluded.updated_at`,
		p.Label, p.Stockcode, p.ProductName, nullIfEmpty(p.Brand), nullIfEmpty(p.PackageSize),
		p.LastPrice.String(), string(p.Source), p.Confidence, p.PurchaseCount, formatTime(p.UpdatedAt))
	return err
}

// DeletePreference removes the preference for label. ErrNotFound is
// returned when there was none.
func (d *DB) DeletePreference(ctx context.Context, label string) error {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM preferences WHERE label = ?", grocery.NormalizeLabel(label))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
