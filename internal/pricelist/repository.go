package pricelist

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fakturo/fakturo/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for price lists.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns one price list with its item prices, or nil when absent.
func (r *Repository) Get(ctx context.Context, id int64) (*PriceList, error) {
	var list PriceList
	err := r.pool.QueryRow(ctx, `
		SELECT id, supplier_id, service_code, valid_from, created_at, updated_at
		FROM price_lists WHERE id = $1`, id,
	).Scan(&list.ID, &list.SupplierID, &list.ServiceCode, &list.ValidFrom,
		&list.CreatedAt, &list.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if list.Prices, err = r.listItems(ctx, id); err != nil {
		return nil, err
	}
	return &list, nil
}

// List returns all price lists, newest first, without item prices.
func (r *Repository) List(ctx context.Context) ([]PriceList, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, supplier_id, service_code, valid_from, created_at, updated_at
		FROM price_lists ORDER BY valid_from DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []PriceList
	for rows.Next() {
		var list PriceList
		if err := rows.Scan(&list.ID, &list.SupplierID, &list.ServiceCode,
			&list.ValidFrom, &list.CreatedAt, &list.UpdatedAt); err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	return lists, rows.Err()
}

// Save upserts the price list for a supplier/service/valid-from triple and
// replaces its item prices.
func (r *Repository) Save(ctx context.Context, list *PriceList) (*PriceList, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO price_lists (supplier_id, service_code, valid_from, created_at, updated_at)
			VALUES ($1, $2, $3, NOW(), NOW())
			ON CONFLICT (supplier_id, service_code, valid_from)
			DO UPDATE SET updated_at = NOW()
			RETURNING id, created_at, updated_at`,
			list.SupplierID, list.ServiceCode, list.ValidFrom,
		).Scan(&list.ID, &list.CreatedAt, &list.UpdatedAt)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM price_list_items WHERE price_list_id = $1`, list.ID); err != nil {
			return err
		}
		for _, price := range list.Prices {
			if _, err := tx.Exec(ctx, `
				INSERT INTO price_list_items (price_list_id, item_id, price)
				VALUES ($1, $2, $3::numeric)`,
				list.ID, price.ItemID, price.Price.String()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Delete removes a price list; items cascade.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM price_lists WHERE id = $1`, id)
	return err
}

// FindPrice resolves the unit price from the newest price list already
// valid for the supplier/service pair.
func (r *Repository) FindPrice(ctx context.Context, supplierID, serviceCode, itemID string) (decimal.Decimal, bool, error) {
	var price pgtype.Numeric
	err := r.pool.QueryRow(ctx, `
		SELECT i.price
		FROM price_list_items i
		JOIN price_lists l ON l.id = i.price_list_id
		WHERE l.supplier_id = $1 AND l.service_code = $2 AND i.item_id = $3
			AND l.valid_from <= NOW()
		ORDER BY l.valid_from DESC
		LIMIT 1`, supplierID, serviceCode, itemID,
	).Scan(&price)
	if err == pgx.ErrNoRows {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	if !price.Valid || price.Int == nil {
		return decimal.Decimal{}, false, nil
	}
	return decimal.NewFromBigInt(price.Int, price.Exp), true, nil
}

func (r *Repository) listItems(ctx context.Context, listID int64) ([]ItemPrice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT item_id, price FROM price_list_items
		WHERE price_list_id = $1 ORDER BY item_id`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []ItemPrice
	for rows.Next() {
		var itemPrice ItemPrice
		var price pgtype.Numeric
		if err := rows.Scan(&itemPrice.ItemID, &price); err != nil {
			return nil, err
		}
		if price.Valid && price.Int != nil {
			itemPrice.Price = decimal.NewFromBigInt(price.Int, price.Exp)
		}
		prices = append(prices, itemPrice)
	}
	return prices, rows.Err()
}
