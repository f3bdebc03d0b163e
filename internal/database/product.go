package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/amazon-offer-scraper/internal/money"
	"github.com/maltedev/amazon-offer-scraper/internal/scraper"
)

// SaveProduct upserts a scraped product together with its breadcrumb
// departments. The department list is replaced wholesale so the stored path
// always mirrors the last successful scrape.
func (db *DB) SaveProduct(ctx context.Context, p *scraper.Product) error {
	return db.Transaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO products (asin, name, manufacturer)
			VALUES ($1, $2, $3)
			ON CONFLICT (asin) DO UPDATE SET
				name = EXCLUDED.name,
				manufacturer = EXCLUDED.manufacturer,
				updated_at = CURRENT_TIMESTAMP`

		if _, err := tx.Exec(ctx, query, p.ASIN, p.Name, p.Manufacturer); err != nil {
			return fmt.Errorf("failed to upsert product: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM product_departments WHERE asin = $1`, p.ASIN); err != nil {
			return fmt.Errorf("failed to clear departments: %w", err)
		}

		for position, dept := range p.Department {
			_, err := tx.Exec(ctx, `
				INSERT INTO product_departments (asin, position, name, node)
				VALUES ($1, $2, $3, $4)`,
				p.ASIN, position, dept.Name, dept.Node)
			if err != nil {
				return fmt.Errorf("failed to insert department: %w", err)
			}
		}

		return nil
	})
}

// GetProduct loads a stored product and its department path. Returns
// pgx.ErrNoRows when the ASIN has never been saved.
func (db *DB) GetProduct(ctx context.Context, asin string) (*scraper.Product, error) {
	product := &scraper.Product{Department: scraper.DepartmentHierarchy{}}

	err := db.pool.QueryRow(ctx,
		`SELECT asin, name, manufacturer FROM products WHERE asin = $1`, asin,
	).Scan(&product.ASIN, &product.Name, &product.Manufacturer)
	if err != nil {
		return nil, err
	}

	rows, err := db.pool.Query(ctx, `
		SELECT name, node FROM product_departments
		WHERE asin = $1 ORDER BY position`, asin)
	if err != nil {
		return nil, fmt.Errorf("failed to load departments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dept scraper.Department
		if err := rows.Scan(&dept.Name, &dept.Node); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		product.Department = append(product.Department, dept)
	}

	return product, rows.Err()
}

// SaveOffers replaces the stored offer set for an ASIN with the result of a
// fresh collection. Each batch shares a fetch id so a partially interleaved
// write can never mix two collections.
func (db *DB) SaveOffers(ctx context.Context, asin string, offers []scraper.Offer) error {
	fetchID := uuid.New()
	fetchedAt := time.Now().UTC()

	return db.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM offers WHERE asin = $1`, asin); err != nil {
			return fmt.Errorf("failed to clear offers: %w", err)
		}

		for position, offer := range offers {
			_, err := tx.Exec(ctx, insertOfferQuery,
				uuid.New(), fetchID, asin, position,
				string(offer.Condition), nullable(offer.ConditionDescription),
				offer.Price.Cents(), offer.ShipsFrom, offer.SoldBy,
				nullable(offer.SellerPage), fetchedAt)
			if err != nil {
				return fmt.Errorf("failed to insert offer: %w", err)
			}
		}

		return nil
	})
}

// Stored offers carry their index within the collected batch so reads give
// them back in the order the scraper found them.
const (
	insertOfferQuery = `
		INSERT INTO offers (id, fetch_id, asin, position, condition,
			condition_description, price_cents, ships_from, sold_by,
			seller_page, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	selectOffersQuery = `
		SELECT condition, COALESCE(condition_description, ''), price_cents,
			ships_from, sold_by, COALESCE(seller_page, '')
		FROM offers WHERE asin = $1 ORDER BY position`
)

// GetOffers loads the most recently stored offer set for an ASIN, in the
// order the offers were collected.
func (db *DB) GetOffers(ctx context.Context, asin string) ([]scraper.Offer, error) {
	rows, err := db.pool.Query(ctx, selectOffersQuery, asin)
	if err != nil {
		return nil, fmt.Errorf("failed to load offers: %w", err)
	}
	defer rows.Close()

	var offers []scraper.Offer
	for rows.Next() {
		var (
			offer     scraper.Offer
			condition string
			cents     int64
		)
		err := rows.Scan(&condition, &offer.ConditionDescription, &cents,
			&offer.ShipsFrom, &offer.SoldBy, &offer.SellerPage)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offer.Condition = scraper.Condition(condition)
		offer.Price = money.FromCents(cents)
		offers = append(offers, offer)
	}

	return offers, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
