// Package db is the admin-side storage layer: catalog writes and
// fulfillment reads. The purchase flow never writes through here.
package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"ms-blindbox/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	ErrNotFound  = errors.New("catalog entry not found")
	ErrSlugTaken = errors.New("universe slug is already taken")
)

type DB struct {
	Bun *bun.DB
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation()
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}

// ---------------- UNIVERSES ----------------

func (d *DB) ListUniverses(ctx context.Context) ([]*models.Universe, error) {
	var universes []*models.Universe
	err := d.Bun.NewSelect().
		Model(&universes).
		Relation("Boxes").
		Order("universe.created_at ASC").
		Scan(ctx)
	return universes, err
}

func (d *DB) CreateUniverse(ctx context.Context, universe *models.Universe) error {
	if _, err := d.Bun.NewInsert().Model(universe).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return err
	}
	return nil
}

func (d *DB) UpdateUniverse(ctx context.Context, universe *models.Universe) error {
	res, err := d.Bun.NewUpdate().
		Model(universe).
		Column("name", "emoji", "color", "gradient").
		Where("id = ?", universe.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) DeleteUniverse(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var boxIDs []string
		err := tx.NewSelect().
			Model((*models.Box)(nil)).
			Column("id").
			Where("universe_id = ?", id).
			Scan(ctx, &boxIDs)
		if err != nil {
			return err
		}
		if len(boxIDs) > 0 {
			if _, err := tx.NewDelete().
				Model((*models.Item)(nil)).
				Where("box_id IN (?)", bun.In(boxIDs)).
				Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewDelete().
				Model((*models.Box)(nil)).
				Where("universe_id = ?", id).
				Exec(ctx); err != nil {
				return err
			}
		}

		res, err := tx.NewDelete().
			Model((*models.Universe)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ---------------- BOXES ----------------

func (d *DB) ListBoxes(ctx context.Context, universeID string) ([]*models.Box, error) {
	var boxes []*models.Box
	err := d.Bun.NewSelect().
		Model(&boxes).
		Relation("Items").
		Where("universe_id = ?", universeID).
		Order("box.created_at ASC").
		Scan(ctx)
	return boxes, err
}

func (d *DB) UniverseExists(ctx context.Context, id string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Universe)(nil)).
		Where("id = ?", id).
		Exists(ctx)
}

func (d *DB) CreateBox(ctx context.Context, box *models.Box) error {
	_, err := d.Bun.NewInsert().Model(box).Exec(ctx)
	return err
}

func (d *DB) UpdateBox(ctx context.Context, box *models.Box) error {
	res, err := d.Bun.NewUpdate().
		Model(box).
		Column("name", "img").
		Where("id = ?", box.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) DeleteBox(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.Item)(nil)).
			Where("box_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().
			Model((*models.Box)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (d *DB) BoxExists(ctx context.Context, id string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Box)(nil)).
		Where("id = ?", id).
		Exists(ctx)
}

// ---------------- ITEMS ----------------

func (d *DB) ListItems(ctx context.Context, boxID string) ([]*models.Item, error) {
	var items []*models.Item
	err := d.Bun.NewSelect().
		Model(&items).
		Where("box_id = ?", boxID).
		Order("created_at ASC").
		Scan(ctx)
	return items, err
}

func (d *DB) CreateItem(ctx context.Context, item *models.Item) error {
	_, err := d.Bun.NewInsert().Model(item).Exec(ctx)
	return err
}

func (d *DB) UpdateItem(ctx context.Context, item *models.Item) error {
	res, err := d.Bun.NewUpdate().
		Model(item).
		Column("name", "img").
		Where("id = ?", item.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) DeleteItem(ctx context.Context, id string) error {
	res, err := d.Bun.NewDelete().
		Model((*models.Item)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------- ORDERS (fulfillment) ----------------

func (d *DB) ListOrders(ctx context.Context) ([]*models.Order, error) {
	var orders []*models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Order("created_at DESC").
		Scan(ctx)
	return orders, err
}

func (d *DB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", status).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------- STATS ----------------

type Stats struct {
	Universes         int   `json:"universes"`
	Boxes             int   `json:"boxes"`
	Items             int   `json:"items"`
	ActiveSessions    int   `json:"active_sessions"`
	CompletedSessions int   `json:"completed_sessions"`
	PendingOrders     int   `json:"pending_orders"`
	TotalOrders       int   `json:"total_orders"`
	Revenue           int64 `json:"revenue"`
}

func (d *DB) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	var err error

	if stats.Universes, err = d.Bun.NewSelect().Model((*models.Universe)(nil)).Count(ctx); err != nil {
		return nil, err
	}
	if stats.Boxes, err = d.Bun.NewSelect().Model((*models.Box)(nil)).Count(ctx); err != nil {
		return nil, err
	}
	if stats.Items, err = d.Bun.NewSelect().Model((*models.Item)(nil)).Count(ctx); err != nil {
		return nil, err
	}
	if stats.ActiveSessions, err = d.Bun.NewSelect().
		Model((*models.Session)(nil)).
		Where("status = ?", models.SessionActive).
		Count(ctx); err != nil {
		return nil, err
	}
	if stats.CompletedSessions, err = d.Bun.NewSelect().
		Model((*models.Session)(nil)).
		Where("status = ?", models.SessionCompleted).
		Count(ctx); err != nil {
		return nil, err
	}
	if stats.PendingOrders, err = d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Where("status = ?", models.OrderPending).
		Count(ctx); err != nil {
		return nil, err
	}
	if stats.TotalOrders, err = d.Bun.NewSelect().Model((*models.Order)(nil)).Count(ctx); err != nil {
		return nil, err
	}

	err = d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("COALESCE(SUM(total_amount), 0)").
		Scan(ctx, &stats.Revenue)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
