// Package db is the bun-backed storage layer for the purchase flow.
// Every multi-field transition runs in a single transaction, and payment
// binding relies on the primary key of session_payments rather than any
// read-then-write check, so concurrent writers racing on the same
// confirmation id resolve in storage.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-blindbox/internal/blindbox"
	"ms-blindbox/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

type DB struct {
	Bun *bun.DB
}

// isUniqueViolation matches integrity violations from Postgres (pgdriver)
// and from the sqlite shim used by the tests.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation()
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}

// ---------------- SESSIONS ----------------

func (d *DB) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := d.Bun.NewSelect().
		Model(&session).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, blindbox.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DB) GetSessionSnapshot(ctx context.Context, id string) (*models.SessionSnapshot, error) {
	session, err := d.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	snapshot := &models.SessionSnapshot{Session: *session}

	snapshot.PaymentIntentIDs, err = d.SessionPaymentIDs(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.SelectedBoxID != "" {
		if snapshot.SelectedBox, err = d.BoxByID(ctx, session.SelectedBoxID); err != nil {
			return nil, err
		}
	}
	if session.SelectedItemID != "" {
		var item models.Item
		err := d.Bun.NewSelect().Model(&item).Where("id = ?", session.SelectedItemID).Limit(1).Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			snapshot.SelectedItem = &item
		}
	}
	if session.UniverseSlug != "" {
		var universe models.Universe
		err := d.Bun.NewSelect().Model(&universe).Where("slug = ?", session.UniverseSlug).Limit(1).Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			snapshot.Universe = &universe
		}
	}

	var order models.Order
	err = d.Bun.NewSelect().Model(&order).Where("session_id = ?", id).Limit(1).Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		snapshot.Order = &order
	}

	return snapshot, nil
}

// CreateSessionWithPayment inserts the session and binds its entry
// confirmation as one transaction. A confirmation id already bound to
// any session fails the session_payments primary key.
func (d *DB) CreateSessionWithPayment(ctx context.Context, session *models.Session, payment *models.SessionPayment) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(session).Exec(ctx); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if _, err := tx.NewInsert().Model(payment).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return blindbox.ErrConfirmationAlreadyUsed
			}
			return fmt.Errorf("bind entry payment: %w", err)
		}
		return nil
	})
}

func (d *DB) SessionPaymentIDs(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Model((*models.SessionPayment)(nil)).
		Column("payment_intent_id").
		Where("session_id = ?", sessionID).
		Order("position ASC", "created_at ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpdateSelection writes a selection transition as one guarded UPDATE.
// Setting a box always clears the item so selectedItemId can never
// reference an item from a previous box.
func (d *DB) UpdateSelection(ctx context.Context, sessionID string, sel blindbox.Selection) error {
	q := d.Bun.NewUpdate().
		Model((*models.Session)(nil)).
		Set("current_step = ?", sel.Step).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", sessionID).
		Where("status = ?", models.SessionActive)

	if sel.UniverseSlug != "" {
		q = q.Set("universe_slug = ?", sel.UniverseSlug)
	}
	if sel.BoxID != "" {
		q = q.Set("selected_box_id = ?", sel.BoxID).
			Set("selected_item_id = NULL")
	}
	if sel.ItemID != "" {
		q = q.Set("selected_item_id = ?", sel.ItemID)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return blindbox.ErrSessionNotActive
	}
	return nil
}

// ApplyReroll binds the reroll confirmation, bumps the counters, and
// swaps the selection in one transaction. The counter bump is an
// in-place arithmetic UPDATE so concurrent re-rolls serialize instead of
// losing increments.
func (d *DB) ApplyReroll(ctx context.Context, upd blindbox.RerollUpdate) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		position, err := tx.NewSelect().
			Model((*models.SessionPayment)(nil)).
			Where("session_id = ?", upd.SessionID).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count session payments: %w", err)
		}

		payment := &models.SessionPayment{
			PaymentIntentID: upd.PaymentIntentID,
			SessionID:       upd.SessionID,
			Purpose:         upd.Purpose,
			Position:        position,
			CreatedAt:       time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(payment).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return blindbox.ErrConfirmationAlreadyUsed
			}
			return fmt.Errorf("bind reroll payment: %w", err)
		}

		q := tx.NewUpdate().
			Model((*models.Session)(nil)).
			Set("reroll_count = reroll_count + 1").
			Set("total_spent = total_spent + ?", upd.PriceDelta).
			Set("current_step = ?", upd.Selection.Step).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", upd.SessionID).
			Where("status = ?", models.SessionActive)

		if upd.Selection.BoxID != "" {
			q = q.Set("selected_box_id = ?", upd.Selection.BoxID).
				Set("selected_item_id = NULL")
		}
		if upd.Selection.ItemID != "" {
			q = q.Set("selected_item_id = ?", upd.Selection.ItemID)
		}

		res, err := q.Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return blindbox.ErrSessionNotActive
		}
		return nil
	})
}

// CompleteCheckout flips the session to completed and inserts the order
// together. The conditional UPDATE guards both status and the reroll
// count the caller reconciled against: the second of two racing
// checkouts, or a checkout whose reconciliation went stale because a
// reroll committed underneath it, affects zero rows and rolls back.
// Exactly one order can exist per session (also backed by the unique
// session_id on orders).
func (d *DB) CompleteCheckout(ctx context.Context, sessionID string, rerollCount int, order *models.Order) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Session)(nil)).
			Set("status = ?", models.SessionCompleted).
			Set("current_step = ?", models.StepCheckout).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", sessionID).
			Where("status = ?", models.SessionActive).
			Where("reroll_count = ?", rerollCount).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return blindbox.ErrSessionNotReady
		}

		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return blindbox.ErrSessionNotReady
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
}

// ---------------- WEBHOOK LEDGER ----------------

var errDuplicateEvent = errors.New("duplicate webhook event")

// RecordWebhookEvent inserts the event record and, for a succeeded
// payment carrying a session binding, appends the confirmation to that
// session's set if absent. Returns false when the event id was already
// recorded; a loser of a concurrent duplicate insert is a duplicate,
// not an error.
func (d *DB) RecordWebhookEvent(ctx context.Context, record *models.WebhookEventRecord, event *models.PaymentEvent) (bool, error) {
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return errDuplicateEvent
			}
			return fmt.Errorf("insert webhook event: %w", err)
		}

		if event.Type != models.EventPaymentSucceeded ||
			event.SessionID == "" || event.PaymentIntentID == "" {
			return nil
		}

		exists, err := tx.NewSelect().
			Model((*models.Session)(nil)).
			Where("id = ?", event.SessionID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("lookup session %s: %w", event.SessionID, err)
		}
		if !exists {
			return nil
		}

		position, err := tx.NewSelect().
			Model((*models.SessionPayment)(nil)).
			Where("session_id = ?", event.SessionID).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count session payments: %w", err)
		}

		payment := &models.SessionPayment{
			PaymentIntentID: event.PaymentIntentID,
			SessionID:       event.SessionID,
			Purpose:         event.Purpose,
			Position:        position,
			CreatedAt:       time.Now().UTC(),
		}
		// Already bound, whether by the synchronous path or by any other
		// session, is a no-op, never an overwrite.
		if _, err := tx.NewInsert().
			Model(payment).
			On("CONFLICT DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("append confirmation: %w", err)
		}
		return nil
	})

	if errors.Is(err, errDuplicateEvent) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ---------------- CATALOG READS ----------------

func (d *DB) UniverseBySlug(ctx context.Context, slug string) (*models.Universe, error) {
	var universe models.Universe
	err := d.Bun.NewSelect().
		Model(&universe).
		Relation("Boxes").
		Where("universe.slug = ?", slug).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, blindbox.ErrUniverseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &universe, nil
}

func (d *DB) BoxByID(ctx context.Context, id string) (*models.Box, error) {
	var box models.Box
	err := d.Bun.NewSelect().
		Model(&box).
		Where("box.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, blindbox.ErrEmptyCatalog
	}
	if err != nil {
		return nil, err
	}
	return &box, nil
}

func (d *DB) ItemsByBox(ctx context.Context, boxID string) ([]*models.Item, error) {
	var items []*models.Item
	err := d.Bun.NewSelect().
		Model(&items).
		Where("box_id = ?", boxID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (d *DB) ListUniverses(ctx context.Context) ([]*models.UniverseListing, error) {
	var universes []*models.Universe
	err := d.Bun.NewSelect().
		Model(&universes).
		Relation("Boxes").
		Order("universe.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var counts []struct {
		BoxID string `bun:"box_id"`
		N     int    `bun:"n"`
	}
	err = d.Bun.NewSelect().
		Model((*models.Item)(nil)).
		Column("box_id").
		ColumnExpr("count(*) AS n").
		Group("box_id").
		Scan(ctx, &counts)
	if err != nil {
		return nil, err
	}
	itemCounts := make(map[string]int, len(counts))
	for _, c := range counts {
		itemCounts[c.BoxID] = c.N
	}

	listings := make([]*models.UniverseListing, 0, len(universes))
	for _, u := range universes {
		listing := &models.UniverseListing{Universe: *u}
		for _, box := range u.Boxes {
			listing.BoxSummaries = append(listing.BoxSummaries, models.BoxSummary{
				Box:       *box,
				ItemCount: itemCounts[box.ID],
			})
		}
		listing.Universe.Boxes = nil
		listings = append(listings, listing)
	}
	return listings, nil
}
