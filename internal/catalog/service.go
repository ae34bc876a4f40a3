// Package catalog manages the universes → boxes → items hierarchy and
// order fulfillment status for the admin surface.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"ms-blindbox/internal/logger"
	"ms-blindbox/internal/models"

	"github.com/google/uuid"
)

var (
	ErrInvalidSlug         = errors.New("slug must be lowercase letters, digits and hyphens")
	ErrInvalidOrderStatus  = errors.New("unknown order status")
	ErrUniverseMissing     = errors.New("universe does not exist")
	ErrBoxMissing          = errors.New("box does not exist")
	ErrStatusNotAdvancable = errors.New("order status can only move forward")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

type Store interface {
	ListUniverses(ctx context.Context) ([]*models.Universe, error)
	CreateUniverse(ctx context.Context, universe *models.Universe) error
	UpdateUniverse(ctx context.Context, universe *models.Universe) error
	DeleteUniverse(ctx context.Context, id string) error
	UniverseExists(ctx context.Context, id string) (bool, error)

	ListBoxes(ctx context.Context, universeID string) ([]*models.Box, error)
	CreateBox(ctx context.Context, box *models.Box) error
	UpdateBox(ctx context.Context, box *models.Box) error
	DeleteBox(ctx context.Context, id string) error
	BoxExists(ctx context.Context, id string) (bool, error)

	ListItems(ctx context.Context, boxID string) ([]*models.Item, error)
	CreateItem(ctx context.Context, item *models.Item) error
	UpdateItem(ctx context.Context, item *models.Item) error
	DeleteItem(ctx context.Context, id string) error

	ListOrders(ctx context.Context) ([]*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error
}

type Service struct {
	Store  Store
	logger *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{Store: store, logger: log}
}

// ---------------- UNIVERSES ----------------

func (s *Service) ListUniverses(ctx context.Context) ([]*models.Universe, error) {
	return s.Store.ListUniverses(ctx)
}

func (s *Service) CreateUniverse(ctx context.Context, slug, name, emoji, color, gradient string) (*models.Universe, error) {
	if !slugPattern.MatchString(slug) {
		return nil, ErrInvalidSlug
	}

	universe := &models.Universe{
		ID:        fmt.Sprintf("uni_%s", uuid.NewString()),
		Slug:      slug,
		Name:      name,
		Emoji:     emoji,
		Color:     color,
		Gradient:  gradient,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Store.CreateUniverse(ctx, universe); err != nil {
		return nil, err
	}
	s.logger.Info("CATALOG", fmt.Sprintf("Created universe %s (%s)", universe.ID, slug))
	return universe, nil
}

func (s *Service) UpdateUniverse(ctx context.Context, id, name, emoji, color, gradient string) (*models.Universe, error) {
	universe := &models.Universe{
		ID:       id,
		Name:     name,
		Emoji:    emoji,
		Color:    color,
		Gradient: gradient,
	}
	if err := s.Store.UpdateUniverse(ctx, universe); err != nil {
		return nil, err
	}
	return universe, nil
}

func (s *Service) DeleteUniverse(ctx context.Context, id string) error {
	if err := s.Store.DeleteUniverse(ctx, id); err != nil {
		return err
	}
	s.logger.Info("CATALOG", fmt.Sprintf("Deleted universe %s", id))
	return nil
}

// ---------------- BOXES ----------------

func (s *Service) ListBoxes(ctx context.Context, universeID string) ([]*models.Box, error) {
	return s.Store.ListBoxes(ctx, universeID)
}

func (s *Service) CreateBox(ctx context.Context, universeID, name, img string) (*models.Box, error) {
	exists, err := s.Store.UniverseExists(ctx, universeID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUniverseMissing
	}

	box := &models.Box{
		ID:         fmt.Sprintf("box_%s", uuid.NewString()),
		UniverseID: universeID,
		Name:       name,
		Img:        img,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Store.CreateBox(ctx, box); err != nil {
		return nil, err
	}
	return box, nil
}

func (s *Service) UpdateBox(ctx context.Context, id, name, img string) (*models.Box, error) {
	box := &models.Box{ID: id, Name: name, Img: img}
	if err := s.Store.UpdateBox(ctx, box); err != nil {
		return nil, err
	}
	return box, nil
}

func (s *Service) DeleteBox(ctx context.Context, id string) error {
	return s.Store.DeleteBox(ctx, id)
}

// ---------------- ITEMS ----------------

func (s *Service) ListItems(ctx context.Context, boxID string) ([]*models.Item, error) {
	return s.Store.ListItems(ctx, boxID)
}

func (s *Service) CreateItem(ctx context.Context, boxID, name, img string) (*models.Item, error) {
	exists, err := s.Store.BoxExists(ctx, boxID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrBoxMissing
	}

	item := &models.Item{
		ID:        fmt.Sprintf("item_%s", uuid.NewString()),
		BoxID:     boxID,
		Name:      name,
		Img:       img,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Store.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) UpdateItem(ctx context.Context, id, name, img string) (*models.Item, error) {
	item := &models.Item{ID: id, Name: name, Img: img}
	if err := s.Store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	return s.Store.DeleteItem(ctx, id)
}

// ---------------- ORDERS ----------------

func (s *Service) ListOrders(ctx context.Context) ([]*models.Order, error) {
	return s.Store.ListOrders(ctx)
}

func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.Store.GetOrder(ctx, id)
}

// statusRank orders the fulfillment pipeline. Orders only move forward;
// there is no cancellation in this flow.
func statusRank(status models.OrderStatus) int {
	switch status {
	case models.OrderPending:
		return 0
	case models.OrderShipped:
		return 1
	case models.OrderDelivered:
		return 2
	default:
		return -1
	}
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	if statusRank(status) < 0 {
		return nil, ErrInvalidOrderStatus
	}

	order, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if statusRank(status) < statusRank(order.Status) {
		return nil, ErrStatusNotAdvancable
	}

	if err := s.Store.UpdateOrderStatus(ctx, id, status); err != nil {
		return nil, err
	}
	order.Status = status
	s.logger.Info("FULFILLMENT", fmt.Sprintf("Order %s moved to %s", id, status))
	return order, nil
}
