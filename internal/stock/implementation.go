// internal/stock/implementation.go
package stock

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// service implements the Service interface.
type service struct {
	store   Store
	created metric.Int64Counter
	updated metric.Int64Counter
	deleted metric.Int64Counter
}

// Option configures a service built by NewService.
type Option func(*serviceOptions)

type serviceOptions struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider records the item counters on mp instead of the global
// meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *serviceOptions) { o.meterProvider = mp }
}

// NewService creates a new inventory service backed by store.
func NewService(store Store, opts ...Option) Service {
	o := serviceOptions{meterProvider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter("stockroom/stock")
	return &service{
		store:   store,
		created: counter(meter, "stock.items.created", "Stock items created"),
		updated: counter(meter, "stock.items.updated", "Stock items updated"),
		deleted: counter(meter, "stock.items.deleted", "Stock items deleted"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

// ListItems returns every item the store exposes.
func (s *service) ListItems(ctx context.Context) ([]Item, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// GetItem retrieves an item by its id.
func (s *service) GetItem(ctx context.Context, id int64) (*Item, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get item %d: %w", id, err)
	}
	return item, nil
}

// CreateItem validates req and persists a new item.
func (s *service) CreateItem(ctx context.Context, req CreateRequest) (*Item, error) {
	if !req.Title.Set {
		return nil, fmt.Errorf("%w: title is required", ErrBadRequest)
	}

	draft := Item{
		Title:       req.Title.Value,
		Description: req.Description.Value,
		Price:       req.Price.Value,
		ImageURI:    req.ImageURI.Value,
	}
	if err := validateFields(&draft.Title, &draft.Price, &draft.ImageURI); err != nil {
		return nil, err
	}

	item, err := s.store.Create(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	s.created.Add(ctx, 1)
	return item, nil
}

// UpdateItem applies the members present in req to the item with the given id.
func (s *service) UpdateItem(ctx context.Context, id int64, req UpdateRequest) (*Item, error) {
	patch := Patch{
		Title:       req.Title.ptr(),
		Description: req.Description.ptr(),
		Price:       req.Price.ptr(),
		ImageURI:    req.ImageURI.ptr(),
		Done:        req.Done.ptr(),
	}

	verr := validateFields(patch.Title, patch.Price, patch.ImageURI)
	if verr == nil && patch.Empty() {
		verr = fmt.Errorf("%w: no fields to update", ErrBadRequest)
	}
	if verr != nil {
		// An unknown id wins over an invalid body.
		if _, err := s.GetItem(ctx, id); err != nil {
			return nil, err
		}
		return nil, verr
	}

	item, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update item %d: %w", id, err)
	}
	s.updated.Add(ctx, 1)
	return item, nil
}

// DeleteItem permanently removes an item.
func (s *service) DeleteItem(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete item %d: %w", id, err)
	}
	s.deleted.Add(ctx, 1)
	return nil
}

// validateFields checks the optional constrained fields; nil means absent.
func validateFields(title, price, imageURI *string) error {
	if title != nil && *title == "" {
		return fmt.Errorf("%w: title must not be empty", ErrBadRequest)
	}
	if price != nil && *price != "" {
		d, err := decimal.NewFromString(*price)
		if err != nil {
			return fmt.Errorf("%w: price %q is not a decimal", ErrBadRequest, *price)
		}
		if d.IsNegative() {
			return fmt.Errorf("%w: price must not be negative", ErrBadRequest)
		}
	}
	if imageURI != nil && *imageURI != "" {
		u, err := url.Parse(*imageURI)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("%w: imageUri must be an absolute URL", ErrBadRequest)
		}
	}
	return nil
}
