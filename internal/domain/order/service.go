package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/market-orders/internal/domain/product"
)

const instrumentationName = "github.com/xenking/market-orders/internal/domain/order"

// DefaultNotifyTimeout bounds confirmation delivery when no timeout is set.
const DefaultNotifyTimeout = 5 * time.Second

// PlaceOrderRequest holds the input for placing an order. There is no total:
// the server prices every order itself.
type PlaceOrderRequest struct {
	UserID     int64
	ProductIDs []int64
}

// Details is an order together with its products, one per placement.
type Details struct {
	Order    *Order
	Products []product.Product
}

// Option configures a Service.
type Option func(*options)

type options struct {
	allowEmpty     bool
	notifyTimeout  time.Duration
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithEmptyOrders sets whether orders without products are accepted.
// They are accepted by default and get a zero total.
func WithEmptyOrders(allow bool) Option {
	return func(o *options) { o.allowEmpty = allow }
}

// WithNotifyTimeout bounds how long PlaceOrder waits for the confirmation.
func WithNotifyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.notifyTimeout = d
		}
	}
}

// WithTracerProvider sets the provider used for PlaceOrder spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the provider used for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// Service is the order intake pipeline: validate, resolve products, price,
// persist, notify.
type Service struct {
	products product.Repository
	orders   Repository
	notifier Notifier

	allowEmpty    bool
	notifyTimeout time.Duration

	tracer         trace.Tracer
	placed         metric.Int64Counter
	rejected       metric.Int64Counter
	notifyFailures metric.Int64Counter
}

// NewService creates an order Service. notifier may be nil, in which case no
// confirmations are sent.
func NewService(
	products product.Repository,
	orders Repository,
	notifier Notifier,
	opts ...Option,
) (*Service, error) {
	o := options{
		allowEmpty:     true,
		notifyTimeout:  DefaultNotifyTimeout,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders persisted successfully"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.placed counter")
	}
	rejected, err := meter.Int64Counter("orders.rejected",
		metric.WithDescription("Order requests rejected by validation"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.rejected counter")
	}
	notifyFailures, err := meter.Int64Counter("orders.notify_failures",
		metric.WithDescription("Order confirmations that could not be delivered"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.notify_failures counter")
	}

	return &Service{
		products:       products,
		orders:         orders,
		notifier:       notifier,
		allowEmpty:     o.allowEmpty,
		notifyTimeout:  o.notifyTimeout,
		tracer:         o.tracerProvider.Tracer(instrumentationName),
		placed:         placed,
		rejected:       rejected,
		notifyFailures: notifyFailures,
	}, nil
}

// PlaceOrder turns a list of product ids into a persisted order. The total is
// always computed here from stored prices. Either the order and all of its
// placements are written, or nothing is. A failed confirmation is logged and
// does not fail the call.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Details, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder", trace.WithAttributes(
		attribute.Int64("user.id", req.UserID),
		attribute.Int("order.product_count", len(req.ProductIDs)),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := s.validate(req); err != nil {
		s.rejected.Add(ctx, 1)
		return nil, err
	}

	lines, err := s.resolve(ctx, req.ProductIDs)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			s.rejected.Add(ctx, 1)
		}
		return nil, err
	}

	total, err := Price(lines)
	if err != nil {
		s.rejected.Add(ctx, 1)
		return nil, err
	}

	o := build(req.UserID, total, lines)
	if err := s.persist(ctx, o); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("order.id", o.ID))
	s.placed.Add(ctx, 1)

	d := &Details{Order: o, Products: lines}
	s.notify(ctx, Confirmation{Order: d.Order, Products: d.Products})
	return d, nil
}

func (s *Service) validate(req PlaceOrderRequest) error {
	if len(req.ProductIDs) == 0 && !s.allowEmpty {
		return &ValidationError{Kind: KindEmpty}
	}
	return nil
}

// resolve returns one product per requested id, in request order.
func (s *Service) resolve(ctx context.Context, ids []int64) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	byID, err := s.lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, &ValidationError{Kind: KindProductNotFound, ProductID: id}
		}
		lines = append(lines, p)
	}
	return lines, nil
}

// lookup fetches the distinct products among ids in one batch.
func (s *Service) lookup(ctx context.Context, ids []int64) (map[int64]product.Product, error) {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	fetched, err := s.products.GetByIDs(ctx, unique)
	if err != nil {
		return nil, &PersistenceError{Op: "get products", Err: err}
	}

	byID := make(map[int64]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}
	return byID, nil
}

func build(userID int64, total decimal.Decimal, lines []product.Product) *Order {
	o := &Order{
		UserID:     userID,
		Total:      total,
		Placements: make([]Placement, len(lines)),
	}
	for i, p := range lines {
		o.Placements[i] = Placement{ProductID: p.ID}
	}
	return o
}

func (s *Service) persist(ctx context.Context, o *Order) error {
	// A request cancelled before this point never becomes an order.
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "place order")
	}
	if o.Total.IsNegative() {
		return &ValidationError{Kind: KindNegativeTotal}
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return &PersistenceError{Op: "create order", Err: err}
	}
	return nil
}

// notify delivers the confirmation on a context detached from the request, so
// a client disconnect after commit does not drop it.
func (s *Service) notify(ctx context.Context, c Confirmation) {
	if s.notifier == nil {
		return
	}
	lg := zctx.From(ctx)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("notifier panic: %v", r)
			}
		}()
		return s.notifier.OrderPlaced(ctx, c)
	}()
	if err != nil {
		s.notifyFailures.Add(ctx, 1)
		lg.Warn("Order confirmation not delivered",
			zap.Int64("order_id", c.Order.ID),
			zap.Int64("user_id", c.Order.UserID),
			zap.Error(err),
		)
	}
}

// ListOrders returns every order owned by userID.
func (s *Service) ListOrders(ctx context.Context, userID int64) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}

// GetOrder returns the order with its products if it belongs to userID.
// Orders of other users yield ErrNotFound, same as missing ones.
func (s *Service) GetOrder(ctx context.Context, userID, orderID int64) (*Details, error) {
	o, err := s.orders.GetForUser(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "get order", Err: err}
	}

	products, err := s.Products(ctx, *o)
	if err != nil {
		return nil, err
	}
	return &Details{Order: o, Products: products}, nil
}

// Products returns the products placed in the given orders, one per
// placement, in order and placement sequence. Products deleted since the
// order was placed are skipped.
func (s *Service) Products(ctx context.Context, orders ...Order) ([]product.Product, error) {
	var ids []int64
	for i := range orders {
		ids = append(ids, orders[i].ProductIDs()...)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	byID, err := s.lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
