package notify

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/market-orders/internal/domain/order"
	"github.com/xenking/market-orders/internal/domain/product"
	"github.com/xenking/market-orders/internal/domain/user"
)

// --- Mock implementations ---

type mockUserRepo struct {
	byID map[int64]user.User
}

func (m *mockUserRepo) GetByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (m *mockUserRepo) FindByTokenHash(_ context.Context, _ string) (*user.User, error) {
	return nil, user.ErrNotFound
}

func (m *mockUserRepo) Create(_ context.Context, _ *user.User) error { return nil }

func (m *mockUserRepo) Delete(_ context.Context, _ int64) error { return nil }

type recordingSender struct {
	sent []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, m Message) error {
	s.sent = append(s.sent, m)
	return s.err
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

// --- Helpers ---

func testConfirmation() order.Confirmation {
	return order.Confirmation{
		Order: &order.Order{
			ID:     42,
			UserID: 7,
			Total:  decimal.RequireFromString("35.5"),
			Placements: []order.Placement{
				{ID: 1, OrderID: 42, ProductID: 1},
				{ID: 2, OrderID: 42, ProductID: 2},
				{ID: 3, OrderID: 42, ProductID: 1},
			},
		},
		Products: []product.Product{
			{ID: 1, Title: "Widget", Price: decimal.RequireFromString("10")},
			{ID: 2, Title: "Gadget", Price: decimal.RequireFromString("15.5")},
			{ID: 1, Title: "Widget", Price: decimal.RequireFromString("10")},
		},
	}
}

// --- Tests ---

func TestCompose(t *testing.T) {
	c := testConfirmation()
	m := Compose(user.User{ID: 7, Email: "buyer@example.com"}, c.Order, c.Products)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "buyer@example.com", m.To)
	assert.Equal(t, int64(42), m.OrderID)
	assert.Equal(t, 3, m.ProductCount)
	require.Len(t, m.Lines, 3)
	assert.Equal(t, "Gadget", m.Lines[1].Title)

	assert.Contains(t, m.Body, "#42")
	assert.Contains(t, m.Body, "You ordered 3 product(s)")
	assert.Contains(t, m.Body, "Widget - $10.00")
	assert.Contains(t, m.Body, "Gadget - $15.50")
	assert.Contains(t, m.Body, "Total: $35.50")
}

func TestDispatcher_OrderPlaced(t *testing.T) {
	users := &mockUserRepo{byID: map[int64]user.User{7: {ID: 7, Email: "buyer@example.com"}}}
	sender := &recordingSender{}
	d := NewDispatcher(users, sender)

	err := d.OrderPlaced(context.Background(), testConfirmation())
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "buyer@example.com", sender.sent[0].To)
	assert.Equal(t, int64(42), sender.sent[0].OrderID)
}

func TestDispatcher_UnknownUser(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(&mockUserRepo{}, sender)

	err := d.OrderPlaced(context.Background(), testConfirmation())
	require.ErrorIs(t, err, user.ErrNotFound)
	assert.Empty(t, sender.sent)
}

func TestDispatcher_SendError(t *testing.T) {
	users := &mockUserRepo{byID: map[int64]user.User{7: {ID: 7, Email: "buyer@example.com"}}}
	d := NewDispatcher(users, &recordingSender{err: errors.New("broker unavailable")})

	err := d.OrderPlaced(context.Background(), testConfirmation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send confirmation")
}

func TestLogSender(t *testing.T) {
	c := testConfirmation()
	m := Compose(user.User{Email: "buyer@example.com"}, c.Order, c.Products)
	require.NoError(t, LogSender{}.Send(context.Background(), m))
}

func TestKafkaSender_Send(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSender{w: w}

	c := testConfirmation()
	m := Compose(user.User{Email: "buyer@example.com"}, c.Order, c.Products)
	require.NoError(t, s.Send(context.Background(), m))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))

	var (
		to       string
		orderID  int64
		count    int
		total    string
		titles   []string
		msgType  string
		bodySeen bool
	)
	d := jx.DecodeBytes(w.msgs[0].Value)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "to":
			to, err = d.Str()
		case "type":
			msgType, err = d.Str()
		case "order_id":
			orderID, err = d.Int64()
		case "product_count":
			count, err = d.Int()
		case "total":
			total, err = d.Str()
		case "body":
			bodySeen = true
			err = d.Skip()
		case "lines":
			err = d.Arr(func(d *jx.Decoder) error {
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "title" {
						return d.Skip()
					}
					title, err := d.Str()
					titles = append(titles, title)
					return err
				})
			})
		default:
			err = d.Skip()
		}
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, "buyer@example.com", to)
	assert.Equal(t, "order.confirmed", msgType)
	assert.Equal(t, int64(42), orderID)
	assert.Equal(t, 3, count)
	assert.Equal(t, "35.50", total)
	assert.Equal(t, []string{"Widget", "Gadget", "Widget"}, titles)
	assert.True(t, bodySeen)

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestKafkaSender_WriteError(t *testing.T) {
	s := &KafkaSender{w: &fakeWriter{err: errors.New("leader not available")}}

	err := s.Send(context.Background(), Message{OrderID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write message")
}
