package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
)

// DefaultTopic is the topic confirmations are published to.
const DefaultTopic = "orders.confirmed"

// messageWriter is the subset of *kafka.Writer used by KafkaSender.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes confirmations as JSON for the mailer to pick up.
// Messages are keyed by order id so retries land on the same partition.
type KafkaSender struct {
	w messageWriter
}

// NewKafkaSender creates a KafkaSender writing to topic on brokers.
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSender{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// Send publishes m. It blocks until the broker acknowledges or ctx expires.
func (s *KafkaSender) Send(ctx context.Context, m Message) error {
	err := s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(m.OrderID, 10)),
		Value: EncodeMessage(m),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("order.confirmed")},
		},
	})
	if err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (s *KafkaSender) Close() error {
	return s.w.Close()
}

// EncodeMessage renders m as the JSON payload published to the broker.
func EncodeMessage(m Message) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("id")
	e.Str(m.ID)
	e.FieldStart("type")
	e.Str("order.confirmed")
	e.FieldStart("to")
	e.Str(m.To)
	e.FieldStart("subject")
	e.Str(m.Subject)
	e.FieldStart("body")
	e.Str(m.Body)
	e.FieldStart("order_id")
	e.Int64(m.OrderID)
	e.FieldStart("product_count")
	e.Int(m.ProductCount)
	e.FieldStart("total")
	e.Str(m.Total.StringFixed(2))
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range m.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(l.ProductID)
		e.FieldStart("title")
		e.Str(l.Title)
		e.FieldStart("price")
		e.Str(l.Price.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()

	// The encoder is returned to the pool, so the bytes must be copied.
	return append([]byte(nil), e.Bytes()...)
}
