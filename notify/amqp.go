package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ikigai/booking-engine/booking"
)

// AMQP publishes every engine event as a JSON message on a topic exchange,
// routed by event kind ("reminder_due", "reservation_expired", ...), so
// external consumers can subscribe without touching the store.
type AMQP struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQP(url, exchange string) (*AMQP, error) {
	a := &AMQP{url: url, exchange: exchange}
	if err := a.connect(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *AMQP) connect() error {
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(a.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp exchange declare: %w", err)
	}
	a.conn = conn
	a.ch = ch
	return nil
}

// envelope is the wire shape of a published event.
type envelope struct {
	Kind        string             `json:"kind"`
	Reservation reservationPayload `json:"reservation"`
	Level       *int               `json:"level,omitempty"`
	Source      string             `json:"source,omitempty"`
	EmittedAt   string             `json:"emitted_at"`
}

type reservationPayload struct {
	OrderID    string `json:"order_id"`
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	Type       string `json:"type"`
	Place      int    `json:"place"`
	Day        string `json:"day"`
	TimeFrom   string `json:"time_from"`
	TimeTo     string `json:"time_to"`
	Hours      string `json:"hours"`
	Price      string `json:"price"`
	Paid       bool   `json:"paid"`
	PaymentRef string `json:"payment_ref,omitempty"`
}

func (a *AMQP) Publish(event booking.Event) error {
	env := envelope{
		Kind:      event.Kind(),
		EmittedAt: time.Now().UTC().Format(time.RFC3339),
	}

	switch e := event.(type) {
	case booking.ReminderDue:
		env.Reservation = toPayload(e.Reservation)
		level := e.Level
		env.Level = &level
		env.Source = string(e.Source)
	case booking.ReservationExpired:
		env.Reservation = toPayload(e.Reservation)
	case booking.PaymentPendingAdminReview:
		env.Reservation = toPayload(e.Reservation)
	case booking.PaymentConfirmed:
		env.Reservation = toPayload(e.Reservation)
	case booking.PaymentRejected:
		env.Reservation = toPayload(e.Reservation)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("amqp marshal: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = a.ch.PublishWithContext(ctx, a.exchange, event.Kind(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		// One reconnect attempt; broker restarts are routine.
		if rerr := a.connect(); rerr == nil {
			err = a.ch.PublishWithContext(ctx, a.exchange, event.Kind(), false, false, amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now().UTC(),
				Body:         body,
			})
		}
	}
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch != nil {
		a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

func toPayload(r booking.Reservation) reservationPayload {
	return reservationPayload{
		OrderID:    r.OrderID,
		ClientID:   r.ClientID,
		ClientName: r.ClientName,
		Type:       string(r.Type),
		Place:      r.Place,
		Day:        r.Day.Format("2006-01-02"),
		TimeFrom:   r.TimeFrom.UTC().Format(time.RFC3339),
		TimeTo:     r.TimeTo.UTC().Format(time.RFC3339),
		Hours:      r.Hours.String(),
		Price:      r.Price.String(),
		Paid:       r.Paid,
		PaymentRef: r.PaymentRef,
	}
}
