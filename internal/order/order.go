package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the order lifecycle state. Terminal states never transition.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusFilled    Status = "filled"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

func (s Status) terminal() bool {
	return s == StatusFilled || s == StatusRejected || s == StatusFailed
}

// validNext encodes the allowed transitions.
var validNext = map[Status][]Status{
	StatusPending:   {StatusSubmitted, StatusRejected, StatusFailed},
	StatusSubmitted: {StatusFilled, StatusRejected, StatusFailed},
}

// Order is one buy or sell instruction tracked from creation to a terminal
// state. ID is assigned locally; BrokerOrderID comes back from the gateway.
type Order struct {
	ID            string    `json:"id"`
	BrokerOrderID string    `json:"broker_order_id,omitempty"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Quantity      int       `json:"quantity"`
	Price         float64   `json:"price"`
	FilledQty     int       `json:"filled_qty"`
	FilledPrice   float64   `json:"filled_price"`
	Status        Status    `json:"status"`
	Reason        string    `json:"reason,omitempty"` // exit reason on sells
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newOrder(symbol, side string, qty int, price float64, now time.Time) *Order {
	return &Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// transition moves the order to next, rejecting anything out of a terminal
// state or off the allowed path.
func (o *Order) transition(next Status, now time.Time) error {
	if o.Status.terminal() {
		return fmt.Errorf("order %s: already %s, cannot become %s", o.ID, o.Status, next)
	}
	for _, allowed := range validNext[o.Status] {
		if next == allowed {
			o.Status = next
			o.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("order %s: invalid transition %s -> %s", o.ID, o.Status, next)
}
