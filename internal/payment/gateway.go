package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrLimitExceeded   = errors.New("payment amount exceeds limit")
	ErrInvalidAmount   = errors.New("payment amount must be positive")
	ErrUnknownPayment  = errors.New("unknown payment")
	ErrAlreadyRefunded = errors.New("payment already refunded")
)

// Gateway charges and refunds payments.
type Gateway interface {
	Charge(ctx context.Context, orderID string, amount int64) (string, error)
	Refund(ctx context.Context, paymentID string) error
}

type charge struct {
	orderID  string
	amount   int64
	refunded bool
}

// LimitGateway is an in-process gateway that declines any charge whose amount
// is at or above its limit.
type LimitGateway struct {
	mu      sync.Mutex
	limit   int64
	charges map[string]*charge
	log     *slog.Logger
}

func NewLimitGateway(limit int64, log *slog.Logger) *LimitGateway {
	if log == nil {
		log = slog.Default()
	}
	return &LimitGateway{
		limit:   limit,
		charges: make(map[string]*charge),
		log:     log.With(slog.String("component", "payment")),
	}
}

func (g *LimitGateway) Charge(ctx context.Context, orderID string, amount int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if amount <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if amount >= g.limit {
		g.log.Warn("charge declined", slog.String("order_id", orderID), slog.Int64("amount", amount), slog.Int64("limit", g.limit))
		return "", fmt.Errorf("%w: %d >= %d", ErrLimitExceeded, amount, g.limit)
	}

	id := "pay-" + uuid.New().String()
	g.mu.Lock()
	g.charges[id] = &charge{orderID: orderID, amount: amount}
	g.mu.Unlock()

	g.log.Info("charged", slog.String("payment_id", id), slog.String("order_id", orderID), slog.Int64("amount", amount))
	return id, nil
}

func (g *LimitGateway) Refund(ctx context.Context, paymentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.charges[paymentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPayment, paymentID)
	}
	if c.refunded {
		return fmt.Errorf("%w: %s", ErrAlreadyRefunded, paymentID)
	}
	c.refunded = true
	g.log.Info("refunded", slog.String("payment_id", paymentID), slog.Int64("amount", c.amount))
	return nil
}

// Captured returns the amount charged and not refunded.
func (g *LimitGateway) Captured() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var total int64
	for _, c := range g.charges {
		if !c.refunded {
			total += c.amount
		}
	}
	return total
}

var _ Gateway = (*LimitGateway)(nil)
