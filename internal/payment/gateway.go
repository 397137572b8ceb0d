package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ChargeRequest struct {
	PaymentID string
	OrderID   string
	Amount    decimal.Decimal
	Currency  string
	CardToken string
}

// Gateway is the external card processor.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (transactionID string, err error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (refundID string, err error)
}

// DeclineError is a definitive rejection by the gateway, as opposed to a
// transport failure.
type DeclineError struct {
	Code   string
	Reason string
}

func (e *DeclineError) Error() string { return "declined: " + e.Code + ": " + e.Reason }

func IsDecline(err error) (*DeclineError, bool) {
	var de *DeclineError
	ok := errors.As(err, &de)
	return de, ok
}

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// SimulatedGateway stands in for a real processor. Tokens starting with
// tok_decline are declined, tok_unreachable fails at transport level, and
// charges above Limit (when set) are declined.
type SimulatedGateway struct {
	Limit decimal.Decimal
}

func (g SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case strings.HasPrefix(req.CardToken, "tok_unreachable"):
		return "", ErrGatewayUnavailable
	case strings.HasPrefix(req.CardToken, "tok_decline"):
		return "", &DeclineError{Code: "card_declined", Reason: "the card was declined"}
	case g.Limit.IsPositive() && req.Amount.GreaterThan(g.Limit):
		return "", &DeclineError{Code: "amount_exceeds_limit", Reason: fmt.Sprintf("amount above %s", g.Limit.StringFixed(2))}
	}
	return "txn_" + uuid.NewString(), nil
}

func (g SimulatedGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if transactionID == "" {
		return "", errors.New("refund: missing transaction id")
	}
	return "rf_" + uuid.NewString(), nil
}
