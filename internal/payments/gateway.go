// Package payments defines the hosted payment gateway used by checkout and
// its Stripe Checkout implementation.
package payments

import (
	"context"
)

// Gateway opens hosted payment sessions and reads them back for
// reconciliation.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	RetrieveSession(ctx context.Context, id string) (*Session, error)
}

// LineItem is one display line on the hosted payment page.
type LineItem struct {
	Name            string
	UnitAmountCents int
	Quantity        int
}

// SessionRequest describes the amount to charge. LineItems are advisory; the
// gateway charges AmountCents.
type SessionRequest struct {
	AmountCents    int
	Currency       string
	LineItems      []LineItem
	SuccessURL     string
	CancelURL      string
	Metadata       Metadata
	IdempotencyKey string
}

// LineItemsTotal sums the display lines.
func (r SessionRequest) LineItemsTotal() int {
	total := 0
	for _, item := range r.LineItems {
		total += item.UnitAmountCents * item.Quantity
	}
	return total
}

// Session is the gateway-side view of a payment attempt.
type Session struct {
	ID               string
	URL              string
	AmountTotalCents int
	Currency         string
	Paid             bool
	Metadata         map[string]string
}
