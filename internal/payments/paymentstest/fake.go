// Package paymentstest provides an in-memory payments.Gateway.
package paymentstest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/angelmondragon/marketplace-checkout/internal/payments"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

// Gateway records every session it opens. Sessions start unpaid; MarkPaid
// simulates the buyer completing the hosted page.
type Gateway struct {
	mu        sync.Mutex
	sessions  map[string]*payments.Session
	Requests  []payments.SessionRequest
	CreateErr error
	next      int
}

func NewGateway() *Gateway {
	return &Gateway{sessions: map[string]*payments.Session{}}
}

func (g *Gateway) CreateSession(_ context.Context, req payments.SessionRequest) (*payments.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	metadata, err := req.Metadata.Encode()
	if err != nil {
		return nil, err
	}
	g.next++
	id := fmt.Sprintf("cs_test_%d", g.next)
	sess := &payments.Session{
		ID:               id,
		URL:              "https://checkout.example.com/pay/" + id,
		AmountTotalCents: req.AmountCents,
		Currency:         strings.ToLower(req.Currency),
		Metadata:         metadata,
	}
	g.sessions[id] = sess
	g.Requests = append(g.Requests, req)
	return copySession(sess), nil
}

func (g *Gateway) RetrieveSession(_ context.Context, id string) (*payments.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	return copySession(sess), nil
}

// MarkPaid flips the session to paid and returns it.
func (g *Gateway) MarkPaid(id string) *payments.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[id]
	if !ok {
		return nil
	}
	sess.Paid = true
	return copySession(sess)
}

// Put registers a session directly, e.g. one crafted with stale metadata.
func (g *Gateway) Put(sess *payments.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sess.ID] = copySession(sess)
}

func copySession(sess *payments.Session) *payments.Session {
	out := *sess
	out.Metadata = make(map[string]string, len(sess.Metadata))
	for k, v := range sess.Metadata {
		out.Metadata[k] = v
	}
	return &out
}
