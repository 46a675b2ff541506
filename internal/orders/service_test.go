package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	product "github.com/angelmondragon/marketplace-checkout/internal/products"
	"github.com/angelmondragon/marketplace-checkout/pkg/db"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox"
	"github.com/angelmondragon/marketplace-checkout/pkg/pagination"
	"github.com/angelmondragon/marketplace-checkout/pkg/types"
)

type harness struct {
	client *db.Client
	repo   Repository
	svc    Service
}

func newHarness(t *testing.T) harness {
	t.Helper()
	client := dbtest.Open(t)
	products, err := product.NewService(product.NewRepository(client.DB()), client)
	require.NoError(t, err)
	repo := NewRepository(client.DB())
	svc, err := NewService(repo, client, outbox.NewService(outbox.NewRepository(client.DB()), nil), products, nil)
	require.NoError(t, err)
	svc.(*service).now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return harness{client: client, repo: repo, svc: svc}
}

func (h harness) order(t *testing.T, userID uuid.UUID, p *models.Product, qty int, payment enums.PaymentStatus, fulfillment enums.FulfillmentStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:                uuid.New(),
		UserID:            userID,
		TotalQuantity:     qty,
		SubtotalCents:     p.PriceCents * qty,
		TotalCents:        p.PriceCents * qty,
		Currency:          "usd",
		DeliveryAddress:   types.Address{Recipient: "Ana", Line1: "1 Main St", City: "Lisbon", PostalCode: "1000", Country: "PT"},
		PaymentMethod:     enums.PaymentMethodCard,
		PaymentStatus:     payment,
		FulfillmentStatus: fulfillment,
		Items: []models.OrderItem{{
			ProductID:      p.ID,
			SellerID:       p.SellerID,
			ProductName:    p.Name,
			Quantity:       qty,
			UnitPriceCents: p.PriceCents,
			LineTotalCents: p.PriceCents * qty,
		}},
	}
	require.NoError(t, h.repo.Create(context.Background(), order))
	return order
}

func (h harness) outboxTypes(t *testing.T) []string {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.client.DB().Order("created_at ASC").Find(&rows).Error)
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, string(row.EventType))
	}
	return out
}

func TestStateMachine(t *testing.T) {
	assert.True(t, CanTransitionFulfillment(enums.FulfillmentPending, enums.FulfillmentShipped))
	assert.True(t, CanTransitionFulfillment(enums.FulfillmentShipped, enums.FulfillmentDelivered))
	assert.True(t, CanTransitionFulfillment(enums.FulfillmentPending, enums.FulfillmentCancelled))
	assert.True(t, CanTransitionFulfillment(enums.FulfillmentShipped, enums.FulfillmentCancelled))
	assert.False(t, CanTransitionFulfillment(enums.FulfillmentPending, enums.FulfillmentDelivered))
	assert.False(t, CanTransitionFulfillment(enums.FulfillmentDelivered, enums.FulfillmentCancelled))
	assert.False(t, CanTransitionFulfillment(enums.FulfillmentCancelled, enums.FulfillmentPending))

	assert.True(t, CanTransitionPayment(enums.PaymentStatusUnpaid, enums.PaymentStatusPaid))
	assert.True(t, CanTransitionPayment(enums.PaymentStatusPaid, enums.PaymentStatusRefunded))
	assert.False(t, CanTransitionPayment(enums.PaymentStatusUnpaid, enums.PaymentStatusRefunded))
	assert.False(t, CanTransitionPayment(enums.PaymentStatusRefunded, enums.PaymentStatusPaid))
}

func TestGetEnforcesOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	p := dbtest.CreateProduct(t, h.client.DB(), uuid.Nil, 100, 5)
	order := h.order(t, owner, p, 2, enums.PaymentStatusPaid, enums.FulfillmentPending)

	got, err := h.svc.Get(ctx, owner, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 200, got.Items[0].LineTotalCents)

	_, err = h.svc.Get(ctx, uuid.New(), order.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = h.svc.Get(ctx, owner, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestListPagesNewestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := uuid.New()
	p := dbtest.CreateProduct(t, h.client.DB(), uuid.Nil, 100, 5)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		order := h.order(t, userID, p, 1, enums.PaymentStatusPaid, enums.FulfillmentPending)
		created := time.Date(2026, 3, 1+i, 9, 0, 0, 0, time.UTC)
		require.NoError(t, h.client.DB().Model(&models.Order{}).Where("id = ?", order.ID).Update("created_at", created).Error)
		ids = append(ids, order.ID)
	}
	h.order(t, uuid.New(), p, 1, enums.PaymentStatusPaid, enums.FulfillmentPending)

	first, err := h.svc.List(ctx, userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	assert.Equal(t, ids[2], first.Orders[0].ID)
	assert.Equal(t, ids[1], first.Orders[1].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := h.svc.List(ctx, userID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Equal(t, ids[0], second.Orders[0].ID)
	assert.Empty(t, second.NextCursor)

	_, err = h.svc.List(ctx, userID, pagination.Params{Cursor: "not-a-cursor"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestListSellerOnlyReturnsOrdersWithTheirItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := uuid.New()
	mine := dbtest.CreateProduct(t, h.client.DB(), seller, 100, 5)
	other := dbtest.CreateProduct(t, h.client.DB(), uuid.Nil, 100, 5)

	order := h.order(t, uuid.New(), mine, 1, enums.PaymentStatusPaid, enums.FulfillmentPending)
	h.order(t, uuid.New(), other, 1, enums.PaymentStatusPaid, enums.FulfillmentPending)

	list, err := h.svc.ListSeller(ctx, seller, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, order.ID, list.Orders[0].ID)
}

func TestCancelRestoresStockAndEmits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := uuid.New()
	p := dbtest.CreateProduct(t, h.client.DB(), uuid.Nil, 100, 2)
	order := h.order(t, userID, p, 3, enums.PaymentStatusPaid, enums.FulfillmentPending)

	_, err := h.svc.Cancel(ctx, uuid.New(), order.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	cancelled, err := h.svc.Cancel(ctx, userID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.FulfillmentCancelled, cancelled.FulfillmentStatus)
	assert.Equal(t, enums.PaymentStatusPaid, cancelled.PaymentStatus)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 5, dbtest.Stock(t, h.client.DB(), "products", p.ID))
	assert.Equal(t, []string{string(enums.EventOrderCanceled)}, h.outboxTypes(t))

	_, err = h.svc.Cancel(ctx, userID, order.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 5, dbtest.Stock(t, h.client.DB(), "products", p.ID), "second cancel must not restore again")
}

func TestCancelRejectsShippedOrders(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	p := dbtest.CreateProduct(t, h.client.DB(), uuid.Nil, 100, 2)
	order := h.order(t, userID, p, 1, enums.PaymentStatusPaid, enums.FulfillmentShipped)

	_, err := h.svc.Cancel(context.Background(), userID, order.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 2, dbtest.Stock(t, h.client.DB(), "products", p.ID))
}

func TestUpdateFulfillmentBySellerAndAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := uuid.New()
	p := dbtest.CreateProduct(t, h.client.DB(), seller, 100, 5)
	order := h.order(t, uuid.New(), p, 1, enums.PaymentStatusPaid, enums.FulfillmentPending)

	_, err := h.svc.UpdateFulfillment(ctx, Actor{UserID: uuid.New(), Role: enums.RoleSeller}, order.ID, enums.FulfillmentShipped)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden), "foreign seller")

	_, err = h.svc.UpdateFulfillment(ctx, Actor{UserID: order.UserID, Role: enums.RoleBuyer}, order.ID, enums.FulfillmentShipped)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden), "buyers cannot ship")

	_, err = h.svc.UpdateFulfillment(ctx, Actor{UserID: seller, Role: enums.RoleSeller}, order.ID, enums.FulfillmentDelivered)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict), "cannot skip shipping")

	shipped, err := h.svc.UpdateFulfillment(ctx, Actor{UserID: seller, Role: enums.RoleSeller}, order.ID, enums.FulfillmentShipped)
	require.NoError(t, err)
	assert.Equal(t, enums.FulfillmentShipped, shipped.FulfillmentStatus)
	assert.NotNil(t, shipped.ShippedAt)

	delivered, err := h.svc.UpdateFulfillment(ctx, Actor{UserID: uuid.New(), Role: enums.RoleAdmin}, order.ID, enums.FulfillmentDelivered)
	require.NoError(t, err)
	assert.Equal(t, enums.FulfillmentDelivered, delivered.FulfillmentStatus)
	assert.NotNil(t, delivered.DeliveredAt)

	assert.Equal(t, []string{string(enums.EventOrderStateChanged), string(enums.EventOrderStateChanged)}, h.outboxTypes(t))

	_, err = h.svc.UpdateFulfillment(ctx, Actor{UserID: seller, Role: enums.RoleSeller}, order.ID, "lost")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestSellerCancellationOfPendingOrderRestoresStock(t *testing.T) {
	h := newHarness(t)
	seller := uuid.New()
	p := dbtest.CreateProduct(t, h.client.DB(), seller, 100, 1)
	order := h.order(t, uuid.New(), p, 2, enums.PaymentStatusPaid, enums.FulfillmentPending)

	_, err := h.svc.UpdateFulfillment(context.Background(), Actor{UserID: seller, Role: enums.RoleSeller}, order.ID, enums.FulfillmentCancelled)
	require.NoError(t, err)
	assert.Equal(t, 3, dbtest.Stock(t, h.client.DB(), "products", p.ID))
}

func TestMarkRefunded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := dbtest.CreateProduct(t, h.client.DB(), uuid.Nil, 100, 5)
	paid := h.order(t, uuid.New(), p, 1, enums.PaymentStatusPaid, enums.FulfillmentCancelled)
	unpaid := h.order(t, uuid.New(), p, 1, enums.PaymentStatusUnpaid, enums.FulfillmentPending)
	admin := Actor{UserID: uuid.New(), Role: enums.RoleAdmin}

	_, err := h.svc.MarkRefunded(ctx, Actor{UserID: uuid.New(), Role: enums.RoleSeller}, paid.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	refunded, err := h.svc.MarkRefunded(ctx, admin, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, refunded.PaymentStatus)
	assert.NotNil(t, refunded.RefundedAt)

	_, err = h.svc.MarkRefunded(ctx, admin, unpaid.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
}

func TestDeleteOnlyTerminalOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := uuid.New()
	p := dbtest.CreateProduct(t, h.client.DB(), uuid.Nil, 100, 5)

	active := h.order(t, userID, p, 1, enums.PaymentStatusPaid, enums.FulfillmentPending)
	delivered := h.order(t, userID, p, 1, enums.PaymentStatusPaid, enums.FulfillmentDelivered)
	unpaid := h.order(t, userID, p, 1, enums.PaymentStatusUnpaid, enums.FulfillmentPending)

	err := h.svc.Delete(ctx, userID, active.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	err = h.svc.Delete(ctx, uuid.New(), delivered.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	require.NoError(t, h.svc.Delete(ctx, userID, delivered.ID))
	require.NoError(t, h.svc.Delete(ctx, userID, unpaid.ID))

	_, err = h.svc.Get(ctx, userID, delivered.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	var items int64
	require.NoError(t, h.client.DB().Model(&models.OrderItem{}).Where("order_id = ?", delivered.ID).Count(&items).Error)
	assert.Zero(t, items)
}

func TestDeleteUnpaidPendingOrderRestoresStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := uuid.New()
	p := dbtest.CreateProduct(t, h.client.DB(), uuid.Nil, 100, 5)

	require.NoError(t, product.NewRepository(h.client.DB()).DecrementStock(ctx, p.ID, nil, 2))
	unpaid := h.order(t, userID, p, 2, enums.PaymentStatusUnpaid, enums.FulfillmentPending)
	assert.Equal(t, 3, dbtest.Stock(t, h.client.DB(), "products", p.ID))

	require.NoError(t, h.svc.Delete(ctx, userID, unpaid.ID))
	assert.Equal(t, 5, dbtest.Stock(t, h.client.DB(), "products", p.ID))

	cancelled := h.order(t, userID, p, 1, enums.PaymentStatusUnpaid, enums.FulfillmentCancelled)
	require.NoError(t, h.svc.Delete(ctx, userID, cancelled.ID))
	assert.Equal(t, 5, dbtest.Stock(t, h.client.DB(), "products", p.ID))
}

func TestFindBySession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := uuid.New()
	p := dbtest.CreateProduct(t, h.client.DB(), uuid.Nil, 100, 5)
	order := h.order(t, userID, p, 1, enums.PaymentStatusPaid, enums.FulfillmentPending)
	require.NoError(t, h.repo.Update(ctx, order.ID, map[string]any{"checkout_session_id": "cs_test_1"}))

	found, err := h.svc.FindBySession(ctx, userID, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = h.svc.FindBySession(ctx, uuid.New(), "cs_test_1")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = h.svc.FindBySession(ctx, userID, "cs_missing")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}
