package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-checkout/api/controllers/dto"
	"github.com/angelmondragon/marketplace-checkout/api/middleware"
	"github.com/angelmondragon/marketplace-checkout/internal/checkout"
	ordersvc "github.com/angelmondragon/marketplace-checkout/internal/orders"
	"github.com/angelmondragon/marketplace-checkout/internal/payments"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	"github.com/angelmondragon/marketplace-checkout/pkg/pagination"
)

type stubOrders struct {
	params    pagination.Params
	actor     ordersvc.Actor
	target    enums.FulfillmentStatus
	deleted   uuid.UUID
	err       error
	listCalls string
	orderFor  func(uuid.UUID) *models.Order
}

func (s *stubOrders) order(id uuid.UUID) *models.Order {
	if s.orderFor != nil {
		return s.orderFor(id)
	}
	return &models.Order{ID: id, FulfillmentStatus: enums.FulfillmentPending, PaymentStatus: enums.PaymentStatusPaid}
}

func (s *stubOrders) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ordersvc.OrderList, error) {
	s.params = params
	s.listCalls = "buyer"
	return &ordersvc.OrderList{Orders: []models.Order{*s.order(uuid.New())}, NextCursor: "next"}, s.err
}

func (s *stubOrders) ListSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*ordersvc.OrderList, error) {
	s.params = params
	s.listCalls = "seller"
	return &ordersvc.OrderList{}, s.err
}

func (s *stubOrders) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.order(orderID), nil
}

func (s *stubOrders) FindBySession(ctx context.Context, userID uuid.UUID, sessionID string) (*models.Order, error) {
	return nil, errors.New("not used")
}

func (s *stubOrders) Delete(ctx context.Context, userID, orderID uuid.UUID) error {
	s.deleted = orderID
	return s.err
}

func (s *stubOrders) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	order := s.order(orderID)
	order.FulfillmentStatus = enums.FulfillmentCancelled
	return order, nil
}

func (s *stubOrders) UpdateFulfillment(ctx context.Context, actor ordersvc.Actor, orderID uuid.UUID, target enums.FulfillmentStatus) (*models.Order, error) {
	s.actor = actor
	s.target = target
	if s.err != nil {
		return nil, s.err
	}
	order := s.order(orderID)
	order.FulfillmentStatus = target
	return order, nil
}

func (s *stubOrders) MarkRefunded(ctx context.Context, actor ordersvc.Actor, orderID uuid.UUID) (*models.Order, error) {
	s.actor = actor
	if s.err != nil {
		return nil, s.err
	}
	order := s.order(orderID)
	order.PaymentStatus = enums.PaymentStatusRefunded
	return order, nil
}

type stubCheckout struct {
	unpaid  checkout.UnpaidOrderInput
	orderID uuid.UUID
	err     error
}

func (s *stubCheckout) CreateSession(ctx context.Context, input checkout.SessionInput) (*checkout.SessionResult, error) {
	return nil, errors.New("not used")
}

func (s *stubCheckout) Complete(ctx context.Context, source string, sess *payments.Session) (*models.Order, error) {
	return nil, errors.New("not used")
}

func (s *stubCheckout) ConfirmSuccess(ctx context.Context, userID uuid.UUID, sessionID string) (*models.Order, error) {
	return nil, errors.New("not used")
}

func (s *stubCheckout) PlaceUnpaidOrder(ctx context.Context, input checkout.UnpaidOrderInput) (*models.Order, error) {
	s.unpaid = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: uuid.New(), UserID: input.UserID, PaymentMethod: input.PaymentMethod, PaymentStatus: enums.PaymentStatusUnpaid}, nil
}

func (s *stubCheckout) CreateOrderPaymentSession(ctx context.Context, userID, orderID uuid.UUID) (*checkout.SessionResult, error) {
	s.orderID = orderID
	if s.err != nil {
		return nil, s.err
	}
	id := orderID
	return &checkout.SessionResult{SessionID: "cs_order", URL: "https://pay.example/cs_order", OrderID: &id}, nil
}

func newRouter(orders *stubOrders, checkoutSvc *stubCheckout) http.Handler {
	logg := logger.Nop()
	r := chi.NewRouter()
	r.Get("/orders", BuyerOrderList(orders, logg))
	r.Post("/orders", PlaceOrder(checkoutSvc, logg))
	r.Get("/orders/{orderId}", BuyerOrderDetail(orders, logg))
	r.Delete("/orders/{orderId}", BuyerOrderDelete(orders, logg))
	r.Post("/orders/{orderId}/cancel", BuyerOrderCancel(orders, logg))
	r.Post("/orders/{orderId}/payment-session", OrderPaymentSession(checkoutSvc, logg))
	r.Get("/seller/orders", SellerOrderList(orders, logg))
	r.Post("/seller/orders/{orderId}/fulfillment", OrderFulfillment(orders, logg))
	r.Post("/admin/orders/{orderId}/refund", AdminOrderRefund(orders, logg))
	return r
}

func serve(t *testing.T, h http.Handler, method, path, body string, role enums.UserRole) (*httptest.ResponseRecorder, uuid.UUID) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	userID := uuid.New()
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, role)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))
	return rec, userID
}

func data(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func TestBuyerOrderListParsesPagination(t *testing.T) {
	orders := &stubOrders{}
	h := newRouter(orders, &stubCheckout{})

	rec, _ := serve(t, h, http.MethodGet, "/orders?limit=5", "", enums.RoleBuyer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, orders.params.Limit)
	assert.Equal(t, "buyer", orders.listCalls)

	var page dto.OrderPage
	data(t, rec, &page)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, "next", page.NextCursor)

	rec, _ = serve(t, h, http.MethodGet, "/orders?limit=abc", "", enums.RoleBuyer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, h, http.MethodGet, "/orders?cursor=bm90LWEtY3Vyc29y", "", enums.RoleBuyer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuyerOrderDetailAndErrors(t *testing.T) {
	orders := &stubOrders{}
	h := newRouter(orders, &stubCheckout{})
	id := uuid.New()

	rec, _ := serve(t, h, http.MethodGet, "/orders/"+id.String(), "", enums.RoleBuyer)
	require.Equal(t, http.StatusOK, rec.Code)
	var order dto.Order
	data(t, rec, &order)
	assert.Equal(t, id, order.ID)

	rec, _ = serve(t, h, http.MethodGet, "/orders/nope", "", enums.RoleBuyer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	orders.err = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	rec, _ = serve(t, h, http.MethodGet, "/orders/"+id.String(), "", enums.RoleBuyer)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuyerOrderDeleteAndCancel(t *testing.T) {
	orders := &stubOrders{}
	h := newRouter(orders, &stubCheckout{})
	id := uuid.New()

	rec, _ := serve(t, h, http.MethodDelete, "/orders/"+id.String(), "", enums.RoleBuyer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, orders.deleted)

	rec, _ = serve(t, h, http.MethodPost, "/orders/"+id.String()+"/cancel", "", enums.RoleBuyer)
	require.Equal(t, http.StatusOK, rec.Code)
	var order dto.Order
	data(t, rec, &order)
	assert.Equal(t, enums.FulfillmentCancelled, order.FulfillmentStatus)

	orders.err = pkgerrors.New(pkgerrors.CodeStateConflict, "order already shipped")
	rec, _ = serve(t, h, http.MethodPost, "/orders/"+id.String()+"/cancel", "", enums.RoleBuyer)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPlaceOrder(t *testing.T) {
	checkoutSvc := &stubCheckout{}
	h := newRouter(&stubOrders{}, checkoutSvc)

	rec, userID := serve(t, h, http.MethodPost, "/orders", `{"payment_method":"bank_transfer"}`, enums.RoleBuyer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, userID, checkoutSvc.unpaid.UserID)
	assert.Equal(t, enums.PaymentMethodBankTransfer, checkoutSvc.unpaid.PaymentMethod)

	rec, _ = serve(t, h, http.MethodPost, "/orders", "", enums.RoleBuyer)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, checkoutSvc.unpaid.PaymentMethod)

	rec, _ = serve(t, h, http.MethodPost, "/orders", `{"payment_method":"card"}`, enums.RoleBuyer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	checkoutSvc.err = pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	rec, _ = serve(t, h, http.MethodPost, "/orders", "", enums.RoleBuyer)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOrderPaymentSession(t *testing.T) {
	checkoutSvc := &stubCheckout{}
	h := newRouter(&stubOrders{}, checkoutSvc)
	id := uuid.New()

	rec, _ := serve(t, h, http.MethodPost, "/orders/"+id.String()+"/payment-session", "", enums.RoleBuyer)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, id, checkoutSvc.orderID)

	var result checkout.SessionResult
	data(t, rec, &result)
	require.NotNil(t, result.OrderID)
	assert.Equal(t, id, *result.OrderID)
}

func TestOrderFulfillmentCarriesActorRole(t *testing.T) {
	orders := &stubOrders{}
	h := newRouter(orders, &stubCheckout{})
	id := uuid.New()

	rec, sellerID := serve(t, h, http.MethodPost, "/seller/orders/"+id.String()+"/fulfillment", `{"status":"shipped"}`, enums.RoleSeller)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ordersvc.Actor{UserID: sellerID, Role: enums.RoleSeller}, orders.actor)
	assert.Equal(t, enums.FulfillmentShipped, orders.target)

	rec, _ = serve(t, h, http.MethodPost, "/seller/orders/"+id.String()+"/fulfillment", `{"status":"lost"}`, enums.RoleSeller)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	orders.err = pkgerrors.New(pkgerrors.CodeForbidden, "order has no items from this seller")
	rec, _ = serve(t, h, http.MethodPost, "/seller/orders/"+id.String()+"/fulfillment", `{"status":"shipped"}`, enums.RoleSeller)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSellerOrderListAndAdminRefund(t *testing.T) {
	orders := &stubOrders{}
	h := newRouter(orders, &stubCheckout{})

	rec, _ := serve(t, h, http.MethodGet, "/seller/orders", "", enums.RoleSeller)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "seller", orders.listCalls)
	var page dto.OrderPage
	data(t, rec, &page)
	assert.Empty(t, page.Items)

	id := uuid.New()
	rec, adminID := serve(t, h, http.MethodPost, "/admin/orders/"+id.String()+"/refund", "", enums.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.RoleAdmin, orders.actor.Role)
	assert.Equal(t, adminID, orders.actor.UserID)
	var order dto.Order
	data(t, rec, &order)
	assert.Equal(t, enums.PaymentStatusRefunded, order.PaymentStatus)
}

func TestOrdersRequireUser(t *testing.T) {
	h := newRouter(&stubOrders{}, &stubCheckout{})
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
