package payments

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/types"
)

const (
	MetaUserID          = "user_id"
	MetaDeliveryAddress = "delivery_address"
	MetaCouponCode      = "coupon_code"
	MetaDiscountCents   = "discount_cents"
	MetaPaymentMethod   = "payment_method"
	MetaSubtotalCents   = "subtotal_cents"
	MetaOrderID         = "order_id"
)

// Metadata is the reconciliation token attached to a session. The gateway
// returns it verbatim on completion.
type Metadata struct {
	UserID          uuid.UUID
	DeliveryAddress *types.Address
	CouponCode      string
	DiscountCents   int
	PaymentMethod   enums.PaymentMethod
	SubtotalCents   int
	OrderID         *uuid.UUID
}

// Encode flattens the metadata to gateway key/value pairs.
func (m Metadata) Encode() (map[string]string, error) {
	out := map[string]string{
		MetaUserID:        m.UserID.String(),
		MetaPaymentMethod: string(m.PaymentMethod),
	}
	if m.DeliveryAddress != nil {
		raw, err := json.Marshal(m.DeliveryAddress)
		if err != nil {
			return nil, fmt.Errorf("encode delivery address: %w", err)
		}
		out[MetaDeliveryAddress] = string(raw)
	}
	if m.CouponCode != "" {
		out[MetaCouponCode] = m.CouponCode
	}
	if m.OrderID != nil {
		out[MetaOrderID] = m.OrderID.String()
	} else {
		out[MetaDiscountCents] = strconv.Itoa(m.DiscountCents)
		out[MetaSubtotalCents] = strconv.Itoa(m.SubtotalCents)
	}
	return out, nil
}

// ParseMetadata reverses Encode. Only user_id is mandatory; a session that
// lacks it cannot be reconciled.
func ParseMetadata(raw map[string]string) (Metadata, error) {
	var m Metadata
	userID, err := uuid.Parse(strings.TrimSpace(raw[MetaUserID]))
	if err != nil {
		return m, pkgerrors.New(pkgerrors.CodeValidation, "session metadata user_id missing or invalid")
	}
	m.UserID = userID

	if value := strings.TrimSpace(raw[MetaPaymentMethod]); value != "" {
		method, err := enums.ParsePaymentMethod(value)
		if err != nil {
			return m, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "session metadata payment_method invalid")
		}
		m.PaymentMethod = method
	} else {
		m.PaymentMethod = enums.PaymentMethodCard
	}

	if value := raw[MetaDeliveryAddress]; value != "" {
		var address types.Address
		if err := json.Unmarshal([]byte(value), &address); err != nil {
			return m, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "session metadata delivery_address invalid")
		}
		m.DeliveryAddress = &address
	}

	m.CouponCode = raw[MetaCouponCode]
	if m.DiscountCents, err = parseCents(raw, MetaDiscountCents); err != nil {
		return m, err
	}
	if m.SubtotalCents, err = parseCents(raw, MetaSubtotalCents); err != nil {
		return m, err
	}

	if value := strings.TrimSpace(raw[MetaOrderID]); value != "" {
		orderID, err := uuid.Parse(value)
		if err != nil {
			return m, pkgerrors.New(pkgerrors.CodeValidation, "session metadata order_id invalid")
		}
		m.OrderID = &orderID
	}
	return m, nil
}

func parseCents(raw map[string]string, key string) (int, error) {
	value := strings.TrimSpace(raw[key])
	if value == "" {
		return 0, nil
	}
	cents, err := strconv.Atoi(value)
	if err != nil || cents < 0 {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "session metadata %s invalid", key)
	}
	return cents, nil
}
