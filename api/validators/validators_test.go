package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

type itemBody struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{name: "empty", body: ""},
		{name: "unknown field", body: `{"product_id":"8a7d1c52-5a4e-4f4c-9d0e-1b2c3d4e5f60","quantity":1,"extra":true}`},
		{name: "bad uuid", body: `{"product_id":"nope","quantity":1}`, field: "product_id"},
		{name: "quantity", body: `{"product_id":"8a7d1c52-5a4e-4f4c-9d0e-1b2c3d4e5f60","quantity":0}`, field: "quantity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tc.body))
			var dest itemBody
			err := DecodeJSONBody(req, &dest)
			if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if tc.field == "" {
				return
			}
			details, ok := pkgerrors.As(err).Details().(map[string]string)
			if !ok || details[tc.field] == "" {
				t.Fatalf("expected detail for %s, got %v", tc.field, pkgerrors.As(err).Details())
			}
		})
	}

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"product_id":"8a7d1c52-5a4e-4f4c-9d0e-1b2c3d4e5f60","quantity":2}`))
	var dest itemBody
	if err := DecodeJSONBody(req, &dest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dest.Quantity != 2 {
		t.Fatalf("unexpected quantity %d", dest.Quantity)
	}
}

func TestParseHelpers(t *testing.T) {
	if _, err := ParseUUID("nope", "order_id"); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	id, err := ParseOptionalUUID("", "variant_id")
	if err != nil || id != nil {
		t.Fatalf("expected nil for empty value, got %v %v", id, err)
	}
	id, err = ParseOptionalUUID(" 8a7d1c52-5a4e-4f4c-9d0e-1b2c3d4e5f60 ", "variant_id")
	if err != nil || id == nil || id.String() != "8a7d1c52-5a4e-4f4c-9d0e-1b2c3d4e5f60" {
		t.Fatalf("expected parsed id, got %v %v", id, err)
	}
}
