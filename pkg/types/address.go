package types

import (
	"fmt"
	"strings"
)

// Address is the delivery address stored as jsonb on carts and orders and
// round-tripped through gateway metadata.
type Address struct {
	Recipient  string  `json:"recipient" validate:"required,max=120"`
	Line1      string  `json:"line1" validate:"required,max=200"`
	Line2      *string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string  `json:"city" validate:"required,max=120"`
	State      string  `json:"state,omitempty" validate:"omitempty,max=120"`
	PostalCode string  `json:"postal_code" validate:"required,max=20"`
	Country    string  `json:"country" validate:"required,len=2"`
	Phone      string  `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// Normalize trims every field and upper-cases the country code.
func (a Address) Normalize() Address {
	out := Address{
		Recipient:  strings.TrimSpace(a.Recipient),
		Line1:      strings.TrimSpace(a.Line1),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
		Phone:      strings.TrimSpace(a.Phone),
	}
	if a.Line2 != nil {
		if line2 := strings.TrimSpace(*a.Line2); line2 != "" {
			out.Line2 = &line2
		}
	}
	return out
}

// Validate checks the minimum set of fields needed to deliver an order.
func (a Address) Validate() error {
	switch {
	case a.Recipient == "":
		return fmt.Errorf("address: missing recipient")
	case a.Line1 == "":
		return fmt.Errorf("address: missing line1")
	case a.City == "":
		return fmt.Errorf("address: missing city")
	case a.PostalCode == "":
		return fmt.Errorf("address: missing postal_code")
	case len(a.Country) != 2:
		return fmt.Errorf("address: country must be a 2-letter code")
	}
	return nil
}
