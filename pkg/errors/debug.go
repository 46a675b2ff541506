package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// constraintHints names the schema guards the checkout pipeline relies on so
// a violation in the logs reads as the domain rule it enforces.
var constraintHints = map[string]string{
	"orders_checkout_session_id_key": "gateway session already consumed",
	"carts_user_id_key":              "user already has a cart",
	"coupons_code_key":               "coupon code taken",
	"idx_cart_items_line_key":        "duplicate cart line",
	"idx_outbox_dlq_event_id":        "event already dead-lettered",
	"products_stock_check":           "stock would go negative",
	"product_variants_stock_check":   "variant stock would go negative",
}

// ErrorDump flattens an error chain for request logs.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Retryable  bool     `json:"retryable"`
	Details    any      `json:"details,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PG *PGDump `json:"pg,omitempty"`
}

// PGDump is the subset of a Postgres error worth logging.
type PGDump struct {
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Hint       string `json:"hint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = MetadataFor(te.Code()).Retryable
		d.Details = te.Details()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PG = pgDump(err)
	return d
}

// Fields renders the dump as log fields, leaving out empty Postgres data.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
		"retryable":   d.Retryable,
	}
	if d.PG == nil {
		return fields
	}
	fields["pg_code"] = d.PG.Code
	for key, value := range map[string]string{
		"pg_constraint": d.PG.Constraint,
		"pg_hint":       d.PG.Hint,
		"pg_table":      d.PG.Table,
		"pg_column":     d.PG.Column,
		"pg_detail":     d.PG.Detail,
		"pg_message":    d.PG.Message,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

func pgDump(err error) *PGDump {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDump{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Hint:       constraintHints[pgxErr.ConstraintName],
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDump{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Hint:       constraintHints[pqErr.Constraint],
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
