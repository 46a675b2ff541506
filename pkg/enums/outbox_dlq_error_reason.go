package enums

// OutboxDLQErrorReason records why an outbox row was moved to outbox_dlq.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts marks rows whose publish kept failing.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable marks rows that can never be published as
	// stored, such as an unknown event type or an empty payload.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var outboxDLQErrorReasons = []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) String() string { return string(r) }

func (r OutboxDLQErrorReason) IsValid() bool { return member(outboxDLQErrorReasons, r) }

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return parse(outboxDLQErrorReasons, value, "dlq error reason")
}
