package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-checkout/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox"
)

func TestNewDLQEntrySnapshotsEvent(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  5,
	}
	failedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	entry := outbox.NewDLQEntry(event, enums.OutboxDLQReasonMaxAttempts, errors.New("topic gone"), failedAt)

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, event.AggregateID, entry.AggregateID)
	assert.Equal(t, 5, entry.AttemptCount)
	assert.Equal(t, time.UTC, entry.FailedAt.Location())
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "topic gone", *entry.ErrorMessage)

	assert.Nil(t, outbox.NewDLQEntry(event, enums.OutboxDLQReasonMaxAttempts, nil, failedAt).ErrorMessage)
}

func TestDLQInsertClipsLongErrors(t *testing.T) {
	client := dbtest.Open(t)
	dlq := outbox.NewDLQRepository(client.DB())

	event := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	long := strings.Repeat("é", 600) // 1200 bytes
	require.NoError(t, dlq.InsertTx(client.DB(), outbox.NewDLQEntry(event, enums.OutboxDLQReasonNonRetryable, errors.New(long), time.Now())))

	found, err := dlq.FindByEventID(context.Background(), event.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.ErrorMessage)
	assert.LessOrEqual(t, len(*found.ErrorMessage), 1024)
	assert.True(t, utf8.ValidString(*found.ErrorMessage))

	assert.Error(t, dlq.InsertTx(nil, models.OutboxDLQ{}))
}
