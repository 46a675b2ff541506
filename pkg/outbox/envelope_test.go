package outbox_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox"
)

func TestDecodeEnvelope(t *testing.T) {
	envelope, err := outbox.DecodeEnvelope([]byte(`{"version":1,"eventId":"e-1","occurredAt":"2026-03-01T10:00:00Z","actor":{"userId":"8a7d1c52-5a4e-4f4c-9d0e-1b2c3d4e5f60","role":"seller"},"data":{"orderId":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, outbox.EnvelopeVersion, envelope.Version)
	assert.Equal(t, "e-1", envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, enums.RoleSeller, envelope.Actor.Role)

	for name, raw := range map[string]string{
		"not json":     `{`,
		"missing data": `{"version":1,"eventId":"e-2"}`,
		"null data":    `{"version":1,"eventId":"e-3","data":null}`,
	} {
		_, err := outbox.DecodeEnvelope([]byte(raw))
		assert.Error(t, err, name)
	}
}
