package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusPayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func TestEnvelopeDecode(t *testing.T) {
	e, err := NewEnvelope("OrderConfirmed", "checkout-api", "o-1", statusPayload{OrderID: "o-1", Status: "confirmed"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.EventID)
	assert.Equal(t, EnvelopeVersion, e.EventVersion)

	b, err := json.Marshal(e)
	require.NoError(t, err)

	got, err := DecodeEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, e.EventID, got.EventID)
	assert.Equal(t, "o-1", got.CorrelationID)

	p, err := UnwrapPayload[statusPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", p.Status)

	h := e.Headers()
	require.Len(t, h, 2)
	assert.Equal(t, "OrderConfirmed", string(h[0].Value))
	assert.Equal(t, "1", string(h[1].Value))
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"payload":{}}`))
	assert.Error(t, err)
}
