package fanout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-reservation/internal/events"
)

func decodeInbound(t *testing.T, raw string) inboundMessage {
	t.Helper()
	var in inboundMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &in))
	return in
}

func TestInboundValidationRequiresUUIDSessionID(t *testing.T) {
	in := decodeInbound(t, `{"event":"select_seat","data":{"sessionId":"not-a-uuid","seatId":"5f8a6b2e-3b0a-4e44-9f0a-0b1c2d3e4f5a"}}`)
	err := validate.Struct(&in.Data)
	assert.Error(t, err)
}

func TestInboundValidationAcceptsWellFormedUUIDs(t *testing.T) {
	in := decodeInbound(t, `{"event":"select_seat","data":{"sessionId":"5f8a6b2e-3b0a-4e44-9f0a-0b1c2d3e4f5a","seatId":"6f8a6b2e-3b0a-4e44-9f0a-0b1c2d3e4f5b"}}`)
	assert.NoError(t, validate.Struct(&in.Data))
}

func TestInboundValidationSeatIDIsOptional(t *testing.T) {
	in := decodeInbound(t, `{"event":"join_session","data":{"sessionId":"5f8a6b2e-3b0a-4e44-9f0a-0b1c2d3e4f5a"}}`)
	assert.NoError(t, validate.Struct(&in.Data))
}

func TestInboundValidationDivesIntoSeatIDs(t *testing.T) {
	in := decodeInbound(t, `{"event":"reserve_seats","data":{"sessionId":"5f8a6b2e-3b0a-4e44-9f0a-0b1c2d3e4f5a","seatIds":["not-a-uuid"]}}`)
	assert.Error(t, validate.Struct(&in.Data))

	in2 := decodeInbound(t, `{"event":"reserve_seats","data":{"sessionId":"5f8a6b2e-3b0a-4e44-9f0a-0b1c2d3e4f5a","seatIds":["6f8a6b2e-3b0a-4e44-9f0a-0b1c2d3e4f5b"]}}`)
	assert.NoError(t, validate.Struct(&in2.Data))
}

func TestReserveSeatsRejectsTooManySeats(t *testing.T) {
	ids := make([]string, 11)
	for i := range ids {
		ids[i] = "6f8a6b2e-3b0a-4e44-9f0a-0b1c2d3e4f5b"
	}
	err := validate.Var(ids, "max=10,dive,uuid4")
	assert.Error(t, err)
}

func TestAudienceTag(t *testing.T) {
	assert.Equal(t, "another_user", audienceTag(events.AudienceOthers, ""))
	assert.Equal(t, "you", audienceTag(events.AudienceSelf, ""))
	assert.Equal(t, "fallback", audienceTag(events.AudienceRoom, "fallback"))
}

func TestUnknownEventDispatchesToDefault(t *testing.T) {
	in := decodeInbound(t, `{"event":"bogus_event","data":{}}`)
	assert.Equal(t, "bogus_event", in.Event)
}
