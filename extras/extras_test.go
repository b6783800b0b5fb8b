package extras

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendOverwritesOutstandingEntry(t *testing.T) {
	o := NewOutbox()
	o.Send(TypeNetworkChanged, []byte{1})
	o.MarkSent(10)

	o.Send(TypeNetworkChanged, []byte{2}) // same type, different payload
	pending := o.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, []byte{2}, pending[0].Data)
	assert.Equal(t, uint32(0), pending[0].FirstContainingSeq) // reset
}

func TestAckRemovesOnlyDeliveredEntries(t *testing.T) {
	o := NewOutbox()
	o.Send(TypeGroupCallKey, make([]byte, 16))
	o.MarkSent(100)

	o.AckUpTo(99)
	assert.Len(t, o.Pending(), 1) // not yet delivered

	o.AckUpTo(100)
	assert.Len(t, o.Pending(), 0)
}

func TestGroupCallKeyCallbackFiresOnceOnAck(t *testing.T) {
	o := NewOutbox()
	calls := 0
	o.OnDelivered(TypeGroupCallKey, func([]byte) { calls++ })

	o.Send(TypeGroupCallKey, []byte("k"))
	o.MarkSent(5)

	o.AckUpTo(5)
	o.AckUpTo(5) // duplicate ack, must not re-fire (idempotent per spec §8)
	o.AckUpTo(200)
	assert.Equal(t, 1, calls)
}

func TestInboxDeduplicatesByTypeAndPayload(t *testing.T) {
	in := NewInbox()
	assert.True(t, in.Receive(TypeLANEndpoint, []byte{1, 2, 3}))
	assert.False(t, in.Receive(TypeLANEndpoint, []byte{1, 2, 3})) // duplicate
	assert.True(t, in.Receive(TypeLANEndpoint, []byte{4, 5, 6}))  // new payload, same type
}

func TestSerializeParseEntriesRoundTrip(t *testing.T) {
	entries := []*Entry{
		{Type: TypeStreamFlags, Data: []byte{1, 0xFF}},
		{Type: TypeIPv6Endpoint, Data: make([]byte, 18)},
	}
	blob := SerializeEntries(entries)

	got, err := ParseEntries(blob)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, TypeStreamFlags, got[0].Type)
	assert.Equal(t, entries[0].Data, got[0].Data)
	assert.Equal(t, TypeIPv6Endpoint, got[1].Type)
}

func TestParseEntriesTruncated(t *testing.T) {
	_, err := ParseEntries([]byte{byte(TypeStreamFlags), 5, 1, 2}) // declares 5, has 2
	assert.ErrorIs(t, err, ErrTruncated)
}
