// Package extras implements the reliable-control sub-protocol
// (component G): typed, idempotent control items piggybacked on
// outgoing packet headers until the peer's ack catches up to the
// first sequence that carried them, modeled on the teacher's
// chunk-retry/ack bookkeeping in file/transfer.go adapted to
// header-carried blobs instead of file chunks (spec §4.5).
package extras

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vvoip/crypto"
)

// Type identifies one reliable-extras payload kind (spec §4.5).
type Type uint8

// Reliable-extras types (spec §4.5).
const (
	TypeStreamFlags   Type = 1
	TypeStreamCSD     Type = 2
	TypeLANEndpoint   Type = 3
	TypeNetworkChanged Type = 4
	TypeGroupCallKey  Type = 5
	TypeRequestGroup  Type = 6
	TypeIPv6Endpoint  Type = 7
)

// maxPayload bounds an extra's opaque data to what the wire's one-byte
// length field (extras/wire.go's `byte(len(e.Data))`) can represent at
// all: 255. Spec §3 states "≤254 bytes" but §4.5 type 5 describes
// GROUP_CALL_KEY as "256 B group key" — neither figure fits a 1-byte
// length field exactly, so this core uses the field's true maximum
// (255) rather than either spec number; see DESIGN.md.
const maxPayload = 255

// Entry is an UnacknowledgedExtraData record (spec §3): a typed blob
// queued for reliable delivery, tracked by the first outgoing
// sequence that carried it.
type Entry struct {
	Type               Type
	Data               []byte
	FirstContainingSeq uint32 // 0 = not yet sent
}

// Outbox holds at most one outstanding Entry per Type (spec §3
// invariant): pushing the same type overwrites the payload and resets
// FirstContainingSeq to 0.
type Outbox struct {
	entries map[Type]*Entry

	onDelivered map[Type]func([]byte)
}

// NewOutbox returns an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{entries: make(map[Type]*Entry)}
}

// Send enqueues data under type t for reliable delivery, overwriting
// any existing outstanding entry of the same type (spec §4.5
// SendExtra).
func (o *Outbox) Send(t Type, data []byte) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Outbox.Send",
		"package":  "extras",
		"type":     t,
		"size":     len(data),
	})
	if len(data) > maxPayload {
		logger.Warn("truncating extra payload to max allowed size")
		data = data[:maxPayload]
	}
	o.entries[t] = &Entry{Type: t, Data: data}
	logger.Debug("queued reliable extra")
}

// OnDelivered registers a one-shot-per-send callback fired when an
// entry of type t is acknowledged (spec §4.5: REQUEST_GROUP and
// GROUP_CALL_KEY "trigger one-shot user callbacks on delivery").
func (o *Outbox) OnDelivered(t Type, cb func([]byte)) {
	if o.onDelivered == nil {
		o.onDelivered = make(map[Type]func([]byte))
	}
	o.onDelivered[t] = cb
}

// Pending returns every entry not yet fully delivered, for
// serialization into the next outgoing header.
func (o *Outbox) Pending() []*Entry {
	out := make([]*Entry, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, e)
	}
	return out
}

// MarkSent records that outgoing packet seq carried every entry that
// has not yet been assigned a FirstContainingSeq.
func (o *Outbox) MarkSent(seq uint32) {
	for _, e := range o.entries {
		if e.FirstContainingSeq == 0 {
			e.FirstContainingSeq = seq
		}
	}
}

// AckUpTo removes every entry whose FirstContainingSeq is acknowledged
// by lastAck (spec §4.5 Acknowledgement: "last_ack >=
// first_containing_seq"), firing any registered one-shot callback.
func (o *Outbox) AckUpTo(lastAck uint32) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Outbox.AckUpTo",
		"package":  "extras",
		"last_ack": lastAck,
	})
	for t, e := range o.entries {
		if e.FirstContainingSeq == 0 {
			continue
		}
		if seqGE(lastAck, e.FirstContainingSeq) {
			logger.WithField("type", t).Debug("extra acknowledged, removing")
			delete(o.entries, t)
			if cb := o.onDelivered[t]; cb != nil {
				cb(e.Data)
			}
		}
	}
}

// seqGE mirrors packetproto.SeqGE without importing it: extras only
// needs the wraparound rule, not the rest of packetproto.
func seqGE(a, b uint32) bool {
	return int32(a-b) >= 0
}

// Inbox deduplicates received extras by SHA-1(type||data)[0:8] per
// type (spec §4.5: "deduplicates by SHA-1... dispatches").
type Inbox struct {
	seen map[Type][8]byte
	has  map[Type]bool
}

// NewInbox returns an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{seen: make(map[Type][8]byte), has: make(map[Type]bool)}
}

// Receive reports whether (t, data) is new (not a duplicate of the
// last-seen payload for that type) and records it as seen.
func (in *Inbox) Receive(t Type, data []byte) bool {
	h := fingerprint(t, data)
	if in.has[t] && in.seen[t] == h {
		return false
	}
	in.seen[t] = h
	in.has[t] = true
	return true
}

func fingerprint(t Type, data []byte) [8]byte {
	buf := make([]byte, 0, 1+len(data))
	buf = append(buf, byte(t))
	buf = append(buf, data...)
	sum := crypto.SHA1Sum(buf)
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}
