package extras

import "errors"

// ErrTruncated indicates an extras blob too short to contain a
// declared entry.
var ErrTruncated = errors.New("extras: truncated blob")

// SerializeEntries packs a list of Entry into the header's extras
// blob: a sequence of [type:u8][len:u8][data] records, one per
// pending entry (spec §4.5: "Entries are serialized into the header
// of every outgoing packet until acked").
func SerializeEntries(entries []*Entry) []byte {
	size := 0
	for _, e := range entries {
		size += 2 + len(e.Data)
	}
	out := make([]byte, 0, size)
	for _, e := range entries {
		out = append(out, byte(e.Type), byte(len(e.Data)))
		out = append(out, e.Data...)
	}
	return out
}

// ParseEntries unpacks a header's extras blob into (type, data) pairs.
// A malformed trailing record drops the remainder rather than the
// whole packet's other fields (spec §7: one malformed field never
// tears down the connection).
func ParseEntries(blob []byte) ([]struct {
	Type Type
	Data []byte
}, error) {
	var out []struct {
		Type Type
		Data []byte
	}
	off := 0
	for off < len(blob) {
		if off+2 > len(blob) {
			return out, ErrTruncated
		}
		t := Type(blob[off])
		n := int(blob[off+1])
		off += 2
		if off+n > len(blob) {
			return out, ErrTruncated
		}
		out = append(out, struct {
			Type Type
			Data []byte
		}{Type: t, Data: blob[off : off+n]})
		off += n
	}
	return out, nil
}
