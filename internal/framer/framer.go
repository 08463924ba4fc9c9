// Package framer packs and unpacks the 20-byte DVRIP wire header. It is
// pure: it owns no state, keeping wire encoding separate from the
// connection that reads and writes it.
package framer

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed length of every DVRIP frame header.
const HeaderSize = 20

const magic = 0xFF

// Header is the decoded form of the 20-byte frame header.
type Header struct {
	Version       uint8
	SessionID     uint32
	Sequence      uint32
	MessageID     uint16
	PayloadLength uint32
}

// FragmentSequence splits the Sequence field of a media-stream header into
// its (total, current) fragment-index pair.
func (h Header) FragmentSequence() (total, current uint8) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, h.Sequence)
	return b[0], b[1]
}

// Pack builds the 20-byte header + payload wire frame.
func Pack(messageID uint16, sessionID, sequence uint32, version uint8, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = magic
	buf[1] = version
	// bytes 2-3 reserved, left zero
	binary.LittleEndian.PutUint32(buf[4:8], sessionID)
	binary.LittleEndian.PutUint32(buf[8:12], sequence)
	// bytes 12-13 reserved, left zero
	binary.LittleEndian.PutUint16(buf[14:16], messageID)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Unpack decodes a 20-byte header. It rejects a header whose magic byte is
// not 0xFF, naming the offending byte in the error.
func Unpack(header []byte) (Header, error) {
	if len(header) != HeaderSize {
		return Header{}, fmt.Errorf("framer: header must be %d bytes, got %d", HeaderSize, len(header))
	}
	if header[0] != magic {
		return Header{}, fmt.Errorf("framer: bad magic byte 0x%02X", header[0])
	}
	return Header{
		Version:       header[1],
		SessionID:     binary.LittleEndian.Uint32(header[4:8]),
		Sequence:      binary.LittleEndian.Uint32(header[8:12]),
		MessageID:     binary.LittleEndian.Uint16(header[14:16]),
		PayloadLength: binary.LittleEndian.Uint32(header[16:20]),
	}, nil
}

// JSONTrailer is appended to every JSON payload before it is sent, and
// stripped from every JSON payload before it is parsed.
var JSONTrailer = []byte{0x0A, 0x00}

// StripTrailer removes the trailing "\x0a\x00" from a JSON payload, if
// present. It tolerates payloads that are missing it (a short read or a
// non-conforming firmware), returning the payload unchanged in that case.
func StripTrailer(payload []byte) []byte {
	if len(payload) >= 2 && payload[len(payload)-2] == 0x0A && payload[len(payload)-1] == 0x00 {
		return payload[:len(payload)-2]
	}
	return payload
}
