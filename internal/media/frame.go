// Package media demultiplexes a DVRIP binary stream into typed frames
// (live monitor, snapshot) and reassembles a plain chunked file transfer
// (download).
package media

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/openipc/dvrip-go/internal/framer"
)

// Kind is the closed set of inline frame types the device can embed at
// the start of a media chunk.
type Kind int

const (
	KindUnknown Kind = iota
	KindIFrame
	KindPFrame
	KindJPEGSegment
	KindAudio
	KindInfo
	KindInlineJPEG
)

func (k Kind) String() string {
	switch k {
	case KindIFrame:
		return "i-frame"
	case KindPFrame:
		return "p-frame"
	case KindJPEGSegment:
		return "jpeg-segment"
	case KindAudio:
		return "audio"
	case KindInfo:
		return "info"
	case KindInlineJPEG:
		return "inline-jpeg"
	default:
		return "unknown"
	}
}

// Codec names the payload encoding, when the device reports one.
type Codec string

const (
	CodecNone  Codec = ""
	CodecMPEG4 Codec = "mpeg4"
	CodecH264  Codec = "h264"
	CodecH265  Codec = "h265"
	CodecG711A Codec = "g711a"
	CodecJPEG  Codec = "jpeg"
	CodecInfo  Codec = "info"
)

// Frame is one demultiplexed media unit: a full I/P video frame, a JPEG
// segment, an audio block, an info block, or a verbatim inline JPEG
// snapshot.
type Frame struct {
	Kind      Kind
	Codec     Codec
	Width     int
	Height    int
	FPS       uint8
	Timestamp time.Time
	Data      []byte
}

// packed magic values for the inline sub-header that precedes the first
// chunk of every new frame. These are read big-endian from the front of
// the chunk payload, ahead of any DVRIP frame header.
const (
	magicIFrame     uint32 = 0x000001FC
	magicPFrame     uint32 = 0x000001FD
	magicJPEGSeg    uint32 = 0x000001FE
	magicAudio      uint32 = 0x000001FA
	magicInfo       uint32 = 0x000001F9
	magicInlineJPEG uint32 = 0xFFD8FFE0
)

// FrameReader is the minimal contract the demultiplexer needs from a
// held connection claim: read one frame header, then its payload.
type FrameReader interface {
	ReadHeader() (framer.Header, error)
	ReadPayload(n uint32) ([]byte, error)
}

// DecodePackedDateTime unpacks the device's 32-bit packed timestamp:
// bits [0:6) second, [6:12) minute, [12:17) hour, [17:22) day,
// [22:26) month, [26:32) year offset from 2000.
func DecodePackedDateTime(v uint32) time.Time {
	second := int(v & 0x3F)
	minute := int((v >> 6) & 0x3F)
	hour := int((v >> 12) & 0x1F)
	day := int((v >> 17) & 0x1F)
	month := int((v >> 22) & 0x0F)
	year := 2000 + int((v >> 26) & 0x3F)
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
}

func classify(dataType uint32, mediaByte byte) Codec {
	switch dataType {
	case magicIFrame, magicPFrame:
		switch mediaByte {
		case 1:
			return CodecMPEG4
		case 2:
			return CodecH264
		case 3:
			return CodecH265
		}
	case magicInfo:
		if mediaByte == 1 || mediaByte == 6 {
			return CodecInfo
		}
	case magicAudio:
		if mediaByte == 0x0E {
			return CodecG711A
		}
	case magicJPEGSeg:
		if mediaByte == 0 {
			return CodecJPEG
		}
	}
	return CodecNone
}

// ReadFrame reassembles one complete media frame from a FrameReader: the
// device splits large frames across several 20-byte-headered chunks, the
// first of which carries an inline sub-header describing the frame's
// total remaining length, type, and (for video) dimensions and
// timestamp. Subsequent chunks are plain continuation bytes. deadline, if
// non-zero, aborts the read once elapsed.
func ReadFrame(r FrameReader, deadline time.Duration) (Frame, error) {
	start := time.Now()
	var remaining uint32
	var out Frame
	buf := make([]byte, 0, 4096)

	for {
		hdr, err := r.ReadHeader()
		if err != nil {
			return Frame{}, fmt.Errorf("media: read frame header: %w", err)
		}
		packet, err := r.ReadPayload(hdr.PayloadLength)
		if err != nil {
			return Frame{}, fmt.Errorf("media: read frame payload: %w", err)
		}

		headerLen := 0
		if remaining == 0 {
			if len(packet) < 4 {
				return Frame{}, fmt.Errorf("media: chunk too short for type tag: %d bytes", len(packet))
			}
			dataType := binary.BigEndian.Uint32(packet[:4])

			if dataType == magicInlineJPEG {
				return Frame{Kind: KindInlineJPEG, Data: packet}, nil
			}

			headerLen = 8
			var mediaByte byte
			hasMedia := false

			switch dataType {
			case magicIFrame, magicJPEGSeg:
				headerLen = 16
				if len(packet) < 16 {
					return Frame{}, fmt.Errorf("media: short video sub-header: %d bytes", len(packet))
				}
				mediaByte = packet[4]
				hasMedia = true
				out.FPS = packet[5]
				out.Width = int(packet[6]) * 8
				out.Height = int(packet[7]) * 8
				dt := binary.LittleEndian.Uint32(packet[8:12])
				out.Timestamp = DecodePackedDateTime(dt)
				remaining = binary.LittleEndian.Uint32(packet[12:16])
				if dataType == magicIFrame {
					out.Kind = KindIFrame
				} else {
					out.Kind = KindJPEGSegment
				}

			case magicPFrame:
				if len(packet) < 8 {
					return Frame{}, fmt.Errorf("media: short P-frame sub-header: %d bytes", len(packet))
				}
				remaining = binary.LittleEndian.Uint32(packet[4:8])
				out.Kind = KindPFrame

			case magicAudio:
				if len(packet) < 8 {
					return Frame{}, fmt.Errorf("media: short audio sub-header: %d bytes", len(packet))
				}
				mediaByte = packet[4]
				hasMedia = true
				remaining = uint32(binary.LittleEndian.Uint16(packet[6:8]))
				out.Kind = KindAudio

			case magicInfo:
				if len(packet) < 8 {
					return Frame{}, fmt.Errorf("media: short info sub-header: %d bytes", len(packet))
				}
				mediaByte = packet[4]
				hasMedia = true
				remaining = uint32(binary.LittleEndian.Uint16(packet[6:8]))
				out.Kind = KindInfo

			default:
				return Frame{}, fmt.Errorf("media: unrecognized frame type tag 0x%08X", dataType)
			}

			if hasMedia {
				out.Codec = classify(dataType, mediaByte)
			}
		}

		buf = append(buf, packet[headerLen:]...)
		remaining -= uint32(len(packet) - headerLen)

		if remaining == 0 {
			out.Data = buf
			return out, nil
		}

		if deadline > 0 && time.Since(start) > deadline {
			return Frame{}, fmt.Errorf("media: timed out reassembling frame after %s", deadline)
		}
	}
}
