package media

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/openipc/dvrip-go/internal/framer"
)

// fakeReader replays a fixed script of (header, payload) pairs, the way a
// StreamClaim would hand them back one at a time.
type fakeReader struct {
	headers  []framer.Header
	payloads [][]byte
	idx      int
}

func (f *fakeReader) ReadHeader() (framer.Header, error) {
	h := f.headers[f.idx]
	return h, nil
}

func (f *fakeReader) ReadPayload(n uint32) ([]byte, error) {
	p := f.payloads[f.idx]
	f.idx++
	return p, nil
}

func videoSubHeader(dataType uint32, media, fps, w, h byte, dt, length uint32) []byte {
	out := make([]byte, 16)
	binary.BigEndian.PutUint32(out[0:4], dataType)
	out[4] = media
	out[5] = fps
	out[6] = w
	out[7] = h
	binary.LittleEndian.PutUint32(out[8:12], dt)
	binary.LittleEndian.PutUint32(out[12:16], length)
	return out
}

func pFrameSubHeader(length uint32) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint32(out[0:4], magicPFrame)
	binary.LittleEndian.PutUint32(out[4:8], length)
	return out
}

func TestReadFrameSingleChunkIFrame(t *testing.T) {
	packedDT := encodePackedDateTime(2024, 3, 15, 10, 30, 45)
	body := append([]byte{}, videoSubHeader(magicIFrame, 2, 25, 80, 60, packedDT, 4)...)
	body = append(body, []byte("data")...)

	r := &fakeReader{
		headers:  []framer.Header{{PayloadLength: uint32(len(body))}},
		payloads: [][]byte{body},
	}

	frame, err := ReadFrame(r, 0)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Kind != KindIFrame {
		t.Fatalf("Kind = %v, want I-frame", frame.Kind)
	}
	if frame.Codec != CodecH264 {
		t.Fatalf("Codec = %v, want h264", frame.Codec)
	}
	if frame.Width != 640 || frame.Height != 480 {
		t.Fatalf("dimensions = %dx%d, want 640x480", frame.Width, frame.Height)
	}
	if string(frame.Data) != "data" {
		t.Fatalf("Data = %q, want %q", frame.Data, "data")
	}
	if frame.Timestamp.Year() != 2024 || frame.Timestamp.Month() != 3 || frame.Timestamp.Day() != 15 {
		t.Fatalf("Timestamp = %v, want 2024-03-15", frame.Timestamp)
	}
}

func TestReadFrameAcrossTwoChunks(t *testing.T) {
	sub := pFrameSubHeader(10)
	first := append([]byte{}, sub...)
	first = append(first, []byte("abcde")...)
	second := []byte("fghij")

	r := &fakeReader{
		headers: []framer.Header{
			{PayloadLength: uint32(len(first))},
			{PayloadLength: uint32(len(second))},
		},
		payloads: [][]byte{first, second},
	}

	frame, err := ReadFrame(r, 0)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Kind != KindPFrame {
		t.Fatalf("Kind = %v, want P-frame", frame.Kind)
	}
	if string(frame.Data) != "abcdefghij" {
		t.Fatalf("Data = %q, want %q", frame.Data, "abcdefghij")
	}
}

func TestReadFrameInlineJPEGSnapshot(t *testing.T) {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, magicInlineJPEG)
	body = append(body, []byte("jpegbytes")...)

	r := &fakeReader{
		headers:  []framer.Header{{PayloadLength: uint32(len(body))}},
		payloads: [][]byte{body},
	}

	frame, err := ReadFrame(r, 0)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Kind != KindInlineJPEG {
		t.Fatalf("Kind = %v, want inline JPEG", frame.Kind)
	}
	if string(frame.Data) != string(body) {
		t.Fatal("expected inline JPEG snapshot to be returned verbatim")
	}
}

func TestDecodePackedDateTime(t *testing.T) {
	v := encodePackedDateTime(2023, 11, 2, 14, 5, 59)
	got := DecodePackedDateTime(v)
	if got.Year() != 2023 || int(got.Month()) != 11 || got.Day() != 2 {
		t.Fatalf("date = %v", got)
	}
	if got.Hour() != 14 || got.Minute() != 5 || got.Second() != 59 {
		t.Fatalf("time = %v", got)
	}
}

func TestReadFrameTimesOut(t *testing.T) {
	sub := pFrameSubHeader(999999)
	first := append([]byte{}, sub...)

	r := &fakeReader{
		headers:  []framer.Header{{PayloadLength: uint32(len(first))}},
		payloads: [][]byte{first},
	}
	// remaining never reaches zero: the reader keeps returning empty
	// chunks, so the deadline is what ends the read.
	_, err := ReadFrame(&singleShotThenBlock{fakeReader: r}, time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

// singleShotThenBlock returns the first chunk then stalls ReadHeader by
// returning a zero-length header repeatedly, forcing the deadline check
// in ReadFrame's loop to be what ends the test.
type singleShotThenBlock struct {
	*fakeReader
	read bool
}

func (s *singleShotThenBlock) ReadHeader() (framer.Header, error) {
	if !s.read {
		s.read = true
		return s.fakeReader.headers[0], nil
	}
	return framer.Header{PayloadLength: 0}, nil
}

func (s *singleShotThenBlock) ReadPayload(n uint32) ([]byte, error) {
	if s.fakeReader.idx == 0 {
		return s.fakeReader.ReadPayload(n)
	}
	return nil, nil
}

func encodePackedDateTime(year, month, day, hour, minute, second int) uint32 {
	var v uint32
	v |= uint32(second) & 0x3F
	v |= (uint32(minute) & 0x3F) << 6
	v |= (uint32(hour) & 0x1F) << 12
	v |= (uint32(day) & 0x1F) << 17
	v |= (uint32(month) & 0x0F) << 22
	v |= (uint32(year-2000) & 0x3F) << 26
	return v
}
