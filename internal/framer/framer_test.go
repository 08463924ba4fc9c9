package framer

import (
	"testing"
	"testing/quick"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	f := func(sessionID, sequence uint32, messageID uint16, version uint8, payload []byte) bool {
		wire := Pack(messageID, sessionID, sequence, version, payload)
		hdr, err := Unpack(wire[:HeaderSize])
		if err != nil {
			return false
		}
		return hdr.SessionID == sessionID &&
			hdr.Sequence == sequence &&
			hdr.MessageID == messageID &&
			hdr.Version == version &&
			int(hdr.PayloadLength) == len(payload) &&
			string(wire[HeaderSize:]) == string(payload)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestUnpackRejectsBadMagic(t *testing.T) {
	wire := Pack(1000, 0, 0, 0, nil)
	wire[0] = 0xAB
	if _, err := Unpack(wire[:HeaderSize]); err == nil {
		t.Fatal("expected error for bad magic byte")
	}
}

func TestUnpackRejectsShortHeader(t *testing.T) {
	if _, err := Unpack(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short header")
	}
}

func TestFragmentSequence(t *testing.T) {
	wire := Pack(1410, 0, 0, 0, nil)
	// manually set sequence bytes to (total=5, current=2)
	wire[8] = 5
	wire[9] = 2
	hdr, err := Unpack(wire[:HeaderSize])
	if err != nil {
		t.Fatal(err)
	}
	total, cur := hdr.FragmentSequence()
	if total != 5 || cur != 2 {
		t.Fatalf("got total=%d cur=%d, want 5,2", total, cur)
	}
}

func TestStripTrailer(t *testing.T) {
	in := append([]byte(`{"Ret":100}`), 0x0A, 0x00)
	got := StripTrailer(in)
	if string(got) != `{"Ret":100}` {
		t.Fatalf("got %q", got)
	}
	// tolerate missing trailer
	noTrailer := []byte(`{"Ret":100}`)
	if string(StripTrailer(noTrailer)) != string(noTrailer) {
		t.Fatal("should return payload unchanged when trailer missing")
	}
}
