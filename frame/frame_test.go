package frame

import "testing"

// TestBuildParseRoundTrip is P5.
func TestBuildParseRoundTrip(t *testing.T) {
	dest := [6]byte{0x00, 0x60, 0x8C, 0x12, 0x34, 0x56}
	src := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	payload := []byte("hello, ethernet")

	raw := Build(dest, src, EtherTypeIPv4, payload)
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Dest != dest || got.Src != src || got.Type != EtherTypeIPv4 {
		t.Fatalf("header mismatch: %+v", got)
	}
	if string(got.Payload) != string(payload) {
		t.Fatalf("payload mismatch: %q", got.Payload)
	}
}

func TestClassify(t *testing.T) {
	station := [6]byte{0x00, 0x60, 0x8C, 0x12, 0x34, 0x56}
	cases := []struct {
		name string
		dest [6]byte
		want Class
	}{
		{"broadcast", [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, ClassBroadcast},
		{"multicast", [6]byte{0x01, 0x00, 0x5E, 0x00, 0x00, 0x01}, ClassMulticast},
		{"for-us", station, ClassForUs},
		{"other", [6]byte{0x00, 0x60, 0x8C, 0xAA, 0xBB, 0xCC}, ClassOther},
	}
	for _, c := range cases {
		if got := Classify(c.dest, station); got != c.want {
			t.Errorf("%s: classify = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestParseRejectsShortFrame(t *testing.T) {
	if _, err := Parse(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for short frame")
	}
}
