package link

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	logx "animatron/pkg/logx"
)

func decodeAll(p []byte) []uint16 {
	var d Decoder
	var out []uint16
	d.Decode(p, func(c uint16) { out = append(out, c) })
	return out
}

func TestDecoder(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   []byte
		want []uint16
	}{
		{"single", []byte{0xAA, 0x55, 0x00, 0x05, 0xFB}, []uint16{0x0005}},
		{"high byte", []byte{0xAA, 0x55, 0x09, 0x00, 0xFB}, []uint16{0x0900}},
		{"leading noise", []byte{0x01, 0xFB, 0xAA, 0x55, 0x00, 0x06, 0xFB}, []uint16{0x0006}},
		{"bad trailer dropped", []byte{0xAA, 0x55, 0x00, 0x01, 0x00, 0xAA, 0x55, 0x00, 0x02, 0xFB}, []uint16{0x0002}},
		{"repeated head", []byte{0xAA, 0xAA, 0x55, 0x00, 0x04, 0xFB}, []uint16{0x0004}},
		{"back to back", append(Encode(1), Encode(0x0A00)...), []uint16{1, 0x0A00}},
		{"truncated", []byte{0xAA, 0x55, 0x00}, nil},
	}
	for _, tc := range cases {
		got := decodeAll(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
			}
		}
	}
}

func TestDecoderSplitAcrossReads(t *testing.T) {
	t.Parallel()
	var d Decoder
	var got []uint16
	frame := Encode(0x1234)
	d.Decode(frame[:2], func(c uint16) { got = append(got, c) })
	d.Decode(frame[2:], func(c uint16) { got = append(got, c) })
	if len(got) != 1 || got[0] != 0x1234 {
		t.Fatalf("got %v", got)
	}
	if frames, _ := d.Counts(); frames != 1 {
		t.Fatalf("frames = %d", frames)
	}
}

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func TestReaderDeliversCodes(t *testing.T) {
	t.Parallel()
	stream := append(Encode(5), Encode(6)...)
	open := func(Config) (io.ReadCloser, error) { return nopCloser{bytes.NewReader(stream)}, nil }

	got := make(chan uint16, 4)
	r := NewReader(Config{Enabled: true, Port: "test"}, open, func(c uint16) { got <- c }, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := r.Run(ctx)
	if err == nil {
		t.Fatal("Run should report the closed stream")
	}
	close(got)
	var codes []uint16
	for c := range got {
		codes = append(codes, c)
	}
	if len(codes) != 2 || codes[0] != 5 || codes[1] != 6 {
		t.Fatalf("codes = %v", codes)
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()
	if err := ValidateConfig(Config{}); err != nil {
		t.Fatalf("disabled link: %v", err)
	}
	if err := ValidateConfig(Config{Enabled: true}); err == nil {
		t.Fatal("expected port error")
	}
}
