package mysql

import (
	"bytes"
	"testing"
)

func TestLenEncIntRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 250, 251, 65535, 65536, 16777215, 16777216, 1 << 40}
	for _, v := range values {
		enc := encodeLenEncInt(v)
		got, newPos, isNull, ok := getLenEncInt(enc, 0)
		if !ok || isNull {
			t.Fatalf("getLenEncInt(%x) = ok:%v isNull:%v, want ok:true isNull:false", enc, ok, isNull)
		}
		if got != v {
			t.Errorf("round trip of %d got %d", v, got)
		}
		if newPos != len(enc) {
			t.Errorf("newPos = %d, want %d", newPos, len(enc))
		}
	}
}

func TestLenEncIntNullMarker(t *testing.T) {
	_, _, isNull, ok := getLenEncInt([]byte{0xfb}, 0)
	if !ok || !isNull {
		t.Fatalf("0xfb should decode as NULL, got ok:%v isNull:%v", ok, isNull)
	}
}

func TestLenEncIntSizeMatchesEncoding(t *testing.T) {
	values := []uint64{0, 250, 251, 65535, 65536, 16777215, 16777216}
	for _, v := range values {
		if got, want := lenEncIntSize(v), len(encodeLenEncInt(v)); got != want {
			t.Errorf("lenEncIntSize(%d) = %d, want %d", v, got, want)
		}
	}
}

func TestLenEncStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	putLenEncString(&buf, "hello")
	s, newPos, isNull, ok := getLenEncString(buf.Bytes(), 0)
	if !ok || isNull {
		t.Fatalf("getLenEncString ok:%v isNull:%v", ok, isNull)
	}
	if s != "hello" {
		t.Errorf("got %q, want %q", s, "hello")
	}
	if newPos != buf.Len() {
		t.Errorf("newPos = %d, want %d", newPos, buf.Len())
	}
}
