package mysql

import (
	"bytes"
	"net"
	"testing"
)

// BenchmarkDecodeTextRow measures the text-protocol row decode hot path
// (every COM_QUERY result row passes through this).
func BenchmarkDecodeTextRow(b *testing.B) {
	cols := []Column{
		{Name: "id", Type: TypeLong},
		{Name: "name", Type: TypeVarString},
		{Name: "created_at", Type: TypeDateTime},
	}
	pkt := buildFakeTextRow("42", "alice", "2024-01-02 03:04:05")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := decodeTextRow(pkt, cols); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDecodeBinaryRow measures the binary-protocol row decode hot
// path (every COM_STMT_EXECUTE/COM_STMT_FETCH result row passes through
// this).
func BenchmarkDecodeBinaryRow(b *testing.B) {
	cols := []Column{{Name: "n", Type: TypeLong}}
	pkt := buildFakeBinaryRowSingleLong(42)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := decodeBinaryRow(pkt, cols); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkLenEncIntRoundTrip measures the length-encoded integer codec
// used on nearly every decoded field.
func BenchmarkLenEncIntRoundTrip(b *testing.B) {
	values := []uint64{0, 250, 65535, 16777215, 1 << 40}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v := values[i%len(values)]
		enc := encodeLenEncInt(v)
		if _, _, _, ok := getLenEncInt(enc, 0); !ok {
			b.Fatal("decode failed")
		}
	}
}

// BenchmarkPacketRoundTrip measures transport framing overhead end to end
// over a net.Pipe, chunking included.
func BenchmarkPacketRoundTrip(b *testing.B) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := newTransport(client, 0, 16<<20)
	st := newTransport(server, 0, 16<<20)

	payload := bytes.Repeat([]byte("x"), 512)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < b.N; i++ {
			if _, err := st.readPacket(); err != nil {
				return
			}
			if err := st.writePacket(payload); err != nil {
				return
			}
		}
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := ct.writePacket(payload); err != nil {
			b.Fatal(err)
		}
		if _, err := ct.readPacket(); err != nil {
			b.Fatal(err)
		}
	}
	<-done
}
