package pool

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mysqlwire/mysqlwire/mysql"
)

// buildBenchGreeting and buildBenchOK construct just enough of the
// handshake for mysql.Connect to complete against an in-process fake
// server; the pool benchmarks below care about Acquire/Release overhead,
// not protocol coverage, so the fake server accepts whatever the client
// sends and never validates it.
func buildBenchGreeting(caps mysql.Capability) []byte {
	var buf bytes.Buffer
	buf.WriteByte(10)
	buf.WriteString("8.0.31-fake")
	buf.WriteByte(0)
	buf.Write([]byte{1, 0, 0, 0}) // connection id
	seed := []byte("0123456789abcdefghij")
	buf.Write(seed[:8])
	buf.WriteByte(0)
	buf.Write([]byte{byte(caps), byte(caps >> 8)})
	buf.WriteByte(0x2d)
	buf.Write([]byte{0x02, 0x00}) // SERVER_STATUS_AUTOCOMMIT
	buf.Write([]byte{byte(caps >> 16), byte(caps >> 24)})
	buf.WriteByte(byte(len(seed) + 1))
	buf.Write(make([]byte, 10))
	part2 := make([]byte, 13)
	copy(part2, seed[8:])
	buf.Write(part2)
	buf.WriteString("mysql_native_password")
	buf.WriteByte(0)
	return buf.Bytes()
}

func buildBenchOK() []byte {
	return []byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}
}

func writeBenchPacket(conn net.Conn, seq byte, payload []byte) error {
	hdr := []byte{byte(len(payload)), byte(len(payload) >> 8), byte(len(payload) >> 16), seq}
	if _, err := conn.Write(hdr); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

func readBenchPacket(conn net.Conn) ([]byte, byte, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return nil, 0, err
	}
	length := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(conn, payload); err != nil {
			return nil, 0, err
		}
	}
	return payload, hdr[3], nil
}

// newBenchSession dials a real mysql.Session against a throwaway
// in-process listener so pool benchmarks exercise genuine Close/Quit
// paths at teardown instead of a zero-value stand-in.
func newBenchSession(b *testing.B) *mysql.Session {
	b.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		b.Fatalf("listen: %v", err)
	}

	go func() {
		conn, err := ln.Accept()
		ln.Close()
		if err != nil {
			return
		}
		defer conn.Close()

		if writeBenchPacket(conn, 0, buildBenchGreeting(mysql.DefaultCapabilities())) != nil {
			return
		}
		if _, _, err := readBenchPacket(conn); err != nil {
			return
		}
		if writeBenchPacket(conn, 2, buildBenchOK()) != nil {
			return
		}
		// Drain and discard everything past auth (COM_QUIT on teardown, any
		// validation probe) so the client side never blocks on a write.
		_, _ = io.Copy(io.Discard, conn)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sess, err := mysql.Connect(ctx, mysql.Options{
		Host:        "127.0.0.1",
		Port:        addr.Port,
		User:        "bench",
		Password:    "bench",
		DialTimeout: 2 * time.Second,
	})
	if err != nil {
		b.Fatalf("Connect: %v", err)
	}
	return sess
}

// newBenchPool builds a Pool already full of n Idle entries, bypassing
// the filler loop's dialer entirely; AliveBypassWindow is set high enough
// that Acquire's validate step never round-trips a Ping against the fake
// sessions.
func newBenchPool(b *testing.B, n int) *Pool {
	b.Helper()
	p := New(Options{
		Name:              "bench",
		MaxConnections:    n,
		AliveBypassWindow: time.Hour,
		Dial: func(ctx context.Context) (*mysql.Session, error) {
			return nil, mysql.NewProtocolError("dial disabled in benchmark pool")
		},
	})
	for i := 0; i < n; i++ {
		p.bag.add(newEntry(newBenchSession(b)))
	}
	b.Cleanup(p.Close)
	return p
}

// BenchmarkAcquireRelease measures one Acquire+Release round trip against
// a warm pool, the dominant cost path for every checked-out query.
func BenchmarkAcquireRelease(b *testing.B) {
	p := newBenchPool(b, 8)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		loan, err := p.Acquire(ctx)
		if err != nil {
			b.Fatal(err)
		}
		if err := loan.Release(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkAcquireReleaseParallel measures Acquire/Release under
// concurrent load from multiple goroutines sharing one pool.
func BenchmarkAcquireReleaseParallel(b *testing.B) {
	p := newBenchPool(b, 32)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			loan, err := p.Acquire(ctx)
			if err != nil {
				b.Fatal(err)
			}
			if err := loan.Release(ctx); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkAcquireContended measures Acquire/Release when every entry is
// held briefly, forcing most acquirers through the handoff queue instead
// of the shared-list scan.
func BenchmarkAcquireContended(b *testing.B) {
	p := newBenchPool(b, 4)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			loan, err := p.Acquire(ctx)
			if err != nil {
				b.Fatal(err)
			}
			time.Sleep(time.Microsecond)
			if err := loan.Release(ctx); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkPoolStats measures Stats() overhead, which is polled on every
// maintenance-log tick and available to callers for health checks.
func BenchmarkPoolStats(b *testing.B) {
	p := newBenchPool(b, 16)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.Stats()
	}
}

// BenchmarkConcurrentAcquireReleaseThroughput drives a fixed worker pool
// of goroutines against a shared Pool to measure aggregate throughput
// rather than single-caller latency.
func BenchmarkConcurrentAcquireReleaseThroughput(b *testing.B) {
	p := newBenchPool(b, 16)
	ctx := context.Background()

	const workers = 32
	work := make(chan struct{}, workers)
	var wg sync.WaitGroup

	b.ResetTimer()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range work {
				loan, err := p.Acquire(ctx)
				if err != nil {
					b.Error(err)
					return
				}
				if err := loan.Release(ctx); err != nil {
					b.Error(err)
					return
				}
			}
		}()
	}
	for i := 0; i < b.N; i++ {
		work <- struct{}{}
	}
	close(work)
	wg.Wait()
}
