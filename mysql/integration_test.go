package mysql

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"
)

// fakeConn speaks just enough of the wire framing to drive a real Session
// through handshake, authentication, and a command round trip: a running
// sequence id that advances off whatever it last received, mirroring what
// transport does on the other end of the pipe.
type fakeConn struct {
	conn net.Conn
	seq  byte
}

func (f *fakeConn) recv() ([]byte, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(f.conn, hdr); err != nil {
		return nil, err
	}
	length := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
	f.seq = hdr[3] + 1
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(f.conn, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func (f *fakeConn) send(payload []byte) error {
	hdr := []byte{byte(len(payload)), byte(len(payload) >> 8), byte(len(payload) >> 16), f.seq}
	f.seq++
	if _, err := f.conn.Write(hdr); err != nil {
		return err
	}
	_, err := f.conn.Write(payload)
	return err
}

func buildFakeGreeting(connID uint32, authData []byte, plugin string, caps Capability) []byte {
	var buf bytes.Buffer
	buf.WriteByte(10)
	putNULString(&buf, "8.0.31-fake")
	putLE32(&buf, connID)
	buf.Write(authData[:8])
	buf.WriteByte(0)
	putLE16(&buf, uint16(caps))
	buf.WriteByte(0x2d)
	putLE16(&buf, statusAutocommit)
	putLE16(&buf, uint16(caps>>16))
	buf.WriteByte(byte(len(authData) + 1))
	buf.Write(make([]byte, 10))
	part2 := make([]byte, 13)
	copy(part2, authData[8:])
	buf.Write(part2)
	putNULString(&buf, plugin)
	return buf.Bytes()
}

func buildFakeOK(status uint16) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0x00)
	putLenEncInt(&buf, 0)
	putLenEncInt(&buf, 0)
	putLE16(&buf, status)
	putLE16(&buf, 0)
	return buf.Bytes()
}

// buildFakeRowsEnd builds the 0xfe-led OK packet that ends a row stream
// under CLIENT_DEPRECATE_EOF.
func buildFakeRowsEnd(status uint16) []byte {
	pkt := buildFakeOK(status)
	pkt[0] = 0xfe
	return pkt
}

func buildFakeAuthSwitch(plugin string, seed []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0xfe)
	putNULString(&buf, plugin)
	buf.Write(seed)
	return buf.Bytes()
}

func buildFakeColumnDef(name string, typ ColumnType, flags uint16) []byte {
	var buf bytes.Buffer
	putLenEncString(&buf, "def")
	putLenEncString(&buf, "")
	putLenEncString(&buf, "")
	putLenEncString(&buf, "")
	putLenEncString(&buf, name)
	putLenEncString(&buf, "")
	putLenEncInt(&buf, 0x0c)
	putLE16(&buf, 33)
	putLE32(&buf, 20)
	buf.WriteByte(byte(typ))
	putLE16(&buf, flags)
	buf.WriteByte(0)
	putLE16(&buf, 0)
	return buf.Bytes()
}

func buildFakeTextRow(values ...string) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		putLenEncString(&buf, v)
	}
	return buf.Bytes()
}

func buildFakeBinaryRowSingleLong(v int32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0x00)
	buf.Write(make([]byte, 1)) // null bitmap, one column: (1+7+2)/8 == 1 byte
	putLE32(&buf, uint32(v))
	return buf.Bytes()
}

func buildFakePrepareOK(stmtID uint32, numCols, numParams uint16) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0x00)
	putLE32(&buf, stmtID)
	putLE16(&buf, numCols)
	putLE16(&buf, numParams)
	buf.WriteByte(0)
	putLE16(&buf, 0)
	return buf.Bytes()
}

func fakeSeed() []byte {
	return []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
}

func listenFake(t *testing.T) (net.Listener, Options) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	addr := ln.Addr().(*net.TCPAddr)
	return ln, Options{
		Host:        "127.0.0.1",
		Port:        addr.Port,
		User:        "tester",
		Password:    "secret",
		DialTimeout: 2 * time.Second,
	}
}

// TestIntegrationHandshakeAndQuery drives a full Connect + Statement round
// trip against an in-process fake server that accepts mysql_native_password
// on the first reply, covering the handshake, auth, and text result set
// decode paths together.
func TestIntegrationHandshakeAndQuery(t *testing.T) {
	ln, opts := listenFake(t)

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		fc := &fakeConn{conn: conn}

		if err := fc.send(buildFakeGreeting(1, fakeSeed(), pluginNativePassword, DefaultCapabilities())); err != nil {
			done <- err
			return
		}
		if _, err := fc.recv(); err != nil {
			done <- err
			return
		}
		if err := fc.send(buildFakeOK(statusAutocommit)); err != nil {
			done <- err
			return
		}

		query, err := fc.recv()
		if err != nil {
			done <- err
			return
		}
		if len(query) == 0 || query[0] != comQuery {
			done <- NewProtocolError("expected COM_QUERY, got %v", query)
			return
		}
		if err := fc.send(encodeLenEncInt(1)); err != nil {
			done <- err
			return
		}
		if err := fc.send(buildFakeColumnDef("n", TypeVarString, 0)); err != nil {
			done <- err
			return
		}
		if err := fc.send(buildFakeTextRow("1")); err != nil {
			done <- err
			return
		}
		done <- fc.send(buildFakeRowsEnd(0))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := Connect(ctx, opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	rs, affected, lastID, err := sess.Statement(ctx, "SELECT 1")
	if err != nil {
		t.Fatalf("Statement: %v", err)
	}
	if affected != 0 || lastID != 0 {
		t.Errorf("affected=%d lastID=%d, want 0, 0", affected, lastID)
	}
	if !rs.Next() {
		t.Fatal("expected one row")
	}
	got, err := rs.GetString(0)
	if err != nil || got != "1" {
		t.Fatalf("GetString(0) = %q, %v, want %q, nil", got, err, "1")
	}
	if rs.Next() {
		t.Fatal("expected exactly one row")
	}
	if rs.MoreResults() {
		t.Fatal("did not expect MoreResults")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("fake server: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fake server did not finish")
	}
}

// TestIntegrationAuthSwitchAndPreparedStatement drives the server through
// an AuthSwitchRequest to caching_sha2_password, a caching_sha2_password
// fast-auth success, and a prepare/execute round trip decoded via the
// binary row protocol.
func TestIntegrationAuthSwitchAndPreparedStatement(t *testing.T) {
	ln, opts := listenFake(t)

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		fc := &fakeConn{conn: conn}

		// Advertise an unsupported plugin so the client falls back to
		// mysql_native_password in the handshake response, then switch it
		// to caching_sha2_password.
		if err := fc.send(buildFakeGreeting(2, fakeSeed(), "mysql_old_password", DefaultCapabilities())); err != nil {
			done <- err
			return
		}
		if _, err := fc.recv(); err != nil {
			done <- err
			return
		}
		if err := fc.send(buildFakeAuthSwitch(pluginCachingSHA2, fakeSeed())); err != nil {
			done <- err
			return
		}
		if _, err := fc.recv(); err != nil {
			done <- err
			return
		}
		if err := fc.send([]byte{0x01, authMoreDataFastAuthSuccess}); err != nil {
			done <- err
			return
		}
		if err := fc.send(buildFakeOK(statusAutocommit)); err != nil {
			done <- err
			return
		}

		prepare, err := fc.recv()
		if err != nil {
			done <- err
			return
		}
		if len(prepare) == 0 || prepare[0] != comStmtPrepare {
			done <- NewProtocolError("expected COM_STMT_PREPARE, got %v", prepare)
			return
		}
		if err := fc.send(buildFakePrepareOK(7, 1, 1)); err != nil {
			done <- err
			return
		}
		if err := fc.send(buildFakeColumnDef("p1", TypeLong, 0)); err != nil {
			done <- err
			return
		}
		if err := fc.send(buildFakeColumnDef("result", TypeLong, 0)); err != nil {
			done <- err
			return
		}

		execute, err := fc.recv()
		if err != nil {
			done <- err
			return
		}
		if len(execute) == 0 || execute[0] != comStmtExecute {
			done <- NewProtocolError("expected COM_STMT_EXECUTE, got %v", execute)
			return
		}
		if err := fc.send(encodeLenEncInt(1)); err != nil {
			done <- err
			return
		}
		if err := fc.send(buildFakeColumnDef("result", TypeLong, 0)); err != nil {
			done <- err
			return
		}
		if err := fc.send(buildFakeBinaryRowSingleLong(42)); err != nil {
			done <- err
			return
		}
		done <- fc.send(buildFakeRowsEnd(0))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := Connect(ctx, opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	stmt, err := sess.Prepare(ctx, "SELECT ?")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if stmt.ParamCount() != 1 {
		t.Fatalf("ParamCount() = %d, want 1", stmt.ParamCount())
	}

	res, err := stmt.Execute(ctx, []any{int32(7)}, false, 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Materialized == nil {
		t.Fatal("expected a materialized result set")
	}
	if !res.Materialized.Next() {
		t.Fatal("expected one row")
	}
	got, err := res.Materialized.GetInt(0)
	if err != nil || got != 42 {
		t.Fatalf("GetInt(0) = %d, %v, want 42, nil", got, err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("fake server: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fake server did not finish")
	}
}
