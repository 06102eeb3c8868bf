package mysql

import (
	"context"
	"sync/atomic"
	"time"
)

// COM_* command bytes (§4.4 operation table).
const (
	comQuit           byte = 0x01
	comInitDB         byte = 0x02
	comQuery          byte = 0x03
	comFieldList      byte = 0x04
	comStatistics     byte = 0x09
	comPing           byte = 0x0e
	comChangeUser     byte = 0x11
	comStmtPrepare    byte = 0x16
	comStmtExecute    byte = 0x17
	comStmtClose      byte = 0x19
	comStmtReset      byte = 0x1a
	comSetOption      byte = 0x1b
	comStmtFetch      byte = 0x1c
	comResetConnection byte = 0x1f
)

// Session is the owned, stateful pairing of a transport with a server
// (§3). It is not internally synchronized beyond the exclusive command
// lock: higher layers (pool, statement subsystem) are expected to hold
// one Session per goroutine at a time regardless.
type Session struct {
	t          *transport
	caps       Capability
	greeting   *greeting
	options    Options
	authPlugin string
	authData   []byte

	lock chan struct{} // 1-buffered channel used as a non-blocking try-lock

	serverVars map[string]string
	schema     string
	autoCommit bool
	closed     atomic.Bool
	poisoned   atomic.Bool

	nextStmtID atomic.Uint32
	stmtsByID  map[uint32]*ServerPreparedStmt

	createdAt time.Time
}

// lockSession acquires the exclusive command lock. A session allows at
// most one command in flight (§8 invariant 5): a second caller does not
// queue, it fails synchronously with ProtocolError.
func (s *Session) lockSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.lock <- struct{}{}:
		return nil
	default:
		return NewProtocolError("a command is already in flight on this session")
	}
}

func (s *Session) unlockSession() {
	select {
	case <-s.lock:
	default:
	}
}

// beginCommand resets the sequence id and writes the command packet. It
// must be called while holding the session lock.
func (s *Session) beginCommand(payload []byte) error {
	if s.closed.Load() {
		return NewProtocolError("session is closed")
	}
	if s.poisoned.Load() {
		return NewProtocolError("session is poisoned by a previous protocol violation")
	}
	s.t.resetSequenceID()
	if err := s.t.writePacket(payload); err != nil {
		s.poison()
		return err
	}
	return nil
}

func (s *Session) poison() {
	s.poisoned.Store(true)
}

// IsPoisoned reports whether an uncaught mid-stream failure has made this
// session unsafe to reuse; the pool evicts poisoned sessions on release.
func (s *Session) IsPoisoned() bool { return s.poisoned.Load() }

func (s *Session) IsClosed() bool { return s.closed.Load() }

func (s *Session) Capabilities() Capability { return s.caps }
func (s *Session) ThreadID() uint32          { return s.greeting.connectionID }
func (s *Session) AuthPlugin() string        { return s.authPlugin }
func (s *Session) CurrentSchema() string     { return s.schema }
func (s *Session) AutoCommit() bool          { return s.autoCommit }

// ServerVariable returns a session variable value learned from session
// tracking blocks or an explicit probe, and whether it is known.
func (s *Session) ServerVariable(name string) (string, bool) {
	v, ok := s.serverVars[name]
	return v, ok
}

// Statement dispatches COM_QUERY and collects the reply into a
// Materialized or empty result (§4.5.1, operation table "statement").
func (s *Session) Statement(ctx context.Context, sql string) (*MaterializedResultSet, uint64, uint64, error) {
	ctx, span := s.startSpan(ctx, "query", sql)
	start := time.Now()
	var err error
	defer func() {
		endSpan(span, err)
		if s.options.OnStatement != nil {
			s.options.OnStatement("query", time.Since(start), err)
		}
	}()

	if err = s.lockSession(ctx); err != nil {
		return nil, 0, 0, err
	}
	defer s.unlockSession()

	payload := append([]byte{comQuery}, []byte(sql)...)
	if err = s.beginCommand(payload); err != nil {
		return nil, 0, 0, err
	}
	var rs *MaterializedResultSet
	var affected, lastID uint64
	rs, affected, lastID, err = s.readQueryReply(sql)
	return rs, affected, lastID, err
}

func (s *Session) readQueryReply(sql string) (*MaterializedResultSet, uint64, uint64, error) {
	pkt, err := s.t.readPacket()
	if err != nil {
		s.poison()
		return nil, 0, 0, err
	}
	if isErrPacket(pkt) {
		code, sqlstate, msg := decodeErrPacket(pkt)
		return nil, 0, 0, NewServerError(code, sqlstate, msg, sql)
	}
	if isOKPacket(pkt, s.caps) {
		ok, err := decodeOKPacket(pkt)
		if err != nil {
			s.poison()
			return nil, 0, 0, err
		}
		return nil, ok.AffectedRows, ok.LastInsertID, nil
	}
	if isLocalInfileRequest(pkt) {
		if err := s.handleLocalInfileRequest(pkt); err != nil {
			return nil, 0, 0, err
		}
		pkt, err = s.t.readPacket()
		if err != nil {
			s.poison()
			return nil, 0, 0, err
		}
		if isErrPacket(pkt) {
			code, sqlstate, msg := decodeErrPacket(pkt)
			return nil, 0, 0, NewServerError(code, sqlstate, msg, sql)
		}
		if isOKPacket(pkt, s.caps) {
			ok, err := decodeOKPacket(pkt)
			if err != nil {
				s.poison()
				return nil, 0, 0, err
			}
			return nil, ok.AffectedRows, ok.LastInsertID, nil
		}
		return nil, 0, 0, NewProtocolError("unexpected reply after LOCAL INFILE")
	}
	colCount, _, _, ok := getLenEncInt(pkt, 0)
	if !ok {
		s.poison()
		return nil, 0, 0, NewProtocolError("unexpected result-set header")
	}
	rs, err := s.readMaterializedResultSet(int(colCount), false)
	if err != nil {
		return nil, 0, 0, err
	}
	return rs, 0, 0, nil
}

// readMaterializedResultSet executes the result-set reply loop (§4.4): N
// column definitions, an optional EOF, then rows until EOF/OK, binary
// when binaryProtocol is set. A CLIENT_MULTI_STATEMENTS reply or a
// CALL with multiple result sets can leave further result sets on the
// wire; those are fully drained so the session stays in sync, and the
// returned set's MoreResults flag records that they were discarded.
func (s *Session) readMaterializedResultSet(colCount int, binaryProtocol bool) (*MaterializedResultSet, error) {
	cols, err := s.readColumnDefinitions(colCount)
	if err != nil {
		return nil, err
	}

	rows, status, err := s.readRows(cols, binaryProtocol)
	if err != nil {
		return nil, err
	}
	rs := newMaterializedResultSet(cols, rows)
	if status&statusMoreResultsExist != 0 {
		if err := s.discardFurtherResults(); err != nil {
			return nil, err
		}
		rs.moreResults = true
	}
	return rs, nil
}

// readColumnDefinitions reads a result set's N column definitions and,
// absent CLIENT_DEPRECATE_EOF, the EOF packet that follows them.
func (s *Session) readColumnDefinitions(colCount int) ([]Column, error) {
	cols := make([]Column, 0, colCount)
	for i := 0; i < colCount; i++ {
		pkt, err := s.t.readPacket()
		if err != nil {
			s.poison()
			return nil, err
		}
		col, err := decodeColumnDefinition41(pkt)
		if err != nil {
			s.poison()
			return nil, err
		}
		cols = append(cols, col)
	}
	if !s.caps.Has(ClientDeprecateEOF) {
		if _, err := s.t.readPacket(); err != nil {
			s.poison()
			return nil, err
		}
	}
	return cols, nil
}

// readRows reads data rows until a terminal EOF/OK packet, given that
// column definitions (and any EOF following them) have already been
// consumed by the caller. It returns the status flags carried by that
// terminal packet so the caller can tell whether SERVER_MORE_RESULTS_EXIST
// was set.
func (s *Session) readRows(cols []Column, binaryProtocol bool) ([]Row, uint16, error) {
	var rows []Row
	for {
		pkt, err := s.t.readPacket()
		if err != nil {
			s.poison()
			return nil, 0, err
		}
		if isErrPacket(pkt) {
			code, sqlstate, msg := decodeErrPacket(pkt)
			return nil, 0, NewServerError(code, sqlstate, msg, "")
		}
		if isRowTerminator(pkt) {
			return rows, eofStatusFlags(pkt), nil
		}
		var row Row
		if binaryProtocol {
			row, err = decodeBinaryRow(pkt, cols)
		} else {
			row, err = decodeTextRow(pkt, cols)
		}
		if err != nil {
			s.poison()
			return nil, 0, err
		}
		rows = append(rows, row)
	}
}

// discardFurtherResults consumes every remaining result set signaled by
// SERVER_MORE_RESULTS_EXIST (§4.4): each is either a fresh column-count
// header followed by its own rows, or a terminal OK/ERR for a statement
// with no result set. They must be read off the wire in full before the
// session can safely accept its next command; this package exposes only
// the first result set, so later ones are parsed and dropped.
func (s *Session) discardFurtherResults() error {
	for {
		pkt, err := s.t.readPacket()
		if err != nil {
			s.poison()
			return err
		}
		if isErrPacket(pkt) {
			code, sqlstate, msg := decodeErrPacket(pkt)
			return NewServerError(code, sqlstate, msg, "")
		}

		var status uint16
		if isOKPacket(pkt, s.caps) {
			ok, err := decodeOKPacket(pkt)
			if err != nil {
				s.poison()
				return err
			}
			status = ok.StatusFlags
		} else {
			colCount, _, _, ok := getLenEncInt(pkt, 0)
			if !ok {
				s.poison()
				return NewProtocolError("unexpected result-set header")
			}
			cols, err := s.readColumnDefinitions(int(colCount))
			if err != nil {
				return err
			}
			if _, status, err = s.readRows(cols, false); err != nil {
				return err
			}
		}
		if status&statusMoreResultsExist == 0 {
			return nil
		}
	}
}

// Ping sends COM_PING, used by the pool's validation and keepalive logic.
func (s *Session) Ping(ctx context.Context) error {
	if err := s.lockSession(ctx); err != nil {
		return err
	}
	defer s.unlockSession()
	if err := s.beginCommand([]byte{comPing}); err != nil {
		return err
	}
	return s.expectOK()
}

func (s *Session) expectOK() error {
	pkt, err := s.t.readPacket()
	if err != nil {
		s.poison()
		return err
	}
	if isErrPacket(pkt) {
		code, sqlstate, msg := decodeErrPacket(pkt)
		return NewServerError(code, sqlstate, msg, "")
	}
	if !isOKPacket(pkt, s.caps) {
		s.poison()
		return NewProtocolError("expected OK packet")
	}
	return nil
}

func (s *Session) expectEOF() error {
	pkt, err := s.t.readPacket()
	if err != nil {
		s.poison()
		return err
	}
	if isErrPacket(pkt) {
		code, sqlstate, msg := decodeErrPacket(pkt)
		return NewServerError(code, sqlstate, msg, "")
	}
	return nil
}

// InitDB sends COM_INIT_DB to switch the default schema.
func (s *Session) InitDB(ctx context.Context, schema string) error {
	if err := s.lockSession(ctx); err != nil {
		return err
	}
	defer s.unlockSession()
	payload := append([]byte{comInitDB}, []byte(schema)...)
	if err := s.beginCommand(payload); err != nil {
		return err
	}
	if err := s.expectOK(); err != nil {
		return err
	}
	s.schema = schema
	return nil
}

// SetOption sends COM_SET_OPTION (e.g. to toggle CLIENT_MULTI_STATEMENTS).
func (s *Session) SetOption(ctx context.Context, option uint16) error {
	if err := s.lockSession(ctx); err != nil {
		return err
	}
	defer s.unlockSession()
	payload := []byte{comSetOption, byte(option), byte(option >> 8)}
	if err := s.beginCommand(payload); err != nil {
		return err
	}
	return s.expectEOF()
}

// GetStatistics sends COM_STATISTICS, returning the server's free-form
// status string.
func (s *Session) GetStatistics(ctx context.Context) (string, error) {
	if err := s.lockSession(ctx); err != nil {
		return "", err
	}
	defer s.unlockSession()
	if err := s.beginCommand([]byte{comStatistics}); err != nil {
		return "", err
	}
	pkt, err := s.t.readPacket()
	if err != nil {
		s.poison()
		return "", err
	}
	return string(pkt), nil
}

// ResetConnection sends COM_RESET_CONNECTION, resetting session state
// (prepared statements, variables, transaction) while keeping the TCP
// connection and authentication.
func (s *Session) ResetConnection(ctx context.Context) error {
	if err := s.lockSession(ctx); err != nil {
		return err
	}
	defer s.unlockSession()
	if err := s.beginCommand([]byte{comResetConnection}); err != nil {
		return err
	}
	if err := s.expectOK(); err != nil {
		return err
	}
	s.stmtsByID = map[uint32]*ServerPreparedStmt{}
	s.serverVars = map[string]string{}
	return nil
}

// ChangeUser sends COM_CHANGE_USER and re-enters the authentication
// state machine under the new credentials.
func (s *Session) ChangeUser(ctx context.Context, user, password, schema string) error {
	if err := s.lockSession(ctx); err != nil {
		return err
	}
	defer s.unlockSession()

	seed := s.authData
	authResp := initialAuthResponse(s.authPlugin, password, seed, false)

	var buf []byte
	buf = append(buf, comChangeUser)
	buf = append(buf, []byte(user)...)
	buf = append(buf, 0)
	buf = append(buf, byte(len(authResp)))
	buf = append(buf, authResp...)
	buf = append(buf, []byte(schema)...)
	buf = append(buf, 0)
	buf = append(buf, 0, 0) // charset (unchanged)
	buf = append(buf, []byte(s.authPlugin)...)
	buf = append(buf, 0)

	if err := s.beginCommand(buf); err != nil {
		return err
	}
	changeOpts := s.options
	changeOpts.Password = password
	as := &authState{t: s.t, opts: changeOpts, tlsActive: false, plugin: s.authPlugin, seed: seed}
	if _, err := as.run(); err != nil {
		return err
	}
	s.schema = schema
	s.stmtsByID = map[uint32]*ServerPreparedStmt{}
	return nil
}

// Quit sends COM_QUIT and tears down the transport; no reply is expected.
func (s *Session) Quit(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.lockSession(ctx); err == nil {
		s.t.resetSequenceID()
		_ = s.t.writePacket([]byte{comQuit})
		s.unlockSession()
	}
	return s.t.Close()
}

// Close is an alias for Quit with a background context, satisfying
// io.Closer for callers that don't need cancellation.
func (s *Session) Close() error {
	return s.Quit(context.Background())
}
