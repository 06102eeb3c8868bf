package mysql

import (
	"bytes"
	"context"
	"math"
	"time"
)

// cursor type flags for COM_STMT_EXECUTE (§4.5.3).
const (
	cursorTypeNoCursor byte = 0x00
	cursorTypeReadOnly byte = 0x01
)

// DefaultFetchSize is the COM_STMT_FETCH batch size Execute uses when a
// cursor is opened with a fetchSize of 0.
const DefaultFetchSize uint32 = 64

// ServerPreparedStmt is a server-side prepared statement handle (§3
// Prepared statement handle, §4.5.3).
type ServerPreparedStmt struct {
	session     *Session
	id          uint32
	paramCount  uint16
	columnCount uint16
	paramDefs   []Column
	columnDefs  []Column
	sql         string
	cursorOpen  bool
}

// Prepare sends COM_STMT_PREPARE and caches the handle and its parameter
// and column definitions.
func (s *Session) Prepare(ctx context.Context, sql string) (*ServerPreparedStmt, error) {
	ctx, span := s.startSpan(ctx, "prepare", sql)
	stmt, err := s.prepareLocked(ctx, sql)
	endSpan(span, err)
	return stmt, err
}

func (s *Session) prepareLocked(ctx context.Context, sql string) (*ServerPreparedStmt, error) {
	if err := s.lockSession(ctx); err != nil {
		return nil, err
	}
	defer s.unlockSession()

	payload := append([]byte{comStmtPrepare}, []byte(sql)...)
	if err := s.beginCommand(payload); err != nil {
		return nil, err
	}

	pkt, err := s.t.readPacket()
	if err != nil {
		s.poison()
		return nil, err
	}
	if isErrPacket(pkt) {
		code, sqlstate, msg := decodeErrPacket(pkt)
		return nil, NewServerError(code, sqlstate, msg, sql)
	}
	if len(pkt) < 9 {
		s.poison()
		return nil, NewProtocolError("malformed COM_STMT_PREPARE_OK")
	}
	stmt := &ServerPreparedStmt{
		session: s,
		id:      le32(pkt[1:5]),
		columnCount: le16(pkt[5:7]),
		paramCount:  le16(pkt[7:9]),
		sql:     sql,
	}

	for i := 0; i < int(stmt.paramCount); i++ {
		colPkt, err := s.t.readPacket()
		if err != nil {
			s.poison()
			return nil, err
		}
		col, err := decodeColumnDefinition41(colPkt)
		if err != nil {
			s.poison()
			return nil, err
		}
		stmt.paramDefs = append(stmt.paramDefs, col)
	}
	if stmt.paramCount > 0 && !s.caps.Has(ClientDeprecateEOF) {
		if _, err := s.t.readPacket(); err != nil {
			s.poison()
			return nil, err
		}
	}

	for i := 0; i < int(stmt.columnCount); i++ {
		colPkt, err := s.t.readPacket()
		if err != nil {
			s.poison()
			return nil, err
		}
		col, err := decodeColumnDefinition41(colPkt)
		if err != nil {
			s.poison()
			return nil, err
		}
		stmt.columnDefs = append(stmt.columnDefs, col)
	}
	if stmt.columnCount > 0 && !s.caps.Has(ClientDeprecateEOF) {
		if _, err := s.t.readPacket(); err != nil {
			s.poison()
			return nil, err
		}
	}

	s.stmtsByID[stmt.id] = stmt
	return stmt, nil
}

func (p *ServerPreparedStmt) ParamCount() int   { return int(p.paramCount) }
func (p *ServerPreparedStmt) ColumnDefs() []Column { return p.columnDefs }

// ExecResult carries whichever shape a statement execution produced.
type ExecResult struct {
	Materialized *MaterializedResultSet
	Streaming    *StreamingResultSet
	AffectedRows uint64
	LastInsertID uint64
}

// Execute encodes params using the binary protocol and sends
// COM_STMT_EXECUTE. When useCursorFetch is set and the statement yields
// columns, the cursor-open flag is set and a StreamingResultSet is
// returned instead of buffering all rows (§4.5.3).
func (p *ServerPreparedStmt) Execute(ctx context.Context, params []any, useCursorFetch bool, fetchSize uint32) (*ExecResult, error) {
	s := p.session
	start := time.Now()
	ctx, span := s.startSpan(ctx, "execute", p.sql)
	res, err := p.executeLocked(ctx, params, useCursorFetch, fetchSize)
	endSpan(span, err)
	if s.options.OnStatement != nil {
		s.options.OnStatement("execute", time.Since(start), err)
	}
	return res, err
}

func (p *ServerPreparedStmt) executeLocked(ctx context.Context, params []any, useCursorFetch bool, fetchSize uint32) (*ExecResult, error) {
	if len(params) != int(p.paramCount) {
		return nil, NewProtocolError("parameter count mismatch: got %d want %d", len(params), p.paramCount)
	}
	s := p.session
	if err := s.lockSession(ctx); err != nil {
		return nil, err
	}
	defer s.unlockSession()

	cursorFlag := cursorTypeNoCursor
	wantCursor := useCursorFetch && p.columnCount > 0
	if wantCursor {
		cursorFlag = cursorTypeReadOnly
	}

	payload, err := buildExecutePacket(p.id, cursorFlag, params)
	if err != nil {
		return nil, err
	}
	if err := s.beginCommand(payload); err != nil {
		return nil, err
	}

	pkt, err := s.t.readPacket()
	if err != nil {
		s.poison()
		return nil, err
	}
	if isErrPacket(pkt) {
		code, sqlstate, msg := decodeErrPacket(pkt)
		return nil, NewServerError(code, sqlstate, msg, p.sql)
	}
	if isOKPacket(pkt, s.caps) {
		ok, err := decodeOKPacket(pkt)
		if err != nil {
			s.poison()
			return nil, err
		}
		return &ExecResult{AffectedRows: ok.AffectedRows, LastInsertID: ok.LastInsertID}, nil
	}

	colCount, _, _, ok := getLenEncInt(pkt, 0)
	if !ok {
		s.poison()
		return nil, NewProtocolError("unexpected COM_STMT_EXECUTE reply header")
	}

	cols := make([]Column, 0, colCount)
	for i := 0; i < int(colCount); i++ {
		colPkt, err := s.t.readPacket()
		if err != nil {
			s.poison()
			return nil, err
		}
		col, err := decodeColumnDefinition41(colPkt)
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
	p.columnDefs = cols

	if wantCursor {
		p.cursorOpen = true
		if fetchSize == 0 {
			fetchSize = DefaultFetchSize
		}
		return &ExecResult{Streaming: newStreamingResultSet(p, cols, fetchSize)}, nil
	}

	rows, status, err := s.readRows(cols, true)
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
	return &ExecResult{Materialized: rs}, nil
}

// fetch sends COM_STMT_FETCH for n rows, returning the decoded rows and
// whether the server returned fewer than n (signaling exhaustion).
func (p *ServerPreparedStmt) fetch(ctx context.Context, n uint32) ([]Row, bool, error) {
	s := p.session
	ctx, span := s.startSpan(ctx, "fetch", "")
	rows, exhausted, err := p.fetchLocked(ctx, n)
	endSpan(span, err)
	return rows, exhausted, err
}

func (p *ServerPreparedStmt) fetchLocked(ctx context.Context, n uint32) ([]Row, bool, error) {
	s := p.session
	if err := s.lockSession(ctx); err != nil {
		return nil, false, err
	}
	defer s.unlockSession()

	var buf bytes.Buffer
	buf.WriteByte(comStmtFetch)
	putLE32(&buf, p.id)
	putLE32(&buf, n)
	if err := s.beginCommand(buf.Bytes()); err != nil {
		return nil, false, err
	}

	var rows []Row
	for {
		pkt, err := s.t.readPacket()
		if err != nil {
			s.poison()
			return nil, false, err
		}
		if isErrPacket(pkt) {
			code, sqlstate, msg := decodeErrPacket(pkt)
			return nil, false, NewServerError(code, sqlstate, msg, p.sql)
		}
		if isRowTerminator(pkt) {
			break
		}
		row, err := decodeBinaryRow(pkt, p.columnDefs)
		if err != nil {
			s.poison()
			return nil, false, err
		}
		rows = append(rows, row)
	}
	return rows, uint32(len(rows)) < n, nil
}

// closeCursor sends COM_STMT_CLOSE; no reply is expected (§4.4).
func (p *ServerPreparedStmt) closeCursor(ctx context.Context) error {
	if !p.cursorOpen {
		return nil
	}
	p.cursorOpen = false
	return p.Close(ctx)
}

// Close sends COM_STMT_CLOSE and releases the handle.
func (p *ServerPreparedStmt) Close(ctx context.Context) error {
	s := p.session
	ctx, span := s.startSpan(ctx, "stmt_close", "")
	err := p.closeLocked(ctx)
	endSpan(span, err)
	return err
}

func (p *ServerPreparedStmt) closeLocked(ctx context.Context) error {
	s := p.session
	if err := s.lockSession(ctx); err != nil {
		return err
	}
	defer s.unlockSession()
	var buf bytes.Buffer
	buf.WriteByte(comStmtClose)
	putLE32(&buf, p.id)
	if err := s.beginCommand(buf.Bytes()); err != nil {
		return err
	}
	delete(s.stmtsByID, p.id)
	return nil
}

// buildExecutePacket encodes COM_STMT_EXECUTE: stmt id, cursor flags,
// iteration count (always 1), a NULL bitmap, a new-params-bound flag, the
// parameter type tags, and the parameter values themselves.
func buildExecutePacket(stmtID uint32, cursorFlags byte, params []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(comStmtExecute)
	putLE32(&buf, stmtID)
	buf.WriteByte(cursorFlags)
	putLE32(&buf, 1) // iteration count

	if len(params) > 0 {
		nullBitmap := make([]byte, (len(params)+7)/8)
		for i, v := range params {
			if v == nil {
				nullBitmap[i/8] |= 1 << uint(i%8)
			}
		}
		buf.Write(nullBitmap)
		buf.WriteByte(1) // new-params-bound-flag

		var typesBuf, valuesBuf bytes.Buffer
		for _, v := range params {
			typeCode, unsigned, encoded, err := encodeBinaryParam(v)
			if err != nil {
				return nil, err
			}
			typesBuf.WriteByte(byte(typeCode))
			flag := byte(0)
			if unsigned {
				flag = 0x80
			}
			typesBuf.WriteByte(flag)
			valuesBuf.Write(encoded)
		}
		buf.Write(typesBuf.Bytes())
		buf.Write(valuesBuf.Bytes())
	}
	return buf.Bytes(), nil
}

func encodeBinaryParam(v any) (ColumnType, bool, []byte, error) {
	if v == nil {
		return TypeNull, false, nil, nil
	}
	var buf bytes.Buffer
	switch t := v.(type) {
	case bool:
		if t {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return TypeTiny, false, buf.Bytes(), nil
	case int8:
		buf.WriteByte(byte(t))
		return TypeTiny, false, buf.Bytes(), nil
	case uint8:
		buf.WriteByte(t)
		return TypeTiny, true, buf.Bytes(), nil
	case int16:
		putLE16(&buf, uint16(t))
		return TypeShort, false, buf.Bytes(), nil
	case uint16:
		putLE16(&buf, t)
		return TypeShort, true, buf.Bytes(), nil
	case int32:
		putLE32(&buf, uint32(t))
		return TypeLong, false, buf.Bytes(), nil
	case uint32:
		putLE32(&buf, t)
		return TypeLong, true, buf.Bytes(), nil
	case int:
		putLE64(&buf, uint64(int64(t)))
		return TypeLongLong, false, buf.Bytes(), nil
	case int64:
		putLE64(&buf, uint64(t))
		return TypeLongLong, false, buf.Bytes(), nil
	case uint64:
		putLE64(&buf, t)
		return TypeLongLong, true, buf.Bytes(), nil
	case float32:
		putLE32(&buf, math.Float32bits(t))
		return TypeFloat, false, buf.Bytes(), nil
	case float64:
		putLE64(&buf, math.Float64bits(t))
		return TypeDouble, false, buf.Bytes(), nil
	case string:
		putLenEncString(&buf, t)
		return TypeVarString, false, buf.Bytes(), nil
	case []byte:
		putLenEncBytes(&buf, t)
		return TypeBlob, false, buf.Bytes(), nil
	default:
		return 0, false, nil, NewProtocolError("unsupported parameter type %T", v)
	}
}
