package mysql

import (
	"context"
	"strings"
)

// ExecuteQuery dispatches COM_QUERY and returns the resulting materialized
// result set, or nil if the statement produced no result set (§4.5.1).
func (s *Session) ExecuteQuery(ctx context.Context, sql string) (*MaterializedResultSet, error) {
	rs, _, _, err := s.Statement(ctx, sql)
	return rs, err
}

// ExecuteUpdate dispatches a non-SELECT statement, returning affected rows
// and, when the statement generated one, the last insert id.
func (s *Session) ExecuteUpdate(ctx context.Context, sql string) (affectedRows, lastInsertID uint64, err error) {
	_, affectedRows, lastInsertID, err = s.Statement(ctx, sql)
	return
}

// ClientPreparedStmt interpolates bound parameters as SQL literals and
// executes the resulting text statement (§4.5.2).
type ClientPreparedStmt struct {
	session *Session
	sql     string
	mode    QuoteMode
	batch   [][]any
}

// NewClientPreparedStmt counts `?` placeholders (outside quotes/comments)
// only at execute time, matching the donor's lazy-validation approach; sql
// is retained verbatim.
func (s *Session) NewClientPreparedStmt(sql string) *ClientPreparedStmt {
	return &ClientPreparedStmt{session: s, sql: sql, mode: QuoteBackslash}
}

// SetQuoteMode switches to ANSI-only quoting, used when the server's
// sql_mode contains NO_BACKSLASH_ESCAPES.
func (c *ClientPreparedStmt) SetQuoteMode(mode QuoteMode) { c.mode = mode }

func (c *ClientPreparedStmt) render(params []any) (string, error) {
	return substitutePlaceholders(c.sql, params, c.mode)
}

func (c *ClientPreparedStmt) ExecuteQuery(ctx context.Context, params []any) (*MaterializedResultSet, error) {
	rendered, err := c.render(params)
	if err != nil {
		return nil, err
	}
	return c.session.ExecuteQuery(ctx, rendered)
}

func (c *ClientPreparedStmt) ExecuteUpdate(ctx context.Context, params []any) (affectedRows, lastInsertID uint64, err error) {
	rendered, err := c.render(params)
	if err != nil {
		return 0, 0, err
	}
	return c.session.ExecuteUpdate(ctx, rendered)
}

// AddBatch accumulates a parameter-bound statement for later ExecuteBatch
// (§4.5.5).
func (c *ClientPreparedStmt) AddBatch(params []any) {
	c.batch = append(c.batch, params)
}

// ExecuteBatch renders every accumulated parameter set, joins them with
// `;` (requires multi-statements enabled via SetOption), and collects
// per-statement affected-row counts from the chain of OK packets. On
// mid-batch failure it raises BatchUpdateError carrying the counts for
// the successfully executed prefix.
func (c *ClientPreparedStmt) ExecuteBatch(ctx context.Context) ([]int64, error) {
	if len(c.batch) == 0 {
		return nil, nil
	}
	rendered := make([]string, 0, len(c.batch))
	for _, params := range c.batch {
		r, err := c.render(params)
		if err != nil {
			return nil, err
		}
		rendered = append(rendered, r)
	}
	compound := strings.Join(rendered, ";")

	s := c.session
	if err := s.lockSession(ctx); err != nil {
		return nil, err
	}
	payload := append([]byte{comQuery}, []byte(compound)...)
	unlocked := false
	unlock := func() {
		if !unlocked {
			unlocked = true
			s.unlockSession()
		}
	}
	defer unlock()

	if err := s.beginCommand(payload); err != nil {
		return nil, err
	}

	var counts []int64
	for i := 0; i < len(rendered); i++ {
		pkt, err := s.t.readPacket()
		if err != nil {
			s.poison()
			return counts, NewBatchUpdateError(counts, err)
		}
		if isErrPacket(pkt) {
			code, sqlstate, msg := decodeErrPacket(pkt)
			return counts, NewBatchUpdateError(counts, NewServerError(code, sqlstate, msg, rendered[i]))
		}
		if !isOKPacket(pkt, s.caps) {
			// Statement i produced a result set instead of an OK; drain it
			// so the stream stays in sync, but it does not contribute a count.
			colCount, _, _, ok := getLenEncInt(pkt, 0)
			if !ok {
				s.poison()
				return counts, NewBatchUpdateError(counts, NewProtocolError("unexpected packet mid-batch"))
			}
			unlock()
			cols, err := s.readColumnDefinitions(int(colCount))
			if err != nil {
				return counts, NewBatchUpdateError(counts, err)
			}
			if _, _, err := s.readRows(cols, false); err != nil {
				return counts, NewBatchUpdateError(counts, err)
			}
			if err := s.lockSession(ctx); err != nil {
				return counts, err
			}
			unlocked = false
			counts = append(counts, -2) // SUCCESS_NO_INFO-equivalent sentinel
			continue
		}
		ok, err := decodeOKPacket(pkt)
		if err != nil {
			s.poison()
			return counts, NewBatchUpdateError(counts, err)
		}
		counts = append(counts, int64(ok.AffectedRows))
	}
	c.batch = nil
	return counts, nil
}
