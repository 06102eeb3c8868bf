package mysql

import "context"

// streamState models the cursor-fetch state machine from §9 design notes:
// {NeedsFetch, HaveBatch(idx), Closed}.
type streamState int

const (
	streamNeedsFetch streamState = iota
	streamHaveBatch
	streamClosed
)

// StreamingResultSet is the cursor-fetch variant of a result set (§4.6):
// it holds the prepared-statement handle and a small in-memory batch,
// fetching a new batch of fetchSize rows via COM_STMT_FETCH whenever the
// current one is exhausted.
//
// Per the decided open question (§9): when a fetch returns fewer rows
// than fetchSize, COM_STMT_CLOSE is sent eagerly on that same Next call
// after the partial batch is exhausted, not deferred to an explicit Close.
type StreamingResultSet struct {
	stmt      *ServerPreparedStmt
	cols      []Column
	fetchSize uint32

	state   streamState
	batch   []Row
	batchIdx int
	exhausted bool // server returned a short batch; one more empty fetch remains conceptually, but we close instead

	cur Row
	lastWasNull bool
}

func newStreamingResultSet(stmt *ServerPreparedStmt, cols []Column, fetchSize uint32) *StreamingResultSet {
	return &StreamingResultSet{stmt: stmt, cols: cols, fetchSize: fetchSize, state: streamNeedsFetch}
}

func (r *StreamingResultSet) Columns() []Column { return r.cols }

// Next advances to the next row, fetching more from the server as needed,
// and returns false once the result set is exhausted (§8 invariant 10:
// COM_STMT_CLOSE is sent exactly once, on the call after the last row).
func (r *StreamingResultSet) Next(ctx context.Context) (bool, error) {
	for {
		switch r.state {
		case streamClosed:
			return false, nil
		case streamHaveBatch:
			if r.batchIdx < len(r.batch) {
				r.cur = r.batch[r.batchIdx]
				r.batchIdx++
				return true, nil
			}
			if r.exhausted {
				r.state = streamClosed
				return false, r.stmt.closeCursor(ctx)
			}
			r.state = streamNeedsFetch
		case streamNeedsFetch:
			rows, short, err := r.stmt.fetch(ctx, r.fetchSize)
			if err != nil {
				return false, err
			}
			r.batch = rows
			r.batchIdx = 0
			r.exhausted = short
			r.state = streamHaveBatch
			if len(rows) == 0 {
				r.state = streamClosed
				return false, r.stmt.closeCursor(ctx)
			}
		}
	}
}

func (r *StreamingResultSet) valueAt(idx int) (any, error) {
	if r.cur == nil || idx < 0 || idx >= len(r.cur) {
		r.lastWasNull = true
		return nil, nil
	}
	v := r.cur[idx]
	r.lastWasNull = v == nil
	return v, nil
}

func (r *StreamingResultSet) WasNull() bool { return r.lastWasNull }

func (r *StreamingResultSet) GetString(idx int) (string, error) {
	v, err := r.valueAt(idx)
	if err != nil || v == nil {
		return "", err
	}
	return toString(v), nil
}

func (r *StreamingResultSet) GetInt(idx int) (int64, error) {
	v, err := r.valueAt(idx)
	if err != nil || v == nil {
		return 0, err
	}
	return toInt64(v)
}

// Close closes the underlying cursor if it has not already been closed by
// exhaustion; idempotent.
func (r *StreamingResultSet) Close() error {
	if r.state == streamClosed {
		return nil
	}
	r.state = streamClosed
	return r.stmt.closeCursor(context.Background())
}
