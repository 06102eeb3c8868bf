package mysql

import (
	"context"
	"strings"
)

// ParamMode is the IN/INOUT/OUT direction of a stored-procedure parameter.
type ParamMode int

const (
	ParamIn ParamMode = iota
	ParamInOut
	ParamOut
)

// CallableParam describes one resolved procedure parameter (§4.5.4).
type CallableParam struct {
	Name string
	Mode ParamMode
	Type ColumnType
}

// CallableStmt models a `CALL proc(...)` invocation (the `{CALL ...}`
// escape form is not recognised): it
// resolves IN/INOUT/OUT parameters via INFORMATION_SCHEMA.PARAMETERS and
// maps them by 1-based index to result-column indices for retrieval after
// execute (§4.5.4).
type CallableStmt struct {
	session       *Session
	sql           string
	procedureName string
	params        []CallableParam
	resultSet     *MaterializedResultSet
}

// extractProcedureName parses just enough SQL to find the procedure name:
// the first identifier token after `CALL ` (case-insensitive). This is
// not a general SQL parser (explicit non-goal); it only needs to find the
// call target.
func extractProcedureName(sql string) (string, bool) {
	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)
	const prefix = "CALL "
	if !strings.HasPrefix(upper, prefix) {
		return "", false
	}
	rest := strings.TrimSpace(trimmed[len(prefix):])
	end := strings.IndexAny(rest, "( \t\n")
	if end < 0 {
		end = len(rest)
	}
	name := strings.TrimSuffix(rest[:end], "(")
	if name == "" {
		return "", false
	}
	return name, true
}

// NewCallableStmt parses the procedure name out of sql and loads its
// parameter definitions from INFORMATION_SCHEMA.PARAMETERS.
func (s *Session) NewCallableStmt(ctx context.Context, sql string) (*CallableStmt, error) {
	name, ok := extractProcedureName(sql)
	if !ok {
		return nil, NewProtocolError("could not locate procedure name in %q", sql)
	}
	cs := &CallableStmt{session: s, sql: sql, procedureName: name}
	if err := cs.loadParameterDefinitions(ctx); err != nil {
		return nil, err
	}
	return cs, nil
}

func (cs *CallableStmt) loadParameterDefinitions(ctx context.Context) error {
	query := "SELECT PARAMETER_NAME, PARAMETER_MODE, DATA_TYPE FROM INFORMATION_SCHEMA.PARAMETERS " +
		"WHERE SPECIFIC_NAME = '" + strings.ReplaceAll(cs.procedureName, "'", "''") + "' ORDER BY ORDINAL_POSITION"
	rs, err := cs.session.ExecuteQuery(ctx, query)
	if err != nil {
		return err
	}
	defer rs.Close()
	for rs.Next() {
		name, err := rs.GetString(0)
		if err != nil {
			return err
		}
		modeStr, err := rs.GetString(1)
		if err != nil {
			return err
		}
		typeStr, err := rs.GetString(2)
		if err != nil {
			return err
		}
		cs.params = append(cs.params, CallableParam{
			Name: name,
			Mode: parseParamMode(modeStr),
			Type: parseDataTypeName(typeStr),
		})
	}
	return nil
}

func parseParamMode(s string) ParamMode {
	switch strings.ToUpper(s) {
	case "OUT":
		return ParamOut
	case "INOUT":
		return ParamInOut
	default:
		return ParamIn
	}
}

func parseDataTypeName(s string) ColumnType {
	switch strings.ToLower(s) {
	case "int", "integer":
		return TypeLong
	case "bigint":
		return TypeLongLong
	case "float":
		return TypeFloat
	case "double":
		return TypeDouble
	case "decimal":
		return TypeNewDecimal
	case "date":
		return TypeDate
	case "datetime", "timestamp":
		return TypeDateTime
	default:
		return TypeVarString
	}
}

// Params returns the resolved parameter definitions, in declaration order.
func (cs *CallableStmt) Params() []CallableParam { return cs.params }

// Execute binds args positionally to IN/INOUT parameters via client-side
// literal quoting, runs the call, and retains any result set produced so
// OUT/INOUT values can be read back with GetOut.
func (cs *CallableStmt) Execute(ctx context.Context, args []any) error {
	var in []any
	for i, p := range cs.params {
		if p.Mode == ParamOut {
			continue
		}
		if i < len(args) {
			in = append(in, args[i])
		}
	}
	rendered, err := substitutePlaceholders(cs.sql, in, QuoteBackslash)
	if err != nil {
		return err
	}
	rs, err := cs.session.ExecuteQuery(ctx, rendered)
	if err != nil {
		return err
	}
	cs.resultSet = rs
	return nil
}

// GetOut reads the value of the idx-th OUT/INOUT parameter from the
// trailing result-set column it was mapped to (1-based index into
// params, matching the declaration order).
func (cs *CallableStmt) GetOut(idx int) (any, error) {
	if cs.resultSet == nil {
		return nil, NewProtocolError("callable statement has not been executed")
	}
	if !cs.resultSet.Next() {
		return nil, NewProtocolError("no result row available for OUT parameters")
	}
	return cs.resultSet.valueAt(idx)
}
