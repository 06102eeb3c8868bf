package mysql

// statusInTrans / statusMoreResultsExist are server status flag bits
// carried in OK and EOF packets (§4.4 result-set reply loop).
const (
	statusInTrans         uint16 = 0x0001
	statusAutocommit      uint16 = 0x0002
	statusMoreResultsExist uint16 = 0x0008
)

// okPacket is the decoded Protocol::OK_Packet.
type okPacket struct {
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  uint16
	Warnings     uint16
	Info         string
}

func isOKPacket(pkt []byte, capabilities Capability) bool {
	if len(pkt) == 0 {
		return false
	}
	if pkt[0] == 0x00 {
		return true
	}
	// EOF byte doubles as OK under CLIENT_DEPRECATE_EOF when shaped like one.
	return pkt[0] == 0xfe && capabilities.Has(ClientDeprecateEOF) && len(pkt) < 0xffffff && len(pkt) >= 7
}

func isErrPacket(pkt []byte) bool {
	return len(pkt) > 0 && pkt[0] == 0xff
}

// isRowTerminator reports whether pkt is the packet that ends a row-data
// stream (§4.4 result-set reply loop), as opposed to a data row. Row data
// can legitimately start with 0x00 — every Binary::ResultsetRow does, by
// protocol definition, and a text row whose first column is an empty
// string lenenc-encodes to 0x00 too — so unlike isOKPacket this never
// treats a 0x00 lead byte as terminal. The server only ever marks a
// stream's end with 0xfe, both for the classic EOF_Packet and for the
// OK_Packet that replaces it under CLIENT_DEPRECATE_EOF.
func isRowTerminator(pkt []byte) bool {
	return len(pkt) > 0 && pkt[0] == 0xfe && len(pkt) < 0xffffff
}

func isLocalInfileRequest(pkt []byte) bool {
	return len(pkt) > 0 && pkt[0] == 0xfb
}

func decodeOKPacket(pkt []byte) (okPacket, error) {
	var ok okPacket
	if len(pkt) == 0 {
		return ok, NewProtocolError("empty OK packet")
	}
	pos := 1
	var good bool
	ok.AffectedRows, pos, _, good = getLenEncInt(pkt, pos)
	if !good {
		return ok, NewProtocolError("malformed OK packet: affected_rows")
	}
	ok.LastInsertID, pos, _, good = getLenEncInt(pkt, pos)
	if !good {
		return ok, NewProtocolError("malformed OK packet: last_insert_id")
	}
	if pos+2 <= len(pkt) {
		ok.StatusFlags = le16(pkt[pos : pos+2])
		pos += 2
	}
	if pos+2 <= len(pkt) {
		ok.Warnings = le16(pkt[pos : pos+2])
		pos += 2
	}
	if pos < len(pkt) {
		ok.Info = string(pkt[pos:])
	}
	return ok, nil
}

func decodeErrPacket(pkt []byte) (code uint16, sqlstate, msg string) {
	if len(pkt) < 3 {
		return 0, "HY000", "malformed error packet"
	}
	code = le16(pkt[1:3])
	pos := 3
	if pos < len(pkt) && pkt[pos] == '#' {
		if pos+6 <= len(pkt) {
			sqlstate = string(pkt[pos+1 : pos+6])
			pos += 6
		}
	} else {
		sqlstate = "HY000"
	}
	if pos <= len(pkt) {
		msg = string(pkt[pos:])
	}
	return code, sqlstate, msg
}

// eofStatusFlags extracts status flags from an OK or EOF packet without
// fully decoding it; used by the result-set reply loop to detect
// MORE_RESULTS_EXIST (§4.4).
func eofStatusFlags(pkt []byte) uint16 {
	if len(pkt) == 0 {
		return 0
	}
	if pkt[0] == 0xfe && len(pkt) >= 5 {
		return le16(pkt[3:5])
	}
	if pkt[0] == 0x00 {
		pos := skipLenEncInt(pkt, 1)
		pos = skipLenEncInt(pkt, pos)
		if pos+2 <= len(pkt) {
			return le16(pkt[pos : pos+2])
		}
	}
	return 0
}

// decodeColumnDefinition41 decodes one Protocol::ColumnDefinition41 packet.
func decodeColumnDefinition41(pkt []byte) (Column, error) {
	var c Column
	pos := 0
	var ok bool
	c.Catalog, pos, _, ok = getLenEncString(pkt, pos)
	if !ok {
		return c, NewProtocolError("malformed column definition: catalog")
	}
	c.Schema, pos, _, ok = getLenEncString(pkt, pos)
	if !ok {
		return c, NewProtocolError("malformed column definition: schema")
	}
	c.Table, pos, _, ok = getLenEncString(pkt, pos)
	if !ok {
		return c, NewProtocolError("malformed column definition: table")
	}
	c.OrigTable, pos, _, ok = getLenEncString(pkt, pos)
	if !ok {
		return c, NewProtocolError("malformed column definition: orig_table")
	}
	c.Name, pos, _, ok = getLenEncString(pkt, pos)
	if !ok {
		return c, NewProtocolError("malformed column definition: name")
	}
	c.OrigName, pos, _, ok = getLenEncString(pkt, pos)
	if !ok {
		return c, NewProtocolError("malformed column definition: orig_name")
	}
	// length-encoded "fields length" fixed at 0x0c
	pos = skipLenEncInt(pkt, pos)
	if pos+2 <= len(pkt) {
		c.CharsetID = le16(pkt[pos : pos+2])
		pos += 2
	}
	if pos+4 <= len(pkt) {
		c.Length = le32(pkt[pos : pos+4])
		pos += 4
	}
	if pos < len(pkt) {
		c.Type = ColumnType(pkt[pos])
		pos++
	}
	if pos+2 <= len(pkt) {
		c.Flags = le16(pkt[pos : pos+2])
		pos += 2
	}
	if pos < len(pkt) {
		c.Decimals = pkt[pos]
	}
	return c, nil
}
