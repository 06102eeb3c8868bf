package mysql

import "bytes"

// greeting is the server's initial Protocol::HandshakeV10 packet.
type greeting struct {
	protocolVersion byte
	serverVersion   string
	connectionID    uint32
	authPluginData  []byte // concatenated part1 (8) + part2 (up to 13, NUL-trimmed)
	capabilities    Capability
	charset         byte
	statusFlags     uint16
	authPluginName  string
}

// parseGreeting decodes the initial handshake packet (§4.3 preamble).
func parseGreeting(pkt []byte) (*greeting, error) {
	if len(pkt) < 1 {
		return nil, NewProtocolError("empty handshake packet")
	}
	g := &greeting{protocolVersion: pkt[0]}
	pos := 1

	ver, pos2, ok := getNULString(pkt, pos)
	if !ok {
		return nil, NewProtocolError("malformed handshake: server version")
	}
	g.serverVersion = ver
	pos = pos2

	if pos+4 > len(pkt) {
		return nil, NewProtocolError("malformed handshake: connection id")
	}
	g.connectionID = le32(pkt[pos : pos+4])
	pos += 4

	if pos+8 > len(pkt) {
		return nil, NewProtocolError("malformed handshake: auth-plugin-data-part-1")
	}
	authData := append([]byte{}, pkt[pos:pos+8]...)
	pos += 8 + 1 // skip filler byte

	if pos+2 > len(pkt) {
		return nil, NewProtocolError("malformed handshake: capability flags (low)")
	}
	capLow := uint32(le16(pkt[pos : pos+2]))
	pos += 2

	var charset byte
	var status uint16
	var capHigh uint32
	var authDataLen byte
	if pos < len(pkt) {
		charset = pkt[pos]
		pos++
	}
	if pos+2 <= len(pkt) {
		status = le16(pkt[pos : pos+2])
		pos += 2
	}
	if pos+2 <= len(pkt) {
		capHigh = uint32(le16(pkt[pos : pos+2]))
		pos += 2
	}
	capabilities := Capability(capHigh<<16 | capLow)

	if capabilities.Has(ClientPluginAuth) && pos < len(pkt) {
		authDataLen = pkt[pos]
	}
	pos++ // auth-plugin-data-len (or filler if !PLUGIN_AUTH)
	pos += 10 // reserved

	if capabilities.Has(ClientSecureConnection) {
		part2Len := int(authDataLen) - 8
		if part2Len < 13 {
			part2Len = 13
		}
		if pos+part2Len > len(pkt) {
			part2Len = len(pkt) - pos
		}
		part2 := pkt[pos : pos+part2Len]
		part2 = bytes.TrimRight(part2, "\x00")
		authData = append(authData, part2...)
		pos += part2Len
	}
	g.authPluginData = authData

	if capabilities.Has(ClientPluginAuth) {
		name, _, ok := getNULString(pkt, pos)
		if ok {
			g.authPluginName = name
		} else if pos < len(pkt) {
			g.authPluginName = string(bytes.TrimRight(pkt[pos:], "\x00"))
		}
	}

	g.capabilities = capabilities
	g.charset = charset
	g.statusFlags = status
	return g, nil
}

// handshakeResponseParams carries the fields needed to build a
// HandshakeResponse41 packet (§4.3 step 2).
type handshakeResponseParams struct {
	clientFlags    Capability
	maxPacketSize  uint32
	charset        byte
	username       string
	authResponse   []byte
	database       string
	authPluginName string
	connectAttrs   map[string]string
}

func buildHandshakeResponse41(p handshakeResponseParams) []byte {
	var buf bytes.Buffer
	putLE32(&buf, uint32(p.clientFlags))
	putLE32(&buf, p.maxPacketSize)
	buf.WriteByte(p.charset)
	buf.Write(make([]byte, 23)) // reserved

	putNULString(&buf, p.username)

	if p.clientFlags.Has(ClientPluginAuthLenencClientData) {
		putLenEncBytes(&buf, p.authResponse)
	} else if p.clientFlags.Has(ClientSecureConnection) {
		buf.WriteByte(byte(len(p.authResponse)))
		buf.Write(p.authResponse)
	} else {
		buf.Write(p.authResponse)
		buf.WriteByte(0)
	}

	if p.clientFlags.Has(ClientConnectWithDB) {
		putNULString(&buf, p.database)
	}

	if p.clientFlags.Has(ClientPluginAuth) {
		putNULString(&buf, p.authPluginName)
	}

	if p.clientFlags.Has(ClientConnectAttrs) {
		var attrBuf bytes.Buffer
		for k, v := range p.connectAttrs {
			putLenEncString(&attrBuf, k)
			putLenEncString(&attrBuf, v)
		}
		putLenEncBytes(&buf, attrBuf.Bytes())
	}

	return buf.Bytes()
}

// buildSSLRequest builds the truncated handshake-response sent before the
// TLS upgrade (§4.1 negotiate_tls): same header fields, no auth payload.
func buildSSLRequest(clientFlags Capability, maxPacketSize uint32, charset byte) []byte {
	var buf bytes.Buffer
	putLE32(&buf, uint32(clientFlags|ClientSSL))
	putLE32(&buf, maxPacketSize)
	buf.WriteByte(charset)
	buf.Write(make([]byte, 23))
	return buf.Bytes()
}
