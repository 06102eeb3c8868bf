package mysql

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Connect opens a TCP connection to the server described by opts,
// performs the handshake and authentication (§4.3), and returns a ready
// Session. The context bounds the dial only; reads during the handshake
// and authentication are bounded by opts.ReadTimeout.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, NewIOError(err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok && opts.TCPNoDelay {
		_ = tcpConn.SetNoDelay(true)
	}

	t := newTransport(conn, opts.ReadTimeout, opts.maxAllowedPacket())

	greetingPkt, err := t.readPacket()
	if err != nil {
		conn.Close()
		return nil, err
	}
	g, err := parseGreeting(greetingPkt)
	if err != nil {
		conn.Close()
		return nil, err
	}

	clientCaps := opts.clientCapabilities()
	effectiveCaps := clientCaps.Intersect(g.capabilities)
	if opts.SSLMode != SSLNone && !g.capabilities.Has(ClientSSL) {
		conn.Close()
		return nil, NewAuthError("server does not advertise TLS support", nil)
	}

	tlsActive := false
	if opts.SSLMode != SSLNone {
		ssl := buildSSLRequest(effectiveCaps, 0, g.charset)
		tlsCfg := opts.tlsConfig(opts.Host)
		if err := t.negotiateTLS(tlsCfg, ssl); err != nil {
			if !opts.SSLFallbackOK {
				conn.Close()
				return nil, err
			}
		} else {
			tlsActive = true
		}
	}

	plugin := selectPlugin(g.authPluginName)
	seed := g.authPluginData
	authResp := initialAuthResponse(plugin, opts.Password, seed, tlsActive)

	resp := buildHandshakeResponse41(handshakeResponseParams{
		clientFlags:    effectiveCaps,
		maxPacketSize:  opts.maxAllowedPacket(),
		charset:        g.charset,
		username:       opts.User,
		authResponse:   authResp,
		database:       opts.Database,
		authPluginName: plugin,
		connectAttrs:   opts.ConnectAttrs,
	})
	if err := t.writePacket(resp); err != nil {
		conn.Close()
		return nil, err
	}

	// run drives every configured factor to completion: if the server
	// requires more than the first, it signals AuthNextFactor (0x02) and
	// authState re-selects the plugin/seed per factor internally (§4.3
	// step 4) rather than this caller guessing at it up front.
	as := &authState{t: t, opts: opts, tlsActive: tlsActive, plugin: plugin, seed: seed}
	okPkt, err := as.run()
	if err != nil {
		conn.Close()
		return nil, err
	}
	ok, err := decodeOKPacket(okPkt)
	if err != nil {
		conn.Close()
		return nil, err
	}

	s := &Session{
		t:              t,
		caps:           effectiveCaps,
		greeting:       g,
		options:        opts,
		authPlugin:     plugin,
		authData:       seed,
		lock:           make(chan struct{}, 1),
		serverVars:     map[string]string{},
		autoCommit:     ok.StatusFlags&statusAutocommit != 0,
		schema:         opts.Database,
		stmtsByID:      map[uint32]*ServerPreparedStmt{},
		createdAt:      time.Now(),
	}
	return s, nil
}
