package mysql

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
)

const (
	pluginNativePassword   = "mysql_native_password"
	pluginCachingSHA2      = "caching_sha2_password"
	pluginSHA256           = "sha256_password"
)

var supportedPlugins = map[string]bool{
	pluginNativePassword: true,
	pluginCachingSHA2:    true,
	pluginSHA256:         true,
}

const (
	authMoreDataFastAuthSuccess = 0x03
	authMoreDataFullAuthRequired = 0x04
	authRequestPublicKey        = 0x02
)

// selectPlugin implements §4.3 step 1: use the server-advertised plugin
// if supported, else fall back to mysql_native_password.
func selectPlugin(advertised string) string {
	if supportedPlugins[advertised] {
		return advertised
	}
	return pluginNativePassword
}

// initialAuthResponse computes the auth-response bytes sent in the
// HandshakeResponse41 packet for the chosen plugin (§4.3 step 2).
func initialAuthResponse(plugin, password string, seed []byte, tlsActive bool) []byte {
	switch plugin {
	case pluginCachingSHA2:
		return scrambleCachingSHA2(password, seed)
	case pluginSHA256:
		if password == "" {
			return nil
		}
		if tlsActive {
			return append([]byte(password), 0)
		}
		// request the server's public key instead of sending anything
		// meaningful over plaintext.
		return []byte{authRequestPublicKey}
	default:
		return scrambleNative(password, seed)
	}
}

// authState drives the post-handshake-response reply loop (§4.3 steps
// 3-4): OK, ERR, AuthSwitchRequest, the per-plugin AuthMoreData
// continuations for caching_sha2_password / sha256_password, and
// AuthNextFactor for multi-factor authentication.
type authState struct {
	t         *transport
	opts      Options
	tlsActive bool
	plugin    string
	seed      []byte

	// factorsDone counts completed authentication factors beyond the
	// first; 0 means the handshake response already sent opts.Password
	// under the first factor's plugin.
	factorsDone int
}

// run executes the authentication loop to completion, returning the final
// OK packet payload once the server is satisfied with every factor.
func (a *authState) run() ([]byte, error) {
	for {
		pkt, err := a.t.readPacket()
		if err != nil {
			return nil, err
		}
		if len(pkt) == 0 {
			return nil, NewProtocolError("empty auth reply packet")
		}
		switch pkt[0] {
		case 0x00:
			a.reportOutcome(true)
			return pkt, nil
		case 0xff:
			a.reportOutcome(false)
			code, sqlstate, msg := decodeErrPacket(pkt)
			return nil, NewServerError(code, sqlstate, msg, "")
		case 0xfe:
			if err := a.handleAuthSwitch(pkt); err != nil {
				return nil, err
			}
		case 0x01:
			if err := a.handleAuthMoreData(pkt); err != nil {
				return nil, err
			}
		case 0x02:
			if err := a.handleAuthNextFactor(pkt); err != nil {
				return nil, err
			}
		default:
			return nil, NewProtocolError("unexpected byte 0x%02x in auth reply", pkt[0])
		}
	}
}

// reportOutcome notifies opts.OnAuthPlugin, if set, of the terminal
// outcome of authentication under the last negotiated plugin.
func (a *authState) reportOutcome(ok bool) {
	if a.opts.OnAuthPlugin != nil {
		a.opts.OnAuthPlugin(a.plugin, ok)
	}
}

// currentPassword returns the password for whichever factor is currently
// being negotiated: opts.Password for the first, then successive entries
// of opts.AdditionalFactors as the server requests more.
func (a *authState) currentPassword() string {
	if a.factorsDone == 0 {
		return a.opts.Password
	}
	if i := a.factorsDone - 1; i < len(a.opts.AdditionalFactors) {
		return a.opts.AdditionalFactors[i]
	}
	return ""
}

func (a *authState) handleAuthSwitch(pkt []byte) error {
	name, pos, ok := getNULString(pkt, 1)
	if !ok {
		return NewProtocolError("malformed AuthSwitchRequest")
	}
	seed := pkt[pos:]
	seed = trimTrailingNUL(seed)
	a.plugin = name
	a.seed = seed
	resp := initialAuthResponse(name, a.currentPassword(), seed, a.tlsActive)
	return a.t.writePacket(resp)
}

// handleAuthNextFactor processes an AuthNextFactorRequest (§4.3 step 4):
// wire byte 0x02 followed by a plugin name and fresh auth data, the same
// shape as AuthSwitchRequest. Each factor can select its own plugin and
// seed, so plugin selection and the initial auth response are redone
// against the next configured password rather than reusing the first
// factor's.
func (a *authState) handleAuthNextFactor(pkt []byte) error {
	name, pos, ok := getNULString(pkt, 1)
	if !ok {
		return NewProtocolError("malformed AuthNextFactorRequest")
	}
	seed := trimTrailingNUL(pkt[pos:])
	a.factorsDone++
	if a.factorsDone-1 >= len(a.opts.AdditionalFactors) {
		return NewAuthError("server requested more authentication factors than configured", nil)
	}
	a.plugin = selectPlugin(name)
	a.seed = seed
	resp := initialAuthResponse(a.plugin, a.currentPassword(), seed, a.tlsActive)
	return a.t.writePacket(resp)
}

func (a *authState) handleAuthMoreData(pkt []byte) error {
	if len(pkt) < 2 {
		return a.t.writePacket(nil)
	}
	sub := pkt[1]
	switch a.plugin {
	case pluginCachingSHA2:
		switch sub {
		case authMoreDataFastAuthSuccess:
			return nil // next packet will be the final OK
		case authMoreDataFullAuthRequired:
			return a.fullAuth()
		default:
			// treat remaining bytes as a PEM public key response to our request
			return a.encryptAndSendWithKey(pkt[1:])
		}
	case pluginSHA256:
		return a.encryptAndSendWithKey(pkt[1:])
	default:
		return NewProtocolError("unexpected AuthMoreData for plugin %s", a.plugin)
	}
}

// fullAuth handles caching_sha2_password's "full authentication required"
// branch: cleartext over TLS, else an RSA public-key round trip gated by
// AllowPublicKeyRetrieval (§4.3 step 3).
func (a *authState) fullAuth() error {
	if a.tlsActive {
		return a.t.writePacket(append([]byte(a.currentPassword()), 0))
	}
	if !a.opts.AllowPublicKeyRetrieval {
		return NewPublicKeyRetrievalDisabled()
	}
	if err := a.t.writePacket([]byte{authRequestPublicKey}); err != nil {
		return err
	}
	pkt, err := a.t.readPacket()
	if err != nil {
		return err
	}
	if len(pkt) == 0 || pkt[0] != 0x01 {
		return NewProtocolError("expected AuthMoreData carrying public key")
	}
	return a.encryptAndSendWithKey(pkt[1:])
}

func (a *authState) encryptAndSendWithKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return NewAuthError("server did not return a PEM public key", nil)
	}
	pubAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return NewAuthError("parsing server public key", err)
	}
	pub, ok := pubAny.(*rsa.PublicKey)
	if !ok {
		return NewAuthError("server public key is not RSA", nil)
	}
	seed := a.seed
	encrypted, err := encryptPasswordRSA(a.currentPassword(), seed, pub)
	if err != nil {
		return NewAuthError("encrypting password", err)
	}
	return a.t.writePacket(encrypted)
}

func trimTrailingNUL(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}
