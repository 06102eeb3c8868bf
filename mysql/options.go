package mysql

import (
	"crypto/tls"
	"time"
)

// SSLMode selects how the client negotiates TLS (§6 configuration options).
type SSLMode int

const (
	SSLNone SSLMode = iota
	SSLTrusted          // accept any server certificate
	SSLSystem           // verify against the OS trust store
)

// DatabaseTerm chooses the naming convention a metadata consumer uses;
// the protocol engine only threads it through, it has no wire effect.
type DatabaseTerm int

const (
	DatabaseTermCatalog DatabaseTerm = iota
	DatabaseTermSchema
)

// Options configures a single Session (§6 Configuration options consumed).
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	SSLMode      SSLMode
	SSLFallbackOK bool
	TLSConfig    *tls.Config // used verbatim when SSLMode != SSLNone and non-nil

	TCPNoDelay bool

	ReadTimeout time.Duration // 0 = infinite
	DialTimeout time.Duration

	AllowPublicKeyRetrieval bool
	DatabaseTerm            DatabaseTerm

	UseCursorFetch      bool
	UseServerPrepStmts  bool

	MaxAllowedPacket uint32 // default 16MB if zero

	ConnectAttrs map[string]string

	// AdditionalFactors supplies further passwords for MULTI_FACTOR_AUTHENTICATION
	// (§4.3 step 4); the primary Password is factor 1.
	AdditionalFactors []string

	// LocalInfileHandler, when non-nil, is invoked to supply file contents
	// for LOAD DATA LOCAL INFILE requests (§4.4). A nil handler rejects
	// every request the server makes.
	LocalInfileHandler LocalInfileHandler

	// OnAuthPlugin, when set, is called once authentication finishes with
	// the plugin of the last negotiated factor and whether it succeeded;
	// used to feed auth-plugin telemetry without this package depending on
	// a metrics implementation (§11 ambient telemetry).
	OnAuthPlugin func(plugin string, ok bool)

	// OnStatement, when set, is called after every dispatched statement or
	// prepared-statement execution with the operation name, the time it
	// took, and its error (nil on success).
	OnStatement func(operation string, d time.Duration, err error)
}

func (o Options) maxAllowedPacket() uint32 {
	if o.MaxAllowedPacket == 0 {
		return 16 << 20
	}
	return o.MaxAllowedPacket
}

func (o Options) clientCapabilities() Capability {
	caps := DefaultCapabilities()
	if o.Database != "" {
		caps |= ClientConnectWithDB
	}
	if o.SSLMode != SSLNone {
		caps |= ClientSSL
	}
	if len(o.ConnectAttrs) > 0 {
		caps |= ClientConnectAttrs
	}
	return caps
}

func (o Options) tlsConfig(serverName string) *tls.Config {
	if o.TLSConfig != nil {
		return o.TLSConfig
	}
	switch o.SSLMode {
	case SSLTrusted:
		return &tls.Config{InsecureSkipVerify: true}
	case SSLSystem:
		return &tls.Config{ServerName: serverName}
	default:
		return nil
	}
}
