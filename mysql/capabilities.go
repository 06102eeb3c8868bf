package mysql

// Capability is the MySQL handshake capability bitfield (CLIENT_* flags).
type Capability uint32

const (
	ClientLongPassword Capability = 1 << iota
	ClientFoundRows
	ClientLongFlag
	ClientConnectWithDB
	ClientNoSchema
	ClientCompress
	ClientODBC
	ClientLocalFiles
	ClientIgnoreSpace
	ClientProtocol41
	ClientInteractive
	ClientSSL
	ClientIgnoreSIGPIPE
	ClientTransactions
	ClientReserved
	ClientSecureConnection
	ClientMultiStatements
	ClientMultiResults
	ClientPSMultiResults
	ClientPluginAuth
	ClientConnectAttrs
	ClientPluginAuthLenencClientData
	ClientCanHandleExpiredPasswords
	ClientSessionTrack
	ClientDeprecateEOF
)

// These flags are bits 27 and 28 of the 32-bit capability field, so they
// travel in the greeting's upper 16-bit half (MySQL 8.0.24+ flags for
// query attributes and MFA).
const (
	ClientQueryAttributes          Capability = 1 << 27
	ClientMultiFactorAuthentication Capability = 1 << 28
)

// DefaultCapabilities are the flags this client always advertises; Options
// can add flags to this set but not remove any (see §6 Capability defaults
// advertised).
func DefaultCapabilities() Capability {
	return ClientLongPassword |
		ClientFoundRows |
		ClientLongFlag |
		ClientProtocol41 |
		ClientTransactions |
		ClientReserved |
		ClientSecureConnection |
		ClientMultiStatements |
		ClientMultiResults |
		ClientPSMultiResults |
		ClientPluginAuth |
		ClientConnectAttrs |
		ClientPluginAuthLenencClientData |
		ClientDeprecateEOF |
		ClientQueryAttributes |
		ClientMultiFactorAuthentication
}

// Has reports whether all bits in want are set in c.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// Intersect returns the capabilities both sides agree on. The effective
// set is always a subset of both client-requested and server-advertised
// flags (§8 invariant 3).
func (c Capability) Intersect(other Capability) Capability {
	return c & other
}
