// Package msgtype names the SSH Binary Packet message-type byte values
// (RFC 4253/4254/4419/8308) that the Incoming Filter and Dispatcher both
// need to agree on, kept in its own package so neither has to import the
// other for shared constants.
package msgtype

// Type is an SSH message-type byte, SSH_MSG_* in the RFCs.
type Type uint8

// Transport layer generic messages (RFC 4253 Section 11), always ALLOWED.
const (
	Disconnect   Type = 1
	Ignore       Type = 2
	Unimplemented Type = 3
	Debug        Type = 4
)

// Service request/accept and extension negotiation (RFC 4253 Section 10,
// RFC 8308).
const (
	ServiceRequest Type = 5
	ServiceAccept  Type = 6
	ExtInfo        Type = 7
)

// Key exchange (RFC 4253 Section 7, RFC 4419 Section 3).
const (
	KexInit Type = 20
	NewKeys Type = 21

	// KexDHGexRequestOld/KexDHInit share byte 30: the classic
	// diffie-hellman-group1-sha1 method and the legacy
	// diffie-hellman-group-exchange "request-old" form are mutually
	// exclusive per negotiated method, so they safely share a type byte.
	KexDHInit            Type = 30
	KexDHGexRequestOld   Type = 30
	KexDHReply           Type = 31
	KexDHGexGroup        Type = 31
	KexDHGexInit         Type = 32
	KexDHGexReply        Type = 33
	KexDHGexRequest      Type = 34
)

// User authentication (RFC 4252).
const (
	UserauthRequest Type = 50
	UserauthFailure Type = 51
	UserauthSuccess Type = 52
	UserauthBanner  Type = 53

	// UserauthPKOK, UserauthInfoRequest, and UserauthGSSAPIResponse share
	// byte 60: exactly one authentication method is outstanding at a
	// time, so the byte's meaning is determined by which method sent the
	// preceding request.
	UserauthPKOK            Type = 60
	UserauthInfoRequest     Type = 60
	UserauthGSSAPIResponse  Type = 60

	// UserauthInfoResponse and UserauthGSSAPIToken share byte 61 for the
	// same reason.
	UserauthInfoResponse Type = 61
	UserauthGSSAPIToken  Type = 61
)

// Connection protocol: global requests and channels (RFC 4254).
const (
	GlobalRequest  Type = 80
	RequestSuccess Type = 81
	RequestFailure Type = 82

	ChannelOpen             Type = 90
	ChannelOpenConfirmation Type = 91
	ChannelOpenFailure      Type = 92
	ChannelWindowAdjust     Type = 93
	ChannelData             Type = 94
	ChannelExtendedData     Type = 95
	ChannelEOF              Type = 96
	ChannelClose            Type = 97
	ChannelRequest          Type = 98
	ChannelSuccess          Type = 99
	ChannelFailure          Type = 100
)
