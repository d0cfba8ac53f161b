package packet

// Standard attribute types consumed or produced by the engine (RFC 2865, RFC 2866, RFC 2869, RFC 5176)
const (
	AttrUserName             uint8 = 1
	AttrUserPassword         uint8 = 2
	AttrCHAPPassword         uint8 = 3
	AttrNASIPAddress         uint8 = 4
	AttrNASPort              uint8 = 5
	AttrServiceType          uint8 = 6
	AttrFramedIPAddress      uint8 = 8
	AttrFilterID             uint8 = 11
	AttrReplyMessage         uint8 = 18
	AttrState                uint8 = 24
	AttrClass                uint8 = 25
	AttrVendorSpecific       uint8 = 26
	AttrSessionTimeout       uint8 = 27
	AttrIdleTimeout          uint8 = 28
	AttrCalledStationID      uint8 = 30
	AttrCallingStationID     uint8 = 31
	AttrNASIdentifier        uint8 = 32
	AttrProxyState           uint8 = 33
	AttrAcctStatusType       uint8 = 40
	AttrAcctDelayTime        uint8 = 41
	AttrAcctInputOctets      uint8 = 42
	AttrAcctOutputOctets     uint8 = 43
	AttrAcctSessionID        uint8 = 44
	AttrAcctSessionTime      uint8 = 46
	AttrAcctTerminateCause   uint8 = 49
	AttrAcctInputGigawords   uint8 = 52
	AttrAcctOutputGigawords  uint8 = 53
	AttrEventTimestamp       uint8 = 55
	AttrCHAPChallenge        uint8 = 60
	AttrNASPortType          uint8 = 61
	AttrTunnelType           uint8 = 64
	AttrTunnelMediumType     uint8 = 65
	AttrTunnelPrivateGroupID uint8 = 81
	AttrEAPMessage           uint8 = 79
	AttrMessageAuthenticator uint8 = 80
	AttrErrorCause           uint8 = 101
)

// Acct-Status-Type values (RFC 2866 Section 5.1)
const (
	AcctStatusStart         uint32 = 1
	AcctStatusStop          uint32 = 2
	AcctStatusInterimUpdate uint32 = 3
	AcctStatusAccountingOn  uint32 = 7
	AcctStatusAccountingOff uint32 = 8
)

// Acct-Terminate-Cause values (RFC 2866 Section 5.10)
const (
	TerminateCauseUserRequest uint32 = 1
	TerminateCauseLostCarrier uint32 = 2
	TerminateCauseLostService uint32 = 3
	TerminateCauseAdminReset  uint32 = 6
	TerminateCauseNASReboot   uint32 = 11
)

// Error-Cause attribute values (RFC 5176 Section 3.5)
const (
	ErrorCauseResidualSessionRemoved     uint32 = 201
	ErrorCauseMissingAttribute           uint32 = 402
	ErrorCauseNASIdentificationMismatch  uint32 = 403
	ErrorCauseInvalidRequest             uint32 = 404
	ErrorCauseUnsupportedService         uint32 = 405
	ErrorCauseUnsupportedExtension       uint32 = 406
	ErrorCauseAdministrativelyProhibited uint32 = 501
	ErrorCauseSessionContextNotFound     uint32 = 503
	ErrorCauseSessionContextNotRemovable uint32 = 504
	ErrorCauseResourcesUnavailable       uint32 = 506
)
