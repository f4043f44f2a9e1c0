package protocol

// MessageType values as per OCPP-J.
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// Subprotocol is the websocket sub-protocol for the OCPP 1.6 JSON dialect.
const Subprotocol = "ocpp1.6"

// Inbound actions initiated by the charge point.
const (
	ActionBootNotification   = "BootNotification"
	ActionHeartbeat          = "Heartbeat"
	ActionAuthorize          = "Authorize"
	ActionStartTransaction   = "StartTransaction"
	ActionStopTransaction    = "StopTransaction"
	ActionStatusNotification = "StatusNotification"
	ActionMeterValues        = "MeterValues"
)

// Outbound actions initiated by the central system.
const (
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
)

// Registration status values.
const (
	RegistrationAccepted = "Accepted"
	RegistrationPending  = "Pending"
	RegistrationRejected = "Rejected"
)

// Authorization status values carried in idTagInfo.
const (
	AuthorizationAccepted     = "Accepted"
	AuthorizationBlocked      = "Blocked"
	AuthorizationExpired      = "Expired"
	AuthorizationInvalid      = "Invalid"
	AuthorizationConcurrentTx = "ConcurrentTx"
)

// Remote start/stop status values.
const (
	RemoteStartStopAccepted = "Accepted"
	RemoteStartStopRejected = "Rejected"
)

// StatusNotification status values.
const (
	ConnectorAvailable     = "Available"
	ConnectorPreparing     = "Preparing"
	ConnectorCharging      = "Charging"
	ConnectorSuspendedEV   = "SuspendedEV"
	ConnectorSuspendedEVSE = "SuspendedEVSE"
	ConnectorFinishing     = "Finishing"
	ConnectorReserved      = "Reserved"
	ConnectorUnavailable   = "Unavailable"
	ConnectorFaulted       = "Faulted"
)

// CallError codes defined by OCPP-J.
const (
	ErrorNotImplemented                = "NotImplemented"
	ErrorNotSupported                  = "NotSupported"
	ErrorInternalError                 = "InternalError"
	ErrorProtocolError                 = "ProtocolError"
	ErrorSecurityError                 = "SecurityError"
	ErrorFormationViolation            = "FormationViolation"
	ErrorPropertyConstraintViolation   = "PropertyConstraintViolation"
	ErrorOccurrenceConstraintViolation = "OccurenceConstraintViolation"
	ErrorTypeConstraintViolation       = "TypeConstraintViolation"
	ErrorGenericError                  = "GenericError"
)
