package protocol

import "time"

// IdTagInfo is shared by Authorize, StartTransaction and StopTransaction responses.
type IdTagInfo struct {
	Status      string     `json:"status"`
	ExpiryDate  *time.Time `json:"expiryDate,omitempty"`
	ParentIdTag string     `json:"parentIdTag,omitempty"`
}

// BootNotificationRequest minimal subset.
type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor" validate:"required"`
	ChargePointModel        string `json:"chargePointModel" validate:"required"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
}

// BootNotificationResponse carries the heartbeat interval in seconds.
type BootNotificationResponse struct {
	CurrentTime time.Time `json:"currentTime"`
	Interval    int       `json:"interval"`
	Status      string    `json:"status"`
}

// HeartbeatRequest is empty.
type HeartbeatRequest struct{}

// HeartbeatResponse returns server time.
type HeartbeatResponse struct {
	CurrentTime time.Time `json:"currentTime"`
}

// AuthorizeRequest payload.
type AuthorizeRequest struct {
	IdTag string `json:"idTag" validate:"required"`
}

// AuthorizeResponse payload.
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// StartTransactionRequest payload.
type StartTransactionRequest struct {
	ConnectorID   int       `json:"connectorId" validate:"required"`
	IdTag         string    `json:"idTag" validate:"required"`
	MeterStart    int64     `json:"meterStart"`
	ReservationID *int      `json:"reservationId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// StartTransactionResponse payload.
type StartTransactionResponse struct {
	TransactionID int64     `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

// StopTransactionRequest payload.
type StopTransactionRequest struct {
	TransactionID int64     `json:"transactionId" validate:"required"`
	IdTag         string    `json:"idTag,omitempty"`
	MeterStop     int64     `json:"meterStop"`
	Timestamp     time.Time `json:"timestamp"`
	Reason        string    `json:"reason,omitempty"`
}

// StopTransactionResponse payload.
type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// StatusNotificationRequest payload.
type StatusNotificationRequest struct {
	ConnectorID int       `json:"connectorId"`
	ErrorCode   string    `json:"errorCode"`
	Status      string    `json:"status" validate:"required"`
	Info        string    `json:"info,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	VendorID    string    `json:"vendorId,omitempty"`
}

// StatusNotificationResponse is empty (ack).
type StatusNotificationResponse struct{}

// SampledValue is a single meter reading.
type SampledValue struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

// MeterValue groups sampled values at one instant.
type MeterValue struct {
	Timestamp    time.Time      `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

// MeterValuesRequest payload.
type MeterValuesRequest struct {
	ConnectorID   int          `json:"connectorId"`
	TransactionID *int64       `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}

// MeterValuesResponse is empty (ack).
type MeterValuesResponse struct{}

// RemoteStartTransactionRequest is sent by the central system.
type RemoteStartTransactionRequest struct {
	ConnectorID *int   `json:"connectorId,omitempty"`
	IdTag       string `json:"idTag"`
}

// RemoteStopTransactionRequest is sent by the central system.
type RemoteStopTransactionRequest struct {
	TransactionID int64 `json:"transactionId"`
}

// RemoteStartStopResponse answers both remote start and remote stop.
type RemoteStartStopResponse struct {
	Status string `json:"status"`
}
