package models

import "time"

// TransactionStatus is the lifecycle state of a charging transaction.
type TransactionStatus string

const (
	TransactionStarted TransactionStatus = "Started"
	TransactionStopped TransactionStatus = "Stopped"
	TransactionFailed  TransactionStatus = "Failed"
)

// Stop reasons set by the central system itself.
const (
	// StopReasonRemotePending marks a transaction closed after an accepted
	// RemoteStop, until the charger reports its own meter reading.
	StopReasonRemotePending = "RemotePending"
	StopReasonRemote        = "Remote"
	StopReasonSimulated     = "Simulated"
)

// Terminal reports whether no further transition is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStopped || s == TransactionFailed
}

// Transaction is one charging session bounded by a start and a stop event.
type Transaction struct {
	ID          int64             `db:"id" json:"id"`
	ChargerID   string            `db:"charger_id" json:"chargerId"`
	IDTag       string            `db:"id_tag" json:"idTag"`
	ConnectorID int               `db:"connector_id" json:"connectorId"`
	MeterStart  int64             `db:"meter_start" json:"meterStart"`
	MeterStop   *int64            `db:"meter_stop" json:"meterStop,omitempty"`
	StartTime   time.Time         `db:"start_time" json:"startTime"`
	StopTime    *time.Time        `db:"stop_time" json:"stopTime,omitempty"`
	Status      TransactionStatus `db:"status" json:"status"`
	Simulated   bool              `db:"simulated" json:"simulated"`
	StopReason  string            `db:"stop_reason" json:"stopReason,omitempty"`
}

// EnergyWh returns the consumed energy, zero while the transaction is open.
func (t *Transaction) EnergyWh() int64 {
	if t.MeterStop == nil || *t.MeterStop < t.MeterStart {
		return 0
	}
	return *t.MeterStop - t.MeterStart
}

// MessageLogEntry is one raw OCPP frame kept for audit.
type MessageLogEntry struct {
	ID        int64     `db:"id" json:"id"`
	ChargerID string    `db:"charger_id" json:"chargerId"`
	Direction string    `db:"direction" json:"direction"`
	Action    string    `db:"action" json:"action"`
	Payload   []byte    `db:"payload" json:"payload"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
