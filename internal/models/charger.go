package models

import "time"

// ChargerStatus is the connectivity/operational state of a charger.
type ChargerStatus string

const (
	ChargerDisconnected ChargerStatus = "Disconnected"
	ChargerConnected    ChargerStatus = "Connected"
	ChargerAvailable    ChargerStatus = "Available"
	ChargerCharging     ChargerStatus = "Charging"
	ChargerFaulted      ChargerStatus = "Faulted"
	ChargerUnavailable  ChargerStatus = "Unavailable"
)

// Operational reports whether s is one of the states reachable only after a
// Connected step.
func (s ChargerStatus) Operational() bool {
	switch s {
	case ChargerAvailable, ChargerCharging, ChargerFaulted, ChargerUnavailable:
		return true
	}
	return false
}

// Charger is the persisted charger record. ID is assigned by the device.
type Charger struct {
	ID        string        `db:"id" json:"id"`
	Model     string        `db:"model" json:"model"`
	Vendor    string        `db:"vendor" json:"vendor"`
	Status    ChargerStatus `db:"status" json:"status"`
	LastSeen  time.Time     `db:"last_seen" json:"lastSeen"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
}

// StatusLogEntry is one append-only audit row.
type StatusLogEntry struct {
	ID        int64         `db:"id" json:"id"`
	ChargerID string        `db:"charger_id" json:"chargerId"`
	Status    ChargerStatus `db:"status" json:"status"`
	Timestamp time.Time     `db:"timestamp" json:"timestamp"`
}

// AuthTag is an authorization tag known to the central system. An empty
// ChargerID means the tag is valid on every charger.
type AuthTag struct {
	IDTag     string `db:"id_tag" json:"idTag"`
	Name      string `db:"name" json:"name"`
	ChargerID string `db:"charger_id" json:"chargerId,omitempty"`
	Blocked   bool   `db:"blocked" json:"blocked"`
}
