package models

import "time"

// LedgerRecord is the ledger's canonical copy of a vehicle, addressed by VIN.
type LedgerRecord struct {
	Vin           string `json:"vin"`
	PlateNumber   string `json:"plateNumber"`
	EngineNumber  string `json:"engineNumber"`
	ChassisNumber string `json:"chassisNumber"`
	Make          string `json:"make"`
	Model         string `json:"model"`
	Year          int    `json:"year"`
	Color         string `json:"color"`
	OwnerName     string `json:"ownerName"`
	OwnerContact  string `json:"ownerContact"`

	// Provenance reported by the ledger gateway.
	TxId      string     `json:"txId,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}
