package models

import "time"

// ReadMethod identifies how an asset identifier was captured.
type ReadMethod string

const (
	ReadManual  ReadMethod = "MANUAL"
	ReadRFID    ReadMethod = "RFID"
	ReadBarcode ReadMethod = "BARCODE"
)

// ReadingCategory is the reconciliation outcome of a reading.
type ReadingCategory string

const (
	ReadingFound        ReadingCategory = "found"
	ReadingUnregistered ReadingCategory = "unregistered"
)

// Reading is an immutable observation of a physical identifier during an
// inventory session.
type Reading struct {
	ID                string          `bson:"_id" json:"id"`
	SessionID         string          `bson:"session_id" json:"session_id"`
	ExpectedAssetID   *string         `bson:"expected_asset_id" json:"expected_asset_id"`
	Identifier        string          `bson:"identifier" json:"identifier"`
	ReadMethod        ReadMethod      `bson:"read_method" json:"read_method"`
	PhysicalCondition string          `bson:"physical_condition,omitempty" json:"physical_condition,omitempty"`
	Observations      string          `bson:"observations,omitempty" json:"observations,omitempty"`
	Category          ReadingCategory `bson:"category" json:"category"`
	ReadAt            time.Time       `bson:"read_at" json:"read_at"`
}

// RegisterReadingRequest is a manual (or replayed) reading registration.
type RegisterReadingRequest struct {
	Identifier        string     `json:"identifier" validate:"required,max=128"`
	ReadMethod        ReadMethod `json:"read_method,omitempty" validate:"omitempty,oneof=MANUAL RFID BARCODE"`
	PhysicalCondition string     `json:"physical_condition,omitempty" validate:"max=64"`
	Observations      string     `json:"observations,omitempty" validate:"max=2000"`
}
