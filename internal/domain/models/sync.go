package models

import "time"

// RegistryAsset is one row of the external asset registry.
type RegistryAsset struct {
	AssetCode   string `json:"asset_code"`
	Description string `json:"description"`
	RFIDCode    string `json:"rfid_code,omitempty"`
	Barcode     string `json:"barcode,omitempty"`
	UL          string `json:"ul,omitempty"`
	UA          string `json:"ua,omitempty"`
	Category    string `json:"category,omitempty"`
	WrittenOff  bool   `json:"written_off"`
}

// SyncStatistics counts the outcome of a pull.
type SyncStatistics struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
}

// SyncBatch is returned by a pull of expected assets.
type SyncBatch struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Statistics SyncStatistics `json:"statistics"`
}

// ResultStatus is the reconciliation outcome of one item sent to the registry.
type ResultStatus string

const (
	ResultFound        ResultStatus = "found"
	ResultNotFound     ResultStatus = "not_found"
	ResultUnregistered ResultStatus = "unregistered"
	ResultWrittenOff   ResultStatus = "written_off"
)

// ResultItem is one reconciled entry uploaded to the registry.
type ResultItem struct {
	AssetCode         string       `json:"asset_code,omitempty"`
	Identifier        string       `json:"identifier,omitempty"`
	Status            ResultStatus `json:"status"`
	ReadMethod        ReadMethod   `json:"read_method,omitempty"`
	PhysicalCondition string       `json:"physical_condition,omitempty"`
	Observations      string       `json:"observations,omitempty"`
	ReadAt            *time.Time   `json:"read_at,omitempty"`
	Photos            []string     `json:"photos,omitempty"`
}

// ResultUpload is the payload pushed to the registry for a completed session.
type ResultUpload struct {
	SessionID     string       `json:"session_id"`
	SessionCode   string       `json:"session_code"`
	IncludePhotos bool         `json:"include_photos"`
	Items         []ResultItem `json:"items"`
}

// TransmissionReceipt is the registry acknowledgment of an upload.
type TransmissionReceipt struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	TransmissionNumber string `json:"transmission_number"`
	InventoryID        string `json:"inventory_id"`
	ItemsSent          int    `json:"items_sent"`
}
