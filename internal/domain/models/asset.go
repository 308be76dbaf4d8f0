package models

import (
	"strings"
	"time"
)

// ExpectedAsset is an item the external registry says should be found
// during the inventory.
type ExpectedAsset struct {
	ID           string    `bson:"_id" json:"id"`
	SessionID    string    `bson:"session_id" json:"session_id"`
	AssetCode    string    `bson:"asset_code" json:"asset_code"`
	Description  string    `bson:"description" json:"description"`
	RFIDCode     string    `bson:"rfid_code,omitempty" json:"rfid_code,omitempty"`
	Barcode      string    `bson:"barcode,omitempty" json:"barcode,omitempty"`
	ExpectedUL   string    `bson:"expected_ul,omitempty" json:"expected_ul,omitempty"`
	ExpectedUA   string    `bson:"expected_ua,omitempty" json:"expected_ua,omitempty"`
	Category     string    `bson:"category,omitempty" json:"category,omitempty"`
	Verified     bool      `bson:"verified" json:"verified"`
	IsWrittenOff bool      `bson:"is_written_off" json:"is_written_off"`
	MatchKeys    []string  `bson:"match_keys" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// Matches reports whether a scanned identifier designates this asset.
func (a ExpectedAsset) Matches(identifier string) bool {
	id := NormalizeIdentifier(identifier)
	if id == "" {
		return false
	}
	for _, candidate := range []string{a.AssetCode, a.RFIDCode, a.Barcode} {
		if candidate != "" && NormalizeIdentifier(candidate) == id {
			return true
		}
	}
	return false
}

// Keys returns the normalized identifiers a reading may match this asset by.
func (a ExpectedAsset) Keys() []string {
	keys := make([]string, 0, 3)
	for _, candidate := range []string{a.AssetCode, a.RFIDCode, a.Barcode} {
		if k := NormalizeIdentifier(candidate); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// NormalizeIdentifier trims and upper-cases a scanned code so that reads
// from different devices compare equal.
func NormalizeIdentifier(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}

// ExpectedAssetFilter narrows an expected asset listing.
type ExpectedAssetFilter struct {
	Skip     int
	Limit    int
	Verified *bool
	Search   string
}

// ExpectedAssetPage is one page of expected assets.
type ExpectedAssetPage struct {
	Items []ExpectedAsset `json:"items"`
	Total int64           `json:"total"`
	Skip  int             `json:"skip"`
	Limit int             `json:"limit"`
}
