package models

import (
	"fmt"
	"net/url"
)

// DeviceLink builds the URI that hands a capture off to the companion app,
// e.g. inventario://reading?type=RFID&session_id=abc.
func DeviceLink(scheme string, readingType ReadingType, sessionID string) string {
	return fmt.Sprintf("%s://reading?type=%s&session_id=%s",
		scheme, url.QueryEscape(string(readingType)), url.QueryEscape(sessionID))
}
