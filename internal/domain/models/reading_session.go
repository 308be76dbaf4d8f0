package models

import "time"

// ReadingType is the capture technology used by a companion device.
type ReadingType string

const (
	ReadingTypeRFID    ReadingType = "RFID"
	ReadingTypeBarcode ReadingType = "BARCODE"
)

// DeviceSessionStatus enumerates the states of a device reading session.
type DeviceSessionStatus string

const (
	DeviceActive    DeviceSessionStatus = "ACTIVE"
	DeviceCompleted DeviceSessionStatus = "COMPLETED"
	DeviceCancelled DeviceSessionStatus = "CANCELLED"
	DeviceExpired   DeviceSessionStatus = "EXPIRED"
)

// DeviceReadingSession binds a companion scanning app to one user for the
// duration of a capture activity.
type DeviceReadingSession struct {
	ID             string              `bson:"_id" json:"id"`
	ReadingType    ReadingType         `bson:"reading_type" json:"reading_type"`
	Status         DeviceSessionStatus `bson:"status" json:"status"`
	UserID         string              `bson:"user_id" json:"user_id"`
	ProjectID      string              `bson:"project_id,omitempty" json:"project_id,omitempty"`
	Location       string              `bson:"location,omitempty" json:"location,omitempty"`
	TimeoutSeconds int                 `bson:"timeout_seconds" json:"timeout_seconds"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at" json:"updated_at"`
}

// ExpiresAt is derived from the creation time and timeout; it is never stored.
func (s DeviceReadingSession) ExpiresAt() time.Time {
	return s.CreatedAt.Add(time.Duration(s.TimeoutSeconds) * time.Second)
}

// Remaining returns the time left before expiry, floored at zero.
func (s DeviceReadingSession) Remaining(now time.Time) time.Duration {
	left := s.ExpiresAt().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// EffectiveStatus is the status as observed at now: an ACTIVE session past
// its expiry is reported EXPIRED even if the store has not caught up.
func (s DeviceReadingSession) EffectiveStatus(now time.Time) DeviceSessionStatus {
	if s.Status == DeviceActive && now.After(s.ExpiresAt()) {
		return DeviceExpired
	}
	return s.Status
}

// IsActive reports whether the session still accepts readings at now.
func (s DeviceReadingSession) IsActive(now time.Time) bool {
	return s.EffectiveStatus(now) == DeviceActive
}

// SessionReading is a device-originated read attributed to a device
// reading session.
type SessionReading struct {
	ID         string    `bson:"_id" json:"id"`
	SessionID  string    `bson:"session_id" json:"session_id"`
	Identifier string    `bson:"identifier" json:"identifier"`
	ReadAt     time.Time `bson:"read_at" json:"read_at"`
}

// CreateReadingSessionRequest starts a device capture.
type CreateReadingSessionRequest struct {
	ReadingType    ReadingType `json:"reading_type" validate:"required,oneof=RFID BARCODE"`
	ProjectID      string      `json:"project_id,omitempty"`
	Location       string      `json:"location,omitempty" validate:"max=128"`
	TimeoutSeconds int         `json:"timeout_seconds" validate:"gte=0"`
}

// DeviceReadingRequest is a read pushed by the companion app.
type DeviceReadingRequest struct {
	Identifier string `json:"identifier" validate:"required,max=128"`
}

// ReadingsSnapshot is the full current set of readings of a device session
// together with its authoritative status.
type ReadingsSnapshot struct {
	SessionID string              `json:"session_id"`
	Status    DeviceSessionStatus `json:"status"`
	ExpiresAt time.Time           `json:"expires_at"`
	Readings  []SessionReading    `json:"readings"`
}

// Caller identifies who issues a request; Privileged callers may act on
// sessions they do not own.
type Caller struct {
	UserID     string
	Privileged bool
}

// CanManage reports whether the caller may complete or cancel s.
func (c Caller) CanManage(s DeviceReadingSession) bool {
	return c.Privileged || (c.UserID != "" && c.UserID == s.UserID)
}

// ReadMethod maps the capture technology to the reading method recorded on
// committed readings.
func (t ReadingType) ReadMethod() ReadMethod {
	if t == ReadingTypeRFID {
		return ReadRFID
	}
	return ReadBarcode
}

// DeviceReadingSessionView is the API representation of a device session
// with its derived fields.
type DeviceReadingSessionView struct {
	DeviceReadingSession
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
	DeepLink         string    `json:"deep_link"`
}
