package models

import "time"

// SessionStatus enumerates the lifecycle states of an inventory session.
type SessionStatus string

const (
	SessionDraft      SessionStatus = "draft"
	SessionInProgress SessionStatus = "in_progress"
	SessionPaused     SessionStatus = "paused"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

// SessionOp names a lifecycle operation on an inventory session.
type SessionOp string

const (
	OpStart    SessionOp = "start"
	OpPause    SessionOp = "pause"
	OpComplete SessionOp = "complete"
	OpCancel   SessionOp = "cancel"
)

// InventorySession is one field inventory campaign.
type InventorySession struct {
	ID          string        `bson:"_id" json:"id"`
	Code        string        `bson:"code" json:"code"`
	Name        string        `bson:"name" json:"name"`
	Description string        `bson:"description,omitempty" json:"description,omitempty"`
	Status      SessionStatus `bson:"status" json:"status"`
	CreatedAt   time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at" json:"updated_at"`
}

// CreateSessionRequest is the payload accepted when opening a new session.
type CreateSessionRequest struct {
	Code        string `json:"code" binding:"required" validate:"required,max=64"`
	Name        string `json:"name" binding:"required" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// IsTerminal reports whether no further lifecycle operation is allowed.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// AllowsSync reports whether expected assets may still be pulled.
func (s SessionStatus) AllowsSync() bool {
	return s == SessionDraft || s == SessionInProgress || s == SessionPaused
}

// Transition computes the status reached by applying op to the current
// status. changed is false when the operation is an idempotent no-op
// (start on in_progress, pause on paused, complete on completed, cancel on
// cancelled).
func (s SessionStatus) Transition(op SessionOp) (next SessionStatus, changed bool, err error) {
	switch op {
	case OpStart:
		switch s {
		case SessionDraft, SessionPaused:
			return SessionInProgress, true, nil
		case SessionInProgress:
			return s, false, nil
		}
	case OpPause:
		switch s {
		case SessionInProgress:
			return SessionPaused, true, nil
		case SessionPaused:
			return s, false, nil
		}
	case OpComplete:
		switch s {
		case SessionInProgress, SessionPaused:
			return SessionCompleted, true, nil
		case SessionCompleted:
			return s, false, nil
		}
	case OpCancel:
		switch s {
		case SessionDraft, SessionInProgress, SessionPaused:
			return SessionCancelled, true, nil
		case SessionCancelled:
			return s, false, nil
		}
	}
	return s, false, &TransitionError{Entity: "inventory_session", From: string(s), Op: string(op)}
}
