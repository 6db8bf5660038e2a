package ws

import (
	"encoding/json"

	"github.com/louisbranch/charsheet/internal/services/sheet/domain/sheet"
)

// ProtocolVersion is the wire protocol version clients must announce.
const ProtocolVersion = "1"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeEvent   = "EVENT"
	TypeWelcome = "WELCOME"
	TypeUpdate  = "UPDATE"
	TypeError   = "ERROR"
)

// BaseMsg carries the type of any message.
type BaseMsg struct {
	Type string `json:"type"`
}

// DecodeBase reads only the message type.
func DecodeBase(b []byte) (BaseMsg, error) {
	var base BaseMsg
	err := json.Unmarshal(b, &base)
	return base, err
}

// HelloMsg opens a sheet.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SheetID         string `json:"sheet_id"`
	Locale          string `json:"locale,omitempty"`
}

// EventMsg is one user interaction. Event is one of focus, input, blur, key,
// outside, confirm, cancel, ledger_input, snapshot.
type EventMsg struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	FieldID string `json:"field_id,omitempty"`
	Text    string `json:"text,omitempty"`
	Key     string `json:"key,omitempty"`
}

// WelcomeMsg answers HELLO with the committed sheet.
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Locale          string         `json:"locale"`
	Sheet           sheet.Snapshot `json:"sheet"`
}

// ErrorMsg is a localized error.
type ErrorMsg struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	// Recoverable errors leave the committed sheet untouched; the user may
	// retype or cancel.
	Recoverable bool      `json:"recoverable"`
	Reason      *ErrorMsg `json:"reason,omitempty"`
}

// PreviewMsg is the display of an open edit.
type PreviewMsg struct {
	FieldID     string    `json:"field_id"`
	Direction   string    `json:"direction"`
	Cost        int       `json:"cost"`
	Refund      int       `json:"refund"`
	NewSteps    int       `json:"new_steps"`
	CurrentXP   int       `json:"current_xp"`
	SpentXP     int       `json:"spent_xp"`
	TotalXP     int       `json:"total_xp"`
	Final       int       `json:"final"`
	Confirmable bool      `json:"confirmable"`
	Label       string    `json:"label"`
	Error       *ErrorMsg `json:"error,omitempty"`
}

// RestoredMsg tells the client which committed text to put back.
type RestoredMsg struct {
	FieldID string `json:"field_id"`
	RawText string `json:"raw"`
	Steps   int    `json:"steps"`
}

// UpdateMsg reports the outcome of one event.
type UpdateMsg struct {
	Type      string          `json:"type"`
	Event     string          `json:"event"`
	FieldID   string          `json:"field_id,omitempty"`
	State     string          `json:"state"`
	Preview   *PreviewMsg     `json:"preview,omitempty"`
	Hidden    bool            `json:"hidden,omitempty"`
	Restored  *RestoredMsg    `json:"restored,omitempty"`
	Committed string          `json:"committed,omitempty"`
	Sheet     *sheet.Snapshot `json:"sheet,omitempty"`
	Error     *ErrorMsg       `json:"error,omitempty"`
}
