package etherpad

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Etherpad API response codes.
const (
	CodeOK            = 0
	CodeWrongParams   = 1
	CodeInternalError = 2
	CodeNoSuchFunc    = 3
	CodeWrongAPIKey   = 4
)

// ServerError reports any failure while talking to Etherpad.
type ServerError struct {
	Method string
	// Status is the HTTP status of the response, zero when no response was received.
	Status int
	// Code is the Etherpad application code, zero for transport failures.
	Code    int
	Message string
	Err     error
}

func (e *ServerError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("etherpad")
	if e.Method != "" {
		b.WriteString(" ")
		b.WriteString(e.Method)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " code=%d", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *ServerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsServerError reports whether err carries a *ServerError.
func IsServerError(err error) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr)
}

// IsNotFound reports whether Etherpad rejected the call because the target
// (pad, session, group) does not exist anymore.
func IsNotFound(err error) bool {
	var serverErr *ServerError
	if !errors.As(err, &serverErr) || serverErr.Code != CodeWrongParams {
		return false
	}
	message := strings.ToLower(serverErr.Message)
	return strings.Contains(message, "does not exist") || strings.Contains(message, "doesn't exist")
}

// SessionInfo describes one Etherpad session. ValidUntil is in Unix seconds;
// zero means the value was missing or malformed.
type SessionInfo struct {
	GroupID    string
	AuthorID   string
	ValidUntil int64
}

type rawSessionInfo struct {
	GroupID    string          `json:"groupID"`
	AuthorID   string          `json:"authorID"`
	ValidUntil json.RawMessage `json:"validUntil"`
}

func decodeSessionInfo(entry json.RawMessage) *SessionInfo {
	trimmed := strings.TrimSpace(string(entry))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var raw rawSessionInfo
	if err := json.Unmarshal(entry, &raw); err != nil {
		return &SessionInfo{}
	}
	return &SessionInfo{
		GroupID:    raw.GroupID,
		AuthorID:   raw.AuthorID,
		ValidUntil: parseValidUntil(raw.ValidUntil),
	}
}

func parseValidUntil(value json.RawMessage) int64 {
	if len(value) == 0 {
		return 0
	}
	var number float64
	if err := json.Unmarshal(value, &number); err != nil {
		return 0
	}
	if math.IsNaN(number) || math.IsInf(number, 0) || number <= 0 || number >= math.MaxInt64 {
		return 0
	}
	return int64(number)
}
