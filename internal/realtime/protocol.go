package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// EventJoinUserRoom is the client message that admits a connection to its room.
	EventJoinUserRoom = "join-user-room"
	// EventError is sent back to a client whose message was rejected.
	EventError = "error"
)

var (
	errEmptyFrame       = errors.New("realtime: empty frame")
	errMissingEventName = errors.New("realtime: frame missing event name")
	errInvalidUserID    = errors.New("realtime: invalid user id in join payload")
)

// Frame is the envelope exchanged in both directions over the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorData is the payload of an EventError frame.
type ErrorData struct {
	Message string `json:"message"`
}

// EncodeFrame marshals an event and its payload into a single text frame.
func EncodeFrame(event string, data any) ([]byte, error) {
	if strings.TrimSpace(event) == "" {
		return nil, errMissingEventName
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("realtime: encode %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// DecodeFrame parses a text frame.
func DecodeFrame(message []byte) (Frame, error) {
	if len(bytes.TrimSpace(message)) == 0 {
		return Frame{}, errEmptyFrame
	}
	var frame Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		return Frame{}, fmt.Errorf("realtime: decode frame: %w", err)
	}
	if strings.TrimSpace(frame.Event) == "" {
		return Frame{}, errMissingEventName
	}
	return frame, nil
}

// ParseJoinPayload reads the user id carried by a join-user-room frame.
// Both a JSON number and a numeric string are accepted.
func ParseJoinPayload(data json.RawMessage) (int64, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return 0, errInvalidUserID
	}
	var number json.Number
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return 0, fmt.Errorf("%w: %v", errInvalidUserID, err)
		}
		number = json.Number(strings.TrimSpace(text))
	} else {
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		decoder.UseNumber()
		if err := decoder.Decode(&number); err != nil {
			return 0, fmt.Errorf("%w: %v", errInvalidUserID, err)
		}
	}
	userID, err := strconv.ParseInt(number.String(), 10, 64)
	if err != nil || userID <= 0 {
		return 0, errInvalidUserID
	}
	return userID, nil
}
