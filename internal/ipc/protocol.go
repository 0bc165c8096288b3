package ipc

import (
	"encoding/json"
	"fmt"
)

// CommandType represents different relay command types
type CommandType string

const (
	// CommandJoin attaches the connection to a broadcast channel. Every later
	// line the client writes is fanned out to the channel's other members.
	CommandJoin CommandType = "JOIN"
	// CommandStatus reports the relay's channels and closes the connection.
	CommandStatus CommandType = "STATUS"
)

const (
	statusOK    = "OK"
	statusError = "ERROR"
)

// Request is the first line a client sends.
type Request struct {
	Command CommandType `json:"command"`
	Channel string      `json:"channel,omitempty"`
}

// Response represents the relay's reply to a Request
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by STATUS
type StatusData struct {
	Channels      map[string]int `json:"channels"`
	Dropped       uint64         `json:"dropped"`
	UptimeSeconds int64          `json:"uptime_seconds"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: statusOK,
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: statusError,
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
