// Package rpc implements the framed RPC multiplexer of spec.md §4.1: one
// duplex frame stream carries both server-side service calls and
// client-side proxy calls, multiplexed by a numeric frame kind and
// correlated by (service, id).
package rpc

import (
	"encoding/json"

	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
)

// Kind is a frame's numeric type tag. Values are stable wire constants.
type Kind int

const (
	EVENT             Kind = 0
	REQUEST           Kind = 1
	REPLY_VALUE       Kind = 2
	REPLY_ERROR       Kind = 3
	REPLY_STREAM      Kind = 4
	STREAM_INPUT_DATA Kind = 5
	STREAM_INPUT_END  Kind = 6
	STREAM_OUTPUT_DATA Kind = 7
	STREAM_OUTPUT_END Kind = 8
)

func (k Kind) String() string {
	switch k {
	case EVENT:
		return "EVENT"
	case REQUEST:
		return "REQUEST"
	case REPLY_VALUE:
		return "REPLY_VALUE"
	case REPLY_ERROR:
		return "REPLY_ERROR"
	case REPLY_STREAM:
		return "REPLY_STREAM"
	case STREAM_INPUT_DATA:
		return "STREAM_INPUT_DATA"
	case STREAM_INPUT_END:
		return "STREAM_INPUT_END"
	case STREAM_OUTPUT_DATA:
		return "STREAM_OUTPUT_DATA"
	case STREAM_OUTPUT_END:
		return "STREAM_OUTPUT_END"
	default:
		return "UNKNOWN"
	}
}

// Frame is the unit of the wire protocol, per spec.md §4.1.
type Frame struct {
	Type    Kind            `json:"type"`
	Service string          `json:"service"`
	ID      int64           `json:"id"`
	Name    *string         `json:"name,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the shape carried by a REPLY_ERROR frame's Data.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Validate reproduces the per-kind validation table of spec.md §4.1
// exactly. A failing frame is fatal to the connection.
func (f *Frame) Validate() error {
	if f.ID < 0 {
		return collaberrors.NewInvalidEntity("rpc", "Validate", "Frame", f, "id")
	}

	switch f.Type {
	case EVENT:
		if f.Name == nil {
			return collaberrors.NewInvalidEntity("rpc", "Validate", "Frame", f, "name")
		}
	case REQUEST:
		if f.Name == nil {
			return collaberrors.NewInvalidEntity("rpc", "Validate", "Frame", f, "name")
		}
		if !isJSONArray(f.Data) {
			return collaberrors.NewInvalidEntity("rpc", "Validate", "Frame", f, "data")
		}
	case REPLY_VALUE:
		if f.Name != nil {
			return collaberrors.NewInvalidEntity("rpc", "Validate", "Frame", f, "name")
		}
	case REPLY_ERROR:
		if isJSONNull(f.Data) || isJSONArray(f.Data) {
			return collaberrors.NewInvalidEntity("rpc", "Validate", "Frame", f, "data")
		}
	case REPLY_STREAM:
		if !isJSONNull(f.Data) {
			return collaberrors.NewInvalidEntity("rpc", "Validate", "Frame", f, "data")
		}
	case STREAM_INPUT_DATA, STREAM_INPUT_END, STREAM_OUTPUT_DATA, STREAM_OUTPUT_END:
		if isJSONNull(f.Data) {
			return collaberrors.NewInvalidEntity("rpc", "Validate", "Frame", f, "data")
		}
	default:
		return collaberrors.NewInvalidEntity("rpc", "Validate", "Frame", f, "type")
	}
	return nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func isJSONArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
