package server

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance for request validation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WSResult is the generic command response envelope.
type WSResult struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// decodeAndValidate decodes the command payload into data and validates
// it. A false return means an error response was already queued.
func decodeAndValidate[T any](cmd WSCommand, c *Client, data *T) bool {
	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, data); err != nil {
			sendError(c, cmd, fmt.Errorf("invalid JSON: %w", err))
			return false
		}
	}
	if err := validate.Struct(data); err != nil {
		sendError(c, cmd, err)
		return false
	}
	return true
}

// sendResult queues a success response for a command.
func sendResult(c *Client, cmd WSCommand, data any) {
	c.Send(WSResult{Type: cmd.Type, ID: cmd.ID, Success: true, Data: data})
}

// sendError queues an error response for a command.
func sendError(c *Client, cmd WSCommand, err error) {
	c.Send(WSResult{Type: cmd.Type, ID: cmd.ID, Success: false, Error: err.Error()})
}
