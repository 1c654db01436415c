package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema validation for inbound WS frames, grounded on
// internal/gateway/ws_schema.go's compile-once registry and
// CompileString-per-message-type pattern, adapted from that file's
// generic method/params dispatch to this spec's fixed named message
// set (Connect/Chat/Command/Ping).
type wsSchemaRegistry struct {
	once    sync.Once
	initErr error
	payload map[string]*jsonschema.Schema
}

var wsSchemas wsSchemaRegistry

func initWSSchemas() error {
	wsSchemas.once.Do(func() {
		schemas := map[string]string{
			ClientConnect: wsConnectPayloadSchema,
			ClientChat:    wsChatPayloadSchema,
			ClientCommand: wsCommandPayloadSchema,
		}
		wsSchemas.payload = make(map[string]*jsonschema.Schema, len(schemas))
		for name, raw := range schemas {
			compiled, err := jsonschema.CompileString("ws_"+name, raw)
			if err != nil {
				wsSchemas.initErr = err
				return
			}
			wsSchemas.payload[name] = compiled
		}
	})
	return wsSchemas.initErr
}

// validateClientMessage checks msg.Type is known and, for types with a
// declared schema, that msg.Payload conforms. Ping carries no payload
// and has no schema.
func validateClientMessage(msg ClientMessage) error {
	if err := initWSSchemas(); err != nil {
		return err
	}
	switch msg.Type {
	case ClientConnect, ClientChat, ClientCommand, ClientPing:
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	schema, ok := wsSchemas.payload[msg.Type]
	if !ok {
		return nil
	}
	var payload any
	if len(msg.Payload) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

const wsConnectPayloadSchema = `{
  "type": "object",
  "properties": {
    "token": { "type": "string" },
    "session_id": { "type": "string" }
  },
  "additionalProperties": true
}`

const wsChatPayloadSchema = `{
  "type": "object",
  "required": ["content"],
  "properties": {
    "session_id": { "type": "string" },
    "content": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const wsCommandPayloadSchema = `{
  "type": "object",
  "required": ["name"],
  "properties": {
    "session_id": { "type": "string" },
    "name": { "type": "string", "minLength": 1 },
    "args": { "type": "object" }
  },
  "additionalProperties": true
}`
