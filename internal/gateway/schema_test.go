package gateway

import (
	"encoding/json"
	"testing"
)

func TestValidateClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     ClientMessage
		wantErr bool
	}{
		{"ping needs no payload", ClientMessage{Type: ClientPing}, false},
		{"chat requires content", ClientMessage{Type: ClientChat, Payload: json.RawMessage(`{}`)}, true},
		{"chat with content", ClientMessage{Type: ClientChat, Payload: json.RawMessage(`{"content":"hi"}`)}, false},
		{"command requires name", ClientMessage{Type: ClientCommand, Payload: json.RawMessage(`{}`)}, true},
		{"command with name", ClientMessage{Type: ClientCommand, Payload: json.RawMessage(`{"name":"stop"}`)}, false},
		{"connect with no payload is valid", ClientMessage{Type: ClientConnect}, false},
		{"unknown type rejected", ClientMessage{Type: "Bogus"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateClientMessage(tt.msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateClientMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
