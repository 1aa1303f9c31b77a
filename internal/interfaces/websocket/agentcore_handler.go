package websocket

import (
	"context"

	"github.com/archflow/agentrun/internal/domain/agentcore"
	"go.uber.org/zap"
)

// NewAgentCoreHandler returns a Hub message handler that drives the
// agentcore Engine on each chat message and streams its Events back to
// the originating client, for callers that prefer a full-duplex socket
// over the HTTP/SSE agent endpoint.
func NewAgentCoreHandler(engine *agentcore.Engine, logger *zap.Logger) func(*Client, *WSMessage) {
	return func(client *Client, msg *WSMessage) {
		if msg.Type != MessageTypeChat {
			return
		}
		for evt := range engine.ExecuteStep(context.Background(), msg.Content) {
			out := convertEngineEvent(msg.ID, evt)
			if out == nil {
				continue
			}
			client.SendMessage(out)
		}
	}
}

func convertEngineEvent(id string, evt agentcore.Event) *WSMessage {
	switch evt.Kind {
	case agentcore.EventMessage:
		return &WSMessage{Type: MessageTypeStream, ID: id, Content: evt.Text}
	case agentcore.EventToolCalling:
		name := ""
		if evt.ToolCall != nil {
			name = evt.ToolCall.Name
		}
		return &WSMessage{Type: MessageTypeToolCall, ID: id, Content: name}
	case agentcore.EventToolCalled:
		return &WSMessage{Type: MessageTypeToolResult, ID: id, Content: evt.Result}
	case agentcore.EventError:
		return &WSMessage{Type: MessageTypeError, ID: id, Content: evt.Text}
	default:
		return nil
	}
}
