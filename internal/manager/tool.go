package manager

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"discord-voice-agent/internal/tool"
)

// registerVoiceTool exposes join/leave/speak/status as a single tool so the
// agent can drive its own voice presence (e.g. "join my voice channel and
// read me the standup notes") from an ordinary text turn, not just from the
// management RPC.
func (m *Manager) registerVoiceTool() {
	def := tool.Definition{
		Name:        "discord_voice",
		Description: "Join, leave, speak in, or check the status of a Discord guild's voice channel.",
		Parameters: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"action": map[string]any{
					"type":        "string",
					"enum":        []string{"join", "leave", "speak", "status"},
					"description": "Which voice operation to perform.",
				},
				"guildId": map[string]any{
					"type":        "string",
					"description": "The Discord guild id to operate on.",
				},
				"channelId": map[string]any{
					"type":        "string",
					"description": "The voice channel id to join. Required for action=join.",
				},
				"text": map[string]any{
					"type":        "string",
					"description": "Text for the bot to speak. Required for action=speak.",
				},
			},
			Required: []string{"action", "guildId"},
		},
	}
	m.registry.Register(def, m.handleVoiceTool)
}

func (m *Manager) handleVoiceTool(_ context.Context, args map[string]any) (any, error) {
	action, _ := args["action"].(string)
	guildID, _ := args["guildId"].(string)
	if guildID == "" {
		return nil, fmt.Errorf("guildId is required")
	}

	switch action {
	case "join":
		channelID, _ := args["channelId"].(string)
		if channelID == "" {
			return nil, fmt.Errorf("channelId is required for action=join")
		}
		mode, err := m.Join(guildID, channelID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"joined": true, "mode": string(mode)}, nil

	case "leave":
		if err := m.Leave(guildID); err != nil {
			return nil, err
		}
		return map[string]any{"left": true}, nil

	case "speak":
		text, _ := args["text"].(string)
		if text == "" {
			return nil, fmt.Errorf("text is required for action=speak")
		}
		if err := m.Speak(guildID, text); err != nil {
			return nil, err
		}
		return map[string]any{"spoken": true}, nil

	case "status":
		st := m.Status(guildID)
		return map[string]any{"active": st.Active, "state": st.State, "mode": st.Mode}, nil

	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}
