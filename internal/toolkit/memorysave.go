package toolkit

import (
	"context"
	"fmt"

	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/rs/zerolog"

	"github.com/ergon73/langchain-cli-multi-agent/internal/memstore"
)

// MemorySaveTool appends a conversation exchange to the persistent memory file.
type MemorySaveTool struct {
	store *memstore.Store
	log   zerolog.Logger
}

func NewMemorySaveTool(deps Deps) *MemorySaveTool {
	return &MemorySaveTool{
		store: deps.Store,
		log:   deps.Logger.With().Str("tool", "memory_save").Logger(),
	}
}

func (t *MemorySaveTool) Name() string { return "memory_save" }

func (t *MemorySaveTool) Description() string {
	return "Save an important conversation exchange to long-term memory so it survives restarts."
}

func (t *MemorySaveTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"user_message": map[string]interface{}{
				"type":        "string",
				"description": "The user message to remember",
			},
			"agent_response": map[string]interface{}{
				"type":        "string",
				"description": "The assistant response to remember",
			},
			"summary": map[string]interface{}{
				"type":        "string",
				"description": "Short summary of why this exchange matters",
			},
		},
		Required: []string{"user_message", "agent_response", "summary"},
	}
}

func (t *MemorySaveTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	userMessage, err := stringParam(params, "user_message")
	if err != nil {
		return failure("Ошибка при сохранении в память: %v", err)
	}
	agentResponse, err := stringParam(params, "agent_response")
	if err != nil {
		return failure("Ошибка при сохранении в память: %v", err)
	}
	summary, err := stringParam(params, "summary")
	if err != nil {
		return failure("Ошибка при сохранении в память: %v", err)
	}

	total, err := t.store.Save(userMessage, agentResponse, summary)
	if err != nil {
		t.log.Error().Err(err).Msg("memory save failed")
		return failure("Ошибка при сохранении в память: %v", err)
	}

	t.log.Info().Int("total", total).Msg("exchange saved")
	return success(fmt.Sprintf("💾 Разговор сохранён в память.\nВсего записей: %d", total))
}
