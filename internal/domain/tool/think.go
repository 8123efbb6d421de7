package tool

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Think gives the model a scratchpad. The thought is echoed back unchanged;
// its value is the extra reasoning turn, not the output.
type Think struct{}

// NewThink wires the think tool.
func NewThink() *Think { return &Think{} }

func (t *Think) Name() string { return TypeThink }

var thinkSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"thought": {
			"type": "string",
			"description": "A thought to record before continuing."
		}
	},
	"required": ["thought"]
}`)

func (t *Think) Definition() openai.Tool {
	return FunctionDef(TypeThink, "Record a thought. Use when reasoning through a multi-step problem.", thinkSchema)
}

type thinkArgs struct {
	Thought string `json:"thought"`
}

func (t *Think) Execute(_ context.Context, arguments string, _ *ExecContext) (string, error) {
	var args thinkArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("think arguments: %w", err)
	}
	return args.Thought, nil
}
