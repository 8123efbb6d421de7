package tool

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// PythonRunner executes python code in an external sandbox and returns its
// combined output. Execution is an opaque RPC; the gateway never runs code
// in process.
type PythonRunner interface {
	Run(ctx context.Context, code string) (string, error)
}

// Python forwards code to the sandbox runner. The tool is registered only
// when a sandbox URL is configured.
type Python struct {
	runner PythonRunner
}

// NewPython wires the python tool.
func NewPython(runner PythonRunner) *Python {
	return &Python{runner: runner}
}

func (p *Python) Name() string { return TypePython }

var pythonSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"code": {
			"type": "string",
			"description": "Python source to execute in the sandbox."
		}
	},
	"required": ["code"]
}`)

func (p *Python) Definition() openai.Tool {
	return FunctionDef(TypePython, "Execute python code in a sandbox and return its output.", pythonSchema)
}

type pythonArgs struct {
	Code string `json:"code"`
}

func (p *Python) Execute(ctx context.Context, arguments string, exec *ExecContext) (string, error) {
	var args pythonArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("python arguments: %w", err)
	}
	if args.Code == "" {
		return "", fmt.Errorf("python requires code")
	}
	exec.EmitEvent("python.executing", nil)
	return p.runner.Run(ctx, args.Code)
}
