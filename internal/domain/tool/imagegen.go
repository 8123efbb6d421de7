package tool

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// GeneratedImage is one produced image, either inline base64 or by URL.
type GeneratedImage struct {
	B64JSON string `json:"b64_json,omitempty"`
	URL     string `json:"url,omitempty"`
}

// ImageGenerator is the backend the image_generation tool calls.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, size string) ([]GeneratedImage, error)
}

// ImageGeneration turns a text prompt into images via the configured
// generation backend.
type ImageGeneration struct {
	generator ImageGenerator
}

// NewImageGeneration wires the image_generation tool.
func NewImageGeneration(generator ImageGenerator) *ImageGeneration {
	return &ImageGeneration{generator: generator}
}

func (i *ImageGeneration) Name() string { return TypeImageGeneration }

var imageGenerationSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"prompt": {
			"type": "string",
			"description": "Description of the image to generate."
		},
		"size": {
			"type": "string",
			"description": "Optional size such as 1024x1024."
		}
	},
	"required": ["prompt"]
}`)

func (i *ImageGeneration) Definition() openai.Tool {
	return FunctionDef(TypeImageGeneration, "Generate an image from a text prompt.", imageGenerationSchema)
}

type imageGenerationArgs struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

func (i *ImageGeneration) Execute(ctx context.Context, arguments string, exec *ExecContext) (string, error) {
	var args imageGenerationArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("image_generation arguments: %w", err)
	}
	if args.Prompt == "" {
		return "", fmt.Errorf("image_generation requires a prompt")
	}

	exec.EmitEvent("image_generation.generating", map[string]any{"prompt": args.Prompt})
	images, err := i.generator.Generate(ctx, args.Prompt, args.Size)
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(map[string]any{"images": images})
	if err != nil {
		return "", fmt.Errorf("encode image_generation output: %w", err)
	}
	return string(encoded), nil
}
