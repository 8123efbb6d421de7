package responses

import (
	"encoding/base64"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const thinkOpen, thinkClose = "<think>", "</think>"

// extractThink splits reasoning wrapped in <think> tags off the visible
// text. Unclosed tags leave the text untouched.
func extractThink(text string) (reasoning, rest string) {
	start := strings.Index(text, thinkOpen)
	if start < 0 {
		return "", text
	}
	end := strings.Index(text[start:], thinkClose)
	if end < 0 {
		return "", text
	}
	end += start
	reasoning = strings.TrimSpace(text[start+len(thinkOpen) : end])
	rest = strings.TrimSpace(text[:start] + text[end+len(thinkClose):])
	return reasoning, rest
}

const base64ImageProbe = 256

// looksLikeBase64Image reports whether text is base64 image bytes rather
// than prose. Data URLs count; otherwise a long single-token base64 blob
// that decodes to a known image magic number counts.
func looksLikeBase64Image(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "data:image/") {
		return true
	}
	if len(trimmed) < base64ImageProbe || strings.ContainsAny(trimmed, " \n\t") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed[:base64ImageProbe/4*4])
	if err != nil {
		return false
	}
	return hasImageMagic(decoded)
}

func hasImageMagic(b []byte) bool {
	switch {
	case len(b) > 3 && b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF: // jpeg
		return true
	case len(b) > 8 && string(b[1:4]) == "PNG":
		return true
	case len(b) > 6 && string(b[:3]) == "GIF":
		return true
	case len(b) > 12 && string(b[8:12]) == "WEBP":
		return true
	}
	return false
}

// itemsFromMessage converts one upstream assistant message into output
// items in the order Reasoning?, Message?, FunctionCall list.
func itemsFromMessage(msg openai.ChatCompletionMessage) []Item {
	var items []Item

	reasoning := strings.TrimSpace(msg.ReasoningContent)
	text := msg.Content
	if extracted, rest := extractThink(text); extracted != "" {
		if reasoning == "" {
			reasoning = extracted
		}
		text = rest
	}
	if reasoning != "" {
		items = append(items, Item{
			ID:      NewItemID("rs"),
			Type:    ItemTypeReasoning,
			Status:  ItemStatusCompleted,
			Summary: []ContentPart{{Type: "summary_text", Text: reasoning}},
		})
	}
	if text != "" {
		contentType := ContentTypeOutputText
		if looksLikeBase64Image(text) {
			contentType = ContentTypeOutputImage
		}
		items = append(items, Item{
			ID:      NewItemID("msg"),
			Type:    ItemTypeMessage,
			Status:  ItemStatusCompleted,
			Role:    "assistant",
			Content: []ContentPart{{Type: contentType, Text: text}},
		})
	}
	for _, call := range msg.ToolCalls {
		callID := call.ID
		if callID == "" {
			callID = NewItemID("call")
		}
		items = append(items, Item{
			ID:        NewItemID("fc"),
			Type:      ItemTypeFunctionCall,
			Status:    ItemStatusCompleted,
			CallID:    callID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return items
}

// messagesFromItems rebuilds the upstream chat transcript from stored
// items. Reasoning items do not round-trip upstream.
func messagesFromItems(items []Item) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	for _, item := range items {
		switch item.Type {
		case ItemTypeMessage, "":
			role := item.Role
			switch role {
			case "", "user":
				role = openai.ChatMessageRoleUser
			case "developer", "system":
				role = openai.ChatMessageRoleSystem
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    role,
				Content: item.TextContent(),
			})
		case ItemTypeFunctionCall:
			messages = append(messages, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   item.CallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      item.Name,
						Arguments: item.Arguments,
					},
				}},
			})
		case ItemTypeFunctionCallOutput:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    item.Output,
				ToolCallID: item.CallID,
			})
		case ItemTypeReasoning:
			// not replayed upstream
		}
	}
	return messages
}

// toolCallAccum rebuilds one tool call from stream deltas.
type toolCallAccum struct {
	id        string
	name      string
	arguments strings.Builder
}

// StreamAccumulator reconstructs a logical chat completion from stream
// chunks: text concatenated, tool calls bucketed by index with the first
// non-empty id and name winning and arguments concatenated in arrival
// order.
type StreamAccumulator struct {
	content      strings.Builder
	reasoning    strings.Builder
	toolCalls    map[int]*toolCallAccum
	finishReason openai.FinishReason
	promptTokens int
	outputTokens int
}

// NewStreamAccumulator creates an empty accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{toolCalls: make(map[int]*toolCallAccum)}
}

// Add folds one upstream chunk into the accumulator.
func (a *StreamAccumulator) Add(chunk *openai.ChatCompletionStreamResponse) {
	if chunk.Usage != nil {
		a.promptTokens = chunk.Usage.PromptTokens
		a.outputTokens = chunk.Usage.CompletionTokens
	}
	if len(chunk.Choices) == 0 {
		return
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != "" {
		a.finishReason = choice.FinishReason
	}
	a.content.WriteString(choice.Delta.Content)
	a.reasoning.WriteString(choice.Delta.ReasoningContent)
	for _, call := range choice.Delta.ToolCalls {
		index := 0
		if call.Index != nil {
			index = *call.Index
		}
		accum, ok := a.toolCalls[index]
		if !ok {
			accum = &toolCallAccum{}
			a.toolCalls[index] = accum
		}
		if accum.id == "" && call.ID != "" {
			accum.id = call.ID
		}
		if accum.name == "" && call.Function.Name != "" {
			accum.name = call.Function.Name
		}
		accum.arguments.WriteString(call.Function.Arguments)
	}
}

// FinishReason returns the last finish reason seen.
func (a *StreamAccumulator) FinishReason() openai.FinishReason {
	return a.finishReason
}

// Usage returns accumulated token counts, when the upstream reported them.
func (a *StreamAccumulator) Usage() (prompt, output int) {
	return a.promptTokens, a.outputTokens
}

// Message returns the reconstructed assistant message.
func (a *StreamAccumulator) Message() openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:             openai.ChatMessageRoleAssistant,
		Content:          a.content.String(),
		ReasoningContent: a.reasoning.String(),
	}
	indexes := make([]int, 0, len(a.toolCalls))
	for index := range a.toolCalls {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)
	for _, index := range indexes {
		accum := a.toolCalls[index]
		position := index
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			Index: &position,
			ID:    accum.id,
			Type:  openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      accum.name,
				Arguments: accum.arguments.String(),
			},
		})
	}
	return msg
}
