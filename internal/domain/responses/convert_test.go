package responses

import (
	"encoding/base64"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestExtractThink(t *testing.T) {
	tests := []struct {
		name          string
		in            string
		wantReasoning string
		wantRest      string
	}{
		{"no tags", "plain answer", "", "plain answer"},
		{"leading think", "<think>ponder</think>the answer", "ponder", "the answer"},
		{"unclosed", "<think>ponder forever", "", "<think>ponder forever"},
		{"only think", "<think>all reasoning</think>", "all reasoning", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasoning, rest := extractThink(tt.in)
			if reasoning != tt.wantReasoning || rest != tt.wantRest {
				t.Fatalf("got (%q, %q), want (%q, %q)", reasoning, rest, tt.wantReasoning, tt.wantRest)
			}
		})
	}
}

func TestLooksLikeBase64Image(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 400)...)
	encoded := base64.StdEncoding.EncodeToString(png)

	if !looksLikeBase64Image("data:image/png;base64,AAAA") {
		t.Fatal("data url should be detected")
	}
	if !looksLikeBase64Image(encoded) {
		t.Fatal("base64 png should be detected")
	}
	if looksLikeBase64Image("It's 10:00Z and all is well with this perfectly ordinary but fairly long sentence that keeps going on and on without ever becoming an image.") {
		t.Fatal("prose should not be detected")
	}
	if looksLikeBase64Image(strings.Repeat("A", 100)) {
		t.Fatal("short blob should not be detected")
	}
}

func TestItemsFromMessageOrder(t *testing.T) {
	msg := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: "<think>figure out the time</think>Checking now.",
		ToolCalls: []openai.ToolCall{
			{ID: "call_1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "get_time", Arguments: "{}"}},
		},
	}
	items := itemsFromMessage(msg)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0].Type != ItemTypeReasoning || items[1].Type != ItemTypeMessage || items[2].Type != ItemTypeFunctionCall {
		t.Fatalf("wrong order: %s %s %s", items[0].Type, items[1].Type, items[2].Type)
	}
	if items[0].Summary[0].Text != "figure out the time" {
		t.Fatalf("reasoning = %q", items[0].Summary[0].Text)
	}
	if items[1].TextContent() != "Checking now." {
		t.Fatalf("text = %q", items[1].TextContent())
	}
	if items[2].CallID != "call_1" || items[2].Name != "get_time" {
		t.Fatalf("unexpected call item %+v", items[2])
	}
}

func TestItemsFromMessageReasoningContentField(t *testing.T) {
	msg := openai.ChatCompletionMessage{
		Role:             openai.ChatMessageRoleAssistant,
		Content:          "done",
		ReasoningContent: "worked it through",
	}
	items := itemsFromMessage(msg)
	if len(items) != 2 || items[0].Type != ItemTypeReasoning {
		t.Fatalf("unexpected items %+v", items)
	}
}

func intp(v int) *int { return &v }

func TestStreamAccumulatorReconstruction(t *testing.T) {
	accum := NewStreamAccumulator()
	chunks := []openai.ChatCompletionStreamResponse{
		{Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{Content: "Hel"}}}},
		{Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{Content: "lo"}}}},
		{Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{
			ToolCalls: []openai.ToolCall{{Index: intp(0), ID: "call_a", Function: openai.FunctionCall{Name: "get_time", Arguments: `{"tz":`}}},
		}}}},
		{Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{
			ToolCalls: []openai.ToolCall{
				{Index: intp(0), Function: openai.FunctionCall{Arguments: `"UTC"}`}},
				{Index: intp(1), ID: "call_b", Function: openai.FunctionCall{Name: "lookup", Arguments: "{}"}},
			},
		}}}},
		{Choices: []openai.ChatCompletionStreamChoice{{FinishReason: openai.FinishReasonToolCalls}}},
	}
	for i := range chunks {
		accum.Add(&chunks[i])
	}

	msg := accum.Message()
	if msg.Content != "Hello" {
		t.Fatalf("content = %q", msg.Content)
	}
	if len(msg.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(msg.ToolCalls))
	}
	first := msg.ToolCalls[0]
	if first.ID != "call_a" || first.Function.Name != "get_time" || first.Function.Arguments != `{"tz":"UTC"}` {
		t.Fatalf("unexpected first call %+v", first)
	}
	if msg.ToolCalls[1].ID != "call_b" {
		t.Fatalf("unexpected second call %+v", msg.ToolCalls[1])
	}
	if accum.FinishReason() != openai.FinishReasonToolCalls {
		t.Fatalf("finish = %q", accum.FinishReason())
	}
}

func TestStreamAccumulatorFirstNonEmptyWins(t *testing.T) {
	accum := NewStreamAccumulator()
	add := func(id, name, args string) {
		accum.Add(&openai.ChatCompletionStreamResponse{Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{ToolCalls: []openai.ToolCall{{
				Index:    intp(0),
				ID:       id,
				Function: openai.FunctionCall{Name: name, Arguments: args},
			}}},
		}}})
	}
	add("", "", "a")
	add("call_1", "fn", "b")
	add("call_2", "other", "c")

	msg := accum.Message()
	call := msg.ToolCalls[0]
	if call.ID != "call_1" || call.Function.Name != "fn" {
		t.Fatalf("first non-empty id/name should win: %+v", call)
	}
	if call.Function.Arguments != "abc" {
		t.Fatalf("arguments = %q", call.Function.Arguments)
	}
}

func TestMessagesFromItems(t *testing.T) {
	items := []Item{
		{Type: ItemTypeMessage, Role: "user", Content: []ContentPart{{Type: ContentTypeInputText, Text: "hi"}}},
		{Type: ItemTypeFunctionCall, CallID: "call_1", Name: "get_time", Arguments: "{}"},
		{Type: ItemTypeFunctionCallOutput, CallID: "call_1", Output: "10:00Z"},
		{Type: ItemTypeReasoning, Summary: []ContentPart{{Type: "summary_text", Text: "skip me"}}},
	}
	messages := messagesFromItems(items)
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3 (reasoning dropped)", len(messages))
	}
	if messages[0].Role != openai.ChatMessageRoleUser || messages[0].Content != "hi" {
		t.Fatalf("unexpected user message %+v", messages[0])
	}
	if len(messages[1].ToolCalls) != 1 || messages[1].ToolCalls[0].ID != "call_1" {
		t.Fatalf("unexpected assistant call %+v", messages[1])
	}
	if messages[2].Role != openai.ChatMessageRoleTool || messages[2].ToolCallID != "call_1" {
		t.Fatalf("unexpected tool message %+v", messages[2])
	}
}
