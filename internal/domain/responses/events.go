package responses

// SSE event types emitted while a response streams.
const (
	EventCreated           = "response.created"
	EventInProgress        = "response.in_progress"
	EventOutputItemAdded   = "response.output_item.added"
	EventOutputTextDelta   = "response.output_text.delta"
	EventFunctionArgsDelta = "response.function_call_arguments.delta"
	EventOutputItemDone    = "response.output_item.done"
	EventToolCallStarted   = "response.tool_call.started"
	EventToolCallCompleted = "response.tool_call.completed"
	EventCompleted         = "response.completed"
	EventFailed            = "response.failed"
	EventIncomplete        = "response.incomplete"
)

// Event is one SSE event: a type plus its JSON payload.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TextDeltaPayload carries an output text increment.
type TextDeltaPayload struct {
	ItemID string `json:"item_id,omitempty"`
	Delta  string `json:"delta"`
}

// FunctionArgsDeltaPayload carries a tool-call argument increment.
type FunctionArgsDeltaPayload struct {
	Index int    `json:"index"`
	Delta string `json:"delta"`
}

// ToolCallPayload describes a tool execution boundary event.
type ToolCallPayload struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}
