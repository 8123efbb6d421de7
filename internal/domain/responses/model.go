// Package responses implements the Responses API aggregate: requests,
// output items, the orchestration loop, streaming assembly, and the stored
// record contract.
package responses

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/vectorstore"
)

// Response statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
	StatusFailed     = "failed"
)

// Incomplete reasons.
const (
	ReasonMaxTurns        = "max_turns"
	ReasonMaxOutputTokens = "max_output_tokens"
)

// Item types.
const (
	ItemTypeMessage            = "message"
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
	ItemTypeReasoning          = "reasoning"
)

// Item statuses.
const (
	ItemStatusInProgress = "in_progress"
	ItemStatusCompleted  = "completed"
)

// Content part types.
const (
	ContentTypeInputText   = "input_text"
	ContentTypeOutputText  = "output_text"
	ContentTypeOutputImage = "output_image"
)

// NewResponseID mints a resp_ prefixed public id.
func NewResponseID() string {
	return "resp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewItemID mints an item id with the given prefix (msg, fc, rs).
func NewItemID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Annotation is a citation attached to a text content part.
type Annotation struct {
	Type     string `json:"type"`
	Index    int    `json:"index"`
	FileID   string `json:"file_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
}

// ContentPart is one typed fragment of message content.
type ContentPart struct {
	Type        string       `json:"type"`
	Text        string       `json:"text,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Item is the tagged input/output item variant. The Type field selects
// which of the remaining fields are meaningful.
type Item struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`

	// message
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// function_call / function_call_output
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`

	// reasoning
	Summary []ContentPart `json:"summary,omitempty"`
}

// TextContent returns the concatenated text of the item's content parts.
func (i *Item) TextContent() string {
	var b strings.Builder
	for _, part := range i.Content {
		b.WriteString(part.Text)
	}
	return b.String()
}

// Input is the request input: either a plain string or an ordered item
// sequence.
type Input struct {
	Text  string
	Items []Item
}

// IsZero reports whether no input was provided at all.
func (in *Input) IsZero() bool {
	return in.Text == "" && in.Items == nil
}

// UnmarshalJSON accepts both the string and the item-list forms.
func (in *Input) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &in.Text)
	}
	return json.Unmarshal(data, &in.Items)
}

// MarshalJSON mirrors UnmarshalJSON.
func (in Input) MarshalJSON() ([]byte, error) {
	if in.Items != nil {
		return json.Marshal(in.Items)
	}
	return json.Marshal(in.Text)
}

// ToolSpec is a tool declaration on a request: a caller-declared function,
// a native tool configuration, or an MCP server reference.
type ToolSpec struct {
	Type string `json:"type"`

	// function
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`

	// file_search / agentic_search
	VectorStoreIDs []string                    `json:"vector_store_ids,omitempty"`
	MaxNumResults  int                         `json:"max_num_results,omitempty"`
	Filters        *vectorstore.Filter         `json:"filters,omitempty"`
	RankingOptions *vectorstore.RankingOptions `json:"ranking_options,omitempty"`

	// mcp
	ServerLabel string `json:"server_label,omitempty"`
	ServerURL   string `json:"server_url,omitempty"`
}

// Request is the Responses API create payload.
type Request struct {
	Model              string            `json:"model"`
	Input              Input             `json:"input"`
	Instructions       string            `json:"instructions,omitempty"`
	Tools              []ToolSpec        `json:"tools,omitempty"`
	ToolChoice         json.RawMessage   `json:"tool_choice,omitempty"`
	Temperature        *float32          `json:"temperature,omitempty"`
	TopP               *float32          `json:"top_p,omitempty"`
	MaxOutputTokens    int               `json:"max_output_tokens,omitempty"`
	ParallelToolCalls  bool              `json:"parallel_tool_calls,omitempty"`
	PreviousResponseID string            `json:"previous_response_id,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	Store              bool              `json:"store,omitempty"`
	Stream             bool              `json:"stream,omitempty"`
}

// Tool choice modes.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

// ToolChoiceMode reduces tool_choice to a mode string. Object forms that
// name a specific tool behave as required.
func (r *Request) ToolChoiceMode() string {
	if len(r.ToolChoice) == 0 {
		return ToolChoiceAuto
	}
	var mode string
	if err := json.Unmarshal(r.ToolChoice, &mode); err == nil {
		switch mode {
		case ToolChoiceNone, ToolChoiceRequired, ToolChoiceAuto:
			return mode
		}
		return ToolChoiceAuto
	}
	return ToolChoiceRequired
}

// Validate enforces the request invariants the orchestrator relies on.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return apierror.Validation("model is required").WithCode("missing_model")
	}
	if r.Input.IsZero() {
		return apierror.Validation("input is required").WithCode("missing_input")
	}
	if len(r.Metadata) > 0 && !r.Store {
		return apierror.Validation("metadata requires store=true").WithCode("metadata_requires_store")
	}
	return nil
}

// Usage aggregates upstream token accounting across turns.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates another turn's usage.
func (u *Usage) Add(input, output int) {
	u.InputTokens += input
	u.OutputTokens += output
	u.TotalTokens += input + output
}

// IncompleteDetails explains an incomplete response.
type IncompleteDetails struct {
	Reason string `json:"reason"`
}

// ResponseError is the failure payload on a failed response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the immutable result record of one Responses API call.
type Response struct {
	ID                 string             `json:"id"`
	Object             string             `json:"object"`
	CreatedAt          int64              `json:"created_at"`
	Status             string             `json:"status"`
	IncompleteDetails  *IncompleteDetails `json:"incomplete_details,omitempty"`
	Error              *ResponseError     `json:"error,omitempty"`
	Output             []Item             `json:"output"`
	Model              string             `json:"model"`
	Usage              *Usage             `json:"usage,omitempty"`
	ToolChoice         json.RawMessage    `json:"tool_choice,omitempty"`
	Tools              []ToolSpec         `json:"tools,omitempty"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
	PreviousResponseID string             `json:"previous_response_id,omitempty"`
}
