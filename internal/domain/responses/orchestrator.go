package responses

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/llm"
	"openresponses.ai/gateway/internal/domain/tool"
)

// persistTimeout bounds the detached store write on finalize.
const persistTimeout = 10 * time.Second

// TargetResolver maps a request's model string and headers onto an
// upstream target.
type TargetResolver interface {
	Resolve(model string, headers http.Header) (llm.Target, error)
}

// MCPConnector discovers tools from a request-declared MCP server.
type MCPConnector interface {
	Connect(ctx context.Context, label, url string) ([]tool.Tool, error)
}

// Tracer wraps spans around outbound model calls and tool executions. The
// finish func records the error outcome.
type Tracer interface {
	StartModelCall(ctx context.Context, target llm.Target) (context.Context, func(error))
	StartToolCall(ctx context.Context, name string) (context.Context, func(error))
}

type noopTracer struct{}

func (noopTracer) StartModelCall(ctx context.Context, _ llm.Target) (context.Context, func(error)) {
	return ctx, func(error) {}
}

func (noopTracer) StartToolCall(ctx context.Context, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// Orchestrator drives the multi-turn response loop: call the upstream
// model, execute the tools it requests, feed results back, and finalize.
type Orchestrator struct {
	provider    llm.Provider
	resolver    TargetResolver
	store       Store
	base        *tool.Registry
	searcher    tool.VectorSearcher
	connector   MCPConnector
	tracer      Tracer
	maxTurns    int
	toolTimeout time.Duration
	logger      zerolog.Logger
	now         func() time.Time

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

// NewOrchestrator wires the orchestrator. connector and tracer may be nil.
func NewOrchestrator(
	provider llm.Provider,
	resolver TargetResolver,
	store Store,
	base *tool.Registry,
	searcher tool.VectorSearcher,
	connector MCPConnector,
	tracer Tracer,
	maxTurns int,
	toolTimeout time.Duration,
	logger zerolog.Logger,
) *Orchestrator {
	if tracer == nil {
		tracer = noopTracer{}
	}
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Orchestrator{
		provider:    provider,
		resolver:    resolver,
		store:       store,
		base:        base,
		searcher:    searcher,
		connector:   connector,
		tracer:      tracer,
		maxTurns:    maxTurns,
		toolTimeout: toolTimeout,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		now:         time.Now,
	}
}

// Cancel aborts an in-flight response run. Returns false when the id is
// not currently running.
func (o *Orchestrator) Cancel(responseID string) bool {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	cancel, ok := o.active[responseID]
	if ok {
		cancel()
	}
	return ok
}

func (o *Orchestrator) track(responseID string, cancel context.CancelFunc) func() {
	o.activeMu.Lock()
	if o.active == nil {
		o.active = make(map[string]context.CancelFunc)
	}
	o.active[responseID] = cancel
	o.activeMu.Unlock()
	return func() {
		o.activeMu.Lock()
		delete(o.active, responseID)
		o.activeMu.Unlock()
	}
}

// Create runs the loop to completion and returns the final response.
func (o *Orchestrator) Create(ctx context.Context, req *Request, headers http.Header) (*Response, error) {
	run, err := o.newRun(ctx, req, headers, nil)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer o.track(run.response.ID, cancel)()
	return run.execute(ctx)
}

// Stream runs the loop while emitting SSE events through emit. A non-nil
// error from emit means the client is gone; the run is cancelled. The
// terminal event is always emitted before Stream returns nil.
func (o *Orchestrator) Stream(ctx context.Context, req *Request, headers http.Header, emit func(Event) error) error {
	run, err := o.newRun(ctx, req, headers, emit)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer o.track(run.response.ID, cancel)()

	run.sendEvent(EventCreated, run.response)
	run.sendEvent(EventInProgress, run.response)

	final, err := run.execute(ctx)
	if err != nil {
		run.sendEvent(EventFailed, map[string]any{
			"type":    EventFailed,
			"error":   apierror.FromError(err),
			"message": err.Error(),
		})
		return nil
	}
	switch final.Status {
	case StatusFailed:
		run.sendEvent(EventFailed, final)
	case StatusIncomplete:
		run.sendEvent(EventIncomplete, final)
	default:
		run.sendEvent(EventCompleted, final)
	}
	return nil
}

// responseRun is the per-request loop state.
type responseRun struct {
	o             *Orchestrator
	req           *Request
	target        llm.Target
	registry      *tool.Registry
	toolDefs      []openai.Tool
	functionNames map[string]bool
	messages      []openai.ChatCompletionMessage
	inputItems    []Item
	response      *Response
	usage         Usage
	executed      map[string]bool
	lastToolName  string
	lastToolOut   string
	emit          func(Event) error
	emitMu        sync.Mutex
	emitFailed    bool
}

func (o *Orchestrator) newRun(ctx context.Context, req *Request, headers http.Header, emit func(Event) error) (*responseRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	target, err := o.resolver.Resolve(req.Model, headers)
	if err != nil {
		return nil, err
	}

	run := &responseRun{
		o:             o,
		req:           req,
		target:        target,
		functionNames: make(map[string]bool),
		executed:      make(map[string]bool),
		emit:          emit,
	}

	if req.PreviousResponseID != "" {
		record, err := o.store.Get(ctx, req.PreviousResponseID)
		if err != nil {
			return nil, apierror.Validation("previous_response_id %s not found", req.PreviousResponseID)
		}
		run.inputItems = append(run.inputItems, record.InputItems...)
		run.inputItems = append(run.inputItems, record.Response.Output...)
	}
	if req.Input.Items != nil {
		run.inputItems = append(run.inputItems, req.Input.Items...)
	} else {
		run.inputItems = append(run.inputItems, Item{
			ID:      NewItemID("msg"),
			Type:    ItemTypeMessage,
			Role:    "user",
			Content: []ContentPart{{Type: ContentTypeInputText, Text: req.Input.Text}},
		})
	}

	if req.Instructions != "" {
		run.messages = append(run.messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instructions,
		})
	}
	run.messages = append(run.messages, messagesFromItems(run.inputItems)...)

	if err := run.buildTools(ctx); err != nil {
		return nil, err
	}

	run.response = &Response{
		ID:                 NewResponseID(),
		Object:             "response",
		CreatedAt:          o.now().Unix(),
		Status:             StatusInProgress,
		Output:             []Item{},
		Model:              req.Model,
		ToolChoice:         req.ToolChoice,
		Tools:              req.Tools,
		Metadata:           req.Metadata,
		PreviousResponseID: req.PreviousResponseID,
	}
	return run, nil
}

// buildTools snapshots the base registry and layers the request's tool
// declarations on top.
func (r *responseRun) buildTools(ctx context.Context) error {
	r.registry = r.o.base.Snapshot()
	for _, spec := range r.req.Tools {
		switch spec.Type {
		case tool.TypeFunction:
			if spec.Name == "" {
				return apierror.Validation("function tool requires a name")
			}
			r.functionNames[spec.Name] = true
			r.toolDefs = append(r.toolDefs, tool.FunctionDef(spec.Name, spec.Description, spec.Parameters))
		case tool.TypeFileSearch:
			t := tool.NewFileSearch(r.o.searcher, fileSearchConfig(spec))
			r.registry.Register(t)
			r.toolDefs = append(r.toolDefs, t.Definition())
		case tool.TypeAgenticSearch:
			t := tool.NewAgenticSearch(r.o.searcher, fileSearchConfig(spec))
			r.registry.Register(t)
			r.toolDefs = append(r.toolDefs, t.Definition())
		case tool.TypeMCP:
			if r.o.connector == nil || spec.ServerURL == "" {
				return apierror.Validation("mcp tool requires a server_url")
			}
			tools, err := r.o.connector.Connect(ctx, spec.ServerLabel, spec.ServerURL)
			if err != nil {
				return err
			}
			for _, t := range tools {
				name := t.Name()
				if _, taken := r.registry.Lookup(name); taken {
					r.registry.RegisterAlias(spec.ServerLabel+"__"+name, name)
				}
				r.registry.Register(t)
				r.toolDefs = append(r.toolDefs, t.Definition())
			}
		default:
			t, ok := r.registry.Lookup(spec.Type)
			if !ok {
				return apierror.Validation("tool type %q is not available", spec.Type)
			}
			r.toolDefs = append(r.toolDefs, t.Definition())
		}
	}
	return nil
}

func fileSearchConfig(spec ToolSpec) tool.FileSearchConfig {
	return tool.FileSearchConfig{
		VectorStoreIDs: spec.VectorStoreIDs,
		MaxNumResults:  spec.MaxNumResults,
		Filters:        spec.Filters,
		RankingOptions: spec.RankingOptions,
	}
}

// sendEvent emits one SSE event, remembering a dead client so later sends
// become no-ops. Serialized so parallel tool executions never interleave
// or race on the failure flag.
func (r *responseRun) sendEvent(eventType string, data any) {
	if r.emit == nil {
		return
	}
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if r.emitFailed {
		return
	}
	if err := r.emit(Event{Type: eventType, Data: data}); err != nil {
		r.emitFailed = true
	}
}

// execute runs the turn loop until a termination condition fires.
func (r *responseRun) execute(ctx context.Context) (*Response, error) {
	for turn := 0; ; turn++ {
		if turn >= r.o.maxTurns {
			return r.finalize(StatusIncomplete, &IncompleteDetails{Reason: ReasonMaxTurns}, nil), nil
		}
		if err := ctx.Err(); err != nil {
			return nil, classifyContextErr(err)
		}

		msg, finish, err := r.callUpstream(ctx)
		if err != nil {
			return nil, err
		}

		items := itemsFromMessage(*msg)
		r.appendOutput(items)

		var pending []Item
		for _, item := range items {
			if item.Type == ItemTypeFunctionCall {
				pending = append(pending, item)
			}
		}

		switch finish {
		case openai.FinishReasonLength:
			return r.finalize(StatusIncomplete, &IncompleteDetails{Reason: ReasonMaxOutputTokens}, nil), nil
		case openai.FinishReasonContentFilter:
			return r.finalize(StatusFailed, nil, &ResponseError{
				Code:    "server_error",
				Message: "upstream flagged the content",
			}), nil
		}

		if len(pending) == 0 || r.req.ToolChoiceMode() == ToolChoiceNone {
			return r.finalize(StatusCompleted, nil, nil), nil
		}

		// Caller-declared functions are returned, not executed. When the
		// turn contains any, the response completes and the client supplies
		// the outputs on its next request.
		passthrough := false
		var executable []Item
		for _, call := range pending {
			if r.functionNames[r.registry.ResolveAlias(call.Name)] {
				passthrough = true
			} else {
				executable = append(executable, call)
			}
		}

		if len(executable) > 0 {
			r.messages = append(r.messages, toolCallMessage(executable, msg))
			outputs, err := r.executeTools(ctx, executable)
			if err != nil {
				return nil, err
			}
			r.appendOutput(outputs)
			for _, out := range outputs {
				r.messages = append(r.messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    out.Output,
					ToolCallID: out.CallID,
				})
			}
		}

		if passthrough {
			return r.finalize(StatusCompleted, nil, nil), nil
		}
	}
}

// toolCallMessage rebuilds the assistant turn containing the executable
// tool calls for the upstream transcript.
func toolCallMessage(calls []Item, original *openai.ChatCompletionMessage) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: original.Content,
	}
	for _, call := range calls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   call.CallID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return msg
}

func (r *responseRun) callUpstream(ctx context.Context) (*openai.ChatCompletionMessage, openai.FinishReason, error) {
	upstream := openai.ChatCompletionRequest{
		Model:    r.target.ModelName,
		Messages: r.messages,
		Tools:    r.toolDefs,
	}
	if r.req.Temperature != nil {
		upstream.Temperature = *r.req.Temperature
	}
	if r.req.TopP != nil {
		upstream.TopP = *r.req.TopP
	}
	if r.req.MaxOutputTokens > 0 {
		upstream.MaxCompletionTokens = r.req.MaxOutputTokens
	}
	if mode := r.req.ToolChoiceMode(); mode != ToolChoiceAuto && len(r.toolDefs) > 0 {
		upstream.ToolChoice = mode
	}

	callCtx, finish := r.o.tracer.StartModelCall(ctx, r.target)
	if r.emit == nil {
		resp, err := r.o.provider.CreateChatCompletion(callCtx, r.target, upstream)
		finish(err)
		if err != nil {
			return nil, "", err
		}
		r.usage.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		choice := resp.Choices[0]
		return &choice.Message, choice.FinishReason, nil
	}

	upstream.Stream = true
	stream, err := r.o.provider.CreateChatCompletionStream(callCtx, r.target, upstream)
	finish(err)
	if err != nil {
		return nil, "", err
	}
	defer stream.Close()

	accum := NewStreamAccumulator()
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, "", classifyContextErr(ctxErr)
			}
			return nil, "", apierror.Upstream("upstream stream failed").WithCause(err)
		}
		accum.Add(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			r.sendEvent(EventOutputTextDelta, TextDeltaPayload{Delta: delta.Content})
		}
		for _, call := range delta.ToolCalls {
			if call.Function.Arguments == "" {
				continue
			}
			index := 0
			if call.Index != nil {
				index = *call.Index
			}
			r.sendEvent(EventFunctionArgsDelta, FunctionArgsDeltaPayload{
				Index: index,
				Delta: call.Function.Arguments,
			})
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, "", classifyContextErr(err)
	}
	prompt, output := accum.Usage()
	r.usage.Add(prompt, output)
	msg := accum.Message()
	return &msg, accum.FinishReason(), nil
}

// executeTools runs the turn's executable calls. Each call_id executes at
// most once; failures become error-shaped outputs unless the error is a
// timeout or cancellation. Dedupe state and the last-search bookkeeping
// are touched only on this goroutine so the parallel branch stays race
// free.
func (r *responseRun) executeTools(ctx context.Context, calls []Item) ([]Item, error) {
	pending := make([]Item, 0, len(calls))
	names := make(map[string]string, len(calls))
	for _, call := range calls {
		if r.executed[call.CallID] {
			continue
		}
		r.executed[call.CallID] = true
		names[call.CallID] = r.registry.ResolveAlias(call.Name)
		pending = append(pending, call)
	}
	outputs := make([]Item, len(pending))

	runOne := func(ctx context.Context, call Item) (Item, error) {
		name := names[call.CallID]
		r.sendEvent(EventToolCallStarted, ToolCallPayload{CallID: call.CallID, Name: call.Name})

		toolCtx := ctx
		var cancel context.CancelFunc
		if r.o.toolTimeout > 0 {
			toolCtx, cancel = context.WithTimeout(ctx, r.o.toolTimeout)
			defer cancel()
		}
		toolCtx, finish := r.o.tracer.StartToolCall(toolCtx, name)

		exec := &tool.ExecContext{
			AuthToken: llm.AuthTokenFromContext(ctx),
			Provider:  r.o.provider,
			Target:    r.target,
			Emit: func(event string, payload any) {
				r.sendEvent("response."+event, payload)
			},
		}
		output, err := r.registry.Execute(toolCtx, name, call.Arguments, exec)
		finish(err)
		if err != nil {
			if ctx.Err() != nil {
				return Item{}, classifyContextErr(ctx.Err())
			}
			r.o.logger.Warn().Str("tool", name).Str("call_id", call.CallID).Err(err).Msg("tool execution failed")
			encoded, _ := json.Marshal(map[string]string{"error": err.Error()})
			output = string(encoded)
		}
		r.sendEvent(EventToolCallCompleted, ToolCallPayload{
			CallID: call.CallID,
			Name:   call.Name,
			Output: output,
		})

		return Item{
			ID:     NewItemID("fco"),
			Type:   ItemTypeFunctionCallOutput,
			CallID: call.CallID,
			Output: output,
		}, nil
	}

	if r.req.ParallelToolCalls && len(pending) > 1 {
		group, groupCtx := errgroup.WithContext(ctx)
		for i, call := range pending {
			group.Go(func() error {
				item, err := runOne(groupCtx, call)
				if err != nil {
					return err
				}
				outputs[i] = item
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
		sort.SliceStable(outputs, func(i, j int) bool {
			return outputs[i].CallID < outputs[j].CallID
		})
	} else {
		for i, call := range pending {
			item, err := runOne(ctx, call)
			if err != nil {
				return nil, err
			}
			outputs[i] = item
		}
	}

	// The last search output in the settled order feeds annotation
	// back-fill, deterministically even for parallel execution.
	for _, out := range outputs {
		name := names[out.CallID]
		if name == tool.TypeFileSearch || name == tool.TypeAgenticSearch {
			r.lastToolName = name
			r.lastToolOut = out.Output
		} else {
			r.lastToolName = ""
		}
	}
	return outputs, nil
}

func (r *responseRun) appendOutput(items []Item) {
	for _, item := range items {
		r.response.Output = append(r.response.Output, item)
		r.sendEvent(EventOutputItemAdded, item)
		r.sendEvent(EventOutputItemDone, item)
	}
}

// finalize settles the status, back-fills annotations from the last search
// tool output, persists when requested, and returns the final record.
func (r *responseRun) finalize(status string, incomplete *IncompleteDetails, respErr *ResponseError) *Response {
	r.response.Status = status
	r.response.IncompleteDetails = incomplete
	r.response.Error = respErr
	usage := r.usage
	r.response.Usage = &usage

	r.backfillAnnotations()

	if r.req.Store {
		record := &Record{
			Response:   r.response,
			InputItems: r.inputItems,
			CreatedAt:  r.o.now().Unix(),
		}
		// Persist detached from the request context so a client cancel
		// cannot drop a completed record, but bounded so a stuck store
		// cannot wedge the run.
		persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.o.store.Put(persistCtx, record); err != nil {
			r.o.logger.Error().Str("response_id", r.response.ID).Err(err).Msg("persisting response failed")
		}
	}
	return r.response
}

// backfillAnnotations copies citations from the last file_search or
// agentic_search output onto the final message. An image-looking final
// text gets the output-image marker instead.
func (r *responseRun) backfillAnnotations() {
	if r.lastToolName == "" || r.lastToolOut == "" {
		return
	}
	last := len(r.response.Output) - 1
	if last < 0 || r.response.Output[last].Type != ItemTypeMessage {
		return
	}
	message := &r.response.Output[last]
	if len(message.Content) == 0 || message.Content[0].Type != ContentTypeOutputText {
		return
	}

	var parsed tool.FileSearchOutput
	if err := json.Unmarshal([]byte(r.lastToolOut), &parsed); err != nil {
		return
	}
	var annotations []Annotation
	for _, result := range parsed.Data {
		for _, a := range result.Annotations {
			annotations = append(annotations, Annotation{
				Type:     a.Type,
				Index:    a.Index,
				FileID:   a.FileID,
				Filename: a.Filename,
			})
		}
	}
	if len(annotations) > 0 {
		message.Content[0].Annotations = annotations
	}
}

func classifyContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apierror.Timeout("request deadline exceeded").WithCause(err)
	}
	return apierror.Internal("request cancelled").WithCause(err)
}
