package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wevn/wevn/models"
)

// ScanPolicy selects how the object scanner finds object boundaries in
// model output.
type ScanPolicy int

const (
	// ScanStringAware ignores braces inside JSON string literals. The
	// string state is only tracked while inside an object, so quotes in
	// surrounding prose cannot desynchronize the scanner.
	ScanStringAware ScanPolicy = iota
	// ScanNaive counts every brace. Faster and adequate for models that
	// never emit braces inside strings.
	ScanNaive
)

// ObjectScanner extracts balanced {...} spans from a token stream. Text
// outside an object is discarded; after a span completes the scanner
// resets and watches for the next opening brace.
type ObjectScanner struct {
	policy   ScanPolicy
	buf      strings.Builder
	depth    int
	inString bool
	escaped  bool
}

func NewObjectScanner(policy ScanPolicy) *ObjectScanner {
	return &ObjectScanner{policy: policy}
}

// Feed consumes one chunk and returns any object spans it completed.
// A single chunk can close one object and open the next.
func (s *ObjectScanner) Feed(chunk string) []string {
	var spans []string
	for _, r := range chunk {
		if s.depth == 0 {
			if r == '{' {
				s.buf.Reset()
				s.buf.WriteRune(r)
				s.depth = 1
				s.inString = false
				s.escaped = false
			}
			continue
		}
		s.buf.WriteRune(r)
		if s.policy == ScanStringAware {
			if s.escaped {
				s.escaped = false
				continue
			}
			if s.inString {
				switch r {
				case '\\':
					s.escaped = true
				case '"':
					s.inString = false
				}
				continue
			}
			if r == '"' {
				s.inString = true
				continue
			}
		}
		switch r {
		case '{':
			s.depth++
		case '}':
			s.depth--
			if s.depth == 0 {
				spans = append(spans, s.buf.String())
				s.buf.Reset()
			}
		}
	}
	return spans
}

// Pending reports whether an object is open but not yet closed.
func (s *ObjectScanner) Pending() bool {
	return s.depth > 0
}

// Remainder returns the open object's text accumulated so far.
func (s *ObjectScanner) Remainder() string {
	return s.buf.String()
}

// CloseRemainder returns the open object's text with an open string
// literal terminated and enough closing braces appended to balance
// every open brace, not just the outermost one.
func (s *ObjectScanner) CloseRemainder() string {
	out := s.buf.String()
	if s.inString {
		out += `"`
	}
	return out + strings.Repeat("}", s.depth)
}

// Reset discards all scanner state.
func (s *ObjectScanner) Reset() {
	s.buf.Reset()
	s.depth = 0
	s.inString = false
	s.escaped = false
}

// StreamOptions tunes the streaming engine. The zero value is the
// production default: string-aware scanning, accumulated partials, no
// end-of-stream salvage parse.
type StreamOptions struct {
	ScanPolicy ScanPolicy
	// DeltaPartials emits each token by itself instead of the running
	// accumulation.
	DeltaPartials bool
	// FinalAttemptParse tries to parse a still-open object when the
	// stream ends. Off, a dangling object is dropped silently.
	FinalAttemptParse bool
	// MaxRepairRetries bounds re-asks in the non-streaming path.
	MaxRepairRetries int
}

// StreamService drives a model generation and turns its raw token
// stream into structured events: partial text while an object is being
// produced, a parsed event per valid object, an error event per
// malformed one, and exactly one done event when the stream ends.
type StreamService struct {
	chat   ChatModel
	graph  *GraphService
	memory *MemoryService
	opts   StreamOptions
	logger *zap.SugaredLogger
}

func NewStreamService(chat ChatModel, graph *GraphService, memory *MemoryService, opts StreamOptions, logger *zap.SugaredLogger) *StreamService {
	return &StreamService{chat: chat, graph: graph, memory: memory, opts: opts, logger: logger}
}

// Run answers a question over the collection and emits stream events
// through emit. onContext fires once, after retrieval and before any
// event, with the ids of the retrieved context nodes; callers use it to
// write response headers ahead of the body.
//
// Each valid object is persisted to the session as one turn before its
// parsed event is emitted, so a client that sees parsed can rely on the
// history containing it. emit returning an error aborts the generation.
func (s *StreamService) Run(ctx context.Context, req models.QueryRequest, onContext func(ids []string) error, emit func(models.StreamEvent) error) error {
	if err := s.chat.WaitReady(ctx); err != nil {
		return err
	}
	docs, ids, err := s.graph.Retrieve(ctx, req)
	if err != nil {
		return err
	}
	history, err := s.memory.Load(ctx, req.ConversationID)
	if err != nil {
		return err
	}
	if onContext != nil {
		if err := onContext(ids); err != nil {
			return err
		}
	}
	prompt := BuildChatPrompt(docs, history, req.Query)

	scanner := NewObjectScanner(s.opts.ScanPolicy)
	var accum strings.Builder

	handleSpan := func(span string) error {
		// The partial accumulator resets with every completed span,
		// parsed or not, so later partials never carry a finished
		// object's text.
		defer accum.Reset()
		resp, perr := parseStructured(span)
		if perr != nil {
			s.logger.Debugw("stream: invalid object", "error", perr)
			return emit(models.StreamEvent{Type: models.EventError, Message: perr.Error()})
		}
		if err := s.memory.SaveTurn(ctx, req.ConversationID, req.Query, resp.Answer); err != nil {
			s.logger.Warnw("stream: failed to persist turn", "session", req.ConversationID, "error", err)
		}
		return emit(models.StreamEvent{Type: models.EventParsed, Response: resp})
	}

	streamErr := s.chat.Stream(ctx, prompt, func(chunk string) error {
		if chunk == "" {
			return nil
		}
		content := chunk
		if !s.opts.DeltaPartials {
			accum.WriteString(chunk)
			content = accum.String()
		}
		if err := emit(models.StreamEvent{Type: models.EventPartial, Content: content}); err != nil {
			return err
		}
		for _, span := range scanner.Feed(chunk) {
			if err := handleSpan(span); err != nil {
				return err
			}
		}
		return nil
	})
	if streamErr != nil {
		// The response has started, so the failure must still reach
		// the client as a terminal error followed by the one done
		// event. A dead client makes these emits fail; that is fine.
		if ctx.Err() == nil {
			if err := emit(models.StreamEvent{Type: models.EventError, Message: streamErr.Error()}); err == nil {
				_ = emit(models.StreamEvent{Type: models.EventDone})
			}
		}
		return streamErr
	}

	if scanner.Pending() {
		if s.opts.FinalAttemptParse {
			if err := handleSpan(scanner.CloseRemainder()); err != nil {
				return err
			}
		} else {
			s.logger.Debugw("stream: dropping unterminated object", "len", len(scanner.Remainder()))
		}
	}
	return emit(models.StreamEvent{Type: models.EventDone})
}

// Ask is the non-streaming path: one blocking generation, with bounded
// re-asks when the model fails to produce a valid object.
func (s *StreamService) Ask(ctx context.Context, req models.QueryRequest) (*models.StructuredResponse, []string, error) {
	if err := s.chat.WaitReady(ctx); err != nil {
		return nil, nil, err
	}
	docs, ids, err := s.graph.Retrieve(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	history, err := s.memory.Load(ctx, req.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	prompt := BuildChatPrompt(docs, history, req.Query)

	resp, err := invokeParsed(ctx, s.chat, prompt, s.opts.MaxRepairRetries, parseStructured)
	if err != nil {
		return nil, ids, err
	}
	if err := s.memory.SaveTurn(ctx, req.ConversationID, req.Query, resp.Answer); err != nil {
		s.logger.Warnw("stream: failed to persist turn", "session", req.ConversationID, "error", err)
	}
	return resp, ids, nil
}

// Summarize condenses a session into a {name, content} note, with the
// same bounded repair loop as Ask.
func (s *StreamService) Summarize(ctx context.Context, contextDocs []string, history string) (*models.NodeSummary, error) {
	if err := s.chat.WaitReady(ctx); err != nil {
		return nil, err
	}
	prompt := BuildSummarizePrompt(contextDocs, history)
	return invokeParsed(ctx, s.chat, prompt, s.opts.MaxRepairRetries, parseSummary)
}

// invokeParsed runs a blocking generation and parses the first object
// out of the reply, re-asking with a repair prompt up to retries times.
func invokeParsed[T any](ctx context.Context, chat ChatModel, prompt string, retries int, parse func(string) (*T, error)) (*T, error) {
	attempts := 0
	lastOutput := ""
	var lastErr error
	ask := prompt
	for attempts <= retries {
		attempts++
		out, err := chat.Invoke(ctx, ask)
		if err != nil {
			return nil, err
		}
		lastOutput = out
		span, ok := extractFirstObject(out)
		if !ok {
			lastErr = fmt.Errorf("no JSON object in output")
			ask = BuildRepairPrompt(prompt, out)
			continue
		}
		parsed, err := parse(span)
		if err != nil {
			lastErr = err
			ask = BuildRepairPrompt(prompt, out)
			continue
		}
		return parsed, nil
	}
	return nil, &StructuredOutputError{Attempts: attempts, LastOutput: lastOutput, Err: lastErr}
}

func parseStructured(span string) (*models.StructuredResponse, error) {
	var resp models.StructuredResponse
	if err := json.Unmarshal([]byte(span), &resp); err != nil {
		return nil, fmt.Errorf("parse object: %w", err)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

func parseSummary(span string) (*models.NodeSummary, error) {
	var sum models.NodeSummary
	if err := json.Unmarshal([]byte(span), &sum); err != nil {
		return nil, fmt.Errorf("parse object: %w", err)
	}
	if err := sum.Validate(); err != nil {
		return nil, err
	}
	return &sum, nil
}

// extractFirstObject returns the first balanced object in a complete
// reply, using the same scanning rules as the streaming path.
func extractFirstObject(text string) (string, bool) {
	scanner := NewObjectScanner(ScanStringAware)
	spans := scanner.Feed(text)
	if len(spans) == 0 {
		return "", false
	}
	return spans[0], true
}
