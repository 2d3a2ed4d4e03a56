// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianNetOps/services/assistant/datatypes"
)

// maxStreamLineBytes bounds a single NDJSON line from Ollama. Lines beyond
// this are a protocol violation and abort the stream.
const maxStreamLineBytes = 1024 * 1024

// =============================================================================
// Stream Event Types
// =============================================================================

// StreamEventType identifies the kind of event emitted during streaming.
type StreamEventType string

const (
	// StreamEventToken is a piece of the response content.
	StreamEventToken StreamEventType = "token"
	// StreamEventThinking is a piece of the model's reasoning trace.
	StreamEventThinking StreamEventType = "thinking"
	// StreamEventError signals a failure reported inside the stream.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one unit of streamed output delivered to a StreamCallback.
//
// # Fields
//
//   - Type: The kind of event (token, thinking, error).
//   - Content: The text payload for token and thinking events.
//   - Error: The failure description for error events.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StreamCallback receives stream events as they arrive. Returning a non-nil
// error aborts the stream; the error is propagated to the ChatStream caller.
type StreamCallback func(event StreamEvent) error

// =============================================================================
// Stream Configuration
// =============================================================================

// StreamConfig controls how streamed output is filtered and bounded before
// it reaches the callback.
//
// # Fields
//
//   - RedactThinking: When true, thinking events are dropped entirely.
//     Used when reasoning traces must not reach end users.
//   - MaxThinkingLength: Cumulative cap in bytes on emitted thinking
//     content. Zero means unlimited.
//   - MaxResponseLength: Cumulative cap in bytes on emitted response
//     content. Content past the cap is truncated. Zero means unlimited.
//   - RateLimitPerSecond: Maximum events delivered per second. Zero means
//     no rate limiting.
type StreamConfig struct {
	RedactThinking     bool
	MaxThinkingLength  int
	MaxResponseLength  int
	RateLimitPerSecond int
}

// DefaultStreamConfig returns the configuration used by ChatStream:
// thinking passes through unredacted and unbounded, responses are capped at
// 100KB, and no rate limit is applied.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		RedactThinking:     false,
		MaxThinkingLength:  0,
		MaxResponseLength:  100 * 1024,
		RateLimitPerSecond: 0,
	}
}

// =============================================================================
// Stream Processor
// =============================================================================

// DefaultStreamProcessor applies a StreamConfig to raw Ollama chunks and
// emits StreamEvents through a callback.
//
// # Thread Safety
//
// A processor accumulates per-stream counters and is NOT safe for
// concurrent use. Create one processor per stream.
type DefaultStreamProcessor struct {
	config         StreamConfig
	logger         *slog.Logger
	limiter        *rate.Limiter
	tokenCount     int
	responseLength int
	thinkingLength int
}

// NewDefaultStreamProcessor creates a processor for one stream. A nil
// logger falls back to slog.Default().
func NewDefaultStreamProcessor(config StreamConfig, logger *slog.Logger) *DefaultStreamProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &DefaultStreamProcessor{
		config: config,
		logger: logger,
	}
	if config.RateLimitPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(config.RateLimitPerSecond), config.RateLimitPerSecond)
	}
	return p
}

// ProcessChunk handles one parsed chunk from the stream.
//
// # Description
//
// Error chunks emit a StreamEventError and terminate the stream with an
// error carrying the reported message. Thinking content is dropped when
// RedactThinking is set, otherwise truncated against the cumulative
// thinking budget. Response content is truncated against the cumulative
// response budget, then emitted as a token event. A chunk can carry both
// thinking and content; thinking is emitted first.
//
// # Outputs
//
//   - bool: true when the stream is finished (done chunk or error chunk).
//   - error: Non-nil on a reported stream error or a callback rejection.
func (p *DefaultStreamProcessor) ProcessChunk(ctx context.Context, chunk *ollamaStreamChunk,
	callback StreamCallback) (bool, error) {

	if chunk == nil {
		return false, nil
	}

	if chunk.Error != "" {
		if err := p.emit(ctx, callback, StreamEvent{Type: StreamEventError, Error: chunk.Error}); err != nil {
			return true, err
		}
		return true, fmt.Errorf("ollama stream error: %s", chunk.Error)
	}

	if chunk.Thinking != "" && !p.config.RedactThinking {
		content := p.clipToBudget(chunk.Thinking, p.config.MaxThinkingLength, p.thinkingLength)
		if content != "" {
			p.thinkingLength += len(content)
			if err := p.emit(ctx, callback, StreamEvent{Type: StreamEventThinking, Content: content}); err != nil {
				return false, err
			}
		}
	}

	if chunk.Message.Content != "" {
		content := p.clipToBudget(chunk.Message.Content, p.config.MaxResponseLength, p.responseLength)
		if content != "" {
			p.tokenCount++
			p.responseLength += len(content)
			if err := p.emit(ctx, callback, StreamEvent{Type: StreamEventToken, Content: content}); err != nil {
				return false, err
			}
		}
	}

	return chunk.Done, nil
}

// GetTokenCount returns the number of token events emitted so far.
func (p *DefaultStreamProcessor) GetTokenCount() int {
	return p.tokenCount
}

// GetResponseLength returns the cumulative bytes of response content
// emitted so far, after truncation.
func (p *DefaultStreamProcessor) GetResponseLength() int {
	return p.responseLength
}

// clipToBudget truncates content so that used+len(content) stays within
// budget. A zero budget means unlimited. Returns "" once the budget is
// spent.
func (p *DefaultStreamProcessor) clipToBudget(content string, budget, used int) string {
	if budget <= 0 {
		return content
	}
	remaining := budget - used
	if remaining <= 0 {
		return ""
	}
	if len(content) > remaining {
		return content[:remaining]
	}
	return content
}

// emit delivers one event through the callback, honoring the rate limit.
func (p *DefaultStreamProcessor) emit(ctx context.Context, callback StreamCallback, event StreamEvent) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("stream rate limit wait: %w", err)
		}
	}
	if callback == nil {
		return nil
	}
	if err := callback(event); err != nil {
		return fmt.Errorf("stream callback rejected event: %w", err)
	}
	return nil
}

// =============================================================================
// Ollama Stream Chunk
// =============================================================================

// ollamaStreamChunk is one NDJSON line from the Ollama /api/chat stream.
type ollamaStreamChunk struct {
	Message       datatypes.Message `json:"message"`
	Thinking      string            `json:"thinking"`
	Done          bool              `json:"done"`
	DoneReason    string            `json:"done_reason"`
	TotalDuration int64             `json:"total_duration"`
	Error         string            `json:"error"`
}

// parseStreamChunk parses one NDJSON line into a chunk. Any input that is
// not a JSON object fails.
func (o *OllamaClient) parseStreamChunk(line []byte) (*ollamaStreamChunk, error) {
	var chunk ollamaStreamChunk
	if err := json.Unmarshal(line, &chunk); err != nil {
		return nil, fmt.Errorf("failed to parse stream chunk: %w", err)
	}
	return &chunk, nil
}

// =============================================================================
// Streaming Chat
// =============================================================================

// ChatStream streams a chat completion with the default stream
// configuration. Events are delivered to the callback in arrival order.
func (o *OllamaClient) ChatStream(ctx context.Context, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback) error {

	return o.ChatStreamWithConfig(ctx, messages, params, callback, DefaultStreamConfig())
}

// ChatStreamWithConfig streams a chat completion from Ollama.
//
// # Description
//
// Sends a streaming /api/chat request and scans the NDJSON response line
// by line. Empty lines are skipped. Malformed lines are logged and skipped
// so a single bad chunk does not kill the stream. The stream ends on a
// done chunk, a reported error, a callback rejection, or context
// cancellation.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout. Cancellation errors are
//     returned wrapped, so errors.Is against the context error works.
//   - messages: Conversation history, chronological order.
//   - params: Generation parameters, defaulted like Chat.
//   - callback: Receives events. Must not be nil for useful output.
//   - config: Stream filtering and bounding configuration.
//
// # Outputs
//
//   - error: Non-nil on transport failure, non-200 status, in-stream
//     error, callback rejection, or cancellation.
func (o *OllamaClient) ChatStreamWithConfig(ctx context.Context, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback, config StreamConfig) error {

	ctx, span := tracer.Start(ctx, "OllamaClient.ChatStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))
	span.SetAttributes(attribute.Int("llm.num_messages", len(messages)))

	payload := ollamaChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   true,
		Options:  ollamaOptions(params),
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal stream request to Ollama: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/chat", bytes.NewBuffer(reqBody))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create stream request to Ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// Prefer the context error so callers can match it directly.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ollama stream request interrupted: %w", ctxErr)
		}
		return fmt.Errorf("ollama stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("Ollama stream returned an error", "status_code", resp.StatusCode,
			"response", string(body))
		span.SetStatus(codes.Error, resp.Status)
		return fmt.Errorf("ollama stream failed with status %d: %s", resp.StatusCode,
			strings.TrimSpace(string(body)))
	}

	processor := NewDefaultStreamProcessor(config, slog.Default())
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		chunk, err := o.parseStreamChunk(line)
		if err != nil {
			slog.Warn("Skipping malformed stream chunk from Ollama", "error", err)
			continue
		}

		done, err := processor.ProcessChunk(ctx, chunk, callback)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if done {
			slog.Debug("Ollama stream complete",
				"tokens", processor.GetTokenCount(),
				"response_bytes", processor.GetResponseLength(),
				"done_reason", chunk.DoneReason)
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		// Prefer the context error so callers can match it directly.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ollama stream interrupted: %w", ctxErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("ollama stream read failed: %w", err)
	}

	slog.Warn("Ollama stream ended without done flag",
		"tokens", processor.GetTokenCount())
	return nil
}
