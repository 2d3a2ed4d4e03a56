package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianNetOps/pkg/extensions"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/observability"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/AleutianAI/AleutianNetOps/services/llm"
)

// WSChatRequest is one client turn on the chat socket.
type WSChatRequest struct {
	Query     string `json:"query"`
	RequestID string `json:"request_id,omitempty"`
}

// wsDoneFrame closes out one answered turn. AnswerHash is the SHA-256 of
// the streamed answer, present when answer capture was available.
type wsDoneFrame struct {
	Type             string   `json:"type"`
	RequestID        string   `json:"request_id"`
	Sources          []string `json:"sources,omitempty"`
	AnswerHash       string   `json:"answer_hash,omitempty"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
}

// wsRoutingFrame carries the routing decision ahead of the answer so the
// client can show which tool is being used while tokens stream.
type wsRoutingFrame struct {
	Type     string                    `json:"type"`
	Decision *decision.RoutingDecision `json:"decision"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// 10MB Read Buffer
	ReadBufferSize: 10 * 1024 * 1024,
	// 10MB Write Buffer
	WriteBufferSize: 10 * 1024 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatWebsocket runs the streaming chat loop over a websocket.
//
// Each inbound message is one question: it is filtered, routed, answered
// through the recommended tool, and streamed back as routing, token, and
// done frames. Errors within a turn are reported as error frames; the
// connection stays open for the next question.
func (h *analysisHandler) HandleChatWebsocket(c *gin.Context) {
	endpoint := observability.EndpointChatWS

	if !authorizeRequest(c.Request.Context(), c, h.opts, "analyze", "chat", "") {
		return
	}
	userID := requestUserID(c)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()
	slog.Info("Websocket client connected")

	sessionID := uuid.New().String()
	slog.Info("New websocket session started", "sessionID", sessionID)

	if err := sendJSON(ws, map[string]interface{}{
		"action":    "session_created",
		"sessionId": sessionID,
	}); err != nil {
		return
	}

	for {
		var req WSChatRequest
		if err := ws.ReadJSON(&req); err != nil {
			slog.Info("Websocket client disconnected", "error", err.Error())
			break
		}

		ctx := c.Request.Context()
		startTime := time.Now()
		requestID := req.RequestID
		if requestID == "" {
			requestID = uuid.New().String()
		}

		turnOK := h.answerChatTurn(ctx, ws, endpoint, userID, sessionID, requestID, req.Query, startTime)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(endpoint, turnOK)
		}
	}
}

// answerChatTurn handles one question on the socket. Returns false when
// the turn ended in an error frame.
func (h *analysisHandler) answerChatTurn(ctx context.Context, ws *websocket.Conn,
	endpoint observability.Endpoint, userID, sessionID, requestID, rawQuery string,
	startTime time.Time) bool {

	query := strings.TrimSpace(rawQuery)
	if query == "" {
		_ = sendJSON(ws, llm.StreamEvent{Type: llm.StreamEventError, Error: "query must not be empty"})
		return false
	}
	if len(query) > datatypes.MaxQueryBytes {
		_ = sendJSON(ws, llm.StreamEvent{Type: llm.StreamEventError, Error: "query too long"})
		return false
	}

	filtered, err := h.opts.QueryFilter.FilterInput(ctx, query)
	if err != nil {
		slog.Error("Query filter failed", "error", err, "sessionID", sessionID)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		_ = sendJSON(ws, llm.StreamEvent{Type: llm.StreamEventError, Error: "query processing failed"})
		return false
	}
	if filtered.WasBlocked {
		_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
			EventType:    "chat.blocked",
			Timestamp:    time.Now().UTC(),
			UserID:       userID,
			Action:       "send",
			ResourceType: "chat",
			ResourceID:   sessionID,
			Outcome:      "blocked",
			Metadata: map[string]any{
				"request_id": requestID,
				"reason":     filtered.BlockReason,
			},
		})
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeQueryBlocked)
		}
		_ = sendJSON(ws, llm.StreamEvent{
			Type:  llm.StreamEventError,
			Error: "query blocked by content filter: " + filtered.BlockReason,
		})
		return false
	}
	query = filtered.Filtered

	dec, err := h.routeQuery(ctx, query)
	if err != nil {
		slog.Error("Query routing failed", "error", err, "sessionID", sessionID)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeRuleStore)
		}
		_ = sendJSON(ws, llm.StreamEvent{Type: llm.StreamEventError, Error: "failed to route query"})
		return false
	}
	if err := sendJSON(ws, wsRoutingFrame{Type: "routing", Decision: dec}); err != nil {
		return false
	}

	toolOutput, sources, toolErr := h.runTool(ctx, dec, query)
	if toolErr != nil {
		slog.Warn("Chat tool dispatch failed",
			"tool", dec.ToolRecommendation,
			"error", toolErr,
			"sessionID", sessionID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInventory)
		}
	}

	answerHash, ok := h.streamAnswer(ctx, ws, endpoint, query, dec, toolOutput)
	if !ok {
		return false
	}

	auditMeta := map[string]any{
		"request_id":    requestID,
		"analysis_type": string(dec.AnalysisType),
		"tool":          dec.ToolRecommendation,
	}
	if answerHash != "" {
		auditMeta["answer_hash"] = answerHash
	}
	_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
		EventType:    "chat.message",
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		Action:       "send",
		ResourceType: "chat",
		ResourceID:   sessionID,
		Outcome:      "success",
		Metadata:     auditMeta,
	})
	h.syncCacheMetrics()

	return sendJSON(ws, wsDoneFrame{
		Type:             "done",
		RequestID:        requestID,
		Sources:          sources,
		AnswerHash:       answerHash,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
	}) == nil
}

// streamAnswer delivers the answer for one turn: token-by-token when the
// LLM backend streams, as a single token frame otherwise. The returned
// hash is the SHA-256 of the delivered answer, empty when answer capture
// was unavailable. The bool is false when the turn failed and an error
// frame was sent instead.
func (h *analysisHandler) streamAnswer(ctx context.Context, ws *websocket.Conn,
	endpoint observability.Endpoint, query string, dec *decision.RoutingDecision,
	toolOutput string) (string, bool) {

	capture, captureErr := NewTokenAccumulator()
	if captureErr != nil {
		slog.Debug("Answer capture unavailable for this turn", "error", captureErr)
	}
	defer func() {
		if capture != nil {
			capture.Destroy()
		}
	}()

	if sc, ok := h.llmClient.(llm.StreamingClient); ok {
		if m := observability.DefaultMetrics; m != nil {
			m.StreamStarted()
			defer m.StreamEnded()
		}

		temperature := float32(0.2)
		maxTokens := 1024
		params := llm.GenerationParams{
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		}
		messages := []datatypes.Message{
			{Role: "system", Content: chatSystemPrompt(toolOutput, dec)},
			{Role: "user", Content: query},
		}

		streamErr := sc.ChatStream(ctx, messages, params, func(ev llm.StreamEvent) error {
			if capture != nil && ev.Type == llm.StreamEventToken {
				if err := capture.Write(ev.Content); err != nil {
					slog.Debug("Answer capture stopped", "error", err)
					capture.Destroy()
					capture = nil
				}
			}
			return sendJSON(ws, ev)
		})
		if streamErr == nil {
			return finalizeCapture(capture), true
		}

		if errors.Is(streamErr, context.Canceled) {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
			}
			return "", false
		}
		slog.Warn("Chat stream failed, falling back to rendered output", "error", streamErr)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeLLMError)
		}
		// Partial tokens from the failed stream must not leak into the
		// fallback answer's hash.
		if capture != nil {
			capture.Destroy()
			capture = nil
		}
	}

	// Non-streaming path: phrase once and deliver as a single token frame.
	answer := h.phraseAnswer(ctx, endpoint, query, dec, toolOutput)
	if strings.TrimSpace(answer) == "" {
		answer = "(No answer could be produced for this question.)"
	}
	if capture == nil && captureErr == nil {
		capture, _ = NewTokenAccumulator()
	}
	answerHash := ""
	if capture != nil {
		if err := capture.Write(answer); err == nil {
			answerHash = finalizeCapture(capture)
		}
	}
	return answerHash, sendJSON(ws, llm.StreamEvent{Type: llm.StreamEventToken, Content: answer}) == nil
}

// finalizeCapture extracts the answer hash, returning "" when capture was
// unavailable or failed.
func finalizeCapture(capture TokenAccumulator) string {
	if capture == nil {
		return ""
	}
	_, hashStr, err := capture.Finalize()
	if err != nil {
		slog.Debug("Failed to finalize answer capture", "error", err)
		return ""
	}
	return hashStr
}

// chatSystemPrompt grounds a chat turn in the tool output the same way
// askPrompt does for the single-shot flow.
func chatSystemPrompt(toolOutput string, dec *decision.RoutingDecision) string {
	var b strings.Builder
	b.WriteString("You are a network operations assistant for an FTTH access network. ")
	b.WriteString("Answer using only the data below. Be concise and concrete. ")
	b.WriteString("If the data does not contain the answer, say so.\n\n")
	if toolOutput != "" {
		b.WriteString("Data:\n")
		b.WriteString(toolOutput)
		b.WriteString("\n")
	} else {
		b.WriteString("Data: none retrieved. Routing analysis: ")
		b.WriteString(dec.Reasoning)
		b.WriteString("\n")
	}
	return b.String()
}
