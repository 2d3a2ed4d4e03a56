// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianNetOps/pkg/ux"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
)

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")

	body := map[string]any{"query": question}
	if askSessionID != "" {
		body["session_id"] = askSessionID
	}

	spin := ux.NewSpinner("Consulting the assistant...")
	spin.Start()
	var resp datatypes.AskResponse
	err := postJSON("/v1/ask", body, &resp)
	spin.Stop()
	if err != nil {
		fail("Ask failed", err)
	}

	fmt.Println(resp.Answer)

	if resp.Routing != nil && resp.Routing.ToolRecommendation != "" {
		fmt.Println()
		ux.Muted(fmt.Sprintf("Answered via %s (%s confidence)",
			resp.Routing.ToolRecommendation, resp.Routing.ConfidenceLevel))
	}
	if len(resp.Sources) > 0 {
		ux.Muted("Sources:")
		for i, source := range resp.Sources {
			ux.Muted(fmt.Sprintf("  %d. %s", i+1, source))
		}
	}
}

// chatFrame is the union of every frame the chat socket sends. Exactly one
// of Action or Type identifies each frame.
type chatFrame struct {
	Action           string                    `json:"action,omitempty"`
	SessionID        string                    `json:"sessionId,omitempty"`
	Type             string                    `json:"type,omitempty"`
	Content          string                    `json:"content,omitempty"`
	Error            string                    `json:"error,omitempty"`
	Decision         *decision.RoutingDecision `json:"decision,omitempty"`
	RequestID        string                    `json:"request_id,omitempty"`
	Sources          []string                  `json:"sources,omitempty"`
	ProcessingTimeMs int64                     `json:"processing_time_ms,omitempty"`
}

func runChatCommand(cmd *cobra.Command, args []string) {
	wsURL := strings.Replace(getAssistantBaseURL(), "http", "ws", 1) + "/v1/chat/ws"

	header := http.Header{}
	if token := os.Getenv("NETOPS_API_TOKEN"); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, dialResp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		if dialResp != nil {
			dialResp.Body.Close()
			fail("Failed to connect", fmt.Errorf("%w (status %d)", err, dialResp.StatusCode))
		}
		fail("Failed to connect", err)
	}
	defer conn.Close()

	// Ctrl+C closes the socket cleanly instead of leaving the server with
	// a dangling session.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		conn.Close()
		fmt.Println()
		os.Exit(CLIExitSuccess)
	}()

	var hello chatFrame
	if err := conn.ReadJSON(&hello); err != nil {
		fail("Failed to read session frame", err)
	}
	ux.Title("Aleutian NetOps chat")
	ux.Muted(fmt.Sprintf("session %s  (type 'exit' to leave)", hello.SessionID))
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(ux.Styles.Highlight.Render("you ❯ "))
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return
		}

		if err := conn.WriteJSON(map[string]string{"query": question}); err != nil {
			fail("Failed to send question", err)
		}
		if !printChatTurn(conn) {
			return
		}
		fmt.Println()
	}
}

// printChatTurn renders frames for one question until its done frame.
// Returns false when the connection is gone.
func printChatTurn(conn *websocket.Conn) bool {
	wroteTokens := false
	for {
		var frame chatFrame
		if err := conn.ReadJSON(&frame); err != nil {
			ux.Error(fmt.Sprintf("connection lost: %v", err))
			return false
		}

		switch frame.Type {
		case "routing":
			if frame.Decision != nil && frame.Decision.ToolRecommendation != "" {
				ux.Muted(fmt.Sprintf("using %s (%s confidence)",
					frame.Decision.ToolRecommendation, frame.Decision.ConfidenceLevel))
			}
		case "token":
			fmt.Print(frame.Content)
			wroteTokens = true
		case "error":
			ux.Error(frame.Error)
			return true
		case "done":
			if wroteTokens {
				fmt.Println()
			}
			if len(frame.Sources) > 0 {
				ux.Muted("sources: " + strings.Join(frame.Sources, ", "))
			}
			return true
		}
	}
}
