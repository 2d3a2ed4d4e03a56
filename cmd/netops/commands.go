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
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianNetOps/pkg/ux"
)

// --- Global Command Variables ---
var (
	healthDomain     string
	jsonOutput       bool
	compactJSON      bool
	askSessionID     string
	historyLimit     int
	deviceRegion     string
	deviceType       string
	deviceEnv        string
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "netops",
		Short: "A cli for the Aleutian NetOps network assistant",
		Long: `netops talks to the Aleutian NetOps assistant service to classify
				device health, route operator questions to the right analysis
				tool, and inspect the knowledge that drives those decisions.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initOutputPersonality()
		},
	}

	// --- Analysis ---
	healthCmd = &cobra.Command{
		Use:   "health [device-id...]",
		Short: "Classify the health of one or more devices",
		Args:  cobra.MinimumNArgs(1),
		Run:   runHealthCommand, // Defined in cmd_analyze.go
	}
	routeCmd = &cobra.Command{
		Use:   "route [query]",
		Short: "Show which analysis tool a query would be routed to",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRouteCommand, // Defined in cmd_analyze.go
	}

	// --- Ask / Chat ---
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the assistant a question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_ask.go
	}
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session with streamed answers",
		Run:   runChatCommand, // Defined in cmd_ask.go
	}

	// --- Inventory ---
	devicesCmd = &cobra.Command{
		Use:   "devices",
		Short: "List devices known to the inventory",
		Run:   runDevicesCommand, // Defined in cmd_data.go
	}
	historyCmd = &cobra.Command{
		Use:   "history [device-id]",
		Short: "Show recent health decisions recorded for a device",
		Args:  cobra.ExactArgs(1),
		Run:   runHistoryCommand, // Defined in cmd_data.go
	}

	// --- Rule Packs ---
	rulesCmd = &cobra.Command{
		Use:   "rules",
		Short: "Work with executable rule packs",
	}
	rulesValidateCmd = &cobra.Command{
		Use:   "validate [file...]",
		Short: "Parse and compile rule pack files without loading them",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRulesValidate, // Defined in cmd_rules.go
	}
	rulesPushCmd = &cobra.Command{
		Use:   "push [file...]",
		Short: "Validate rule pack files and load them into the assistant",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRulesPush, // Defined in cmd_rules.go
	}

	// --- MCP ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Expose the decision engine as MCP tools over stdio",
		Long: `serve runs a Model Context Protocol server on stdin/stdout so
				agent hosts can call the health and routing tools directly.
				The engine is built from the same NETOPS_* environment the
				assistant service reads.`,
		Run: runServeCommand, // Defined in cmd_serve.go
	}
)

// initOutputPersonality picks the output style: explicit flag first, then
// the NETOPS_PERSONALITY environment variable, then TTY detection so piped
// output is machine-readable without any flags.
func initOutputPersonality() {
	if personalityLevel != "" {
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
		return
	}
	if env := os.Getenv("NETOPS_PERSONALITY"); env != "" {
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(env))
		return
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		ux.SetPersonalityLevel(ux.PersonalityMachine)
		return
	}
	ux.SetPersonalityLevel(ux.PersonalityStandard)
}

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full, standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().StringVar(&healthDomain, "domain", "",
		"Knowledge domain to classify against (default: network_health)")
	healthCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output raw JSON instead of a report")
	healthCmd.Flags().BoolVar(&compactJSON, "compact", false, "No indentation in JSON output")

	rootCmd.AddCommand(routeCmd)
	routeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output raw JSON instead of a report")
	routeCmd.Flags().BoolVar(&compactJSON, "compact", false, "No indentation in JSON output")

	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askSessionID, "session", "", "Session ID to group related questions for audit")

	rootCmd.AddCommand(chatCmd)

	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().StringVar(&deviceRegion, "region", "", "Filter by region code (e.g. HOBO)")
	devicesCmd.Flags().StringVar(&deviceType, "type", "", "Filter by device type (e.g. OLT)")
	devicesCmd.Flags().StringVar(&deviceEnv, "environment", "", "Filter by environment (PRODUCTION, UAT, LAB)")
	devicesCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output raw JSON instead of a table")
	devicesCmd.Flags().BoolVar(&compactJSON, "compact", false, "No indentation in JSON output")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of decisions to show")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output raw JSON instead of a report")
	historyCmd.Flags().BoolVar(&compactJSON, "compact", false, "No indentation in JSON output")

	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesValidateCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	rulesValidateCmd.Flags().BoolVar(&compactJSON, "compact", false, "No indentation in JSON output")
	rulesCmd.AddCommand(rulesPushCmd)

	rootCmd.AddCommand(serveCmd)
}
