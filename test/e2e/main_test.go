// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package e2e

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var cliBinary string

func TestMain(m *testing.M) {
	// 1. Build the binary
	cwd, _ := os.Getwd()
	cliBinary = filepath.Join(cwd, "netops_e2e")

	// Assuming running from test/e2e/, go up to root
	cmd := exec.Command("go", "build", "-o", cliBinary, "../../cmd/netops")
	if out, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("Failed to build CLI: %v\n%s\n", err, out)
		os.Exit(1)
	}

	// 2. Run Tests
	exitCode := m.Run()

	// 3. Cleanup
	os.Remove(cliBinary)
	os.Exit(exitCode)
}

// assistantBaseURL mirrors the CLI's own address resolution so the tests
// probe the same service the binary will talk to.
func assistantBaseURL() string {
	if url := strings.Trim(os.Getenv("NETOPS_ASSISTANT_URL"), "\"' "); url != "" {
		return strings.TrimRight(url, "/")
	}
	return "http://localhost:12310"
}

// requireAssistant skips the test when no assistant service answers the
// health probe. Local-only tests never call this.
func requireAssistant(t *testing.T) {
	t.Helper()
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(assistantBaseURL() + "/health")
	if err != nil {
		t.Skipf("assistant not reachable at %s: %v", assistantBaseURL(), err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skipf("assistant health probe returned %d", resp.StatusCode)
	}
}

// runCLI executes the built binary and returns its combined output and
// exit code. The process has no TTY, so the CLI drops into machine
// personality on its own and the plain-text outputs are stable.
func runCLI(t *testing.T, timeout time.Duration, args ...string) (string, int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cliBinary, args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		t.Fatalf("netops %s timed out after %s\nOutput: %s", strings.Join(args, " "), timeout, out)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), exitErr.ExitCode()
		}
		t.Fatalf("netops %s failed to run: %v\nOutput: %s", strings.Join(args, " "), err, out)
	}
	return string(out), 0
}
