// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

const (
	// SecureBufferSize is the capacity of the locked buffer holding one
	// streamed answer, roughly 131,000 tokens at 4 bytes per token.
	SecureBufferSize = 512 * 1024

	// MinMlockLimitKB is the mlock limit the secure path needs.
	MinMlockLimitKB = 512
)

var (
	memguardInitOnce    sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// TokenAccumulator collects streamed answer tokens and produces the
// complete answer with its SHA-256 hash. Tokens are hashed incrementally
// as they arrive, and the secure implementation keeps them in mlocked
// memory so an answer never swaps to disk before it is finalized.
//
// Implementations are safe for concurrent use. An accumulator cannot be
// reused after Finalize or Destroy.
type TokenAccumulator interface {
	// Write appends one token. Fails on overflow and after Destroy.
	Write(token string) error

	// Finalize returns the accumulated answer and its hex-encoded
	// SHA-256 hash, then wipes the buffer. Can only be called once.
	Finalize() (answer string, hash string, err error)

	// Destroy wipes the buffer without returning data. Idempotent.
	Destroy()
}

// NewTokenAccumulator returns a secure accumulator backed by mlocked
// memory when the system's mlock limit allows it. When the limit is too
// low, NETOPS_INSECURE_MEMORY=true selects a plain-memory fallback;
// without that acknowledgment an error is returned.
func NewTokenAccumulator() (TokenAccumulator, error) {
	initMemguard()

	if !mlockSufficient {
		if os.Getenv("NETOPS_INSECURE_MEMORY") == "true" {
			slog.Warn("Using insecure answer accumulator, mlock limit too low",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB)
			return newInsecureAccumulator(), nil
		}
		return nil, fmt.Errorf(
			"mlock limit insufficient: have %d KB, need %d KB. "+
				"Raise the limit or set NETOPS_INSECURE_MEMORY=true",
			currentMlockLimitKB, MinMlockLimitKB)
	}

	buf := memguard.NewBuffer(SecureBufferSize)
	if buf == nil {
		return nil, fmt.Errorf("failed to allocate secure buffer of %d bytes", SecureBufferSize)
	}
	buf.Melt()

	return &secureAccumulator{
		buffer: buf,
		hasher: sha256.New(),
	}, nil
}

// initMemguard checks the mlock limit once per process.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if !mlockSufficient {
			slog.Warn("mlock limit insufficient for secure answer capture",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB)
		}
	})
}

// checkMlockLimit reports whether RLIMIT_MEMLOCK covers the buffer, and
// the current limit in KB (-1 when unlimited or unknown).
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}

// secureAccumulator stores tokens in a memguard LockedBuffer: mlocked
// against swapping, guard-paged, and explicitly wiped on Destroy.
type secureAccumulator struct {
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	offset    int
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

func (a *secureAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("secure buffer overflow, answer too large")
	}

	tokenBytes := []byte(token)
	if a.offset+len(tokenBytes) > SecureBufferSize {
		a.overflow = true
		return fmt.Errorf("secure buffer overflow: need %d bytes, have %d remaining",
			len(tokenBytes), SecureBufferSize-a.offset)
	}

	copy(a.buffer.Bytes()[a.offset:], tokenBytes)
	a.offset += len(tokenBytes)
	a.hasher.Write(tokenBytes)
	return nil
}

func (a *secureAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	answer := string(a.buffer.Bytes()[:a.offset])
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	return answer, hashStr, nil
}

func (a *secureAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.destroyed {
		a.wipe()
	}
}

func (a *secureAccumulator) wipe() {
	if a.buffer != nil {
		a.buffer.Destroy()
	}
	a.destroyed = true
}

// insecureAccumulator is the plain-memory fallback. Same contract, but
// the answer may swap to disk and wiping is best effort under the GC.
type insecureAccumulator struct {
	mu        sync.Mutex
	data      []byte
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

func newInsecureAccumulator() TokenAccumulator {
	return &insecureAccumulator{
		data:   make([]byte, 0, SecureBufferSize),
		hasher: sha256.New(),
	}
}

func (a *insecureAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("buffer overflow, answer too large")
	}

	tokenBytes := []byte(token)
	if len(a.data)+len(tokenBytes) > SecureBufferSize {
		a.overflow = true
		return fmt.Errorf("buffer overflow: need %d bytes, have %d remaining",
			len(tokenBytes), SecureBufferSize-len(a.data))
	}

	a.data = append(a.data, tokenBytes...)
	a.hasher.Write(tokenBytes)
	return nil
}

func (a *insecureAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	answer := string(a.data)
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	return answer, hashStr, nil
}

func (a *insecureAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.destroyed {
		a.wipe()
	}
}

func (a *insecureAccumulator) wipe() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
	a.destroyed = true
}
