package config

import (
	"fmt"
	"strings"
)

// Validation bounds. Out-of-range values are configuration errors, not
// silently clamped.
const (
	MinTopK = 1
	MaxTopK = 50

	MinCandidateMultiplier = 1
	MaxCandidateMultiplier = 20

	MinChunkTokenBudget = 32
	MaxChunkTokenBudget = 8192

	MinSessionWindow = 1
	MaxSessionWindow = 200
)

// Validate checks the configuration for consistency (fail-fast at startup).
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RefusalMessage) == "" {
		return ErrMissingRefusalMessage
	}

	for name, k := range map[string]int{
		"top_k_professional": c.Retrieval.TopKProfessional,
		"top_k_persona":      c.Retrieval.TopKPersona,
	} {
		if k < MinTopK || k > MaxTopK {
			return fmt.Errorf("%w: %s=%d, must be in [%d, %d]",
				ErrInvalidTopK, name, k, MinTopK, MaxTopK)
		}
	}

	if m := c.Retrieval.CandidateMultiplier; m < MinCandidateMultiplier || m > MaxCandidateMultiplier {
		return fmt.Errorf("%w: %d, must be in [%d, %d]",
			ErrInvalidMultiplier, m, MinCandidateMultiplier, MaxCandidateMultiplier)
	}

	if b := c.Retrieval.ChunkTokenBudget; b < MinChunkTokenBudget || b > MaxChunkTokenBudget {
		return fmt.Errorf("%w: %d, must be in [%d, %d]",
			ErrInvalidTokenBudget, b, MinChunkTokenBudget, MaxChunkTokenBudget)
	}

	if w := c.Session.Window; w < MinSessionWindow || w > MaxSessionWindow {
		return fmt.Errorf("%w: %d, must be in [%d, %d]",
			ErrInvalidSessionWindow, w, MinSessionWindow, MaxSessionWindow)
	}
	if r := c.Session.RecencyTurns; r < 1 || r > c.Session.Window {
		return fmt.Errorf("%w: recency_turns=%d, must be in [1, window=%d]",
			ErrInvalidSessionWindow, r, c.Session.Window)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("%w: session ttl must be positive", ErrInvalidTimeout)
	}

	if c.Timeouts.Classify <= 0 || c.Timeouts.Agent <= 0 || c.Timeouts.Turn <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidTimeout)
	}
	// The turn deadline must leave room for at least one agent call.
	if c.Timeouts.Turn < c.Timeouts.Agent {
		return fmt.Errorf("%w: turn timeout %s shorter than agent timeout %s",
			ErrInvalidTimeout, c.Timeouts.Turn, c.Timeouts.Agent)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	return nil
}
