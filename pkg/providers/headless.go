package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
)

// ErrSpawnDisabled is returned by DisabledSpawner.
var ErrSpawnDisabled = errors.New("spawn is disabled")

// DisabledSpawner refuses every spawn. Remote callers (the HTTP API, the MCP
// server) use it unless spawning is explicitly allowed.
type DisabledSpawner struct{}

func (DisabledSpawner) Spawn(_ context.Context, command string, _ []string) (*engine.SpawnResult, error) {
	return nil, fmt.Errorf("%w: refusing to start %q", ErrSpawnDisabled, command)
}
