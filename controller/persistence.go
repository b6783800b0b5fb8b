package controller

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// persistenceVersion is the "ver" field of the saved state file (spec
// §6 persistence format).
const persistenceVersion = 1

// ProxySettings is the persisted proxy configuration (spec §6: `{"ver":
// 1,"proxy":{"server":"host:port","udp":bool,"tcp":bool}}`).
type ProxySettings struct {
	Server string `json:"server"`
	UDP    bool   `json:"udp"`
	TCP    bool   `json:"tcp"`
}

// PersistedState is the on-disk JSON document saved between runs.
type PersistedState struct {
	Ver   int           `json:"ver"`
	Proxy ProxySettings `json:"proxy"`
}

// SaveState atomically writes state to path, grounded on the
// teacher's NonceStore.save() pattern (crypto/replay_protection.go):
// marshal, write to a ".tmp" sibling, then rename over the final path
// so a crash mid-write never leaves a half-written file behind.
func SaveState(path string, state PersistedState) error {
	state.Ver = persistenceVersion

	buf, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("controller: marshal persisted state: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf, 0o600); err != nil {
		return fmt.Errorf("controller: write temporary state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("controller: rename state file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SaveState",
		"package":  "controller",
		"path":     path,
	}).Debug("persisted controller state")
	return nil
}

// LoadState reads and unmarshals a state file previously written by
// SaveState. A missing file is not an error — it returns the zero
// PersistedState with ver set to persistenceVersion, matching a
// first-run default.
func LoadState(path string) (PersistedState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return PersistedState{Ver: persistenceVersion}, nil
	}
	if err != nil {
		return PersistedState{}, fmt.Errorf("controller: read state file: %w", err)
	}

	var state PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return PersistedState{}, fmt.Errorf("controller: parse state file: %w", err)
	}
	return state, nil
}
