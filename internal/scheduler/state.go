package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"ZakatSentinel/internal/store"
)

// RunState remembers the last successful run across restarts.
type RunState struct {
	LastRun   time.Time `json:"last_run"`
	LastRunID string    `json:"last_run_id"`
}

// LoadState reads the run state from a JSON file. Returns a zero state if the file doesn't exist.
func LoadState(filePath string) (*RunState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &RunState{}, nil
		}
		return nil, err
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode run state: %w", err)
	}
	return &state, nil
}

// SaveState atomically writes the run state to a JSON file.
func SaveState(filePath string, state *RunState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return store.WriteAtomic(filePath, data)
}
