package trajectory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrison/trajector/internal/filelock"
)

// FileName is the fixed name of the trajectory document inside a run's
// log directory.
const FileName = "trajectory.json"

// Write persists the trajectory as pretty-printed JSON at path,
// overwriting any prior file. The write is atomic and serialized
// against concurrent readers via the sibling lock file.
func Write(path string, traj *Trajectory) error {
	data, err := json.MarshalIndent(traj, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode trajectory: %w", err)
	}
	data = append(data, '\n')

	if err := filelock.LockAndWrite(path, data); err != nil {
		return fmt.Errorf("failed to write trajectory: %w", err)
	}
	return nil
}

// Load reads a previously written trajectory document.
func Load(path string) (*Trajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trajectory: %w", err)
	}

	var traj Trajectory
	if err := json.Unmarshal(data, &traj); err != nil {
		return nil, fmt.Errorf("failed to decode trajectory %s: %w", path, err)
	}
	return &traj, nil
}

// OutputPath returns the fixed trajectory location for a run's log
// directory.
func OutputPath(logDir string) string {
	return filepath.Join(logDir, FileName)
}

// FindLogFile locates the agent's raw output log inside a run's log
// directory. The agent writes to agent/output.jsonl; some runner setups
// place the file directly in the log directory instead, so that is
// checked as a fallback. Returns "" when neither exists.
func FindLogFile(logDir string) string {
	candidates := []string{
		filepath.Join(logDir, "agent", "output.jsonl"),
		filepath.Join(logDir, "output.jsonl"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
