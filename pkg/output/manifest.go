package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/offlinefirst/framegrab/pkg/capture"
)

// ManifestSchemaVersion captures the manifest version for compatibility checks.
const ManifestSchemaVersion = 1

// Manifest is the durable record of one capture session.
type Manifest struct {
	SchemaVersion int             `json:"schema_version"`
	RunID         string          `json:"run_id"`
	SessionID     string          `json:"session_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Hostname      string          `json:"hostname"`
	AppVersion    string          `json:"app_version"`
	ConfigSource  string          `json:"config_source"`
	Capture       ManifestCapture `json:"capture"`
	Shots         []ManifestShot  `json:"shots"`
	Status        ManifestStatus  `json:"status"`
}

// ManifestCapture records how stills were produced.
type ManifestCapture struct {
	Source     string  `json:"source"`
	Provider   string  `json:"provider,omitempty"`
	Strategy   string  `json:"strategy"`
	Permission string  `json:"permission,omitempty"`
	FrameRate  float64 `json:"frame_rate"`
}

// ManifestShot is one attempted still.
type ManifestShot struct {
	Sequence int    `json:"sequence,omitempty"`
	Filename string `json:"filename,omitempty"`
	Path     string `json:"path,omitempty"`
	Elapsed  string `json:"elapsed,omitempty"`
	Blank    bool   `json:"blank,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ManifestStatus summarises the session lifecycle.
type ManifestStatus struct {
	State     string                  `json:"state"`
	Summary   string                  `json:"summary,omitempty"`
	StartedAt *time.Time              `json:"started_at,omitempty"`
	EndedAt   *time.Time              `json:"ended_at,omitempty"`
	Timeline  []capture.TimelineEntry `json:"controller_timeline,omitempty"`
}

// Manifest states.
const (
	ManifestCompleted = "completed"
	ManifestPartial   = "partial"
	ManifestFailed    = "error"
)

// ManifestPath returns where a run's manifest lives inside dir.
func ManifestPath(dir, runID string) string {
	return filepath.Join(dir, "manifest-"+runID+".json")
}

// SaveManifest writes the manifest JSON to disk with indentation for readability.
func SaveManifest(man Manifest, path string) error {
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest JSON file from disk.
func LoadManifest(path string) (Manifest, error) {
	var man Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return man, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &man); err != nil {
		return man, fmt.Errorf("decode manifest: %w", err)
	}
	return man, nil
}

// ResolveRunID chooses an identifier derived from the timestamp that does
// not collide with an existing manifest in dir.
func ResolveRunID(dir string, now time.Time) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("output directory must not be empty")
	}

	base := now.UTC().Format("20060102_150405")
	candidate := base
	suffix := 1
	for {
		_, err := os.Stat(ManifestPath(dir, candidate))
		if err == nil {
			candidate = fmt.Sprintf("%s_%02d", base, suffix)
			suffix++
			continue
		}
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		return "", fmt.Errorf("inspect output directory: %w", err)
	}
}
