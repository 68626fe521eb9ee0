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
	"github.com/offlinefirst/framegrab/pkg/elapsed"
)

// Metadata is the JSON sidecar written next to a downloaded still.
type Metadata struct {
	Sequence   int       `json:"sequence"`
	Filename   string    `json:"filename"`
	SessionID  string    `json:"session_id"`
	CapturedAt time.Time `json:"captured_at"`
	Elapsed    string    `json:"elapsed"`
	Strategy   string    `json:"strategy"`
	MIME       string    `json:"mime"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Blank      bool      `json:"blank,omitempty"`
}

// Downloader writes stills into a directory.
type Downloader struct {
	dir      string
	metadata bool
}

// NewDownloader returns a downloader for dir. When metadata is set a JSON
// sidecar accompanies every still.
func NewDownloader(dir string, metadata bool) (*Downloader, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("download directory must not be empty")
	}
	return &Downloader{dir: dir, metadata: metadata}, nil
}

// Dir returns the destination directory.
func (d *Downloader) Dir() string { return d.dir }

// Save writes the still and returns its path.
func (d *Downloader) Save(shot capture.Screenshot) (string, error) {
	if len(shot.Image.Data) == 0 {
		return "", errors.New("screenshot has no image data")
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure download dir: %w", err)
	}
	name := filepath.Base(shot.Filename)
	imagePath := filepath.Join(d.dir, name)
	if err := os.WriteFile(imagePath, shot.Image.Data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot %q: %w", name, err)
	}
	if !d.metadata {
		return imagePath, nil
	}

	meta := Metadata{
		Sequence:   shot.Sequence,
		Filename:   name,
		SessionID:  shot.SessionID,
		CapturedAt: shot.CapturedAt.UTC(),
		Elapsed:    elapsed.Format(shot.Elapsed),
		Strategy:   string(shot.Image.Strategy),
		MIME:       shot.Image.MIME,
		Width:      shot.Image.Width,
		Height:     shot.Image.Height,
		Blank:      shot.Image.Blank,
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return imagePath, fmt.Errorf("marshal metadata for %q: %w", name, err)
	}
	metaPath := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".json"
	if err := os.WriteFile(metaPath, metaBytes, 0o644); err != nil {
		return imagePath, fmt.Errorf("write metadata %q: %w", name, err)
	}
	return imagePath, nil
}
