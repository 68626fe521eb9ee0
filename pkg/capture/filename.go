package capture

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the locale-style layout embedded in filenames.
const TimestampLayout = "1/2/2006, 3:04:05 PM"

var filenameReplacer = strings.NewReplacer("/", "-", ":", "-", ",", "-")

// Filename names a still as screenshot-<sequence>-<timestamp>.<ext>.
func Filename(sequence int, at time.Time, ext string) string {
	if ext == "" {
		ext = "png"
	}
	stamp := filenameReplacer.Replace(at.Format(TimestampLayout))
	return fmt.Sprintf("screenshot-%d-%s.%s", sequence, stamp, strings.TrimPrefix(ext, "."))
}
