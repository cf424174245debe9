// Package resolver turns a pending catalog item into a torrent by walking an
// ordered list of source tiers.
package resolver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Quality is the video resolution label a source reports for a torrent.
type Quality string

const (
	Quality2160p   Quality = "2160p"
	Quality1080p   Quality = "1080p"
	Quality720p    Quality = "720p"
	Quality480p    Quality = "480p"
	Quality3D      Quality = "3D"
	QualityUnknown Quality = "Unknown"
)

var qualityPattern = regexp.MustCompile(`(?i)(2160p|1080p|720p|480p|3D)`)

// ParseQuality maps a free-form label or release name to a Quality.
func ParseQuality(s string) Quality {
	m := qualityPattern.FindString(s)
	switch strings.ToLower(m) {
	case "2160p":
		return Quality2160p
	case "1080p":
		return Quality1080p
	case "720p":
		return Quality720p
	case "480p":
		return Quality480p
	case "3d":
		return Quality3D
	}
	return QualityUnknown
}

// Candidate is one torrent a source offers for an item.
type Candidate struct {
	Quality     Quality `json:"quality"`
	SizeBytes   int64   `json:"sizeBytes,omitempty"` // 0 when the source did not report a size
	SizeDisplay string  `json:"sizeDisplay,omitempty"`
	Locator     string  `json:"locator"`
	SourceID    string  `json:"sourceId"`
	Seeders     int     `json:"seeders,omitempty"`
	Title       string  `json:"title,omitempty"` // release name, when the source has one
}

// DisplaySize returns SizeDisplay, falling back to a formatted SizeBytes.
func (c Candidate) DisplaySize() string {
	if c.SizeDisplay != "" {
		return c.SizeDisplay
	}
	if c.SizeBytes > 0 {
		return FormatBytes(c.SizeBytes)
	}
	return ""
}

var sizePattern = regexp.MustCompile(`(?i)([\d.]+)\s*(GB|MB|KB)`)

// SizeToBytes parses strings such as "1.4 GB" using binary multiples.
// Unparseable input yields 0.
func SizeToBytes(s string) int64 {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "GB":
		return int64(v * humanize.GiByte)
	case "MB":
		return int64(v * humanize.MiByte)
	case "KB":
		return int64(v * humanize.KiByte)
	}
	return 0
}

// FormatBytes renders n with two decimals in the largest binary unit below it.
func FormatBytes(n int64) string {
	switch {
	case n <= 0:
		return "0 B"
	case n < humanize.KiByte:
		return fmt.Sprintf("%d B", n)
	case n < humanize.MiByte:
		return fmt.Sprintf("%.2f KB", float64(n)/humanize.KiByte)
	case n < humanize.GiByte:
		return fmt.Sprintf("%.2f MB", float64(n)/humanize.MiByte)
	case n < humanize.TiByte:
		return fmt.Sprintf("%.2f GB", float64(n)/humanize.GiByte)
	}
	return fmt.Sprintf("%.2f TB", float64(n)/humanize.TiByte)
}
