package tracker

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// DeviceContext carries the browser and device signals reported by the
// dashboard or the extension.
type DeviceContext struct {
	UserAgent           string   `json:"user_agent"`
	Language            string   `json:"language"`
	Languages           []string `json:"languages"`
	Platform            string   `json:"platform"`
	ScreenResolution    string   `json:"screen_resolution"`
	ColorDepth          int      `json:"color_depth"`
	Timezone            string   `json:"timezone"`
	HardwareConcurrency int      `json:"hardware_concurrency"`
	DeviceMemory        float64  `json:"device_memory"`
	TouchSupport        bool     `json:"touch_support"`
	CanvasHash          string   `json:"canvas_hash"`
	WebGLVendor         string   `json:"webgl_vendor"`
	WebGLRenderer       string   `json:"webgl_renderer"`
}

// SHA256Generator hashes the normalized device signals with SHA-256.
type SHA256Generator struct{}

func NewFingerprintGenerator() SHA256Generator {
	return SHA256Generator{}
}

// Generate returns the hex-encoded SHA-256 of the canonical form of d.
func (SHA256Generator) Generate(d DeviceContext) string {
	hash := sha256.Sum256([]byte(Canonical(d)))
	return hex.EncodeToString(hash[:])
}

// Canonical renders d as newline separated key=value pairs in a fixed
// order. Case, surrounding whitespace and language order do not change
// the output.
func Canonical(d DeviceContext) string {
	langs := make([]string, 0, len(d.Languages))
	for _, l := range d.Languages {
		if l = norm(l); l != "" {
			langs = append(langs, l)
		}
	}
	sort.Strings(langs)

	pairs := [][2]string{
		{"ua", strings.TrimSpace(d.UserAgent)},
		{"lang", norm(d.Language)},
		{"langs", strings.Join(langs, ",")},
		{"platform", norm(d.Platform)},
		{"screen", norm(d.ScreenResolution)},
		{"depth", strconv.Itoa(d.ColorDepth)},
		{"tz", strings.TrimSpace(d.Timezone)},
		{"cores", strconv.Itoa(d.HardwareConcurrency)},
		{"memory", strconv.FormatFloat(d.DeviceMemory, 'f', -1, 64)},
		{"touch", strconv.FormatBool(d.TouchSupport)},
		{"canvas", norm(d.CanvasHash)},
		{"webgl_vendor", norm(d.WebGLVendor)},
		{"webgl_renderer", norm(d.WebGLRenderer)},
	}

	var b strings.Builder
	for _, p := range pairs {
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(p[1])
		b.WriteByte('\n')
	}
	return b.String()
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
