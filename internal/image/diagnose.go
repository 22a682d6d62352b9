package image

import (
	"encoding/base64"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// sampleChars is how much of each end of the payload debug output shows.
	sampleChars = 50

	// markerWindow is how far into the payload the format markers are searched.
	markerWindow = 100

	// sniffChars is the amount of base64 decoded for MIME sniffing.
	// A multiple of 4 so the prefix decodes cleanly; 4096 chars is 3072 bytes,
	// the header window mimetype reads by default.
	sniffChars = 4096
)

// Marker names reported by Diagnose.
const (
	MarkerJPEG = "jpeg"
	MarkerPNG  = "png"
	MarkerNone = "none"
)

// Diagnostics describes a payload for --debug output.
type Diagnostics struct {
	Head string
	Tail string

	// Marker is MarkerJPEG or MarkerPNG when the format marker appears in
	// the first 100 characters, MarkerNone otherwise.
	Marker string

	// DetectedMIME is sniffed from the decoded leading bytes.
	DetectedMIME string
}

// Diagnose inspects a payload without modifying it.
func Diagnose(p *Payload) Diagnostics {
	text := p.Text

	d := Diagnostics{
		Head:   text[:min(sampleChars, len(text))],
		Tail:   text[max(0, len(text)-sampleChars):],
		Marker: MarkerNone,
	}

	window := text[:min(markerWindow, len(text))]
	switch {
	case strings.Contains(window, jpegPrefix):
		d.Marker = MarkerJPEG
	case strings.Contains(window, pngPrefix):
		d.Marker = MarkerPNG
	}

	d.DetectedMIME = sniff(text)
	return d
}

// sniff decodes the start of the payload and asks mimetype what it is.
func sniff(text string) string {
	prefix := text[:min(sniffChars, len(text))]
	prefix = prefix[:len(prefix)-len(prefix)%4]

	head, err := base64.StdEncoding.DecodeString(prefix)
	if err != nil {
		return "unknown"
	}
	return mimetype.Detect(head).String()
}
