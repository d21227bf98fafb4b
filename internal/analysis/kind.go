// Package analysis classifies uploaded files and derives a textual
// description for each: PDF summaries, image descriptions and audio
// transcripts.
package analysis

import (
	"path/filepath"
	"strings"
)

// Kind is the analysis category of a file.
type Kind int

const (
	Unsupported Kind = iota
	PDF
	Image
	Audio
)

func (k Kind) String() string {
	switch k {
	case PDF:
		return "pdf"
	case Image:
		return "image"
	case Audio:
		return "audio"
	default:
		return "unsupported"
	}
}

var kindsByExt = map[string]Kind{
	".pdf":  PDF,
	".jpg":  Image,
	".jpeg": Image,
	".png":  Image,
	".mp3":  Audio,
	".wav":  Audio,
	".ogg":  Audio,
	".m4a":  Audio,
}

// Classify returns the kind of a file from its name's extension,
// case-insensitively.
func Classify(name string) Kind {
	if k, ok := kindsByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return k
	}
	return Unsupported
}
