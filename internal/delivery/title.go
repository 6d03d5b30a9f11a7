package delivery

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultPerformer fills the performer tag when the title has no artist part.
const DefaultPerformer = "tunequeue"

// Length limits for the delivered metadata, in characters.
const (
	maxCaption  = 900
	maxMetadata = 64
	maxFilename = 60
)

var artistTitle = regexp.MustCompile(`^(.+?)\s*[-–—]\s*(.+)$`)

// Metadata is what the receiving side shows for an audio file.
type Metadata struct {
	Performer string
	Title     string
	Caption   string
	Filename  string
}

// ParseTitle splits "Artist - Track" into its parts. A candidate artist must
// be longer than two characters and shorter than four words, otherwise the
// dash is taken to be part of the track name.
func ParseTitle(full string) (performer, title string, ok bool) {
	full = strings.TrimSpace(full)
	m := artistTitle.FindStringSubmatch(full)
	if m == nil {
		return "", full, false
	}
	artist, track := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	if utf8.RuneCountInString(artist) <= 2 || len(strings.Fields(artist)) >= 4 {
		return "", full, false
	}
	return artist, track, true
}

// BuildMetadata derives delivery metadata from a downloaded file's title.
func BuildMetadata(fullTitle, path string) Metadata {
	performer, title, ok := ParseTitle(fullTitle)
	if !ok {
		performer = DefaultPerformer
	}

	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".mp3"
	}
	stem := sanitizeFilename(truncate(fullTitle, maxFilename))
	if stem == "" {
		stem = "audio"
	}

	return Metadata{
		Performer: truncate(performer, maxMetadata),
		Title:     truncate(title, maxMetadata),
		Caption:   "🎧 " + truncate(fullTitle, maxCaption),
		Filename:  stem + ext,
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func sanitizeFilename(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, s))
}
