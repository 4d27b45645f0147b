package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/park285/pgn-typist/internal/pgn"
)

// Board orientations.
const (
	OrientationWhite = "white"
	OrientationBlack = "black"
)

type Settings struct {
	Orientation      string `json:"orientation"`
	ShowLastMove     bool   `json:"show_last_move"`
	ShowSelectedMove bool   `json:"show_selected_move"`
	Language         string `json:"language"`
}

func DefaultSettings(lang string) Settings {
	if strings.TrimSpace(lang) == "" {
		lang = "en"
	}
	return Settings{
		Orientation:      OrientationWhite,
		ShowLastMove:     true,
		ShowSelectedMove: true,
		Language:         lang,
	}
}

// Normalize fixes unknown orientations.
func (s Settings) Normalize() Settings {
	if s.Orientation != OrientationBlack {
		s.Orientation = OrientationWhite
	}
	return s
}

// CommentMap is a ply-indexed comment table. It decodes leniently: keys that
// are not integers and values that are not strings are skipped.
type CommentMap map[int]string

func (c *CommentMap) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		*c = CommentMap{}
		return nil
	}
	out := make(CommentMap, len(raw))
	for k, v := range raw {
		idx, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || idx < 0 {
			continue
		}
		if s, ok := v.(string); ok {
			out[idx] = s
		}
	}
	*c = out
	return nil
}

// SessionRecord is the persisted mirror of one transcription session.
type SessionRecord struct {
	ID        string      `json:"id"`
	Moves     []string    `json:"moves"`
	Comments  CommentMap  `json:"comments"`
	Headers   pgn.Headers `json:"headers"`
	Settings  Settings    `json:"settings"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Clone returns a deep copy so a record can leave the owning goroutine.
func (r *SessionRecord) Clone() *SessionRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Moves = append([]string(nil), r.Moves...)
	cp.Headers = r.Headers.Clone()
	cp.Comments = make(CommentMap, len(r.Comments))
	for k, v := range r.Comments {
		cp.Comments[k] = v
	}
	return &cp
}
