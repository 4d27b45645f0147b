package typistdto

import "time"

type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Settings struct {
	Orientation      string `json:"orientation"`
	ShowLastMove     bool   `json:"show_last_move"`
	ShowSelectedMove bool   `json:"show_selected_move"`
	Language         string `json:"language"`
}

// SessionState mirrors a session. Cursor is nil in append mode.
type SessionState struct {
	ID         string            `json:"id"`
	Moves      []string          `json:"moves"`
	Display    []string          `json:"display"`
	Comments   map[string]string `json:"comments"`
	Cursor     *int              `json:"cursor"`
	FEN        string            `json:"fen"`
	Turn       string            `json:"turn"`
	Status     string            `json:"status"`
	Result     string            `json:"result"`
	Final      string            `json:"final_result"`
	LegalMoves []string          `json:"legal_moves"`
	CanUndo    bool              `json:"can_undo"`
	CanRedo    bool              `json:"can_redo"`
	ECO        string            `json:"eco,omitempty"`
	Opening    string            `json:"opening,omitempty"`
	Headers    []Header          `json:"headers"`
	Settings   Settings          `json:"settings"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type Edit struct {
	Ply       int    `json:"ply"`
	Move      string `json:"move"`
	Replaced  bool   `json:"replaced"`
	Discarded int    `json:"discarded"`
}

type MoveResponse struct {
	Accepted bool          `json:"accepted"`
	Input    string        `json:"input"`
	Edit     *Edit         `json:"edit,omitempty"`
	State    *SessionState `json:"state"`
}

type ArchivedGame struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Result     string    `json:"result"`
	ECO        string    `json:"eco,omitempty"`
	Opening    string    `json:"opening,omitempty"`
	PlyCount   int       `json:"ply_count"`
	PGN        string    `json:"pgn"`
	ExportedAt time.Time `json:"exported_at"`
}

type Language struct {
	Code   string            `json:"code"`
	Name   string            `json:"name"`
	Pieces map[string]string `json:"pieces"`
}
