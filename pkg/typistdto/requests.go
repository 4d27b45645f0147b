package typistdto

// CreateSessionRequest optionally seeds the session from PGN text.
type CreateSessionRequest struct {
	PGN string `json:"pgn,omitempty"`
}

type MoveRequest struct {
	Move string `json:"move"`
	Lang string `json:"lang,omitempty"`
}

// CursorRequest sets exactly one of Index, End or Step.
type CursorRequest struct {
	Index *int `json:"index,omitempty"`
	End   bool `json:"end,omitempty"`
	Step  *int `json:"step,omitempty"`
}

type CommentRequest struct {
	Text string `json:"text"`
}

type HeaderRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SettingsRequest struct {
	Orientation      *string `json:"orientation,omitempty"`
	ShowLastMove     *bool   `json:"show_last_move,omitempty"`
	ShowSelectedMove *bool   `json:"show_selected_move,omitempty"`
	Language         *string `json:"language,omitempty"`
}

type ExportResponse struct {
	PGN       string `json:"pgn"`
	Result    string `json:"result"`
	ECO       string `json:"eco,omitempty"`
	Opening   string `json:"opening,omitempty"`
	ArchiveID int64  `json:"archive_id,omitempty"`
	Archived  bool   `json:"archived"`
}

type HistoryResponse struct {
	Games []ArchivedGame `json:"games"`
}

type SessionListResponse struct {
	IDs []string `json:"ids"`
}
