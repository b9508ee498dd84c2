package trace

import "time"

// Run statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Session represents one WebSocket connection.
type Session struct {
	ID        string     `json:"id"`
	Metadata  string     `json:"metadata"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	RunCount  int        `json:"run_count,omitempty"`
}

// Run is one engine call: a stream window, a final flush or a file upload.
type Run struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Mode         string    `json:"mode"`
	Engine       string    `json:"engine"`
	StartedAt    time.Time `json:"started_at"`
	AudioSeconds float64   `json:"audio_seconds"`
	ProcessingMs float64   `json:"processing_ms"`
	Language     string    `json:"language,omitempty"`
	Transcript   string    `json:"transcript,omitempty"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
}
