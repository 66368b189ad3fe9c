package websocket

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventViolation Event = "violation"
	EventPong      Event = "pong"
)

// ViolationMessage is pushed to monitor subscribers when a student's
// attempt records an integrity event.
type ViolationMessage struct {
	Event      Event  `json:"event"`
	QuizID     string `json:"quiz_id"`
	StudentID  int    `json:"student_id"`
	Message    string `json:"message"`
	Count      int64  `json:"count"`
	RecordedAt string `json:"recorded_at"`
}

type ErrorMessage struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongMessage struct {
	Event Event `json:"event"`
}
