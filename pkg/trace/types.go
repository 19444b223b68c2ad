package trace

const (
	PhaseBegin = "B"
	PhaseEnd   = "E"

	DefaultCategory = "xspy"
)

// Frame is one call stack entry.
type Frame struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Line     uint32 `json:"line,omitempty"`
}

// StackTrace is one thread's sample at one instant.
// Frames are ordered leaf first: index 0 is the innermost call.
type StackTrace struct {
	ThreadID uint64  `json:"thread_id"`
	PID      int     `json:"pid"`
	Frames   []Frame `json:"frames"`
}

// EventArgs holds the frame location of an event.
type EventArgs struct {
	Filename string  `json:"filename"`
	Line     *uint32 `json:"line,omitempty"`
}

// Event is a duration event of the trace event format.
type Event struct {
	Args EventArgs `json:"args"`
	Cat  string    `json:"cat"`
	Name string    `json:"name"`
	Ph   string    `json:"ph"`
	PID  uint64    `json:"pid"`
	TID  uint64    `json:"tid"`
	TS   uint64    `json:"ts"`
}
