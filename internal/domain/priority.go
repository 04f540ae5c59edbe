package domain

// Priority orders scan requests within the queue backlog.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// String returns the string representation of Priority.
func (p Priority) String() string {
	return string(p)
}

// IsValid checks if the priority is a valid value.
func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}

// Rank maps priority to a comparable rank; higher dispatches first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}
