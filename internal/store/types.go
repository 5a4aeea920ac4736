package store

import (
	"math"
	"time"
)

// Observation is one scored parameter vector of a session.
//
// X and Y travel together in a single record so the pairing of parameter
// rows and objective values cannot drift apart. Manual and Auto keep the
// raw quality signals that produced Y; they are informational only.
type Observation struct {
	// X holds one value per tunable parameter, in the session's order
	X []float64 `json:"x"`

	// Y is the combined objective (0 = perfect, larger = worse)
	Y float64 `json:"y"`

	// Space is the fingerprint of the parameter space X was drawn from
	Space string `json:"space"`

	Manual []float64 `json:"manual,omitempty"`
	Auto   []float64 `json:"auto,omitempty"`

	// RecordedAt is when the observation was appended
	RecordedAt time.Time `json:"recordedAt"`
}

// Validate checks that the observation can be stored.
func (o *Observation) Validate() error {
	if len(o.X) == 0 {
		return &ValidationError{Field: "X", Reason: "cannot be empty"}
	}
	for _, v := range o.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: "X", Reason: "must be finite"}
		}
	}
	if math.IsNaN(o.Y) || math.IsInf(o.Y, 0) {
		return &ValidationError{Field: "Y", Reason: "must be finite"}
	}
	if o.Space == "" {
		return &ValidationError{Field: "Space", Reason: "cannot be empty"}
	}
	return nil
}

// SessionInfo contains metadata about a session without its full history.
// Used for listing sessions efficiently.
type SessionInfo struct {
	// SessionID is the unique identifier for this session
	SessionID string `json:"sessionId"`

	// Observations is the number of stored observations
	Observations int `json:"observations"`

	// Space is the parameter space fingerprint of the latest observation
	Space string `json:"space"`

	// BestY is the lowest objective value recorded so far
	BestY float64 `json:"bestY"`

	// UpdatedAt is the time of the latest observation
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summarize builds a SessionInfo from a full history.
func Summarize(sessionID string, obs []Observation) SessionInfo {
	info := SessionInfo{SessionID: sessionID, Observations: len(obs)}
	if len(obs) == 0 {
		return info
	}
	info.BestY = obs[0].Y
	for _, o := range obs {
		if o.Y < info.BestY {
			info.BestY = o.Y
		}
	}
	last := obs[len(obs)-1]
	info.Space = last.Space
	info.UpdatedAt = last.RecordedAt
	return info
}

// BestIndex returns the position of the lowest Y, or -1 for an empty history.
// The earliest observation wins ties.
func BestIndex(obs []Observation) int {
	best := -1
	for i, o := range obs {
		if best < 0 || o.Y < obs[best].Y {
			best = i
		}
	}
	return best
}

// ValidationError represents an invalid observation or identifier.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
