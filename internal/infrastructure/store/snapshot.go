package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultSnapshotThreshold is the number of events after the last snapshot at
// which the command layer takes a new one.
const DefaultSnapshotThreshold = 5

var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot represents a point-in-time state of an aggregate
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"` // Event version at snapshot time
	State         json.RawMessage `json:"state"`   // Serialized aggregate state
	CreatedAt     time.Time       `json:"created_at"`
}

func (s *Snapshot) Validate() error {
	switch {
	case s == nil:
		return fmt.Errorf("%w: nil", ErrInvalidSnapshot)
	case s.AggregateID == "":
		return fmt.Errorf("%w: aggregate id is empty", ErrInvalidSnapshot)
	case s.Version <= 0:
		return fmt.Errorf("%w: version %d", ErrInvalidSnapshot, s.Version)
	case !json.Valid(s.State):
		return fmt.Errorf("%w: state is not valid JSON", ErrInvalidSnapshot)
	}
	return nil
}
