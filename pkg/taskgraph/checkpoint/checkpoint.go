package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 2

// Status values recorded on a checkpoint.
const (
	// StatusRunning marks a checkpoint taken between two nodes.
	StatusRunning = "running"
	// StatusSuspended marks a run paused for external input at NextNode.
	StatusSuspended = "suspended"
)

// Checkpoint is the persisted (next node, state) pair of a run.
// It contains all information needed to resume execution.
type Checkpoint struct {
	// Metadata
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	// NodeID is the node that just completed, or the node the run is
	// suspended at.
	NodeID string `json:"node_id"`

	// Execution state
	State    json.RawMessage `json:"state"`
	NextNode string          `json:"next_node"`
	Status   string          `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Steps    int             `json:"steps"`

	PrevNodeID string `json:"prev_node_id,omitempty"`
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// New creates a running checkpoint with the given parameters.
// State must already be JSON-serialized.
func New(runID, nodeID string, sequence int, state []byte, nextNode string) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		RunID:     runID,
		NodeID:    nodeID,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
		State:     state,
		NextNode:  nextNode,
		Status:    StatusRunning,
	}
}

// WithPrevNode sets the previous node ID for debugging.
func (c *Checkpoint) WithPrevNode(prevNodeID string) *Checkpoint {
	c.PrevNodeID = prevNodeID
	return c
}

// WithSteps records how many nodes the run had executed.
func (c *Checkpoint) WithSteps(steps int) *Checkpoint {
	c.Steps = steps
	return c
}

// Suspended marks the checkpoint as a suspension with the given reason.
func (c *Checkpoint) Suspended(reason string) *Checkpoint {
	c.Status = StatusSuspended
	c.Reason = reason
	return c
}

// Info returns the listing metadata for the checkpoint.
func (c *Checkpoint) Info(size int64) Info {
	return Info{
		RunID:     c.RunID,
		NodeID:    c.NodeID,
		NextNode:  c.NextNode,
		Status:    c.Status,
		Sequence:  c.Sequence,
		Timestamp: c.Timestamp,
		Size:      size,
	}
}
