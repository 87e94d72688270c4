// -----------------------------------------------------------------------
// Work Item - Broker payload carrying a job from submitter to worker
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoWork is returned when the queue has no visible items.
var ErrNoWork = errors.New("no work items in queue")

// WorkItem is the ephemeral broker payload. It exists only between enqueue and
// acknowledgment; the durable state lives on the Job record.
type WorkItem struct {
	JobID      string  `json:"job_id"`               // References jobs.id
	Credential string  `json:"credential,omitempty"` // Opaque repository access credential (optional)
	Variant    Variant `json:"variant"`              // Pipeline selector
}

// ToJSON serializes the work item for queue storage.
func (w *WorkItem) ToJSON() ([]byte, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal work item: %w", err)
	}
	return data, nil
}

// WorkItemFromJSON deserializes a work item from its queue form.
func WorkItemFromJSON(data []byte) (*WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal work item: %w", err)
	}
	return &item, nil
}

// Validate validates the work item before enqueue.
func (w *WorkItem) Validate() error {
	if w.JobID == "" {
		return fmt.Errorf("work item job ID is required")
	}
	if !ValidVariant(w.Variant) {
		return fmt.Errorf("work item variant %q is not recognized", w.Variant)
	}
	return nil
}
