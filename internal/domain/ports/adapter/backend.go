package adapter

import "context"

// WorkflowNode is one node of a backend-executable workflow graph.
type WorkflowNode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// WorkflowGraph is the serialized form the render backend accepts:
// node id -> node.
type WorkflowGraph map[string]WorkflowNode

// QueueState is a snapshot of the backend's execution queue.
type QueueState struct {
	RunningHandle string
	QueuedHandles []string
}

// HistoryEntry is the backend's record of a submitted workflow.
type HistoryEntry struct {
	Finished bool
	Outputs  []string
	Error    string
}

// RenderBackendAdapter is the narrow interface onto the external
// render engine. The engine itself is out of scope; we only submit
// graphs and poll queue/history state.
type RenderBackendAdapter interface {
	// Submit enqueues a workflow and returns the backend-assigned handle.
	Submit(ctx context.Context, graph WorkflowGraph) (string, error)

	// QueueStatus returns the currently running and queued handles.
	QueueStatus(ctx context.Context) (QueueState, error)

	// History returns terminal state for a handle. Finished=false with
	// nil error means the job is still executing.
	History(ctx context.Context, handle string) (HistoryEntry, error)
}
