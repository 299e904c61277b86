package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"render-orchestrator/internal/domain"
	"render-orchestrator/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.RenderBackendAdapter = (*ComfyClient)(nil)

// ComfyClient talks to a ComfyUI-compatible render engine over its
// HTTP API: POST /prompt, GET /queue, GET /history/{id}.
type ComfyClient struct {
	base   string
	client *http.Client
	log    *zerolog.Logger
}

func NewComfyClient(baseURL string, requestTimeout time.Duration, logger *zerolog.Logger) (*ComfyClient, error) {
	if baseURL == "" {
		return nil, errors.New("render backend url empty")
	}
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	l := logger.With().Str("component", "ComfyClient").Logger()
	return &ComfyClient{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: requestTimeout},
		log:    &l,
	}, nil
}

func (c *ComfyClient) Submit(ctx context.Context, graph adapter.WorkflowGraph) (string, error) {
	body := struct {
		Prompt adapter.WorkflowGraph `json:"prompt"`
	}{Prompt: graph}

	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/prompt", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", c.wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("render backend http %d: %w", resp.StatusCode, domain.ErrBackendUnavailable)
	}

	var payload struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.PromptID == "" {
		return "", errors.New("render backend returned no prompt id")
	}
	return payload.PromptID, nil
}

func (c *ComfyClient) QueueStatus(ctx context.Context) (adapter.QueueState, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/queue", nil)
	resp, err := c.client.Do(req)
	if err != nil {
		return adapter.QueueState{}, c.wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return adapter.QueueState{}, fmt.Errorf("render backend http %d: %w", resp.StatusCode, domain.ErrBackendUnavailable)
	}

	// queue entries are heterogeneous arrays: [number, prompt_id, ...]
	var payload struct {
		Running [][]json.RawMessage `json:"queue_running"`
		Pending [][]json.RawMessage `json:"queue_pending"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return adapter.QueueState{}, err
	}

	var state adapter.QueueState
	if len(payload.Running) > 0 {
		state.RunningHandle = entryHandle(payload.Running[0])
	}
	for _, e := range payload.Pending {
		if h := entryHandle(e); h != "" {
			state.QueuedHandles = append(state.QueuedHandles, h)
		}
	}
	return state, nil
}

func (c *ComfyClient) History(ctx context.Context, handle string) (adapter.HistoryEntry, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/history/"+handle, nil)
	resp, err := c.client.Do(req)
	if err != nil {
		return adapter.HistoryEntry{}, c.wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return adapter.HistoryEntry{}, fmt.Errorf("render backend http %d: %w", resp.StatusCode, domain.ErrBackendUnavailable)
	}

	var payload map[string]struct {
		Status struct {
			Completed bool   `json:"completed"`
			StatusStr string `json:"status_str"`
		} `json:"status"`
		Outputs map[string]struct {
			Images []struct {
				Filename  string `json:"filename"`
				Subfolder string `json:"subfolder"`
			} `json:"images"`
			GIFs []struct {
				Filename  string `json:"filename"`
				Subfolder string `json:"subfolder"`
			} `json:"gifs"`
		} `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return adapter.HistoryEntry{}, err
	}

	entry, ok := payload[handle]
	if !ok {
		// not in history yet: still queued or running
		return adapter.HistoryEntry{}, nil
	}

	out := adapter.HistoryEntry{Finished: entry.Status.Completed || entry.Status.StatusStr == "error"}
	if entry.Status.StatusStr == "error" {
		out.Error = "backend execution error"
		return out, nil
	}
	for _, node := range entry.Outputs {
		for _, img := range node.Images {
			out.Outputs = append(out.Outputs, joinSub(img.Subfolder, img.Filename))
		}
		for _, g := range node.GIFs {
			out.Outputs = append(out.Outputs, joinSub(g.Subfolder, g.Filename))
		}
	}
	if out.Finished && len(out.Outputs) == 0 {
		out.Error = "backend produced no artifacts"
	}
	return out, nil
}

// wrap maps transport-level failures onto the domain sentinel so the
// processor can tell "backend down" from "job failed".
func (c *ComfyClient) wrap(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, domain.ErrBackendUnavailable)
	}
	return err
}

func entryHandle(entry []json.RawMessage) string {
	if len(entry) < 2 {
		return ""
	}
	var h string
	if err := json.Unmarshal(entry[1], &h); err != nil {
		return ""
	}
	return h
}

func joinSub(sub, name string) string {
	if sub == "" {
		return name
	}
	return sub + "/" + name
}
