package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/colonyops/triage/internal/core/queue"
)

// ActionRequest describes one approve/reject call.
type ActionRequest struct {
	ItemID  queue.ItemID     `json:"itemId"`
	Kind    queue.ActionKind `json:"kind"`
	Actor   string           `json:"actor"`
	Comment string           `json:"comment,omitempty"`
}

// ActionResult is the server's verdict. Reason is set when refused.
type ActionResult struct {
	Outcome queue.ActionOutcome `json:"outcome"`
	Reason  string              `json:"reason,omitempty"`
}

// ActionService applies a decision to a pending item. The optimistic store
// guarantees at most one in-flight call per item id; the service itself
// makes no idempotence promise.
type ActionService interface {
	Apply(ctx context.Context, req ActionRequest) (ActionResult, error)
}

// HTTPActionService implements ActionService over the REST backend.
type HTTPActionService struct {
	cfg Config
}

var _ ActionService = (*HTTPActionService)(nil)

// NewActionService creates an action service client.
func NewActionService(cfg Config) *HTTPActionService {
	return &HTTPActionService{cfg: cfg.normalize()}
}

// Apply posts the action and returns the server's verdict.
func (s *HTTPActionService) Apply(ctx context.Context, areq ActionRequest) (ActionResult, error) {
	body, err := json.Marshal(areq)
	if err != nil {
		return ActionResult{}, fmt.Errorf("apply action %d: marshal: %w", areq.ItemID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/actions", bytes.NewReader(body))
	if err != nil {
		return ActionResult{}, fmt.Errorf("apply action %d: %w", areq.ItemID, err)
	}
	authorize(req, s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return ActionResult{}, fmt.Errorf("apply action %d: %w", areq.ItemID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return ActionResult{}, fmt.Errorf("apply action %d: %w", areq.ItemID, decodeError(resp))
	}

	var result ActionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ActionResult{}, fmt.Errorf("apply action %d: decode: %w", areq.ItemID, err)
	}
	return result, nil
}
