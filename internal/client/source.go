package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/colonyops/triage/internal/core/queue"
)

// DocumentSource lists pending items for one actor and category. Reads are
// idempotent and side-effect free; retrying is the scheduler's job, never
// the client's, so a down service is not hammered.
type DocumentSource interface {
	ListPending(ctx context.Context, actor string, cat queue.Category) ([]queue.PendingItem, error)
}

// HTTPDocumentSource implements DocumentSource over the REST backend.
type HTTPDocumentSource struct {
	cfg Config
}

var _ DocumentSource = (*HTTPDocumentSource)(nil)

// NewDocumentSource creates a document source client.
func NewDocumentSource(cfg Config) *HTTPDocumentSource {
	return &HTTPDocumentSource{cfg: cfg.normalize()}
}

// ListPending fetches the pending items of one category for the actor.
// Every returned item is tagged with the requested category.
func (s *HTTPDocumentSource) ListPending(ctx context.Context, actor string, cat queue.Category) ([]queue.PendingItem, error) {
	endpoint := fmt.Sprintf("%s/pending-items?%s", s.cfg.BaseURL, url.Values{
		"category": {string(cat)},
		"actor":    {actor},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("list pending %s: %w", cat, err)
	}
	authorize(req, s.cfg.Token)

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list pending %s: %w", cat, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list pending %s: %w", cat, decodeError(resp))
	}

	var items []queue.PendingItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("list pending %s: decode: %w", cat, err)
	}

	for i := range items {
		items[i].Category = cat
	}
	return items, nil
}

func decodeError(resp *http.Response) error {
	herr := &HTTPError{StatusCode: resp.StatusCode, Message: resp.Status}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return herr
	}

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		herr.Code = payload.Code
		herr.Message = payload.Message
	}
	return herr
}
