package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/triage/internal/client"
	"github.com/colonyops/triage/internal/core/logging"
	"github.com/colonyops/triage/internal/core/queue"
)

var (
	// ErrStaleResponse marks a fetch result superseded by a newer one.
	// Callers discard it silently; it is not a user-visible failure.
	ErrStaleResponse = errors.New("stale fetch response")

	// ErrActionPending rejects a second action on an item that already
	// has one in flight.
	ErrActionPending = errors.New("action already pending for item")

	// ErrItemNotFound rejects an action on an item absent from the
	// current snapshot.
	ErrItemNotFound = errors.New("item not in current snapshot")

	// ErrActionRefused is returned when the server refuses an action.
	// Refusals are terminal: the tentative removal is rolled back and
	// nothing is retried automatically.
	ErrActionRefused = errors.New("action refused")
)

// MutationState tracks the lifecycle of a tentative removal.
type MutationState string

const (
	// MutationPending means the action call is still in flight.
	MutationPending MutationState = "pending"
	// MutationConfirmed means the server confirmed the action; the item
	// stays excluded until a fetch no longer returns it.
	MutationConfirmed MutationState = "confirmed"
)

// TentativeMutation records a locally hidden item awaiting the server's
// verdict or a confirming fetch.
type TentativeMutation struct {
	ID       queue.ItemID
	Kind     queue.ActionKind
	State    MutationState
	IssuedAt time.Time
}

// Store is the optimistic action store. It owns the authoritative snapshot
// and the set of tentative mutations; no other component mutates either.
// All views handed out are point-in-time copies.
type Store struct {
	actions client.ActionService
	actor   string
	clock   Clock
	timeout time.Duration
	logger  zerolog.Logger

	mu          sync.Mutex
	snap        *queue.Snapshot
	lastApplied int64
	tentative   map[queue.ItemID]*TentativeMutation
}

// NewStore creates a store. timeout bounds how long an unresolved tentative
// mutation may hide an item before it is treated as abandoned.
func NewStore(actions client.ActionService, actor string, clock Clock, timeout time.Duration) *Store {
	return &Store{
		actions:   actions,
		actor:     actor,
		clock:     clock,
		timeout:   timeout,
		logger:    logging.Component("store"),
		tentative: make(map[queue.ItemID]*TentativeMutation),
	}
}

// Snapshot returns the current reconciled view: the accepted snapshot minus
// items hidden by active tentative mutations.
func (s *Store) Snapshot() queue.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Primed reports whether any snapshot has ever been accepted.
func (s *Store) Primed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap != nil
}

func (s *Store) viewLocked() queue.Snapshot {
	if s.snap == nil {
		return queue.Snapshot{}
	}
	hidden := make(map[queue.ItemID]struct{}, len(s.tentative))
	for id := range s.tentative {
		hidden[id] = struct{}{}
	}
	return s.snap.Without(hidden)
}

// Reconcile merges a fetch result into the store. It returns the diff
// against the previously accepted snapshot with tentative exclusions
// already applied to Merged.
//
// A result whose sequence number is not newer than the last applied one
// returns ErrStaleResponse and changes nothing. Tentative mutations older
// than the timeout are dropped first so a stuck action cannot hide an item
// forever; a confirmed mutation is also cleared once the candidate no
// longer contains its item.
func (s *Store) Reconcile(res FetchResult) (queue.DiffResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.Seq <= s.lastApplied {
		return queue.DiffResult{}, fmt.Errorf("seq %d after %d: %w", res.Seq, s.lastApplied, ErrStaleResponse)
	}

	s.expireTentativesLocked()

	diff := queue.Diff(s.snap, res.Items, res.Seq, res.Taken)

	// A confirmed removal is complete once the server stops returning
	// the item; the mutation has served its purpose.
	for id, tm := range s.tentative {
		if tm.State == MutationConfirmed && !diff.Merged.Contains(id) {
			delete(s.tentative, id)
		}
	}

	accepted := diff.Merged
	s.snap = &accepted
	s.lastApplied = res.Seq

	// Exclude tentatively removed items from everything callers see,
	// including the Added delta: an item the user just acted on is not
	// news even if the server still returns it.
	hidden := make(map[queue.ItemID]struct{}, len(s.tentative))
	for id := range s.tentative {
		hidden[id] = struct{}{}
	}
	diff.Merged = accepted.Without(hidden)
	diff.Added = filterIDs(diff.Added, hidden)
	diff.Removed = filterIDs(diff.Removed, hidden)

	return diff, nil
}

func (s *Store) expireTentativesLocked() {
	now := s.clock.Now()
	for id, tm := range s.tentative {
		if now.Sub(tm.IssuedAt) > s.timeout {
			s.logger.Warn().Int64("item", int64(id)).Str("state", string(tm.State)).
				Msg("tentative mutation abandoned after timeout")
			delete(s.tentative, id)
		}
	}
}

// ApplyAction hides the item immediately, then invokes the action service.
// On confirmation the item stays hidden until a fetch omits it. On refusal
// or transport failure the tentative removal is rolled back so the item
// reappears, and the error is returned for the caller to surface.
//
// At most one action call per id may be outstanding: a second request while
// one is in flight fails with ErrActionPending without touching the network.
func (s *Store) ApplyAction(ctx context.Context, id queue.ItemID, kind queue.ActionKind, comment string) error {
	s.mu.Lock()
	if _, exists := s.tentative[id]; exists {
		s.mu.Unlock()
		return fmt.Errorf("item %d: %w", id, ErrActionPending)
	}
	if s.snap == nil || !s.snap.Contains(id) {
		s.mu.Unlock()
		return fmt.Errorf("item %d: %w", id, ErrItemNotFound)
	}
	s.tentative[id] = &TentativeMutation{
		ID:       id,
		Kind:     kind,
		State:    MutationPending,
		IssuedAt: s.clock.Now(),
	}
	s.mu.Unlock()

	result, err := s.actions.Apply(ctx, client.ActionRequest{
		ItemID:  id,
		Kind:    kind,
		Actor:   s.actor,
		Comment: comment,
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	tm, exists := s.tentative[id]
	if !exists {
		// Expired while the call was in flight; treat the verdict as moot.
		return err
	}

	if err != nil {
		delete(s.tentative, id)
		return fmt.Errorf("apply %s to item %d: %w", kind, id, err)
	}

	switch result.Outcome {
	case queue.OutcomeConfirmed:
		tm.State = MutationConfirmed
		return nil
	case queue.OutcomeRefused:
		delete(s.tentative, id)
		if result.Reason != "" {
			return fmt.Errorf("item %d: %s: %w", id, result.Reason, ErrActionRefused)
		}
		return fmt.Errorf("item %d: %w", id, ErrActionRefused)
	default:
		delete(s.tentative, id)
		return fmt.Errorf("item %d: unexpected outcome %q", id, result.Outcome)
	}
}

// Tentatives returns a copy of the current tentative mutations.
func (s *Store) Tentatives() []TentativeMutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TentativeMutation, 0, len(s.tentative))
	for _, tm := range s.tentative {
		out = append(out, *tm)
	}
	return out
}

func filterIDs(ids []queue.ItemID, drop map[queue.ItemID]struct{}) []queue.ItemID {
	if len(ids) == 0 || len(drop) == 0 {
		return ids
	}
	out := make([]queue.ItemID, 0, len(ids))
	for _, id := range ids {
		if _, hidden := drop[id]; !hidden {
			out = append(out, id)
		}
	}
	return out
}
