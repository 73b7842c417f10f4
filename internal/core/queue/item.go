// Package queue defines the pending-item domain model shared by the
// synchronization engine, the stores, and the TUI.
package queue

import (
	"time"
)

// Category tags a pending item with its document type.
type Category string

// Known document categories. The set is closed but extensible: unknown
// categories coming off the wire are carried through untouched.
const (
	CategoryRequisition     Category = "requisition"
	CategoryOrder           Category = "order"
	CategoryReceiptNote     Category = "receipt-note"
	CategoryVoucher         Category = "voucher"
	CategoryCustomerRequest Category = "customer-request"
)

// Categories lists the built-in categories in display order.
func Categories() []Category {
	return []Category{
		CategoryRequisition,
		CategoryOrder,
		CategoryReceiptNote,
		CategoryVoucher,
		CategoryCustomerRequest,
	}
}

// ItemID identifies a pending item. Unique within the union of all
// categories for one actor, stable across fetches.
type ItemID int64

// PendingItem is one actionable document awaiting the actor's decision.
// Only ID and Category matter to the engine; the rest is display metadata.
type PendingItem struct {
	ID             ItemID    `json:"id"`
	Category       Category  `json:"category"`
	DocumentID     string    `json:"document_id"`
	DocumentNumber string    `json:"document_number"`
	RequestedAt    time.Time `json:"requested_at"`
	RequestedBy    string    `json:"requested_by"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency"`
	Priority       int       `json:"priority"`
	WorkflowStep   string    `json:"workflow_step"`
}

// ActionKind is the decision applied to a pending item.
type ActionKind string

const (
	ActionApprove ActionKind = "approve"
	ActionReject  ActionKind = "reject"
)

// Valid reports whether k is a recognized action kind.
func (k ActionKind) Valid() bool {
	return k == ActionApprove || k == ActionReject
}

// ActionOutcome is the server's verdict on an action call.
type ActionOutcome string

const (
	OutcomeConfirmed ActionOutcome = "confirmed"
	OutcomeRefused   ActionOutcome = "refused"
)
