package order

import (
	"strings"
	"time"
)

// CreationNote is the note attached to the history record written when an
// order is created.
const CreationNote = "Order created"

// StatusHistory is one append-only audit record of a status change. From is
// nil only for the record written at creation.
type StatusHistory struct {
	ID        string
	OrderID   string
	From      *Status
	To        Status
	Notes     *string
	ChangedBy string
	ChangedAt time.Time
}

// Validate checks the record before it is appended.
func (h StatusHistory) Validate() error {
	switch {
	case strings.TrimSpace(h.OrderID) == "":
		return invalid("history.orderId", "is required")
	case !h.To.Valid():
		return invalid("history.toStatus", "unknown status "+h.To.String())
	case h.From != nil && !h.From.Valid():
		return invalid("history.fromStatus", "unknown status "+h.From.String())
	case strings.TrimSpace(h.ChangedBy) == "":
		return invalid("history.changedBy", "is required")
	case h.To == StatusCancelled && blank(h.Notes):
		return invalid("history.notes", "a reason is required when cancelling")
	}
	return nil
}

// StatusChange is the input to Repository.UpdateStatus. The previous status
// is read by the repository inside the same transaction.
type StatusChange struct {
	OrderID   string
	To        Status
	ChangedBy string
	Notes     *string
	At        time.Time
}

// Record builds the history record for the change.
func (c StatusChange) Record(id string, from Status) StatusHistory {
	return StatusHistory{
		ID:        id,
		OrderID:   c.OrderID,
		From:      &from,
		To:        c.To,
		Notes:     cloneString(c.Notes),
		ChangedBy: c.ChangedBy,
		ChangedAt: c.At,
	}
}

// CreationRecord builds the history record for a freshly created order.
func CreationRecord(id string, o *Order) StatusHistory {
	note := CreationNote
	return StatusHistory{
		ID:        id,
		OrderID:   o.id,
		To:        o.status,
		Notes:     &note,
		ChangedBy: o.createdBy,
		ChangedAt: o.createdAt,
	}
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
