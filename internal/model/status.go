package model

import "errors"

var (
	// ErrStatusLocked is returned when a status has reached a terminal value.
	ErrStatusLocked = errors.New("status is final and can no longer change")
	// ErrInvalidTransition is returned for a backward or skipping transition.
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrInvalidStatus is returned for a value outside the status set.
	ErrInvalidStatus = errors.New("unknown status value")
)

// ComplaintStatus progresses Pending → Accepted → Completed.
type ComplaintStatus string

const (
	ComplaintPending   ComplaintStatus = "Pending"
	ComplaintAccepted  ComplaintStatus = "Accepted"
	ComplaintCompleted ComplaintStatus = "Completed"
)

var complaintRank = map[ComplaintStatus]int{
	ComplaintPending:   0,
	ComplaintAccepted:  1,
	ComplaintCompleted: 2,
}

// CheckTransition reports whether a complaint may move from s to next.
// Re-applying the current status is allowed so that a fan-out retry can
// converge mirrors that missed the first write.
func (s ComplaintStatus) CheckTransition(next ComplaintStatus) error {
	to, ok := complaintRank[next]
	if !ok {
		return ErrInvalidStatus
	}
	from, ok := complaintRank[s]
	if !ok {
		from = 0
	}
	if to < from {
		return ErrInvalidTransition
	}
	return nil
}

// MaterialStatus progresses Placed → Out for Delivery → Delivered.
type MaterialStatus string

const (
	MaterialPlaced         MaterialStatus = "Placed"
	MaterialOutForDelivery MaterialStatus = "Out for Delivery"
	MaterialDelivered      MaterialStatus = "Delivered"
)

// Next returns the status that follows s, or false when s is terminal.
func (s MaterialStatus) Next() (MaterialStatus, bool) {
	switch s {
	case MaterialPlaced, "":
		return MaterialOutForDelivery, true
	case MaterialOutForDelivery:
		return MaterialDelivered, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further change is allowed.
func (s MaterialStatus) IsTerminal() bool {
	return s == MaterialDelivered
}

// CheckTransition validates a requested material status change. Only the
// next lattice step is accepted; re-sending a non-terminal current status is
// treated as a resync.
func (s MaterialStatus) CheckTransition(next MaterialStatus) error {
	switch next {
	case MaterialPlaced, MaterialOutForDelivery, MaterialDelivered:
	default:
		return ErrInvalidStatus
	}
	if s.IsTerminal() {
		return ErrStatusLocked
	}
	if next == s {
		return nil
	}
	if want, ok := s.Next(); !ok || want != next {
		return ErrInvalidTransition
	}
	return nil
}

// QualityResult is the outcome of a quality check. Passed and Failed are
// terminal.
type QualityResult string

const (
	QualityPending QualityResult = "Pending"
	QualityPassed  QualityResult = "Passed"
	QualityFailed  QualityResult = "Failed"
)

func (r QualityResult) IsTerminal() bool {
	return r == QualityPassed || r == QualityFailed
}

// CheckTransition validates recording result next over r.
func (r QualityResult) CheckTransition(next QualityResult) error {
	if next != QualityPassed && next != QualityFailed {
		return ErrInvalidStatus
	}
	if r.IsTerminal() {
		return ErrStatusLocked
	}
	return nil
}

// ChecklistStatus is the derived state of a checklist section.
type ChecklistStatus string

const (
	ChecklistIncomplete ChecklistStatus = "Incomplete"
	ChecklistComplete   ChecklistStatus = "Complete"
)

// DeriveChecklistStatus is Complete when there is at least one flag and every
// flag is set.
func DeriveChecklistStatus(flags map[string]bool) ChecklistStatus {
	if len(flags) == 0 {
		return ChecklistIncomplete
	}
	for _, done := range flags {
		if !done {
			return ChecklistIncomplete
		}
	}
	return ChecklistComplete
}
