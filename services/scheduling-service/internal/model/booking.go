package model

import "time"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
)

type Booking struct {
	ID            string
	StudentID     string
	CounselorID   string
	BookingDate   string // "2006-01-02"
	BookingTime   string // "HH:MM", local to the counselor's timezone
	Status        string
	GoogleEventID string // empty means never synced (or the id store failed)
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CanTransition reports whether a booking status change is allowed.
// Completed and canceled are terminal.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCanceled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCanceled
	default:
		return false
	}
}

type Student struct {
	ID    string
	Name  string
	Email string
}
