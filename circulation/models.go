package circulation

import "time"

// TitleStatus tracks whether a circulating copy is on the shelf or out.
type TitleStatus string

const (
	TitleAvailable TitleStatus = "AVAILABLE"
	TitleBorrowed  TitleStatus = "BORROWED"
)

// Title represents one circulating copy of a work in the catalog.
// BorrowerKey, BorrowDate and DueDate are convenience fields mirrored from
// the current open loan; they are zero while the title is available.
type Title struct {
	Key         string      `json:"key"`
	Name        string      `json:"name"`
	Author      string      `json:"author"`
	Year        int         `json:"year"`
	Status      TitleStatus `json:"status"`
	BorrowerKey string      `json:"borrower_key,omitempty"`
	BorrowDate  time.Time   `json:"borrow_date,omitempty"`
	DueDate     time.Time   `json:"due_date,omitempty"`
}

// Available reports whether the copy can be borrowed right now.
func (t *Title) Available() bool { return t.Status == TitleAvailable }

// MemberClass determines how many titles a member may hold at once.
type MemberClass string

const (
	ClassStudent MemberClass = "STUDENT"
	ClassFaculty MemberClass = "FACULTY"
	ClassStaff   MemberClass = "STAFF"
	ClassGeneral MemberClass = "GENERAL"
)

// BorrowLimit returns the open-loan ceiling for the class. Unknown classes
// fall back to the general-public limit.
func (c MemberClass) BorrowLimit() int {
	switch c {
	case ClassStudent:
		return 3
	case ClassFaculty:
		return 10
	case ClassStaff:
		return 5
	default:
		return 2
	}
}

// MemberStatus is the registration state of a member. Only Active members
// may borrow.
type MemberStatus string

const (
	MemberActive    MemberStatus = "ACTIVE"
	MemberSuspended MemberStatus = "SUSPENDED"
	MemberExpired   MemberStatus = "EXPIRED"
	MemberBlocked   MemberStatus = "BLOCKED"
)

// Member represents a registered library member.
type Member struct {
	Key          string       `json:"key"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Class        MemberClass  `json:"class"`
	Status       MemberStatus `json:"status"`
	JoinedAt     time.Time    `json:"joined_at"`
	PasswordHash string       `json:"-"`
}

// BorrowLimit is the member's open-loan ceiling.
func (m *Member) BorrowLimit() int { return m.Class.BorrowLimit() }

// Loan records one borrow-to-return cycle. Loans are append-only: a loan is
// created at borrow time and mutated exactly once, at return, when
// ReturnDate and FineAmount are frozen.
type Loan struct {
	Key        string     `json:"key"`
	MemberKey  string     `json:"member_key"`
	TitleKey   string     `json:"title_key"`
	BorrowDate time.Time  `json:"borrow_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	FineAmount float64    `json:"fine_amount"`
}

// Open reports whether the loan has not been returned yet.
func (l *Loan) Open() bool { return l.ReturnDate == nil }

// OverdueAt reports whether the loan is open and past due relative to now.
// Overdue is always derived from the clock, never stored.
func (l *Loan) OverdueAt(now time.Time) bool {
	return l.Open() && now.After(l.DueDate)
}

// ReservationStatus is the lifecycle state of a reservation. Active is the
// only non-terminal state.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationFulfilled ReservationStatus = "FULFILLED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Reservation is a queued request to be offered a currently-unavailable
// title. Terminal states (Fulfilled, Cancelled, Expired) are immutable.
type Reservation struct {
	Key             string            `json:"key"`
	MemberKey       string            `json:"member_key"`
	TitleKey        string            `json:"title_key"`
	ReservationDate time.Time         `json:"reservation_date"`
	ExpiryDate      time.Time         `json:"expiry_date"`
	Status          ReservationStatus `json:"status"`
}

// Active reports whether the reservation still holds a place in the queue.
func (r *Reservation) Active() bool { return r.Status == ReservationActive }

// Terminal reports whether the reservation reached a final state.
func (r *Reservation) Terminal() bool { return r.Status != ReservationActive }

// ExpiredAt reports whether an active reservation has outlived its expiry
// date relative to now.
func (r *Reservation) ExpiredAt(now time.Time) bool {
	return r.Active() && now.After(r.ExpiryDate)
}
