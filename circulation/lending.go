package circulation

import (
	"fmt"
	"sync"
	"time"
)

// TitleReturnListener is signaled after a return has committed, so the
// waiting list for the freed title can be checked. Implemented by the
// reservation engine.
type TitleReturnListener interface {
	NotifyTitleAvailable(titleKey string)
}

// LendingEngine validates and executes borrow/return operations and owns
// the append-only loan log. Loan records are created at borrow time,
// mutated exactly once at return time, and never deleted.
type LendingEngine struct {
	catalog     Catalog
	members     MembershipRegistry
	notifier    Notifier
	titleLocks  *KeyLocks
	memberLocks *KeyLocks
	listener    TitleReturnListener

	loanPeriodDays int
	dailyFineRate  float64
	now            func() time.Time

	mu       sync.RWMutex
	loans    map[string]*Loan
	order    []string            // loan keys, insertion order
	byMember map[string][]string // member key -> loan keys, insertion order
}

// NewLendingEngine builds a lending engine over the given collaborators.
// locks must be the same instance handed to the reservation engine so that
// operations on one title serialize across both engines.
func NewLendingEngine(catalog Catalog, members MembershipRegistry, notifier Notifier, locks *KeyLocks, cfg Config) *LendingEngine {
	return &LendingEngine{
		catalog:        catalog,
		members:        members,
		notifier:       notifier,
		titleLocks:     locks,
		memberLocks:    NewKeyLocks(),
		loanPeriodDays: cfg.LoanPeriodDays,
		dailyFineRate:  cfg.DailyFineRate,
		now:            time.Now,
		loans:          make(map[string]*Loan),
		byMember:       make(map[string][]string),
	}
}

// SetReturnListener wires the reservation engine's hand-off hook. The
// listener is invoked after the per-title lock has been released.
func (e *LendingEngine) SetReturnListener(l TitleReturnListener) {
	e.listener = l
}

// Borrow lends titleKey to memberKey. Preconditions are checked in order,
// first failure wins: member exists, title exists, member is Active with
// spare capacity, title is available. The availability check and the
// catalog mutation run under the title's lock, so two concurrent borrows
// of the same copy cannot both succeed.
func (e *LendingEngine) Borrow(memberKey, titleKey string) (*Loan, error) {
	releaseTitle := e.titleLocks.Lock(titleKey)
	defer releaseTitle()
	// The member lock keeps two concurrent borrows of different titles by
	// the same member from both passing the limit check. Lock order is
	// always title, then member.
	releaseMember := e.memberLocks.Lock(memberKey)
	defer releaseMember()

	member, err := e.members.FindByKey(memberKey)
	if err != nil {
		return nil, err
	}
	title, err := e.catalog.FindByKey(titleKey)
	if err != nil {
		return nil, err
	}
	if member.Status != MemberActive {
		return nil, fmt.Errorf("member %s has status %s: %w", memberKey, member.Status, ErrIneligibleBorrower)
	}
	if open := e.OpenLoanCount(memberKey); open >= member.BorrowLimit() {
		return nil, fmt.Errorf("member %s holds %d of %d allowed loans: %w",
			memberKey, open, member.BorrowLimit(), ErrIneligibleBorrower)
	}
	if !title.Available() {
		return nil, fmt.Errorf("title %s: %w", titleKey, ErrTitleUnavailable)
	}

	now := e.now()
	loan := &Loan{
		Key:        newLoanKey(),
		MemberKey:  memberKey,
		TitleKey:   titleKey,
		BorrowDate: now,
		DueDate:    now.AddDate(0, 0, e.loanPeriodDays),
	}

	// Commit order: catalog flag first, then the log entry. If the catalog
	// rejects the mutation nothing has changed yet.
	if err := e.catalog.MarkBorrowed(titleKey, memberKey, loan.BorrowDate, loan.DueDate); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.loans[loan.Key] = loan
	e.order = append(e.order, loan.Key)
	e.byMember[memberKey] = append(e.byMember[memberKey], loan.Key)
	e.mu.Unlock()

	e.notifier.Publish(fmt.Sprintf("Title %q has been borrowed by %s", title.Name, member.Name))

	cp := *loan
	return &cp, nil
}

// Return closes the open loan for (memberKey, titleKey). It returns false
// when no open loan matches, which makes a second return of the same title
// a no-op rather than an error. On success the return date and fine are
// frozen on the loan, the title is marked available, and the reservation
// engine is signaled to check the waiting list.
func (e *LendingEngine) Return(memberKey, titleKey string) (bool, error) {
	returned, err := e.doReturn(memberKey, titleKey)
	if err != nil || !returned {
		return false, err
	}
	if e.listener != nil {
		e.listener.NotifyTitleAvailable(titleKey)
	}
	return true, nil
}

func (e *LendingEngine) doReturn(memberKey, titleKey string) (bool, error) {
	release := e.titleLocks.Lock(titleKey)
	defer release()

	e.mu.RLock()
	var loan *Loan
	for _, key := range e.byMember[memberKey] {
		if l := e.loans[key]; l.TitleKey == titleKey && l.Open() {
			loan = l
			break
		}
	}
	e.mu.RUnlock()
	if loan == nil {
		return false, nil
	}

	// Commit order mirrors Borrow: catalog flag first, then the log entry.
	// If the catalog rejects the mutation the loan stays open.
	if err := e.catalog.MarkAvailable(titleKey); err != nil {
		return false, err
	}

	now := e.now()
	e.mu.Lock()
	loan.ReturnDate = &now
	loan.FineAmount = fineFor(loan.DueDate, now, e.dailyFineRate)
	fine := loan.FineAmount
	e.mu.Unlock()

	title, terr := e.catalog.FindByKey(titleKey)
	member, merr := e.members.FindByKey(memberKey)
	titleName, memberName := titleKey, memberKey
	if terr == nil {
		titleName = title.Name
	}
	if merr == nil {
		memberName = member.Name
	}
	e.notifier.Publish(fmt.Sprintf("Title %q has been returned by %s", titleName, memberName))
	if fine > 0 {
		e.notifier.Publish(fmt.Sprintf("Title %q was returned late by %s, fine %.2f", titleName, memberName, fine))
	}
	return true, nil
}

// HistoryForMember returns every loan ever made by the member, open or
// closed, in insertion order.
func (e *LendingEngine) HistoryForMember(memberKey string) []*Loan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := e.byMember[memberKey]
	out := make([]*Loan, 0, len(keys))
	for _, key := range keys {
		cp := *e.loans[key]
		out = append(out, &cp)
	}
	return out
}

// OpenLoansForMember returns the member's currently open loans in
// insertion order.
func (e *LendingEngine) OpenLoansForMember(memberKey string) []*Loan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*Loan
	for _, key := range e.byMember[memberKey] {
		if l := e.loans[key]; l.Open() {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out
}

// OpenLoanCount reports how many loans the member currently holds.
func (e *LendingEngine) OpenLoanCount(memberKey string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, key := range e.byMember[memberKey] {
		if e.loans[key].Open() {
			n++
		}
	}
	return n
}

// OverdueLoans returns all open loans whose due date has passed, evaluated
// against the clock at call time. Overdue is derived, never stored.
func (e *LendingEngine) OverdueLoans() []*Loan {
	now := e.now()

	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*Loan
	for _, key := range e.order {
		if l := e.loans[key]; l.OverdueAt(now) {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out
}

// fineFor computes the fine frozen on a loan returned at returnedAt: whole
// overdue calendar days times the daily rate, zero when returned on or
// before the due date. Partial days round down.
func fineFor(due, returnedAt time.Time, rate float64) float64 {
	days := calendarDaysBetween(due, returnedAt)
	if days <= 0 {
		return 0
	}
	return float64(days) * rate
}

// calendarDaysBetween counts whole calendar days from the date of from to
// the date of to, ignoring time of day.
func calendarDaysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	f := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
