package circulation

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ReservationEngine owns the reservation set and maintains a fair,
// first-reserved-first-served waiting list per title, with automatic
// expiry and hand-off notification when a copy becomes free.
type ReservationEngine struct {
	catalog    Catalog
	members    MembershipRegistry
	notifier   Notifier
	titleLocks *KeyLocks

	holdPeriodDays int
	now            func() time.Time

	mu           sync.RWMutex
	reservations map[string]*Reservation
	byTitle      map[string][]string // title key -> reservation keys, insertion order
}

// NewReservationEngine builds a reservation engine. locks must be the same
// instance the lending engine uses so that reserve/cancel/expire/notify
// for one title never race a borrow or return of that title.
func NewReservationEngine(catalog Catalog, members MembershipRegistry, notifier Notifier, locks *KeyLocks, cfg Config) *ReservationEngine {
	return &ReservationEngine{
		catalog:        catalog,
		members:        members,
		notifier:       notifier,
		titleLocks:     locks,
		holdPeriodDays: cfg.HoldPeriodDays,
		now:            time.Now,
		reservations:   make(map[string]*Reservation),
		byTitle:        make(map[string][]string),
	}
}

// Reserve places memberKey on the waiting list for titleKey. Reserving an
// available title is rejected; borrowing is the correct action. A member
// may hold at most one active reservation per title.
func (e *ReservationEngine) Reserve(memberKey, titleKey string) (*Reservation, error) {
	release := e.titleLocks.Lock(titleKey)
	defer release()

	member, err := e.members.FindByKey(memberKey)
	if err != nil {
		return nil, err
	}
	title, err := e.catalog.FindByKey(titleKey)
	if err != nil {
		return nil, err
	}
	if title.Available() {
		return nil, fmt.Errorf("title %s: %w", titleKey, ErrTitleCurrentlyAvailable)
	}

	now := e.now()

	e.mu.Lock()
	for _, key := range e.byTitle[titleKey] {
		if r := e.reservations[key]; r.MemberKey == memberKey && r.Active() {
			e.mu.Unlock()
			return nil, fmt.Errorf("member %s, title %s: %w", memberKey, titleKey, ErrDuplicateReservation)
		}
	}
	r := &Reservation{
		Key:             newReservationKey(),
		MemberKey:       memberKey,
		TitleKey:        titleKey,
		ReservationDate: now,
		ExpiryDate:      now.AddDate(0, 0, e.holdPeriodDays),
		Status:          ReservationActive,
	}
	e.reservations[r.Key] = r
	e.byTitle[titleKey] = append(e.byTitle[titleKey], r.Key)
	e.mu.Unlock()

	e.notifier.Publish(fmt.Sprintf("Reservation created for %q by %s", title.Name, member.Name))

	cp := *r
	return &cp, nil
}

// Cancel moves an active reservation to Cancelled. It returns false when
// the reservation does not exist or is already in a terminal state; both
// are no-ops, not errors.
func (e *ReservationEngine) Cancel(reservationKey string) bool {
	e.mu.RLock()
	r, ok := e.reservations[reservationKey]
	if !ok {
		e.mu.RUnlock()
		return false
	}
	titleKey := r.TitleKey
	e.mu.RUnlock()

	release := e.titleLocks.Lock(titleKey)
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.reservations[reservationKey]; r.Active() {
		r.Status = ReservationCancelled
		return true
	}
	return false
}

// FindReservation looks up one reservation by key.
func (e *ReservationEngine) FindReservation(reservationKey string) (*Reservation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.reservations[reservationKey]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// QueueForTitle returns the title's active reservations ordered by
// reservation date, earliest first, ties broken by insertion order. This
// ordering is the fairness contract: first reserved, first served.
func (e *ReservationEngine) QueueForTitle(titleKey string) []*Reservation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.queueLocked(titleKey)
}

// queueLocked must be called with e.mu held (read or write).
func (e *ReservationEngine) queueLocked(titleKey string) []*Reservation {
	var out []*Reservation
	for _, key := range e.byTitle[titleKey] {
		if r := e.reservations[key]; r.Active() {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReservationDate.Before(out[j].ReservationDate)
	})
	return out
}

// ReservationsForMember returns every reservation the member ever made,
// any status, in insertion order.
func (e *ReservationEngine) ReservationsForMember(memberKey string) []*Reservation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var keys []string
	for titleKey := range e.byTitle {
		keys = append(keys, titleKey)
	}
	sort.Strings(keys)
	var out []*Reservation
	for _, titleKey := range keys {
		for _, key := range e.byTitle[titleKey] {
			if r := e.reservations[key]; r.MemberKey == memberKey {
				cp := *r
				out = append(out, &cp)
			}
		}
	}
	return out
}

// ProcessExpired sweeps the reservation set: every active reservation past
// its expiry date becomes Expired, and for each affected title with a
// non-empty remaining queue an advisory "now available" event is emitted
// for the new front of the queue. The advisory does not change that
// reservation's status. Running the sweep twice produces no further state
// change and no duplicate events.
func (e *ReservationEngine) ProcessExpired() {
	now := e.now()

	e.mu.RLock()
	var titleKeys []string
	seen := make(map[string]bool)
	for _, r := range e.reservations {
		if r.ExpiredAt(now) && !seen[r.TitleKey] {
			seen[r.TitleKey] = true
			titleKeys = append(titleKeys, r.TitleKey)
		}
	}
	e.mu.RUnlock()
	sort.Strings(titleKeys)

	for _, titleKey := range titleKeys {
		e.expireForTitle(titleKey, now)
	}
}

func (e *ReservationEngine) expireForTitle(titleKey string, now time.Time) {
	release := e.titleLocks.Lock(titleKey)
	defer release()

	e.mu.Lock()
	var expired []*Reservation
	for _, key := range e.byTitle[titleKey] {
		if r := e.reservations[key]; r.ExpiredAt(now) {
			r.Status = ReservationExpired
			cp := *r
			expired = append(expired, &cp)
		}
	}
	var next *Reservation
	if len(expired) > 0 {
		if queue := e.queueLocked(titleKey); len(queue) > 0 {
			next = queue[0]
		}
	}
	e.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	titleName := titleKey
	if title, err := e.catalog.FindByKey(titleKey); err == nil {
		titleName = title.Name
	}
	for _, r := range expired {
		e.notifier.Publish(fmt.Sprintf("Reservation %s for %q has expired", r.Key, titleName))
	}
	if next != nil {
		memberName := next.MemberKey
		if member, err := e.members.FindByKey(next.MemberKey); err == nil {
			memberName = member.Name
		}
		e.notifier.Publish(fmt.Sprintf("Title %q is now available for %s", titleName, memberName))
	}
}

// NotifyTitleAvailable is invoked by the lending engine right after a
// return. The front of the queue is marked Fulfilled and a pickup event is
// emitted; an empty queue makes this a silent no-op.
//
// Fulfilling does not hand over the copy: the title stays available until
// the notified member borrows it, and another member could borrow it
// first. Two-phase hand-off (notify, then borrow) is the intended policy.
func (e *ReservationEngine) NotifyTitleAvailable(titleKey string) {
	release := e.titleLocks.Lock(titleKey)
	defer release()

	e.mu.Lock()
	queue := e.queueLocked(titleKey)
	if len(queue) == 0 {
		e.mu.Unlock()
		return
	}
	head := e.reservations[queue[0].Key]
	head.Status = ReservationFulfilled
	memberKey := head.MemberKey
	e.mu.Unlock()

	titleName, memberName := titleKey, memberKey
	if title, err := e.catalog.FindByKey(titleKey); err == nil {
		titleName = title.Name
	}
	if member, err := e.members.FindByKey(memberKey); err == nil {
		memberName = member.Name
	}
	e.notifier.Publish(fmt.Sprintf("Reserved title %q is ready for pickup by %s", titleName, memberName))
}
