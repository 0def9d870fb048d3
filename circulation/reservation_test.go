package circulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Reserve_SucceedsForBorrowedTitle(t *testing.T) {
	rig := newTestRig(t)
	alice := rig.addMember(t, "Alice", ClassStudent)
	bob := rig.addMember(t, "Bob", ClassStudent)
	title := rig.addTitle(t, "ISBN-1", "Dune")

	_, err := rig.lending.Borrow(alice, title)
	require.NoError(t, err)

	r, err := rig.reserves.Reserve(bob, title)

	require.NoError(t, err)
	assert.Equal(t, bob, r.MemberKey)
	assert.Equal(t, title, r.TitleKey)
	assert.Equal(t, ReservationActive, r.Status)
	assert.Equal(t, rig.clock.Now(), r.ReservationDate)
	assert.Equal(t, rig.clock.Now().AddDate(0, 0, 7), r.ExpiryDate)
	assert.Contains(t, rig.events.Messages(), `Reservation created for "Dune" by Bob`)
}

func Test_Reserve_RejectsAvailableTitle(t *testing.T) {
	rig := newTestRig(t)
	bob := rig.addMember(t, "Bob", ClassStudent)
	title := rig.addTitle(t, "ISBN-1", "Dune")

	_, err := rig.reserves.Reserve(bob, title)

	assert.ErrorIs(t, err, ErrTitleCurrentlyAvailable)
}

func Test_Reserve_FailsWhenMemberOrTitleMissing(t *testing.T) {
	rig := newTestRig(t)
	bob := rig.addMember(t, "Bob", ClassStudent)

	_, err := rig.reserves.Reserve("MEMBER-NOPE", "ISBN-NOPE")
	assert.ErrorIs(t, err, ErrMemberNotFound)

	_, err = rig.reserves.Reserve(bob, "ISBN-NOPE")
	assert.ErrorIs(t, err, ErrTitleNotFound)
}

func Test_Reserve_RejectsDuplicateActiveReservation(t *testing.T) {
	rig := newTestRig(t)
	alice := rig.addMember(t, "Alice", ClassStudent)
	bob := rig.addMember(t, "Bob", ClassStudent)
	title := rig.addTitle(t, "ISBN-1", "Dune")

	_, err := rig.lending.Borrow(alice, title)
	require.NoError(t, err)

	first, err := rig.reserves.Reserve(bob, title)
	require.NoError(t, err)

	_, err = rig.reserves.Reserve(bob, title)
	assert.ErrorIs(t, err, ErrDuplicateReservation)

	// A cancelled reservation no longer blocks a new one.
	require.True(t, rig.reserves.Cancel(first.Key))
	_, err = rig.reserves.Reserve(bob, title)
	assert.NoError(t, err)
}

func Test_QueueForTitle_OrdersByReservationDate(t *testing.T) {
	rig := newTestRig(t)
	alice := rig.addMember(t, "Alice", ClassStudent)
	bob := rig.addMember(t, "Bob", ClassStudent)
	carol := rig.addMember(t, "Carol", ClassStudent)
	title := rig.addTitle(t, "ISBN-1", "Dune")

	_, err := rig.lending.Borrow(alice, title)
	require.NoError(t, err)

	r1, err := rig.reserves.Reserve(bob, title)
	require.NoError(t, err)
	rig.clock.Advance(24 * time.Hour)
	r2, err := rig.reserves.Reserve(carol, title)
	require.NoError(t, err)

	queue := rig.reserves.QueueForTitle(title)
	require.Len(t, queue, 2)
	assert.Equal(t, r1.Key, queue[0].Key)
	assert.Equal(t, r2.Key, queue[1].Key)
}

func Test_ProcessExpired_RetiresStaleReservationsAndAdvisesNext(t *testing.T) {
	rig := newTestRig(t)
	alice := rig.addMember(t, "Alice", ClassStudent)
	bob := rig.addMember(t, "Bob", ClassStudent)
	carol := rig.addMember(t, "Carol", ClassStudent)
	title := rig.addTitle(t, "ISBN-1", "Dune")

	_, err := rig.lending.Borrow(alice, title)
	require.NoError(t, err)

	r1, err := rig.reserves.Reserve(bob, title)
	require.NoError(t, err)
	rig.clock.Advance(24 * time.Hour)
	r2, err := rig.reserves.Reserve(carol, title)
	require.NoError(t, err)

	// Day 7.5: bob's reservation (day 0, expires day 7) is stale, carol's
	// (day 1, expires day 8) still holds.
	rig.clock.Advance(6*24*time.Hour + 12*time.Hour)
	rig.reserves.ProcessExpired()

	got, ok := rig.reserves.FindReservation(r1.Key)
	require.True(t, ok)
	assert.Equal(t, ReservationExpired, got.Status)

	queue := rig.reserves.QueueForTitle(title)
	require.Len(t, queue, 1)
	assert.Equal(t, r2.Key, queue[0].Key)
	// The advisory does not touch carol's reservation.
	assert.Equal(t, ReservationActive, queue[0].Status)

	messages := rig.events.Messages()
	assert.Contains(t, messages, `Reservation `+r1.Key+` for "Dune" has expired`)
	assert.Contains(t, messages, `Title "Dune" is now available for Carol`)

	// Running the sweep again changes nothing and emits nothing.
	before := len(rig.events.Messages())
	rig.reserves.ProcessExpired()
	assert.Len(t, rig.events.Messages(), before)
}

func Test_Cancel_IsIdempotentAndRespectsTerminalStates(t *testing.T) {
	rig := newTestRig(t)
	alice := rig.addMember(t, "Alice", ClassStudent)
	bob := rig.addMember(t, "Bob", ClassStudent)
	title := rig.addTitle(t, "ISBN-1", "Dune")

	_, err := rig.lending.Borrow(alice, title)
	require.NoError(t, err)
	r, err := rig.reserves.Reserve(bob, title)
	require.NoError(t, err)

	assert.True(t, rig.reserves.Cancel(r.Key))
	assert.False(t, rig.reserves.Cancel(r.Key), "cancelling twice is a no-op")
	assert.False(t, rig.reserves.Cancel("RSV-NOPE"), "unknown key is a no-op")

	got, ok := rig.reserves.FindReservation(r.Key)
	require.True(t, ok)
	assert.Equal(t, ReservationCancelled, got.Status)
}

func Test_NotifyTitleAvailable_FulfillsFrontOfQueue(t *testing.T) {
	rig := newTestRig(t)
	alice := rig.addMember(t, "Alice", ClassStudent)
	bob := rig.addMember(t, "Bob", ClassStudent)
	carol := rig.addMember(t, "Carol", ClassStudent)
	title := rig.addTitle(t, "ISBN-1", "Dune")

	_, err := rig.lending.Borrow(alice, title)
	require.NoError(t, err)
	rb, err := rig.reserves.Reserve(bob, title)
	require.NoError(t, err)
	rig.clock.Advance(time.Hour)
	rc, err := rig.reserves.Reserve(carol, title)
	require.NoError(t, err)

	rig.reserves.NotifyTitleAvailable(title)

	got, ok := rig.reserves.FindReservation(rb.Key)
	require.True(t, ok)
	assert.Equal(t, ReservationFulfilled, got.Status)
	assert.Contains(t, rig.events.Messages(), `Reserved title "Dune" is ready for pickup by Bob`)

	// The fulfilled reservation leaves the queue; carol is next.
	queue := rig.reserves.QueueForTitle(title)
	require.Len(t, queue, 1)
	assert.Equal(t, rc.Key, queue[0].Key)
}

func Test_NotifyTitleAvailable_EmptyQueueIsSilent(t *testing.T) {
	rig := newTestRig(t)
	rig.addTitle(t, "ISBN-1", "Dune")

	rig.reserves.NotifyTitleAvailable("ISBN-1")

	assert.Empty(t, rig.events.Messages())
}

// Full hand-off: borrow, blocked borrow, reserve, return, pickup
// notification, completing borrow by the notified member.
func Test_TwoPhaseHandOff_EndToEnd(t *testing.T) {
	rig := newTestRig(t)
	alice := rig.addMember(t, "Alice", ClassStudent)
	bob := rig.addMember(t, "Bob", ClassStudent)
	title := rig.addTitle(t, "ISBN-1", "Dune")

	_, err := rig.lending.Borrow(alice, title)
	require.NoError(t, err)

	_, err = rig.lending.Borrow(bob, title)
	require.ErrorIs(t, err, ErrTitleUnavailable)

	r, err := rig.reserves.Reserve(bob, title)
	require.NoError(t, err)

	// Alice's return signals the reservation engine, which fulfills Bob's
	// reservation and emits the pickup event.
	returned, err := rig.lending.Return(alice, title)
	require.NoError(t, err)
	require.True(t, returned)

	got, ok := rig.reserves.FindReservation(r.Key)
	require.True(t, ok)
	assert.Equal(t, ReservationFulfilled, got.Status)
	assert.Contains(t, rig.events.Messages(), `Reserved title "Dune" is ready for pickup by Bob`)

	// Fulfilment did not hand over the copy; Bob completes the hand-off
	// with an explicit borrow.
	got2, err := rig.catalog.FindByKey(title)
	require.NoError(t, err)
	assert.Equal(t, TitleAvailable, got2.Status)

	loan, err := rig.lending.Borrow(bob, title)
	require.NoError(t, err)
	assert.Equal(t, bob, loan.MemberKey)
}

func Test_ReservationsForMember_ReturnsAllStatuses(t *testing.T) {
	rig := newTestRig(t)
	alice := rig.addMember(t, "Alice", ClassStudent)
	bob := rig.addMember(t, "Bob", ClassStudent)
	t1 := rig.addTitle(t, "ISBN-1", "Dune")
	t2 := rig.addTitle(t, "ISBN-2", "Hyperion")

	_, err := rig.lending.Borrow(alice, t1)
	require.NoError(t, err)
	_, err = rig.lending.Borrow(alice, t2)
	require.NoError(t, err)

	r1, err := rig.reserves.Reserve(bob, t1)
	require.NoError(t, err)
	r2, err := rig.reserves.Reserve(bob, t2)
	require.NoError(t, err)
	require.True(t, rig.reserves.Cancel(r2.Key))

	all := rig.reserves.ReservationsForMember(bob)
	require.Len(t, all, 2)
	byKey := map[string]ReservationStatus{}
	for _, r := range all {
		byKey[r.Key] = r.Status
	}
	assert.Equal(t, ReservationActive, byKey[r1.Key])
	assert.Equal(t, ReservationCancelled, byKey[r2.Key])
}

// At most one active reservation per (member, title) pair, even under
// concurrent attempts.
func Test_Reserve_ConcurrentDuplicates_OnlyOneActive(t *testing.T) {
	rig := newTestRig(t)
	alice := rig.addMember(t, "Alice", ClassStudent)
	bob := rig.addMember(t, "Bob", ClassStudent)
	title := rig.addTitle(t, "ISBN-1", "Dune")

	_, err := rig.lending.Borrow(alice, title)
	require.NoError(t, err)

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := rig.reserves.Reserve(bob, title)
			errs <- err
		}()
	}

	wins := 0
	for i := 0; i < n; i++ {
		if err := <-errs; err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrDuplicateReservation)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, rig.reserves.QueueForTitle(title), 1)
}
