package circulation

import (
	"strings"

	"github.com/google/uuid"
)

// newKey builds a prefixed, human-readable record key from a fresh UUID,
// e.g. LOAN-3F91AC07.
func newKey(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.New().String()[:8])
}

func newLoanKey() string        { return newKey("LOAN") }
func newReservationKey() string { return newKey("RSV") }
func newMemberKey() string      { return newKey("MEMBER") }
