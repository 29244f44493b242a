package booking

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderID derives the deterministic idempotency key for a reservation from
// its defining attributes. Recomputing from the same inputs reproduces the
// same value, so a double-tapped submission collides on the store's unique
// index instead of double-booking.
//
// Format: 2006-01-02_{hours}h_{15-04}_p{place}_{clientID}
func OrderID(day time.Time, hours decimal.Decimal, timeFrom time.Time, place int, clientID string) string {
	return fmt.Sprintf("%s_%sh_%s_p%d_%s",
		day.Format("2006-01-02"),
		FormatHours(hours),
		timeFrom.Format("15-04"),
		place,
		clientID,
	)
}
