package live

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// contextTimeLayout renders e.g. "Tuesday, March 3, 2026 at 14:05".
const contextTimeLayout = "Monday, January 2, 2006 at 15:04"

// AugmentInstructions appends a system context block to instructions that
// states the reference time zone and the current local date and time, so the
// model can turn "tomorrow" or "next Monday" into calendar dates.
func AugmentInstructions(instructions string, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("%s\n\n[SYSTEM CONTEXT]\n"+
		"- You are operating in the %s Timezone.\n"+
		"- The current date and time is: %s.\n"+
		"- Use this specific timestamp to resolve relative references like \"tomorrow\", \"today\", or \"next Monday\" into exact YYYY-MM-DD dates.",
		instructions, loc.String(), now.In(loc).Format(contextTimeLayout))
}
