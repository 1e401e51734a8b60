package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tablehook/internal/store"
)

// journalScanLimit caps the rows read for journal assertions.
const journalScanLimit = 10000

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] poll %d %s %s %s\n", event.Seq, event.Poll, event.Outcome, event.URL, event.Record)
		}
	}
	return buf.String()
}

// AssertionContext carries what journal assertions query.
type AssertionContext struct {
	Ctx     context.Context
	Journal *store.Store
	Recipe  string
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all assertions held.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertDelivered:
			err = assertDelivered(result.Trace, a)
		case AssertNotDelivered:
			err = assertNotDelivered(result.Trace, a)
		case AssertDeliveryCount:
			err = assertDeliveryCount(result.Trace, a)
		case AssertDeliveryOrder:
			err = assertDeliveryOrder(result.Trace, a)
		case AssertJournal:
			err = assertJournal(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// matches reports whether event satisfies the assertion's url, record and
// poll selectors. Empty selectors match anything.
func matches(event TraceEvent, a Assertion) bool {
	if a.URL != "" && event.URL != a.URL {
		return false
	}
	if a.Record != "" && event.Record != a.Record {
		return false
	}
	if a.Poll != nil && event.Poll != *a.Poll {
		return false
	}
	return true
}

func describe(a Assertion) string {
	var parts []string
	if a.URL != "" {
		parts = append(parts, "url "+a.URL)
	}
	if a.Record != "" {
		parts = append(parts, "record "+a.Record)
	}
	if a.Poll != nil {
		parts = append(parts, fmt.Sprintf("poll %d", *a.Poll))
	}
	if len(parts) == 0 {
		return "any delivery"
	}
	return strings.Join(parts, ", ")
}

func assertDelivered(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Outcome == outcomeDelivered && matches(event, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertDelivered,
		Expected: "delivery to " + describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func assertNotDelivered(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Outcome == outcomeDelivered && matches(event, a) {
			return &AssertionError{
				Type:     AssertNotDelivered,
				Expected: "no delivery to " + describe(a),
				Actual:   fmt.Sprintf("delivered at seq %d", event.Seq),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertDeliveryCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matches(event, a) && (a.Outcome == "" || event.Outcome == a.Outcome) {
			count++
		}
	}
	if count != a.Count {
		what := "attempts"
		if a.Outcome != "" {
			what = a.Outcome + " attempts"
		}
		return &AssertionError{
			Type:     AssertDeliveryCount,
			Expected: fmt.Sprintf("%d %s to %s", a.Count, what, describe(a)),
			Actual:   fmt.Sprintf("%d %s", count, what),
			Trace:    trace,
		}
	}
	return nil
}

// assertDeliveryOrder checks that the first successful delivery of each
// record to the url happened in the listed order. Other deliveries may
// come in between.
func assertDeliveryOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int, len(a.Records))
	for _, event := range trace {
		if event.Outcome != outcomeDelivered || event.URL != a.URL {
			continue
		}
		if _, seen := positions[event.Record]; !seen {
			positions[event.Record] = event.Seq
		}
	}

	for _, rec := range a.Records {
		if _, ok := positions[rec]; !ok {
			return &AssertionError{
				Type:     AssertDeliveryOrder,
				Expected: fmt.Sprintf("deliveries to %s for %v", a.URL, a.Records),
				Actual:   "missing record " + rec,
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Records); i++ {
		prev, curr := a.Records[i-1], a.Records[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertDeliveryOrder,
				Expected: fmt.Sprintf("records in order: %v", a.Records),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertJournal counts journal rows for the recipe. The cycle cut short by
// the end of the script is not counted.
func assertJournal(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Journal == nil {
		return errors.New("journal assertion requires a journal")
	}

	var count int
	switch a.Table {
	case "deliveries":
		deliveries, err := actx.Journal.RecentDeliveries(actx.Ctx, actx.Recipe, journalScanLimit)
		if err != nil {
			return fmt.Errorf("query deliveries: %w", err)
		}
		for _, d := range deliveries {
			if (a.Outcome == "" || string(d.Status) == a.Outcome) && (a.Record == "" || d.RecordID == a.Record) {
				count++
			}
		}
	case "cycles":
		cycles, err := actx.Journal.RecentCycles(actx.Ctx, actx.Recipe, journalScanLimit)
		if err != nil {
			return fmt.Errorf("query cycles: %w", err)
		}
		for _, c := range cycles {
			if !strings.Contains(c.Error, context.Canceled.Error()) {
				count++
			}
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertJournal,
			Expected: fmt.Sprintf("%d %s rows", a.Count, a.Table),
			Actual:   fmt.Sprintf("%d rows", count),
		}
	}
	return nil
}
