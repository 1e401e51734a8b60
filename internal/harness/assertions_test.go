package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Poll: 1, URL: "https://a", Record: "rec1", Outcome: outcomeDelivered},
		{Seq: 2, Poll: 1, URL: "https://b", Record: "rec1", Outcome: outcomeFailed},
		{Seq: 3, Poll: 2, URL: "https://a", Record: "rec2", Outcome: outcomeDelivered},
		{Seq: 4, Poll: 3, URL: "https://a", Record: "rec1", Outcome: outcomeDelivered},
	}
}

// =============================================================================
// delivered / not_delivered
// =============================================================================

func TestAssertDelivered(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertDelivered(trace, Assertion{URL: "https://a", Record: "rec2"}))
	assert.NoError(t, assertDelivered(trace, Assertion{Record: "rec1", Poll: intPtr(3)}))

	err := assertDelivered(trace, Assertion{URL: "https://b"})
	require.Error(t, err, "failed attempts are not deliveries")
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertDelivered, ae.Type)
	assert.Contains(t, err.Error(), "Full trace:")
}

func TestAssertNotDelivered(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertNotDelivered(trace, Assertion{URL: "https://b"}))
	assert.NoError(t, assertNotDelivered(trace, Assertion{Record: "rec2", Poll: intPtr(1)}))

	err := assertNotDelivered(trace, Assertion{Record: "rec2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivered at seq 3")
}

// =============================================================================
// delivery_count
// =============================================================================

func TestAssertDeliveryCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertDeliveryCount(trace, Assertion{Count: 4}))
	assert.NoError(t, assertDeliveryCount(trace, Assertion{Record: "rec1", Count: 3}))
	assert.NoError(t, assertDeliveryCount(trace, Assertion{Record: "rec1", Outcome: outcomeFailed, Count: 1}))
	assert.NoError(t, assertDeliveryCount(trace, Assertion{Poll: intPtr(4), Count: 0}))

	err := assertDeliveryCount(trace, Assertion{URL: "https://a", Outcome: outcomeDelivered, Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 delivered attempts")
}

// =============================================================================
// delivery_order
// =============================================================================

func TestAssertDeliveryOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertDeliveryOrder(trace, Assertion{URL: "https://a", Records: []string{"rec1", "rec2"}}))

	err := assertDeliveryOrder(trace, Assertion{URL: "https://a", Records: []string{"rec2", "rec1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rec2 (seq 3) should be before rec1 (seq 1)")

	err = assertDeliveryOrder(trace, Assertion{URL: "https://b", Records: []string{"rec1", "rec2"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing record rec1")
}

// =============================================================================
// EvaluateAssertions
// =============================================================================

func TestEvaluateAssertions(t *testing.T) {
	result := &Result{Trace: sampleTrace()}
	failures := EvaluateAssertions(result, []Assertion{
		{Type: AssertDelivered, Record: "rec1"},
		{Type: AssertNotDelivered, Record: "rec1"},
		{Type: AssertJournal, Table: "cycles"},
		{Type: "bogus"},
	}, nil)

	require.Len(t, failures, 3)
	assert.Contains(t, failures[0], "assertions[1]")
	assert.Contains(t, failures[1], "requires a journal")
	assert.Contains(t, failures[2], `unknown assertion type "bogus"`)
}
