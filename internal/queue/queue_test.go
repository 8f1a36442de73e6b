package queue

import (
	"testing"
	"time"
)

func testMessage(id string, priority int, createdAt time.Time) Message {
	return Message{
		ID:        id,
		Text:      "text " + id,
		Priority:  priority,
		CreatedAt: createdAt,
	}
}

func TestQueuePollOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := New(10)

	inserts := []Message{
		testMessage("low", 1, base),
		testMessage("high", 3, base.Add(2*time.Second)),
		testMessage("mid-old", 2, base.Add(1*time.Second)),
		testMessage("mid-new", 2, base.Add(3*time.Second)),
	}
	for _, m := range inserts {
		if _, ok := q.Offer(m); !ok {
			t.Fatalf("Offer(%s) rejected, want accepted", m.ID)
		}
	}

	want := []string{"high", "mid-old", "mid-new", "low"}
	for i, id := range want {
		got, ok := q.Poll()
		if !ok {
			t.Fatalf("Poll() #%d empty, want %s", i, id)
		}
		if got.ID != id {
			t.Fatalf("Poll() #%d = %s, want %s", i, got.ID, id)
		}
	}
	if _, ok := q.Poll(); ok {
		t.Fatalf("Poll() on empty queue returned a message")
	}
}

func TestQueueOverflowEvictsLowestPriority(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := New(2)

	q.Offer(testMessage("p1", 1, base))
	q.Offer(testMessage("p3", 3, base.Add(time.Second)))

	evicted, ok := q.Offer(testMessage("p2", 2, base.Add(2*time.Second)))
	if !ok {
		t.Fatalf("Offer(p2) rejected, want accepted with eviction")
	}
	if evicted == nil || evicted.ID != "p1" {
		t.Fatalf("Offer(p2) evicted %+v, want p1", evicted)
	}

	first, _ := q.Poll()
	second, _ := q.Poll()
	if first.ID != "p3" || second.ID != "p2" {
		t.Fatalf("queue after overflow = [%s %s], want [p3 p2]", first.ID, second.ID)
	}
}

func TestQueueOverflowRejectsWithoutHigherPriority(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := New(1)

	q.Offer(testMessage("kept", 2, base))

	cases := []struct {
		name     string
		priority int
	}{
		{"equal priority", 2},
		{"lower priority", 1},
	}
	for _, tc := range cases {
		evicted, ok := q.Offer(testMessage(tc.name, tc.priority, base.Add(time.Second)))
		if ok || evicted != nil {
			t.Fatalf("Offer(%s) = (%v, %v), want rejection", tc.name, evicted, ok)
		}
	}

	evicted, ok := q.Offer(testMessage("better", 3, base.Add(2*time.Second)))
	if !ok || evicted == nil || evicted.ID != "kept" {
		t.Fatalf("Offer(better) = (%+v, %v), want eviction of kept", evicted, ok)
	}
}

func TestQueueOverflowEvictionBreaksTiesOldestFirst(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := New(2)

	q.Offer(testMessage("older", 1, base))
	q.Offer(testMessage("newer", 1, base.Add(time.Second)))

	evicted, ok := q.Offer(testMessage("urgent", 2, base.Add(2*time.Second)))
	if !ok || evicted == nil {
		t.Fatalf("Offer(urgent) = (%v, %v), want accepted with eviction", evicted, ok)
	}
	if evicted.ID != "older" {
		t.Fatalf("evicted %s, want older", evicted.ID)
	}
}

func TestQueueNeverExceedsBound(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := New(3)

	priorities := []int{2, 1, 3, 3, 1, 2, 3, 1, 2, 3}
	for i, p := range priorities {
		q.Offer(testMessage(string(rune('a'+i)), p, base.Add(time.Duration(i)*time.Second)))
		if got := q.Len(); got > 3 {
			t.Fatalf("Len() = %d after insert %d, want <= 3", got, i)
		}
	}
}

func TestQueueDrain(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := New(5)
	for i := 0; i < 4; i++ {
		q.Offer(testMessage(string(rune('a'+i)), 1, base.Add(time.Duration(i)*time.Second)))
	}

	if n := q.Drain(); n != 4 {
		t.Fatalf("Drain() = %d, want 4", n)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() after Drain = %d, want 0", q.Len())
	}
	if _, ok := q.Poll(); ok {
		t.Fatalf("Poll() after Drain returned a message")
	}
}

func TestMessageDisplayFallsBackToText(t *testing.T) {
	m := Message{Text: "spoken", DisplayText: ""}
	if got := m.Display(); got != "spoken" {
		t.Fatalf("Display() = %q, want %q", got, "spoken")
	}
	m.DisplayText = "shown"
	if got := m.Display(); got != "shown" {
		t.Fatalf("Display() = %q, want %q", got, "shown")
	}
}
