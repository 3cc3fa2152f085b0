package conversation

import "testing"

func TestHistoryEvictsOldestBeyondMaxTurns(t *testing.T) {
	h := NewHistory(50)
	const n = 70
	for i := 0; i < n; i++ {
		h.Append(Turn{Role: RoleUser, Content: string(rune('a' + i%26)), TimestampMS: int64(i)})
	}
	got := h.Snapshot()
	if len(got) != 50 {
		t.Fatalf("expected history length 50, got %d", len(got))
	}
	for i, turn := range got {
		wantTS := int64(n - 50 + i)
		if turn.TimestampMS != wantTS {
			t.Fatalf("turn %d: expected timestamp %d, got %d", i, wantTS, turn.TimestampMS)
		}
	}
}

func TestHistoryDefaultMaxTurns(t *testing.T) {
	h := NewHistory(0)
	if h.maxTurns != DefaultMaxTurns {
		t.Fatalf("expected default max turns %d, got %d", DefaultMaxTurns, h.maxTurns)
	}
}

func TestHistoryOnAppendFiresAfterEachAppend(t *testing.T) {
	h := NewHistory(50)
	var seen []Turn
	h.OnAppend(func(t Turn) { seen = append(seen, t) })

	h.Append(Turn{Role: RoleUser, Content: "hi"})
	h.Append(Turn{Role: RoleAssistant, Content: "hello"})

	if len(seen) != 2 {
		t.Fatalf("expected 2 mirrored turns, got %d", len(seen))
	}
	if seen[0].Content != "hi" || seen[1].Content != "hello" {
		t.Fatalf("unexpected mirrored turns: %+v", seen)
	}
}

func TestHistoryLast(t *testing.T) {
	h := NewHistory(50)
	for i := 0; i < 5; i++ {
		h.Append(Turn{Role: RoleUser, TimestampMS: int64(i)})
	}
	last3 := h.Last(3)
	if len(last3) != 3 || last3[0].TimestampMS != 2 || last3[2].TimestampMS != 4 {
		t.Fatalf("unexpected Last(3): %+v", last3)
	}
}
