package session

import (
	"testing"

	"ragdesk/pkg/domain"
)

func TestApplyStatusMergesOnlyStatusFields(t *testing.T) {
	s := NewStore()
	s.Insert(domain.Session{
		ID:          "sess-1",
		Kind:        domain.KindWebsite,
		SourceLabel: "https://example.com",
		State:       domain.StateProcessing,
		Message:     "crawling",
		ChatHistory: []domain.ChatMessage{{Role: "user", Content: "hi"}},
	})

	merged, ok := s.ApplyStatus(domain.StatusUpdate{
		ID:      "sess-1",
		State:   domain.StateProcessing,
		Message: "embedding",
	})
	if !ok {
		t.Fatal("expected merge to apply")
	}
	if merged.Message != "embedding" || merged.State != domain.StateProcessing {
		t.Fatalf("unexpected merge result: %+v", merged)
	}
	if merged.SourceLabel != "https://example.com" {
		t.Fatal("merge must not touch immutable fields")
	}
	if len(merged.ChatHistory) != 1 {
		t.Fatal("merge must not touch chat history")
	}
}

func TestApplyStatusAbsentIDIsNoOp(t *testing.T) {
	s := NewStore()
	if _, ok := s.ApplyStatus(domain.StatusUpdate{ID: "ghost", State: domain.StateReady}); ok {
		t.Fatal("merging an absent id must not apply")
	}
	if s.Len() != 0 {
		t.Fatal("merging an absent id must never re-insert a session")
	}
}

func TestContextReadyDerivedFromState(t *testing.T) {
	s := NewStore()
	s.Insert(domain.Session{ID: "sess-1", State: domain.StateProcessing, ContextReady: true})

	got, _ := s.Get("sess-1")
	if got.ContextReady {
		t.Fatal("ContextReady must be recomputed from state on insert")
	}

	merged, _ := s.ApplyStatus(domain.StatusUpdate{ID: "sess-1", State: domain.StateReady})
	if !merged.ContextReady {
		t.Fatal("ready state must derive ContextReady=true")
	}

	merged, _ = s.ApplyStatus(domain.StatusUpdate{ID: "sess-1", State: domain.StateError})
	if merged.ContextReady {
		t.Fatal("error state must derive ContextReady=false")
	}
}

func TestReplacePreservesOrderAndRejectsAbsent(t *testing.T) {
	s := NewStore()
	s.Insert(domain.Session{ID: "a", State: domain.StateProcessing})
	s.Insert(domain.Session{ID: "b", State: domain.StateProcessing})

	if s.Replace(domain.Session{ID: "ghost", State: domain.StateReady}) {
		t.Fatal("replacing an absent id must be a no-op")
	}
	if !s.Replace(domain.Session{ID: "a", State: domain.StateReady, GeneratedFAQs: []domain.GeneratedFAQ{{Question: "q", Answer: "w"}}}) {
		t.Fatal("expected replace to apply")
	}

	list := s.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("unexpected order after replace: %+v", list)
	}
	if !list[0].ContextReady || len(list[0].GeneratedFAQs) != 1 {
		t.Fatalf("unexpected replaced record: %+v", list[0])
	}
}

func TestInsertSameIDDoesNotDuplicate(t *testing.T) {
	s := NewStore()
	s.Insert(domain.Session{ID: "a", State: domain.StateProcessing})
	s.Insert(domain.Session{ID: "a", State: domain.StateReady})
	if s.Len() != 1 {
		t.Fatalf("expected one record, got %d", s.Len())
	}
	if len(s.List()) != 1 {
		t.Fatalf("expected one listed record, got %d", len(s.List()))
	}
}

func TestRemove(t *testing.T) {
	s := NewStore()
	s.Insert(domain.Session{ID: "a"})
	s.Insert(domain.Session{ID: "b"})
	s.Remove("a")
	s.Remove("a") // second remove is a no-op

	list := s.List()
	if len(list) != 1 || list[0].ID != "b" {
		t.Fatalf("unexpected list after remove: %+v", list)
	}
}

func TestAppendMessages(t *testing.T) {
	s := NewStore()
	s.Insert(domain.Session{ID: "a", State: domain.StateReady})
	if !s.AppendMessages("a", domain.ChatMessage{Role: "user", Content: "q"}, domain.ChatMessage{Role: "assistant", Content: "ans"}) {
		t.Fatal("expected append to apply")
	}
	if s.AppendMessages("ghost", domain.ChatMessage{Role: "user", Content: "q"}) {
		t.Fatal("appending to an absent id must be a no-op")
	}
	got, _ := s.Get("a")
	if len(got.ChatHistory) != 2 {
		t.Fatalf("unexpected history: %+v", got.ChatHistory)
	}
}
