package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestStore_CreateReturnsUniqueIDs(t *testing.T) {
	s := NewStore(5)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := s.Create()
		if id == "" {
			t.Fatal("Create returned empty id")
		}
		if seen[id] {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = true
	}
}

func TestStore_TranscriptOrder(t *testing.T) {
	s := NewStore(5)
	id := s.Create()

	s.AddExchange(id, "hi", "hello")
	s.AddExchange(id, "how are you", "fine")

	want := "User: hi\nAssistant: hello\nUser: how are you\nAssistant: fine"
	if got := s.Transcript(id); got != want {
		t.Errorf("transcript = %q, want %q", got, want)
	}
}

func TestStore_TrimsOldestPairsFirst(t *testing.T) {
	s := NewStore(2)

	s.AddExchange("s1", "first", "one")
	s.AddExchange("s1", "second", "two")
	s.AddExchange("s1", "third", "three")

	got := s.Transcript("s1")
	if strings.Contains(got, "first") {
		t.Errorf("oldest exchange should be dropped, got %q", got)
	}
	if !strings.Contains(got, "second") || !strings.Contains(got, "third") {
		t.Errorf("recent exchanges missing, got %q", got)
	}
	if s.Count("s1") != 4 {
		t.Errorf("message count = %d, want 4", s.Count("s1"))
	}
}

func TestStore_MessageCountNeverExceedsCap(t *testing.T) {
	maxHistory := 3
	s := NewStore(maxHistory)

	for i := 0; i < 20; i++ {
		s.AddExchange("s1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		if c := s.Count("s1"); c > maxHistory*2 {
			t.Fatalf("after %d exchanges, count = %d exceeds cap %d", i+1, c, maxHistory*2)
		}
	}
}

func TestStore_UnknownSessionIsEmptyNotError(t *testing.T) {
	s := NewStore(2)

	if got := s.Transcript("never-seen"); got != "" {
		t.Errorf("unknown session transcript = %q, want empty", got)
	}
	if got := s.Count("never-seen"); got != 0 {
		t.Errorf("unknown session count = %d", got)
	}
	// Clear on unknown id must be a no-op, not a panic.
	s.Clear("never-seen")
}

func TestStore_AddExchangeCreatesSession(t *testing.T) {
	s := NewStore(2)

	s.AddExchange("implicit", "hi", "hello")
	if got := s.Transcript("implicit"); !strings.Contains(got, "hi") {
		t.Errorf("transcript = %q", got)
	}
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(2)
	id := s.Create()
	s.AddExchange(id, "hi", "hello")

	s.Clear(id)
	if got := s.Transcript(id); got != "" {
		t.Errorf("transcript after clear = %q", got)
	}
}

func TestStore_ConcurrentSameSession(t *testing.T) {
	s := NewStore(10)
	id := s.Create()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.AddExchange(id, fmt.Sprintf("q%d", n), fmt.Sprintf("a%d", n))
		}(i)
	}
	wg.Wait()

	// Cap holds under concurrency and every kept message is a whole pair.
	if c := s.Count(id); c != 20 {
		t.Errorf("count = %d, want 20 (10 pairs)", c)
	}
	lines := strings.Split(s.Transcript(id), "\n")
	for i, line := range lines {
		wantRole := RoleUser
		if i%2 == 1 {
			wantRole = RoleAssistant
		}
		if !strings.HasPrefix(line, wantRole+": ") {
			t.Errorf("line %d has wrong role: %q", i, line)
		}
	}
}
