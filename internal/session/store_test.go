package session

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestSessionStore(t *testing.T) {
	s := NewSessionStore()

	if _, ok := s.Get("missing"); ok {
		t.Error("Get on empty store reported a value")
	}
	s.Set("session_id", "abc")
	v, ok := s.Get("session_id")
	if !ok || v != "abc" {
		t.Errorf("Get = %q, %v", v, ok)
	}
}

func TestPermanentStoreStartsEmpty(t *testing.T) {
	s, err := OpenPermanentStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := s.Get("anything"); ok {
		t.Error("missing file produced values")
	}
}

func TestPermanentStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")

	s, err := OpenPermanentStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set("starter_claimed", "true"); err != nil {
		t.Fatalf("set: %v", err)
	}

	reopened, err := OpenPermanentStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok := reopened.Get("starter_claimed")
	if !ok || v != "true" {
		t.Errorf("Get after reopen = %q, %v", v, ok)
	}
}

func TestPermanentStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenPermanentStore(path); err == nil {
		t.Error("corrupt state file opened without error")
	}
}

func TestPermanentStoreConcurrentSet(t *testing.T) {
	s, err := OpenPermanentStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := s.Set("starter_claimed", "true"); err != nil {
					t.Errorf("set: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if v, _ := s.Get("starter_claimed"); v != "true" {
		t.Errorf("value = %q after concurrent writes", v)
	}
}
