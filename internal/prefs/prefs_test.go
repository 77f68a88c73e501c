package prefs

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetUnsetKey(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Get(KeyClientID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "" {
		t.Errorf("Get(unset) = %q, want empty", got)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set(KeyClientID, "id-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(KeyClientID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "id-1" {
		t.Errorf("Get = %q, want id-1", got)
	}

	// Writing again replaces the value.
	if err := s.Set(KeyClientID, "id-2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err = s.Get(KeyClientID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "id-2" {
		t.Errorf("Get after overwrite = %q, want id-2", got)
	}
}

func TestIntRoundTrip(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetInt(KeyDurationCache)
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if got != 0 {
		t.Errorf("GetInt(unset) = %d, want 0", got)
	}

	if err := s.SetInt(KeyDurationCache, 1234); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	got, err = s.GetInt(KeyDurationCache)
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if got != 1234 {
		t.Errorf("GetInt = %d, want 1234", got)
	}
}

func TestGetIntRejectsNonNumeric(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set(KeyDurationCache, "not a number"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.GetInt(KeyDurationCache); err == nil {
		t.Error("GetInt on non-numeric value succeeded")
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set(KeyPushToken, "token-7"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Get(KeyPushToken)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "token-7" {
		t.Errorf("Get after reopen = %q, want token-7", got)
	}
}

func TestOpenCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()
}
