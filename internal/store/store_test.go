package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path)
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("final OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='sessions'").Scan(&name)
	if err != nil {
		t.Errorf("sessions table not found after idempotent opens: %v", err)
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpenSQLite_InMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite(:memory:) failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Open(ctx, "mem"); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteLocked(ctx, "mem", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Release(ctx, "mem"); err != nil {
		t.Fatal(err)
	}
	data, err := View(ctx, s, "mem")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "x" {
		t.Errorf("View() = %q, want %q", data, "x")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &SQLite{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragma_JournalMode(t *testing.T) {
	s := createTestSQLite(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestSQLite(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestDSN(t *testing.T) {
	if got := dsn("a.db"); got != "a.db?_txlock=immediate" {
		t.Errorf("dsn() = %q", got)
	}
	if got := dsn("file:a.db?cache=shared"); got != "file:a.db?cache=shared&_txlock=immediate" {
		t.Errorf("dsn() = %q", got)
	}
}

func TestSQLite_VersionIncrementsPerWrite(t *testing.T) {
	s := createTestSQLite(t)
	ctx := context.Background()

	v, err := s.Version(ctx, "abc")
	if err != nil || v != 0 {
		t.Fatalf("Version() before write = %d, %v", v, err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Open(ctx, "abc"); err != nil {
			t.Fatal(err)
		}
		if err := s.WriteLocked(ctx, "abc", []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
		if err := s.Release(ctx, "abc"); err != nil {
			t.Fatal(err)
		}
	}

	v, err = s.Version(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if v != 3 {
		t.Errorf("Version() = %d, want 3", v)
	}
}

func TestSQLite_OpenSurvivesCancelledContext(t *testing.T) {
	s := createTestSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())

	if err := s.Open(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteLocked(ctx, "abc", []byte("kept")); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := s.Release(context.Background(), "abc"); err != nil {
		t.Fatalf("Release() after cancel: %v", err)
	}

	data, err := View(context.Background(), s, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "kept" {
		t.Errorf("record = %q, want %q", data, "kept")
	}
}

func TestDrivers_LockedLifecycle(t *testing.T) {
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.Open(ctx, "sid-1"); err != nil {
				t.Fatalf("Open() failed: %v", err)
			}
			data, err := s.ReadLocked(ctx, "sid-1")
			if err != nil {
				t.Fatalf("ReadLocked() failed: %v", err)
			}
			if data != nil {
				t.Errorf("absent record read as %q, want nil", data)
			}
			if err := s.WriteLocked(ctx, "sid-1", []byte(`{"a":1}`)); err != nil {
				t.Fatalf("WriteLocked() failed: %v", err)
			}
			data, err = s.ReadLocked(ctx, "sid-1")
			if err != nil || string(data) != `{"a":1}` {
				t.Fatalf("ReadLocked() after write = %q, %v", data, err)
			}
			if err := s.Release(ctx, "sid-1"); err != nil {
				t.Fatalf("Release() failed: %v", err)
			}

			ids, err := s.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(ids) != 1 || ids[0] != "sid-1" {
				t.Errorf("List() = %v", ids)
			}

			if err := s.Open(ctx, "sid-1"); err != nil {
				t.Fatal(err)
			}
			if err := s.DeleteLocked(ctx, "sid-1"); err != nil {
				t.Fatalf("DeleteLocked() failed: %v", err)
			}
			if err := s.DeleteLocked(ctx, "sid-1"); err != nil {
				t.Fatalf("second DeleteLocked() failed: %v", err)
			}
			if err := s.Release(ctx, "sid-1"); err != nil {
				t.Fatal(err)
			}

			data, err = View(ctx, s, "sid-1")
			if err != nil || data != nil {
				t.Errorf("View() after delete = %q, %v", data, err)
			}
		})
	}
}

func TestDrivers_RequireLock(t *testing.T) {
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.ReadLocked(ctx, "nolock"); !errors.Is(err, ErrNotLocked) {
				t.Errorf("ReadLocked() without lock = %v, want ErrNotLocked", err)
			}
			if err := s.WriteLocked(ctx, "nolock", nil); !errors.Is(err, ErrNotLocked) {
				t.Errorf("WriteLocked() without lock = %v, want ErrNotLocked", err)
			}
			if err := s.DeleteLocked(ctx, "nolock"); !errors.Is(err, ErrNotLocked) {
				t.Errorf("DeleteLocked() without lock = %v, want ErrNotLocked", err)
			}
			if err := s.Release(ctx, "nolock"); !errors.Is(err, ErrNotLocked) {
				t.Errorf("Release() without lock = %v, want ErrNotLocked", err)
			}
		})
	}
}

func TestDrivers_RejectInvalidID(t *testing.T) {
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"", "../etc/passwd", "a b", "x.lock"} {
				if err := s.Open(context.Background(), id); !errors.Is(err, ErrInvalidID) {
					t.Errorf("Open(%q) = %v, want ErrInvalidID", id, err)
				}
			}
		})
	}
}

func TestDrivers_OpenBlocksUntilRelease(t *testing.T) {
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Open(ctx, "busy"); err != nil {
				t.Fatal(err)
			}

			acquired := make(chan error, 1)
			go func() {
				err := s.Open(ctx, "busy")
				if err == nil {
					err = s.Release(ctx, "busy")
				}
				acquired <- err
			}()

			select {
			case err := <-acquired:
				t.Fatalf("second Open() returned while lock held: %v", err)
			case <-time.After(50 * time.Millisecond):
			}

			if err := s.Release(ctx, "busy"); err != nil {
				t.Fatal(err)
			}
			select {
			case err := <-acquired:
				if err != nil {
					t.Fatalf("second Open() failed: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("second Open() never acquired the lock")
			}
		})
	}
}

func TestDrivers_OpenHonoursContext(t *testing.T) {
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Open(context.Background(), "held"); err != nil {
				t.Fatal(err)
			}
			defer s.Release(context.Background(), "held")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			err := s.Open(ctx, "held")
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Open() = %v, want deadline exceeded", err)
			}
		})
	}
}

func TestDrivers_ConcurrentIncrements(t *testing.T) {
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const workers = 8

			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := s.Open(ctx, "counter"); err != nil {
						errs <- err
						return
					}
					data, err := s.ReadLocked(ctx, "counter")
					if err == nil {
						err = s.WriteLocked(ctx, "counter", append(data, 'x'))
					}
					if relErr := s.Release(ctx, "counter"); err == nil {
						err = relErr
					}
					if err != nil {
						errs <- err
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatal(err)
			}

			data, err := View(ctx, s, "counter")
			if err != nil {
				t.Fatal(err)
			}
			if len(data) != workers {
				t.Errorf("record length = %d, want %d (lost update)", len(data), workers)
			}
		})
	}
}

func TestOpenDriver(t *testing.T) {
	s, err := OpenDriver(DriverMemory, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("OpenDriver(memory) = %T", s)
	}

	if _, err := OpenDriver("redis", ""); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("OpenDriver(redis) = %v, want ErrUnknownDriver", err)
	}

	s, err = OpenDriver(DriverFile, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
}

func TestMemory_Prune(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Unix(1_000, 0)
	m.now = func() time.Time { return now }

	write := func(id string) {
		t.Helper()
		if err := m.Open(ctx, id); err != nil {
			t.Fatal(err)
		}
		if err := m.WriteLocked(ctx, id, []byte("{}")); err != nil {
			t.Fatal(err)
		}
		if err := m.Release(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	write("old")
	write("held")
	now = now.Add(time.Hour)
	write("fresh")

	if err := m.Open(ctx, "held"); err != nil {
		t.Fatal(err)
	}
	n, err := m.Prune(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if err := m.Release(ctx, "held"); err != nil {
		t.Fatal(err)
	}

	ids, _ := m.List(ctx)
	if len(ids) != 2 || ids[0] != "fresh" || ids[1] != "held" {
		t.Errorf("List() after prune = %v", ids)
	}
}

func TestFile_PruneByModTime(t *testing.T) {
	f := createTestFile(t)
	ctx := context.Background()

	for _, id := range []string{"stale", "recent"} {
		if err := f.Open(ctx, id); err != nil {
			t.Fatal(err)
		}
		if err := f.WriteLocked(ctx, id, []byte("{}")); err != nil {
			t.Fatal(err)
		}
		if err := f.Release(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(f.dataPath("stale"), old, old); err != nil {
		t.Fatal(err)
	}

	n, err := f.Prune(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	ids, _ := f.List(ctx)
	if len(ids) != 1 || ids[0] != "recent" {
		t.Errorf("List() after prune = %v", ids)
	}
}

func TestSQLite_Prune(t *testing.T) {
	s := createTestSQLite(t)
	ctx := context.Background()

	if err := s.Open(ctx, "gone"); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteLocked(ctx, "gone", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if err := s.Release(ctx, "gone"); err != nil {
		t.Fatal(err)
	}

	n, err := s.Prune(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
}

func TestFile_IgnoresForeignFiles(t *testing.T) {
	f := createTestFile(t)
	for _, name := range []string{"README", "sess_x.lock", "sess_y.123.tmp", "sess_bad id"} {
		if err := os.WriteFile(filepath.Join(f.Dir(), name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := f.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("List() = %v, want none", ids)
	}
}
