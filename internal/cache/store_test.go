package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestStoreEmptyState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx)
	if err != nil {
		t.Fatalf("exists error: %v", err)
	}
	if exists {
		t.Fatalf("fresh store should not exist")
	}
	if _, err := store.Age(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty from Age, got %v", err)
	}
	if _, err := store.Lookup(ctx, "en/linux/tar.md"); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty from Lookup, got %v", err)
	}
}

func TestStoreReplaceAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte("# tar\n\n> Archiving utility.\n")
	if err := store.Replace(ctx, []Entry{{Path: "en/linux/tar", Data: payload}}); err != nil {
		t.Fatalf("replace error: %v", err)
	}

	exists, err := store.Exists(ctx)
	if err != nil || !exists {
		t.Fatalf("store should exist after replace: %v", err)
	}

	got, err := store.Lookup(ctx, "en/linux/tar")
	if err != nil {
		t.Fatalf("lookup error: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: %q", string(got))
	}

	if _, err := store.Lookup(ctx, "en/linux/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Lookup(ctx, "en/linux"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("directories should report ErrNotFound, got %v", err)
	}
}

func TestStoreReplaceOverwritesPreviousVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustReplace(t, store, Entry{Path: "en/common/ls.md", Data: []byte("old ls")}, Entry{Path: "en/common/cp.md", Data: []byte("cp")})
	mustReplace(t, store, Entry{Path: "en/common/ls.md", Data: []byte("new ls")})

	got, err := store.Lookup(ctx, "en/common/ls.md")
	if err != nil {
		t.Fatalf("lookup error: %v", err)
	}
	if string(got) != "new ls" {
		t.Fatalf("expected new content, got %q", string(got))
	}
	if _, err := store.Lookup(ctx, "en/common/cp.md"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("files from the previous archive must not leak into the new version, got %v", err)
	}
}

func TestStoreReplaceInterruptedKeepsPriorCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustReplace(t, store, Entry{Path: "en/linux/tar.md", Data: []byte("original")})

	fs := store.(*fileStore)
	writes := 0
	fs.writeEntry = func(path string, data []byte) error {
		writes++
		if writes == 2 {
			return errors.New("simulated interruption")
		}
		return writeFile(path, data)
	}

	err := store.Replace(ctx, []Entry{
		{Path: "en/linux/tar.md", Data: []byte("replacement")},
		{Path: "en/linux/ls.md", Data: []byte("ls")},
		{Path: "en/linux/cp.md", Data: []byte("cp")},
	})
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}

	got, err := store.Lookup(ctx, "en/linux/tar.md")
	if err != nil {
		t.Fatalf("lookup error: %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("prior content must be unchanged, got %q", string(got))
	}
	if _, err := store.Lookup(ctx, "en/linux/ls.md"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("partially staged files must not be visible, got %v", err)
	}
	assertNoStageDirs(t, fs)
}

func TestStoreReplaceInterruptedOnEmptyCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fs := store.(*fileStore)
	fs.writeEntry = func(string, []byte) error { return errors.New("disk full") }

	if err := store.Replace(ctx, []Entry{{Path: "en/linux/tar.md", Data: []byte("x")}}); err == nil {
		t.Fatalf("expected replace to fail")
	}
	exists, err := store.Exists(ctx)
	if err != nil {
		t.Fatalf("exists error: %v", err)
	}
	if exists {
		t.Fatalf("failed replace must leave the cache empty")
	}
	assertNoStageDirs(t, fs)
}

func TestStoreReplaceCanceledContext(t *testing.T) {
	store := newTestStore(t)
	mustReplace(t, store, Entry{Path: "en/common/ls.md", Data: []byte("ls")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Replace(ctx, []Entry{{Path: "en/common/ls.md", Data: []byte("new")}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	got, err := store.Lookup(context.Background(), "en/common/ls.md")
	if err != nil || string(got) != "ls" {
		t.Fatalf("prior content must survive cancellation: %q %v", string(got), err)
	}
}

func TestStoreRejectsInvalidPaths(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, bad := range []string{"", "/etc/passwd", "../escape", "en/../../escape", `en\linux\tar`, ".", "last_update"} {
		if err := store.Replace(ctx, []Entry{{Path: bad, Data: []byte("x")}}); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("expected ErrInvalidPath for %q, got %v", bad, err)
		}
	}
	exists, _ := store.Exists(ctx)
	if exists {
		t.Fatalf("rejected replace must not create a cache")
	}
}

func TestStoreAgeUsesMetadataTimestamp(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store, err := NewStore(t.TempDir(), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	ctx := context.Background()
	mustReplace(t, store, Entry{Path: "en/common/ls.md", Data: []byte("ls")})

	now = base.Add(90 * time.Minute)
	age, err := store.Age(ctx)
	if err != nil {
		t.Fatalf("age error: %v", err)
	}
	if age != 90*time.Minute {
		t.Fatalf("expected 90m, got %s", age)
	}

	updated, err := store.UpdatedAt(ctx)
	if err != nil {
		t.Fatalf("updated at error: %v", err)
	}
	if !updated.Equal(base) {
		t.Fatalf("expected %v, got %v", base, updated)
	}

	now = base.Add(-time.Hour)
	if age, _ := store.Age(ctx); age != 0 {
		t.Fatalf("clock skew should clamp age to zero, got %s", age)
	}
}

func TestStoreClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustReplace(t, store, Entry{Path: "en/common/ls.md", Data: []byte("ls")})

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear error: %v", err)
	}
	exists, err := store.Exists(ctx)
	if err != nil {
		t.Fatalf("exists error: %v", err)
	}
	if exists {
		t.Fatalf("store should be empty after clear")
	}
	if _, err := os.Stat(filepath.Join(store.Root(), versionsDir)); !os.IsNotExist(err) {
		t.Fatalf("versions directory should be removed, got %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clearing twice should succeed: %v", err)
	}
}

func TestStoreList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustReplace(t, store,
		Entry{Path: "en/common/ls.md", Data: []byte("ls")},
		Entry{Path: "en/common/cp.md", Data: []byte("cp")},
		Entry{Path: "en/linux/apt.md", Data: []byte("apt")},
	)

	names, err := store.List(ctx, "en/common")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if strings.Join(names, ",") != "cp.md,ls.md" {
		t.Fatalf("unexpected names %v", names)
	}

	names, err = store.List(ctx, "de/common")
	if err != nil {
		t.Fatalf("list missing dir error: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("missing dir should list nothing, got %v", names)
	}

	names, err = store.List(ctx, "en")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("sub directories must be skipped, got %v", names)
	}
}

func TestStoreKeepsOnlyCurrentAndPreviousVersions(t *testing.T) {
	now := time.Now()
	store, err := NewStore(t.TempDir(), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	for i := 0; i < 4; i++ {
		mustReplace(t, store, Entry{Path: "en/common/ls.md", Data: []byte{byte('a' + i)}})
		now = now.Add(2 * staleStageAge)
	}

	items, err := os.ReadDir(filepath.Join(store.Root(), versionsDir))
	if err != nil {
		t.Fatalf("read versions error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected current and previous versions, got %d", len(items))
	}
}

func TestStoreKeepsRecentlyFinalizedVersions(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 4; i++ {
		mustReplace(t, store, Entry{Path: "en/common/ls.md", Data: []byte{byte('a' + i)}})
	}

	items, err := os.ReadDir(filepath.Join(store.Root(), versionsDir))
	if err != nil {
		t.Fatalf("read versions error: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("versions younger than the grace period must survive, got %d", len(items))
	}
}

func TestStoreRejectsFileDirectoryCollisions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Replace(ctx, []Entry{
		{Path: "en/linux/tar", Data: []byte("tar")},
		{Path: "en/linux/tar/x.md", Data: []byte("x")},
	})
	if !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		t.Fatalf("conflicting entries are invalid input, not a storage failure: %v", err)
	}
	if exists, _ := store.Exists(ctx); exists {
		t.Fatalf("rejected replace must not create a cache")
	}
}

func TestStoreConcurrentWritersAndReader(t *testing.T) {
	root := t.TempDir()
	const (
		writers    = 4
		iterations = 15
		repeat     = 512
	)
	payload := func(w, i int) string {
		return strings.Repeat(fmt.Sprintf("w%d-%d;", w, i), repeat)
	}

	mustReplace(t, mustStore(t, root), Entry{Path: "en/common/ls.md", Data: []byte(payload(0, -1))})

	var (
		wg       sync.WaitGroup
		failures = make(chan error, writers*iterations+1)
		done     = make(chan struct{})
	)
	for w := 0; w < writers; w++ {
		store := mustStore(t, root)
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if err := store.Replace(context.Background(), []Entry{{Path: "en/common/ls.md", Data: []byte(payload(w, i))}}); err != nil {
					failures <- fmt.Errorf("writer %d replace %d: %w", w, i, err)
					return
				}
			}
		}(w)
	}

	reader := mustStore(t, root)
	var readerWG sync.WaitGroup
	readerWG.Add(1)
	go func() {
		defer readerWG.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			data, err := reader.Lookup(context.Background(), "en/common/ls.md")
			if err != nil {
				failures <- fmt.Errorf("reader lookup: %w", err)
				return
			}
			if !isWholePayload(string(data), repeat) {
				failures <- fmt.Errorf("reader saw partial content of %d bytes", len(data))
				return
			}
		}
	}()

	wg.Wait()
	close(done)
	readerWG.Wait()
	close(failures)
	for err := range failures {
		t.Fatalf("%v", err)
	}

	final, err := reader.Lookup(context.Background(), "en/common/ls.md")
	if err != nil {
		t.Fatalf("final lookup error: %v", err)
	}
	lastWrites := make(map[string]bool, writers)
	for w := 0; w < writers; w++ {
		lastWrites[payload(w, iterations-1)] = true
	}
	if !lastWrites[string(final)] {
		t.Fatalf("final state must be some writer's last replace, got %q", string(final)[:16])
	}
}

func TestStoreIgnoresDanglingPointer(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(filepath.Join(store.Root(), pointerFile), []byte("missing-version\n"), 0o644); err != nil {
		t.Fatalf("write pointer error: %v", err)
	}
	exists, err := store.Exists(context.Background())
	if err != nil {
		t.Fatalf("exists error: %v", err)
	}
	if exists {
		t.Fatalf("dangling pointer should read as empty cache")
	}
}

func TestNewStoreUnwritableRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o555); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	_, err := NewStore(filepath.Join(blocked, "cache"))
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func mustStore(t *testing.T, root string) Store {
	t.Helper()
	store, err := NewStore(root)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

// isWholePayload 判断内容是否由同一个片段重复 n 次组成。
func isWholePayload(data string, n int) bool {
	chunk, _, found := strings.Cut(data, ";")
	if !found {
		return false
	}
	return data == strings.Repeat(chunk+";", n)
}

func mustReplace(t *testing.T, store Store, entries ...Entry) {
	t.Helper()
	if err := store.Replace(context.Background(), entries); err != nil {
		t.Fatalf("replace error: %v", err)
	}
}

func assertNoStageDirs(t *testing.T, fs *fileStore) {
	t.Helper()
	items, err := os.ReadDir(filepath.Join(fs.root, versionsDir))
	if err != nil {
		t.Fatalf("read versions error: %v", err)
	}
	for _, item := range items {
		if strings.HasPrefix(item.Name(), stagePrefix) {
			t.Fatalf("stage directory %s left behind", item.Name())
		}
	}
}
