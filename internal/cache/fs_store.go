package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	pointerFile  = "CURRENT"
	versionsDir  = "versions"
	metadataFile = "last_update"
	stagePrefix  = ".stage-"

	// staleStageAge 之后的暂存目录视为崩溃遗留；更早于上一版本的版本目录也需超过该时长才会被清理。
	staleStageAge = time.Hour
)

// NewStore 以 root 为根目录构建页面缓存，root 由调用方显式注入。
func NewStore(root string, opts ...Option) (Store, error) {
	if root == "" {
		return nil, errors.New("cache root required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, storageError("create", abs, err)
	}

	s := &fileStore{
		root:       abs,
		now:        time.Now,
		writeEntry: writeFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// fileStore 通过 CURRENT 指针在多个完整版本之间切换，跨进程依赖 rename 的原子性。
type fileStore struct {
	root string
	now  func() time.Time

	// writeEntry 写入单个暂存文件，测试中可替换以模拟中途失败。
	writeEntry func(path string, data []byte) error
}

func (s *fileStore) Root() string {
	return s.root
}

func (s *fileStore) Exists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	version, err := s.activeVersion()
	if err != nil {
		return false, err
	}
	return version != "", nil
}

func (s *fileStore) UpdatedAt(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	version, err := s.activeVersion()
	if err != nil {
		return time.Time{}, err
	}
	if version == "" {
		return time.Time{}, ErrEmpty
	}

	metaPath := filepath.Join(s.versionPath(version), metadataFile)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return time.Time{}, storageError("read metadata", metaPath, err)
	}
	seconds, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return time.Time{}, storageError("parse metadata", metaPath, err)
	}
	return time.Unix(seconds, 0), nil
}

func (s *fileStore) Age(ctx context.Context) (time.Duration, error) {
	updated, err := s.UpdatedAt(ctx)
	if err != nil {
		return 0, err
	}
	age := s.now().Sub(updated)
	if age < 0 {
		return 0, nil
	}
	return age, nil
}

func (s *fileStore) Replace(ctx context.Context, entries []Entry) error {
	cleaned := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		rel, err := cleanRelPath(entry.Path)
		if err != nil {
			return err
		}
		if rel == metadataFile {
			return fmt.Errorf("%w: %s is reserved", ErrInvalidPath, rel)
		}
		cleaned = append(cleaned, Entry{Path: rel, Data: entry.Data})
	}
	if err := checkPrefixCollisions(cleaned); err != nil {
		return err
	}

	base := filepath.Join(s.root, versionsDir)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return storageError("create", base, err)
	}

	previous, err := s.activeVersion()
	if err != nil {
		return err
	}

	stage, err := os.MkdirTemp(base, stagePrefix)
	if err != nil {
		return storageError("stage", base, err)
	}
	// 在 CURRENT 切换之前的任何失败都只需要删除暂存目录。
	pending := stage
	defer func() {
		if pending != "" {
			os.RemoveAll(pending)
		}
	}()

	for _, entry := range cleaned {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(stage, filepath.FromSlash(entry.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return storageError("stage", target, err)
		}
		if err := s.writeEntry(target, entry.Data); err != nil {
			return storageError("stage", target, err)
		}
	}

	updated := s.now()
	metaPath := filepath.Join(stage, metadataFile)
	if err := s.writeEntry(metaPath, []byte(strconv.FormatInt(updated.Unix(), 10)+"\n")); err != nil {
		return storageError("write metadata", metaPath, err)
	}

	version := newVersionName(updated)
	final := s.versionPath(version)
	if err := os.Rename(stage, final); err != nil {
		return storageError("finalize", final, err)
	}
	pending = final

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.swapPointer(version); err != nil {
		return err
	}
	pending = ""

	s.collectGarbage(version, previous)
	return nil
}

func (s *fileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pointer := filepath.Join(s.root, pointerFile)
	if err := os.Remove(pointer); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageError("clear", pointer, err)
	}
	base := filepath.Join(s.root, versionsDir)
	if err := os.RemoveAll(base); err != nil {
		return storageError("clear", base, err)
	}
	return nil
}

func (s *fileStore) Lookup(ctx context.Context, rel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleaned, err := cleanRelPath(rel)
	if err != nil {
		return nil, err
	}
	version, err := s.activeVersion()
	if err != nil {
		return nil, err
	}
	if version == "" {
		return nil, ErrEmpty
	}

	filePath := filepath.Join(s.versionPath(version), filepath.FromSlash(cleaned))
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, storageError("stat", filePath, err)
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, storageError("read", filePath, err)
	}
	return data, nil
}

func (s *fileStore) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleaned, err := cleanRelPath(dir)
	if err != nil {
		return nil, err
	}
	version, err := s.activeVersion()
	if err != nil {
		return nil, err
	}
	if version == "" {
		return nil, ErrEmpty
	}

	dirPath := filepath.Join(s.versionPath(version), filepath.FromSlash(cleaned))
	items, err := os.ReadDir(dirPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, storageError("list", dirPath, err)
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		names = append(names, item.Name())
	}
	sort.Strings(names)
	return names, nil
}

// activeVersion 读取 CURRENT；指针缺失或指向不存在的目录时返回空字符串。
func (s *fileStore) activeVersion() (string, error) {
	pointer := filepath.Join(s.root, pointerFile)
	raw, err := os.ReadFile(pointer)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", storageError("read pointer", pointer, err)
	}

	version := strings.TrimSpace(string(raw))
	if version == "" || strings.ContainsAny(version, `/\`) || strings.HasPrefix(version, ".") {
		return "", nil
	}
	info, err := os.Stat(s.versionPath(version))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", storageError("stat", s.versionPath(version), err)
	}
	if !info.IsDir() {
		return "", nil
	}
	return version, nil
}

// swapPointer 先写临时文件再 rename 覆盖 CURRENT，保证指针要么是旧值要么是新值。
func (s *fileStore) swapPointer(version string) error {
	tempFile, err := os.CreateTemp(s.root, ".current-*")
	if err != nil {
		return storageError("swap", s.root, err)
	}
	tempName := tempFile.Name()

	_, err = tempFile.WriteString(version + "\n")
	if err == nil {
		err = tempFile.Sync()
	}
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return storageError("swap", tempName, err)
	}

	pointer := filepath.Join(s.root, pointerFile)
	if err := os.Rename(tempName, pointer); err != nil {
		os.Remove(tempName)
		return storageError("swap", pointer, err)
	}
	return nil
}

// collectGarbage 清理比上一版本更旧、且修改时间早于 staleStageAge 的版本目录以及崩溃遗留的暂存目录。
// 当前版本与上一版本都会保留，正在读取上一版本的并发进程不受影响；
// 比上一版本更新的目录可能属于尚未切换指针的并发写入者，同样保留。
func (s *fileStore) collectGarbage(current, previous string) {
	base := filepath.Join(s.root, versionsDir)
	items, err := os.ReadDir(base)
	if err != nil {
		return
	}

	floor, ok := versionStamp(previous)
	if !ok {
		floor, ok = versionStamp(current)
		if !ok {
			return
		}
	}

	for _, item := range items {
		name := item.Name()
		if name == current || name == previous {
			continue
		}
		if strings.HasPrefix(name, stagePrefix) {
			if info, err := item.Info(); err == nil && s.now().Sub(info.ModTime()) > staleStageAge {
				os.RemoveAll(filepath.Join(base, name))
			}
			continue
		}
		stamp, ok := versionStamp(name)
		if !ok || stamp >= floor {
			continue
		}
		// 刚完成 rename 的版本可能属于尚未切换 CURRENT 的并发写入者。
		if info, err := item.Info(); err != nil || s.now().Sub(info.ModTime()) <= staleStageAge {
			continue
		}
		os.RemoveAll(filepath.Join(base, name))
	}
}

func (s *fileStore) versionPath(version string) string {
	return filepath.Join(s.root, versionsDir, version)
}

// newVersionName 生成 <unixnano>-<uuid> 形式的目录名，前缀用于排序与清理。
func newVersionName(at time.Time) string {
	return fmt.Sprintf("%d-%s", at.UnixNano(), uuid.NewString())
}

func versionStamp(name string) (int64, bool) {
	prefix, _, found := strings.Cut(name, "-")
	if !found {
		return 0, false
	}
	stamp, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	return stamp, true
}

// cleanRelPath 规范化 / 分隔的相对路径，拒绝空路径、绝对路径与越界片段。
func cleanRelPath(raw string) (string, error) {
	if raw == "" || strings.HasPrefix(raw, "/") || strings.Contains(raw, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
	}
	for _, segment := range strings.Split(raw, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
		}
	}
	cleaned := path.Clean(raw)
	if cleaned == "." || filepath.IsAbs(cleaned) || filepath.VolumeName(cleaned) != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
	}
	return cleaned, nil
}

// checkPrefixCollisions 拒绝同一路径既作为文件又作为目录出现的条目组合，例如 a/b 与 a/b/c.md。
func checkPrefixCollisions(entries []Entry) error {
	files := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		files[entry.Path] = struct{}{}
	}
	for _, entry := range entries {
		for dir := path.Dir(entry.Path); dir != "."; dir = path.Dir(dir) {
			if _, ok := files[dir]; ok {
				return fmt.Errorf("%w: %q conflicts with %q", ErrInvalidPath, dir, entry.Path)
			}
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
