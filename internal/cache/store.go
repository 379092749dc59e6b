package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store 负责管理页面缓存的磁盘布局：
//
//	<root>/CURRENT                        # 当前生效的版本目录名
//	<root>/versions/<version>/last_update # Unix 秒，十进制文本
//	<root>/versions/<version>/<lang>/<platform>/<command>.md
//
// 所有读取都经由 CURRENT 指向的版本目录完成。
type Store interface {
	// Root 返回缓存根目录的绝对路径。
	Root() string

	// Exists 报告是否存在一次成功写入的缓存。
	Exists(ctx context.Context) (bool, error)

	// UpdatedAt 返回当前版本的写入时间；缓存不存在时返回 ErrEmpty。
	UpdatedAt(ctx context.Context) (time.Time, error)

	// Age 返回距离上次成功更新的时长；缓存不存在时返回 ErrEmpty。
	Age(ctx context.Context) (time.Duration, error)

	// Replace 以“暂存目录 + 单次 rename”的方式整体替换缓存内容并刷新时间戳。
	// 失败时旧版本保持完整可读。
	Replace(ctx context.Context, entries []Entry) error

	// Clear 删除全部缓存内容与元数据，之后 Exists 返回 false。
	Clear(ctx context.Context) error

	// Lookup 读取相对路径对应的文件内容，不存在时返回 ErrNotFound。
	Lookup(ctx context.Context, rel string) ([]byte, error)

	// List 返回当前版本中某个目录下的文件名（不含子目录），目录不存在时返回空列表。
	List(ctx context.Context, dir string) ([]string, error)
}

// Entry 是一次替换中的单个文件，Path 使用 / 分隔的相对路径。
type Entry struct {
	Path string
	Data []byte
}

var (
	// ErrNotFound 表示当前版本中不存在该文件。
	ErrNotFound = errors.New("cache entry not found")

	// ErrEmpty 表示缓存从未成功写入（或已被清除），需要先执行更新。
	ErrEmpty = errors.New("cache is empty")

	// ErrInvalidPath 表示条目路径为空、绝对路径或包含 .. 等越界片段。
	ErrInvalidPath = errors.New("invalid cache path")
)

// StorageError 包装底层文件系统错误（权限不足、磁盘写满等），调用方无法通过重试修复。
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StorageError
	if errors.As(err, &existing) {
		return err
	}
	return &StorageError{Op: op, Path: path, Err: err}
}

// Option 调整 Store 的可选行为，主要用于测试注入时钟。
type Option func(*fileStore)

// WithClock 替换默认的 time.Now。
func WithClock(now func() time.Time) Option {
	return func(s *fileStore) {
		if now != nil {
			s.now = now
		}
	}
}
