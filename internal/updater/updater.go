package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pagecache/tldr/internal/archive"
	"github.com/pagecache/tldr/internal/cache"
	"github.com/pagecache/tldr/internal/logging"
)

// ErrUpdateFailed 是所有可恢复更新失败的公共哨兵，errors.Is 可直接判断。
var ErrUpdateFailed = errors.New("update failed")

// UpdateError 描述下载或解包阶段的失败；此时旧缓存保持不变。
type UpdateError struct {
	Stage string
	Err   error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update failed during %s: %v", e.Stage, e.Err)
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrUpdateFailed) 对所有 UpdateError 成立。
func (e *UpdateError) Is(target error) bool {
	return target == ErrUpdateFailed
}

// ArchiveFetcher 是归档下载边界：一次 GET，返回完整字节。
type ArchiveFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ArchiveUnpacker 把归档字节转换为缓存条目，要么全部成功要么整体失败。
type ArchiveUnpacker interface {
	Unpack(data []byte) (*archive.Result, error)
}

// Options 汇总 Updater 的依赖与参数。
type Options struct {
	Fetcher    ArchiveFetcher
	Unpacker   ArchiveUnpacker
	Store      cache.Store
	ArchiveURL string
	AuthMode   string
	Timeout    time.Duration
	Logger     *logrus.Logger
}

// Updater 组合 fetch → unpack → replace。
type Updater struct {
	opts Options
}

// Report 是一次成功更新的摘要。
type Report struct {
	UpdateID string
	Pages    int
	Skipped  int
	Bytes    int
	Duration time.Duration
}

// NewUpdater 校验依赖并填充默认值。
func NewUpdater(opts Options) (*Updater, error) {
	if opts.Fetcher == nil || opts.Unpacker == nil || opts.Store == nil {
		return nil, errors.New("updater requires fetcher, unpacker and store")
	}
	if opts.ArchiveURL == "" {
		return nil, errors.New("archive url required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.AuthMode == "" {
		opts.AuthMode = "anonymous"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Updater{opts: opts}, nil
}

// Update 下载并安装新的归档。下载受 Timeout 约束；下载或解包失败返回 *UpdateError，
// 写入失败（cache.StorageError）原样返回。
func (u *Updater) Update(ctx context.Context) (*Report, error) {
	started := time.Now()
	updateID := uuid.NewString()
	logger := u.opts.Logger.WithFields(logging.UpdateFields(updateID, u.opts.ArchiveURL, u.opts.AuthMode))

	fetchCtx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	data, err := u.opts.Fetcher.Fetch(fetchCtx, u.opts.ArchiveURL)
	cancel()
	if err != nil {
		logger.WithError(err).Warn("update_fetch_failed")
		return nil, &UpdateError{Stage: "fetch", Err: err}
	}

	result, err := u.opts.Unpacker.Unpack(data)
	if err != nil {
		logger.WithError(err).WithField("bytes", len(data)).Warn("update_unpack_failed")
		return nil, &UpdateError{Stage: "unpack", Err: err}
	}

	if err := u.opts.Store.Replace(ctx, result.Entries); err != nil {
		logger.WithError(err).Error("update_replace_failed")
		return nil, err
	}

	report := &Report{
		UpdateID: updateID,
		Pages:    len(result.Entries),
		Skipped:  len(result.Skipped),
		Bytes:    len(data),
		Duration: time.Since(started),
	}
	logger.WithFields(logrus.Fields{
		"pages":       report.Pages,
		"skipped":     report.Skipped,
		"bytes":       report.Bytes,
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("update_completed")
	return report, nil
}
