package updater

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pagecache/tldr/internal/cache"
	"github.com/pagecache/tldr/internal/logging"
	"github.com/pagecache/tldr/internal/page"
	"github.com/pagecache/tldr/internal/resolver"
)

// Query 是 CLI 层交给核心的一次查询请求。
type Query struct {
	Command     string
	Platform    page.Platform
	Language    page.Language
	ForceUpdate bool
	MaxAge      time.Duration
}

// Result 是一次成功查询的结果。UpdateErr 记录强制更新失败但继续使用旧缓存的情况。
type Result struct {
	Match     *resolver.Match
	Stale     bool
	Age       time.Duration
	Report    *Report
	UpdateErr error
}

// Service 串联 Policy → (可选 Updater) → Resolver。
type Service struct {
	store    cache.Store
	policy   *Policy
	updater  *Updater
	resolver *resolver.Resolver
	logger   *logrus.Logger
}

// NewService 构造查询服务；updater 可以为 nil，此时 ForceUpdate 返回错误。
func NewService(store cache.Store, updater *Updater, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		store:    store,
		policy:   NewPolicy(store),
		updater:  updater,
		resolver: resolver.New(store),
		logger:   logger,
	}
}

// errNoUpdater 表示服务未配置更新器却被要求更新。
var errNoUpdater = errors.New("updater not configured")

// Update 执行一次显式更新。
func (s *Service) Update(ctx context.Context) (*Report, error) {
	if s.updater == nil {
		return nil, errNoUpdater
	}
	return s.updater.Update(ctx)
}

// Lookup 查询单个页面。普通查询从不访问网络；ForceUpdate 时先更新，
// 更新失败（UpdateError）仅记录警告并继续使用已有缓存。强制更新之后的任何错误
// 都与非空的 Result 一同返回；若此时缓存为空，错误同时包含 UpdateErr 与 cache.ErrEmpty。
func (s *Service) Lookup(ctx context.Context, q Query) (*Result, error) {
	fields := logging.LookupFields(q.Command, q.Platform.String(), q.Language.String())
	result := &Result{}

	if q.ForceUpdate {
		report, err := s.Update(ctx)
		switch {
		case err == nil:
			result.Report = report
		case errors.Is(err, ErrUpdateFailed):
			s.logger.WithFields(fields).WithError(err).Warn("update_failed_serving_existing_cache")
			result.UpdateErr = err
		default:
			return nil, err
		}
	}

	if q.MaxAge > 0 {
		stale, err := s.policy.ShouldWarnStale(ctx, q.MaxAge)
		if err != nil {
			return result, result.joinUpdateErr(err)
		}
		result.Stale = stale
	}
	age, err := s.store.Age(ctx)
	if err != nil {
		return result, result.joinUpdateErr(err)
	}
	result.Age = age
	if result.Stale {
		s.logger.WithFields(fields).WithField("age", age.String()).Warn("cache_stale")
	}

	match, err := s.resolver.Resolve(ctx, resolver.Query{
		Command:  q.Command,
		Platform: q.Platform,
		Language: q.Language,
	})
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Debug("lookup_miss")
		return result, result.joinUpdateErr(err)
	}
	s.logger.WithFields(fields).WithFields(logrus.Fields{
		"path": match.Path,
	}).Debug("lookup_hit")
	result.Match = match
	return result, nil
}

// List 返回平台在语言回退链上可用的全部命令。
func (s *Service) List(ctx context.Context, platform page.Platform, language page.Language) ([]string, error) {
	return s.resolver.List(ctx, platform, language)
}

// Suggest 返回与未命中命令相近的候选。
func (s *Service) Suggest(ctx context.Context, q Query, limit int) ([]string, error) {
	return s.resolver.Suggest(ctx, resolver.Query{
		Command:  q.Command,
		Platform: q.Platform,
		Language: q.Language,
	}, limit)
}

// Status 返回缓存状态摘要。
func (s *Service) Status(ctx context.Context, maxAge time.Duration) (Status, error) {
	return s.policy.Status(ctx, maxAge)
}

// Clear 清空缓存。
func (s *Service) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// joinUpdateErr 在缓存为空时把强制更新的失败原因并入错误，调用方据此区分“从未更新”与“更新失败”。
func (r *Result) joinUpdateErr(err error) error {
	if r.UpdateErr != nil && errors.Is(err, cache.ErrEmpty) {
		return errors.Join(r.UpdateErr, err)
	}
	return err
}
