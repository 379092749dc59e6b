package updater

import (
	"context"
	"errors"
	"time"

	"github.com/pagecache/tldr/internal/cache"
)

// Policy 基于缓存年龄给出过期提示，只做建议，不阻止查询。
type Policy struct {
	store cache.Store
}

// NewPolicy 构造基于 store 的过期策略。
func NewPolicy(store cache.Store) *Policy {
	return &Policy{store: store}
}

// Status 汇总缓存当前状态。
type Status struct {
	Exists    bool
	UpdatedAt time.Time
	Age       time.Duration
	Stale     bool
}

// ShouldWarnStale 在 age > maxAge 时返回 true；缓存不存在时返回 cache.ErrEmpty。
func (p *Policy) ShouldWarnStale(ctx context.Context, maxAge time.Duration) (bool, error) {
	age, err := p.store.Age(ctx)
	if err != nil {
		return false, err
	}
	return age > maxAge, nil
}

// Status 返回缓存是否存在、更新时间、年龄与是否过期。缓存为空不是错误。
func (p *Policy) Status(ctx context.Context, maxAge time.Duration) (Status, error) {
	updated, err := p.store.UpdatedAt(ctx)
	if errors.Is(err, cache.ErrEmpty) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	age, err := p.store.Age(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Exists:    true,
		UpdatedAt: updated,
		Age:       age,
		Stale:     age > maxAge,
	}, nil
}
