// Package resolver maps a page query (command, platform hint, language hint)
// onto the cache layout. Candidates are probed in a fixed order: every
// platform fallback at the requested language is tried before moving to the
// next language in the fallback chain, so a localized platform page wins over
// a default-language common page.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/pagecache/tldr/internal/cache"
	"github.com/pagecache/tldr/internal/page"
)

var (
	// ErrPageNotFound 表示缓存存在但没有任何候选页面，这是正常的查询结果。
	ErrPageNotFound = errors.New("page not found")

	// ErrInvalidCommand 表示命令名为空或包含路径字符。
	ErrInvalidCommand = errors.New("invalid command name")
)

const pageExt = ".md"

// Query 描述一次查询；Platform 为空等同 current，Language 为空等同默认语言。
type Query struct {
	Command  string
	Platform page.Platform
	Language page.Language
}

// Candidate 是候选列表中的一个 (语言, 平台) 组合。
type Candidate struct {
	Language page.Language
	Platform page.Platform
}

// Match 是命中的页面及其来源位置。
type Match struct {
	Command  string
	Language page.Language
	Platform page.Platform
	Path     string
	Content  []byte
}

// Resolver 只读访问 cache.Store，不产生任何副作用。
type Resolver struct {
	store cache.Store
}

// New 构造基于 store 的解析器。
func New(store cache.Store) *Resolver {
	return &Resolver{store: store}
}

// Candidates 返回探测顺序：外层语言回退，内层平台回退。
func Candidates(platform page.Platform, language page.Language) []Candidate {
	var out []Candidate
	seen := make(map[Candidate]struct{})
	for _, lang := range language.Fallbacks() {
		for _, p := range platform.Fallbacks() {
			c := Candidate{Language: lang, Platform: p}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// NormalizeCommand 保留大小写，仅把空白分隔的多词命令连接为 a-b 形式。
func NormalizeCommand(raw string) (string, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty", ErrInvalidCommand)
	}
	command := strings.Join(fields, "-")
	if strings.ContainsAny(command, `/\`) || strings.HasPrefix(command, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, raw)
	}
	return command, nil
}

// Resolve 返回第一个存在的候选页面。缓存为空时返回 cache.ErrEmpty，
// 全部候选缺失时返回 ErrPageNotFound，文件系统错误原样返回。
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Match, error) {
	command, err := NormalizeCommand(q.Command)
	if err != nil {
		return nil, err
	}

	exists, err := r.store.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, cache.ErrEmpty
	}

	for _, c := range Candidates(q.Platform, q.Language) {
		for _, rel := range candidatePaths(c, command) {
			content, err := r.store.Lookup(ctx, rel)
			switch {
			case err == nil:
				return &Match{
					Command:  command,
					Language: c.Language,
					Platform: c.Platform,
					Path:     rel,
					Content:  content,
				}, nil
			case errors.Is(err, cache.ErrNotFound):
				continue
			default:
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPageNotFound, command)
}

// List 返回指定平台（含 common）在语言回退链上可用的全部命令，去重排序。
func (r *Resolver) List(ctx context.Context, platform page.Platform, language page.Language) ([]string, error) {
	exists, err := r.store.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, cache.ErrEmpty
	}

	seen := make(map[string]struct{})
	for _, c := range Candidates(platform, language) {
		names, err := r.store.List(ctx, path.Join(string(c.Language), string(c.Platform)))
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			seen[strings.TrimSuffix(name, pageExt)] = struct{}{}
		}
	}

	commands := make([]string, 0, len(seen))
	for name := range seen {
		commands = append(commands, name)
	}
	sort.Strings(commands)
	return commands, nil
}

// Suggest 在未命中时给出相近的命令名，按编辑距离排序，最多 limit 个。
func (r *Resolver) Suggest(ctx context.Context, q Query, limit int) ([]string, error) {
	command, err := NormalizeCommand(q.Command)
	if err != nil {
		return nil, err
	}
	commands, err := r.List(ctx, q.Platform, q.Language)
	if err != nil {
		return nil, err
	}
	return rankSuggestions(command, commands, limit), nil
}

func rankSuggestions(command string, commands []string, limit int) []string {
	type scored struct {
		name     string
		distance int
	}

	maxDistance := len(command) / 3
	if maxDistance < 2 {
		maxDistance = 2
	}

	var matches []scored
	for _, name := range commands {
		if name == command {
			continue
		}
		distance := fuzzy.LevenshteinDistance(strings.ToLower(command), strings.ToLower(name))
		if distance <= maxDistance || fuzzy.MatchFold(command, name) {
			matches = append(matches, scored{name: name, distance: distance})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].name < matches[j].name
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}

// candidatePaths 优先带 .md 扩展名的文件，兼容无扩展名的条目。
func candidatePaths(c Candidate, command string) []string {
	base := path.Join(string(c.Language), string(c.Platform), command)
	return []string{base + pageExt, base}
}
