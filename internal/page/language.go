package page

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Language 是 tldr 目录使用的语言标签，例如 en、de、pt_BR。
type Language string

// DefaultLanguage 对应上游的 pages/ 目录，是所有语言的最终回退。
const DefaultLanguage Language = "en"

// ParseLanguage 将 LANG 风格或 BCP 47 风格的输入规范化为目录标签。
// 空值、C、POSIX 视为默认语言；编码后缀（.UTF-8）与修饰符（@euro）会被忽略。
func ParseLanguage(raw string) (Language, error) {
	value := strings.TrimSpace(raw)
	if idx := strings.IndexAny(value, ".@"); idx >= 0 {
		value = value[:idx]
	}
	switch strings.ToUpper(value) {
	case "", "C", "POSIX", "DEFAULT":
		return DefaultLanguage, nil
	}

	// Raw 只做语法规范化，保留 tl、iw、mo 等上游目录使用的原始代码。
	tag, err := language.Raw.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", raw, err)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", fmt.Errorf("invalid language %q", raw)
	}
	if region, conf := tag.Region(); conf == language.Exact {
		return Language(base.String() + "_" + region.String()), nil
	}
	return Language(base.String()), nil
}

// IsDefault 报告当前语言是否为默认语言。
func (l Language) IsDefault() bool {
	return l == "" || l == DefaultLanguage
}

// Base 返回去掉地区后缀的基础语言，例如 pt_BR → pt。
func (l Language) Base() Language {
	if idx := strings.IndexByte(string(l), '_'); idx > 0 {
		return l[:idx]
	}
	return l
}

// Fallbacks 返回语言回退链：请求语言 → 基础语言 → 默认语言，去重后输出。
func (l Language) Fallbacks() []Language {
	if l.IsDefault() {
		return []Language{DefaultLanguage}
	}
	chain := []Language{l}
	if base := l.Base(); base != l && !base.IsDefault() {
		chain = append(chain, base)
	}
	return append(chain, DefaultLanguage)
}

func (l Language) String() string {
	if l == "" {
		return string(DefaultLanguage)
	}
	return string(l)
}
