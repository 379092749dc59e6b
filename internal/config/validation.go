package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pagecache/tldr/internal/page"
)

// Validate 针对语义级别做进一步校验，防止非法配置进入查询或更新流程。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别")
	}
	if strings.TrimSpace(g.CacheDir) == "" {
		return newFieldError("Global.CacheDir", "不能为空")
	}
	if g.MaxAge.DurationValue() <= 0 {
		return newFieldError("Global.MaxAge", "必须大于 0")
	}
	if _, err := page.ParseLanguage(g.Language); err != nil {
		return newFieldError("Global.Language", err.Error())
	}
	if _, err := page.ParsePlatform(g.Platform); err != nil {
		return newFieldError("Global.Platform", err.Error())
	}
	switch g.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return newFieldError("Global.Color", "仅支持 auto/always/never")
	}

	s := c.Source
	if err := validateUpstream(s.ArchiveURL); err != nil {
		return fmt.Errorf("%s: %w", sourceField("ArchiveURL"), err)
	}
	if s.Proxy != "" {
		if err := validateUpstream(s.Proxy); err != nil {
			return fmt.Errorf("%s: %w", sourceField("Proxy"), err)
		}
	}
	if (s.Username == "") != (s.Password == "") {
		return newFieldError(sourceField("Username/Password"), "必须同时提供或同时留空")
	}
	if s.UpdateTimeout.DurationValue() <= 0 {
		return newFieldError(sourceField("UpdateTimeout"), "必须大于 0")
	}
	if s.MaxRetries < 0 {
		return newFieldError(sourceField("MaxRetries"), "不能为负数")
	}
	if s.MaxArchiveSize <= 0 {
		return newFieldError(sourceField("MaxArchiveSize"), "必须大于 0")
	}
	if s.MaxPageSize <= 0 {
		return newFieldError(sourceField("MaxPageSize"), "必须大于 0")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}

// ResolvedLanguage 返回规范化后的默认查询语言（假定 Validate 已经通过）。
func (g GlobalConfig) ResolvedLanguage() page.Language {
	lang, err := page.ParseLanguage(g.Language)
	if err != nil {
		return page.DefaultLanguage
	}
	return lang
}

// ResolvedPlatform 返回默认查询平台（假定 Validate 已经通过）。
func (g GlobalConfig) ResolvedPlatform() page.Platform {
	p, err := page.ParsePlatform(g.Platform)
	if err != nil {
		return page.PlatformCurrent
	}
	return p
}
