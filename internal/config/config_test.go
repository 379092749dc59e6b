package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pagecache/tldr/internal/page"
)

func TestLoadValidFile(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.MaxAge.DurationValue() != 48*time.Hour {
		t.Fatalf("MaxAge 应解析为 48h，得到 %s", cfg.Global.MaxAge.DurationValue())
	}
	if cfg.Source.UpdateTimeout.DurationValue() != 15*time.Second {
		t.Fatalf("整数 UpdateTimeout 应按秒解析，得到 %s", cfg.Source.UpdateTimeout.DurationValue())
	}
	if !filepath.IsAbs(cfg.Global.CacheDir) {
		t.Fatalf("CacheDir 应被转换为绝对路径: %s", cfg.Global.CacheDir)
	}
	if cfg.Global.ResolvedLanguage() != "de" {
		t.Fatalf("Language 应为 de，得到 %s", cfg.Global.ResolvedLanguage())
	}
	if cfg.Global.ResolvedPlatform() != page.PlatformLinux {
		t.Fatalf("Platform 应为 linux，得到 %s", cfg.Global.ResolvedPlatform())
	}
	if cfg.Source.MaxRetries != 1 {
		t.Fatalf("MaxRetries 应为 1，得到 %d", cfg.Source.MaxRetries)
	}
	if cfg.Source.MaxPageSize != 1024*1024 {
		t.Fatalf("MaxPageSize 应填充默认值，得到 %d", cfg.Source.MaxPageSize)
	}
	if cfg.Source.AuthMode() != "anonymous" {
		t.Fatalf("未配置凭证时应为 anonymous")
	}
}

func TestLoadRejectsBadSource(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("不合法的上游地址应返回错误")
	}
}

func TestLoadRequiresFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("Load 在文件缺失时应报错")
	}
}

func TestLoadOptionalUsesDefaults(t *testing.T) {
	clearLocaleEnv(t)
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadOptional 不应失败: %v", err)
	}
	if cfg.Source.ArchiveURL != DefaultArchiveURL {
		t.Fatalf("ArchiveURL 应使用默认值，得到 %s", cfg.Source.ArchiveURL)
	}
	if cfg.Global.MaxAge.DurationValue() != 720*time.Hour {
		t.Fatalf("MaxAge 默认应为 720h，得到 %s", cfg.Global.MaxAge.DurationValue())
	}
	if cfg.Global.ResolvedLanguage() != page.DefaultLanguage {
		t.Fatalf("无 LANG 时应回退默认语言，得到 %s", cfg.Global.ResolvedLanguage())
	}
	if cfg.Global.ResolvedPlatform() != page.PlatformCurrent {
		t.Fatalf("Platform 默认应为 current")
	}
	if cfg.Global.Color != ColorAuto || cfg.Global.LogLevel != "warn" {
		t.Fatalf("Color/LogLevel 默认值不正确: %s/%s", cfg.Global.Color, cfg.Global.LogLevel)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearLocaleEnv(t)
	dir := t.TempDir()
	t.Setenv("TLDR_CACHEDIR", dir)
	t.Setenv("TLDR_SOURCE_ARCHIVEURL", "https://mirror.example.com/pages.zip")

	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadOptional 不应失败: %v", err)
	}
	if cfg.Global.CacheDir != dir {
		t.Fatalf("环境变量应覆盖 CacheDir，得到 %s", cfg.Global.CacheDir)
	}
	if cfg.Source.ArchiveURL != "https://mirror.example.com/pages.zip" {
		t.Fatalf("环境变量应覆盖 ArchiveURL，得到 %s", cfg.Source.ArchiveURL)
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	path := writeTempConfig(t, `
MaxAge = "boom"
Language = "en"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestValidateRequiresCredentialPairs(t *testing.T) {
	cfg := validConfig()
	cfg.Source.Username = "foo"
	err := cfg.Validate()
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("仅提供 Username 时应返回 FieldError，得到 %v", err)
	}
	if fieldErr.Field != "Source.Username/Password" {
		t.Fatalf("字段路径不正确: %s", fieldErr.Field)
	}

	cfg.Source.Password = "bar"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("完整凭证应通过校验: %v", err)
	}
	if cfg.Source.AuthMode() != "credentialed" {
		t.Fatalf("完整凭证时应为 credentialed")
	}
}

func TestValidateFields(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Global.LogLevel = "loud" }},
		{"empty cache dir", func(c *Config) { c.Global.CacheDir = " " }},
		{"zero max age", func(c *Config) { c.Global.MaxAge = 0 }},
		{"bad language", func(c *Config) { c.Global.Language = "not a language!" }},
		{"bad platform", func(c *Config) { c.Global.Platform = "beos" }},
		{"bad color", func(c *Config) { c.Global.Color = "rainbow" }},
		{"bad proxy", func(c *Config) { c.Source.Proxy = "socks://" }},
		{"zero timeout", func(c *Config) { c.Source.UpdateTimeout = 0 }},
		{"negative retries", func(c *Config) { c.Source.MaxRetries = -1 }},
		{"zero archive size", func(c *Config) { c.Source.MaxArchiveSize = 0 }},
		{"zero page size", func(c *Config) { c.Source.MaxPageSize = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	env := map[string]string{
		"LANGUAGE": "",
		"LC_ALL":   "",
		"LANG":     "pt_BR.UTF-8",
	}
	if got := detectLanguage(func(k string) string { return env[k] }); got != "pt_BR" {
		t.Fatalf("应从 LANG 推导 pt_BR，得到 %s", got)
	}

	env["LANGUAGE"] = "fr:de"
	if got := detectLanguage(func(k string) string { return env[k] }); got != "fr" {
		t.Fatalf("LANGUAGE 优先级最高，得到 %s", got)
	}

	if got := detectLanguage(func(string) string { return "" }); got != "en" {
		t.Fatalf("无环境变量时应为 en，得到 %s", got)
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			LogLevel: "info",
			CacheDir: "./cache",
			MaxAge:   Duration(time.Hour),
			Language: "en",
			Platform: "current",
			Color:    ColorAuto,
		},
		Source: SourceConfig{
			ArchiveURL:     DefaultArchiveURL,
			UpdateTimeout:  Duration(time.Second),
			MaxRetries:     1,
			MaxArchiveSize: 1024,
			MaxPageSize:    1024,
		},
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	testCases := []struct {
		raw  string
		want time.Duration
	}{
		{"", 0},
		{"90s", 90 * time.Second},
		{"15", 15 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{" 2h ", 2 * time.Hour},
	}
	for _, tc := range testCases {
		var d Duration
		if err := d.UnmarshalText([]byte(tc.raw)); err != nil {
			t.Fatalf("解析 %q 失败: %v", tc.raw, err)
		}
		if d.DurationValue() != tc.want {
			t.Fatalf("解析 %q 期望 %s，得到 %s", tc.raw, tc.want, d.DurationValue())
		}
	}

	var d Duration
	if err := d.UnmarshalText([]byte("boom")); err == nil {
		t.Fatalf("无效 Duration 应返回错误")
	}
}

func TestLoadParsesFractionalSeconds(t *testing.T) {
	path := writeTempConfig(t, `
Language = "en"

[Source]
UpdateTimeout = "2.5"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Source.UpdateTimeout.DurationValue() != 2500*time.Millisecond {
		t.Fatalf("UpdateTimeout 应为 2.5s，得到 %s", cfg.Source.UpdateTimeout.DurationValue())
	}
}
