package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容秒数（整数或小数）与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使配置可以识别诸如 "30s"、"5m"、"15" 或 "1.5" 等写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述本地行为：缓存目录、查询默认值与日志输出。
type GlobalConfig struct {
	LogLevel      string   `mapstructure:"LogLevel"`
	LogFilePath   string   `mapstructure:"LogFilePath"`
	LogMaxSize    int      `mapstructure:"LogMaxSize"`
	LogMaxBackups int      `mapstructure:"LogMaxBackups"`
	LogCompress   bool     `mapstructure:"LogCompress"`
	CacheDir      string   `mapstructure:"CacheDir"`
	MaxAge        Duration `mapstructure:"MaxAge"`
	Language      string   `mapstructure:"Language"`
	Platform      string   `mapstructure:"Platform"`
	Color         string   `mapstructure:"Color"`
}

// SourceConfig 决定如何从上游获取页面归档。
type SourceConfig struct {
	ArchiveURL     string   `mapstructure:"ArchiveURL"`
	Proxy          string   `mapstructure:"Proxy"`
	Username       string   `mapstructure:"Username"`
	Password       string   `mapstructure:"Password"`
	UpdateTimeout  Duration `mapstructure:"UpdateTimeout"`
	MaxRetries     int      `mapstructure:"MaxRetries"`
	MaxArchiveSize int64    `mapstructure:"MaxArchiveSize"`
	MaxPageSize    int64    `mapstructure:"MaxPageSize"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Source SourceConfig `mapstructure:"Source"`
}

// HasCredentials 表示是否配置了完整的上游凭证。
func (s SourceConfig) HasCredentials() bool {
	return s.Username != "" && s.Password != ""
}

// AuthMode 输出 `credentialed` 或 `anonymous`，供日志字段使用。
func (s SourceConfig) AuthMode() string {
	if s.HasCredentials() {
		return "credentialed"
	}
	return "anonymous"
}

// Color 模式。
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)
