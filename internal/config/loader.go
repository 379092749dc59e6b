package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/pagecache/tldr/internal/page"
)

// DefaultArchiveURL 指向上游仓库主分支的 tar.gz 归档。
const DefaultArchiveURL = "https://github.com/tldr-pages/tldr/archive/refs/heads/main.tar.gz"

// EnvPrefix 是环境变量覆盖的前缀，例如 TLDR_CACHEDIR、TLDR_SOURCE_ARCHIVEURL。
const EnvPrefix = "TLDR"

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。文件必须存在。
func Load(path string) (*Config, error) {
	return load(path, false)
}

// LoadOptional 与 Load 相同，但文件不存在时直接使用默认值。
func LoadOptional(path string) (*Config, error) {
	return load(path, true)
}

// DefaultPath 返回 <UserConfigDir>/tldr/config.toml。
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(dir, "tldr", "config.toml")
}

func load(path string, optional bool) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !optional || !isNotExist(err) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global, os.Getenv)
	applySourceDefaults(&cfg.Source)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absCache, err := filepath.Abs(cfg.Global.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheDir = absCache

	return &cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "warn")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 10)
	v.SetDefault("LogMaxBackups", 3)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheDir", defaultCacheDir())
	v.SetDefault("MaxAge", "720h")
	v.SetDefault("Language", "")
	v.SetDefault("Platform", string(page.PlatformCurrent))
	v.SetDefault("Color", ColorAuto)
	v.SetDefault("Source.ArchiveURL", DefaultArchiveURL)
	v.SetDefault("Source.Proxy", "")
	v.SetDefault("Source.Username", "")
	v.SetDefault("Source.Password", "")
	v.SetDefault("Source.UpdateTimeout", "30s")
	v.SetDefault("Source.MaxRetries", 2)
	v.SetDefault("Source.MaxArchiveSize", 128*1024*1024)
	v.SetDefault("Source.MaxPageSize", 1024*1024)
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".tldr-cache"
	}
	return filepath.Join(dir, "tldr")
}

func applyGlobalDefaults(g *GlobalConfig, getenv func(string) string) {
	if g.CacheDir == "" {
		g.CacheDir = defaultCacheDir()
	}
	if g.MaxAge.DurationValue() == 0 {
		g.MaxAge = Duration(30 * 24 * time.Hour)
	}
	if strings.TrimSpace(g.Language) == "" {
		g.Language = detectLanguage(getenv)
	}
	if strings.TrimSpace(g.Platform) == "" {
		g.Platform = string(page.PlatformCurrent)
	}
	g.Color = strings.ToLower(strings.TrimSpace(g.Color))
	if g.Color == "" {
		g.Color = ColorAuto
	}
	if g.LogLevel == "" {
		g.LogLevel = "warn"
	}
}

func applySourceDefaults(s *SourceConfig) {
	if strings.TrimSpace(s.ArchiveURL) == "" {
		s.ArchiveURL = DefaultArchiveURL
	}
	if s.UpdateTimeout.DurationValue() == 0 {
		s.UpdateTimeout = Duration(30 * time.Second)
	}
	if s.MaxArchiveSize == 0 {
		s.MaxArchiveSize = 128 * 1024 * 1024
	}
	if s.MaxPageSize == 0 {
		s.MaxPageSize = 1024 * 1024
	}
}

// detectLanguage 依次读取 LANGUAGE、LC_ALL、LANG，返回第一个可解析的非默认语言。
func detectLanguage(getenv func(string) string) string {
	candidates := strings.Split(getenv("LANGUAGE"), ":")
	candidates = append(candidates, getenv("LC_ALL"), getenv("LANG"))
	for _, raw := range candidates {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		lang, err := page.ParseLanguage(raw)
		if err != nil {
			continue
		}
		return string(lang)
	}
	return string(page.DefaultLanguage)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			var d Duration
			if err := d.UnmarshalText([]byte(v)); err != nil {
				return nil, fmt.Errorf("无法解析 Duration 字段: %w", err)
			}
			return d, nil
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
