package upstream

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/pagecache/tldr/internal/config"
)

// Shared HTTP transport tunings，集中配置连接与 TLS 超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewClient 返回用于下载归档的 http.Client。单次请求的超时取 UpdateTimeout；
// MaxRetries > 0 时在 Transport 层套上 retryablehttp，由 CLI 配置决定重试策略。
func NewClient(cfg config.SourceConfig, logger *logrus.Logger) (*http.Client, error) {
	timeout := 30 * time.Second
	if cfg.UpdateTimeout.DurationValue() > 0 {
		timeout = cfg.UpdateTimeout.DurationValue()
	}

	transport := defaultTransport.Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	base := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
	if cfg.MaxRetries <= 0 {
		return base, nil
	}

	retrying := retryablehttp.NewClient()
	retrying.HTTPClient = base
	retrying.RetryMax = cfg.MaxRetries
	retrying.RetryWaitMin = 500 * time.Millisecond
	retrying.RetryWaitMax = 5 * time.Second
	retrying.Logger = leveledLogger{logger: logger}
	return retrying.StandardClient(), nil
}

// leveledLogger 将 retryablehttp 的键值日志转为 logrus 字段。
type leveledLogger struct {
	logger *logrus.Logger
}

func (l leveledLogger) entry(keysAndValues []interface{}) *logrus.Entry {
	fields := logrus.Fields{"action": "fetch_retry"}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return l.logger.WithFields(fields)
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.entry(keysAndValues).Error(msg)
	}
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.entry(keysAndValues).Debug(msg)
	}
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.entry(keysAndValues).Debug(msg)
	}
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.entry(keysAndValues).Warn(msg)
	}
}
