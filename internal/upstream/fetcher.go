package upstream

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/pagecache/tldr/internal/version"
)

// DefaultMaxArchiveSize 限制归档下载大小。
const DefaultMaxArchiveSize int64 = 128 << 20

// FetchError 描述一次失败的下载；StatusCode 为 0 表示未收到响应。
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// errTooLarge 表示响应体超过 MaxSize。
var errTooLarge = errors.New("archive exceeds size limit")

// Options 控制 Fetcher 的鉴权与大小上限。
type Options struct {
	Username string
	Password string
	MaxSize  int64
}

// Fetcher 以单次 GET 下载归档字节，匿名或 Basic 鉴权。
type Fetcher struct {
	client *http.Client
	opts   Options
}

// NewFetcher 使用调用方提供的 client；client 为 nil 时使用默认 Transport。
func NewFetcher(client *http.Client, opts Options) *Fetcher {
	if client == nil {
		client = &http.Client{Transport: defaultTransport.Clone()}
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxArchiveSize
	}
	return &Fetcher{client: client, opts: opts}
}

// Fetch 下载 url 指向的归档；非 200 响应、网络错误、超时与超限都返回 *FetchError。
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", "tldr/"+version.Version)
	if authHeader := buildCredentialHeader(f.opts.Username, f.opts.Password); authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > f.opts.MaxSize {
		return nil, &FetchError{URL: url, Err: errTooLarge}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxSize+1))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if int64(len(body)) > f.opts.MaxSize {
		return nil, &FetchError{URL: url, Err: errTooLarge}
	}
	return body, nil
}

func buildCredentialHeader(username, password string) string {
	if username == "" || password == "" {
		return ""
	}
	token := username + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(token))
}
