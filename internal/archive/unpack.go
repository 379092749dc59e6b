// Package archive turns the raw bytes of an upstream pages archive into cache
// entries laid out as <language>/<platform>/<command>.md. Both the gzip tar
// produced by the repository download and the zip release asset are accepted.
// Unpacking is all-or-nothing: any structural error, truncation or oversized
// entry fails the whole archive with ErrCorruptArchive.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/pagecache/tldr/internal/cache"
	"github.com/pagecache/tldr/internal/page"
)

// ErrCorruptArchive 表示归档无法被完整解析。
var ErrCorruptArchive = errors.New("corrupt archive")

// DefaultMaxEntrySize 限制单个页面文件的大小，防止异常归档占满内存。
const DefaultMaxEntrySize int64 = 1 << 20

const pageExt = ".md"

var (
	gzipMagic     = []byte{0x1f, 0x8b}
	zipMagic      = []byte("PK\x03\x04")
	zipEmptyMagic = []byte("PK\x05\x06")
)

// Unpacker 解析归档字节；零值可用，MaxEntrySize<=0 时采用默认上限。
type Unpacker struct {
	MaxEntrySize int64
}

// Result 汇总一次解包得到的页面条目以及被跳过的文件。
type Result struct {
	Entries []cache.Entry
	Skipped []string
}

// Unpack 自动识别 gzip tar 或 zip，并按缓存布局输出全部页面条目。
func (u Unpacker) Unpack(data []byte) (*Result, error) {
	var (
		files []rawFile
		err   error
	)
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		files, err = u.readTarGz(data)
	case bytes.HasPrefix(data, zipMagic), bytes.HasPrefix(data, zipEmptyMagic):
		files, err = u.readZip(data)
	default:
		return nil, fmt.Errorf("%w: unrecognized archive format", ErrCorruptArchive)
	}
	if err != nil {
		return nil, err
	}

	result := mapLayout(files)
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("%w: archive contains no pages", ErrCorruptArchive)
	}
	return result, nil
}

type rawFile struct {
	name string
	data []byte
}

func (u Unpacker) limit() int64 {
	if u.MaxEntrySize <= 0 {
		return DefaultMaxEntrySize
	}
	return u.MaxEntrySize
}

func (u Unpacker) readTarGz(data []byte) ([]rawFile, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, corrupt("gzip header", err)
	}
	defer gz.Close()

	var files []rawFile
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, corrupt("tar header", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		body, err := u.readLimited(tr, hdr.Name)
		if err != nil {
			return nil, err
		}
		files = append(files, rawFile{name: hdr.Name, data: body})
	}

	// 读完剩余数据以触发 gzip 校验和检查，截断的流在这里暴露。
	if _, err := io.Copy(io.Discard, gz); err != nil {
		return nil, corrupt("gzip trailer", err)
	}
	return files, nil
}

func (u Unpacker) readZip(data []byte) ([]rawFile, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, corrupt("zip directory", err)
	}

	var files []rawFile
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, corrupt(f.Name, err)
		}
		body, err := u.readLimited(rc, f.Name)
		rc.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, rawFile{name: f.Name, data: body})
	}
	return files, nil
}

func (u Unpacker) readLimited(r io.Reader, name string) ([]byte, error) {
	max := u.limit()
	body, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, corrupt(name, err)
	}
	if int64(len(body)) > max {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrCorruptArchive, name, max)
	}
	return body, nil
}

func corrupt(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, what, err)
}

// mapLayout 将归档内路径映射为 <lang>/<platform>/<command>.md：
//   - 所有文件共享的顶层目录（例如 tldr-main/）会被去掉；
//   - pages/ 映射为默认语言，pages.<lang>/ 映射为 <lang>；
//   - <platform>/<cmd>.md 视为默认语言；<lang>/<platform>/<cmd>.md 原样保留；
//   - 其余文件（README、脚本、图片、未知平台）记入 Skipped。
func mapLayout(files []rawFile) *Result {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = cleanName(f.name)
	}
	prefix := sharedTopDir(names)
	if prefix != "" && countPages(names, "") >= countPages(names, prefix) {
		prefix = ""
	}

	result := &Result{}
	seen := make(map[string]int)
	for i, f := range files {
		name := strings.TrimPrefix(names[i], prefix)
		rel, ok := canonicalPath(name)
		if !ok {
			result.Skipped = append(result.Skipped, f.name)
			continue
		}
		if idx, dup := seen[rel]; dup {
			result.Entries[idx].Data = f.data
			continue
		}
		seen[rel] = len(result.Entries)
		result.Entries = append(result.Entries, cache.Entry{Path: rel, Data: f.data})
	}

	sort.Slice(result.Entries, func(i, j int) bool {
		return result.Entries[i].Path < result.Entries[j].Path
	})
	return result
}

func cleanName(name string) string {
	name = strings.TrimPrefix(strings.ReplaceAll(name, `\`, "/"), "./")
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// sharedTopDir 返回所有文件共有的顶层目录（含结尾 /），该目录本身是布局目录时返回空。
func sharedTopDir(names []string) string {
	if len(names) == 0 {
		return ""
	}
	first, _, found := strings.Cut(names[0], "/")
	if !found || isLayoutDir(first) {
		return ""
	}
	for _, name := range names[1:] {
		top, _, found := strings.Cut(name, "/")
		if !found || top != first {
			return ""
		}
	}
	return first + "/"
}

func countPages(names []string, prefix string) int {
	n := 0
	for _, name := range names {
		if _, ok := canonicalPath(strings.TrimPrefix(name, prefix)); ok {
			n++
		}
	}
	return n
}

func isLayoutDir(dir string) bool {
	if dir == "pages" || strings.HasPrefix(dir, "pages.") {
		return true
	}
	return page.Platform(dir).IsKnown()
}

func canonicalPath(name string) (string, bool) {
	parts := strings.Split(name, "/")
	var lang, platform, file string
	switch len(parts) {
	case 2:
		lang, platform, file = string(page.DefaultLanguage), parts[0], parts[1]
	case 3:
		dir := parts[0]
		switch {
		case dir == "pages":
			lang = string(page.DefaultLanguage)
		case strings.HasPrefix(dir, "pages."):
			lang = strings.TrimPrefix(dir, "pages.")
		default:
			lang = dir
		}
		platform, file = parts[1], parts[2]
	default:
		return "", false
	}

	if !page.Platform(platform).IsKnown() {
		return "", false
	}
	if !strings.HasSuffix(file, pageExt) || len(file) == len(pageExt) || strings.HasPrefix(file, ".") {
		return "", false
	}
	parsed, err := page.ParseLanguage(lang)
	if err != nil {
		return "", false
	}
	return path.Join(string(parsed), platform, file), true
}
