package config

import (
	"os"
	"path/filepath"
	"testing"
)

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

// clearLocaleEnv 清空语言相关环境变量，避免宿主机 LANG 影响默认值断言。
func clearLocaleEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"LANGUAGE", "LC_ALL", "LANG"} {
		t.Setenv(key, "")
	}
}
