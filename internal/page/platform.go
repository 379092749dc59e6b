package page

import (
	"fmt"
	"runtime"
	"strings"
)

// Platform 标识页面所属的操作系统目录，common 表示与平台无关。
type Platform string

const (
	PlatformCommon  Platform = "common"
	PlatformLinux   Platform = "linux"
	PlatformOSX     Platform = "osx"
	PlatformWindows Platform = "windows"
	PlatformSunOS   Platform = "sunos"
	PlatformAndroid Platform = "android"
	PlatformFreeBSD Platform = "freebsd"
	PlatformOpenBSD Platform = "openbsd"
	PlatformNetBSD  Platform = "netbsd"

	// PlatformCurrent 是查询时的占位符，解析时替换为运行环境对应的平台。
	PlatformCurrent Platform = "current"
)

// DefaultPlatform 在无法识别运行环境时使用。
const DefaultPlatform = PlatformLinux

// platforms 是全部合法的目录标签，顺序即 List 输出顺序。
var platforms = []Platform{
	PlatformCommon,
	PlatformLinux,
	PlatformOSX,
	PlatformWindows,
	PlatformSunOS,
	PlatformAndroid,
	PlatformFreeBSD,
	PlatformOpenBSD,
	PlatformNetBSD,
}

// goosPlatforms 将 runtime.GOOS 映射为页面目录标签。
var goosPlatforms = map[string]Platform{
	"linux":   PlatformLinux,
	"darwin":  PlatformOSX,
	"ios":     PlatformOSX,
	"windows": PlatformWindows,
	"solaris": PlatformSunOS,
	"illumos": PlatformSunOS,
	"android": PlatformAndroid,
	"freebsd": PlatformFreeBSD,
	"openbsd": PlatformOpenBSD,
	"netbsd":  PlatformNetBSD,
}

// aliases 兼容用户常用的其它写法。
var aliases = map[string]Platform{
	"macos":   PlatformOSX,
	"darwin":  PlatformOSX,
	"mac":     PlatformOSX,
	"win":     PlatformWindows,
	"win32":   PlatformWindows,
	"solaris": PlatformSunOS,
}

// Platforms 返回全部已知平台标签（不含 current）。
func Platforms() []Platform {
	out := make([]Platform, len(platforms))
	copy(out, platforms)
	return out
}

// ParsePlatform 解析用户输入，空字符串与 current 均视为 PlatformCurrent。
func ParsePlatform(raw string) (Platform, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" || normalized == string(PlatformCurrent) {
		return PlatformCurrent, nil
	}
	if alias, ok := aliases[normalized]; ok {
		return alias, nil
	}
	for _, p := range platforms {
		if string(p) == normalized {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", raw)
}

// IsKnown 报告 p 是否为真实的目录标签。
func (p Platform) IsKnown() bool {
	for _, known := range platforms {
		if p == known {
			return true
		}
	}
	return false
}

// Resolve 将 current 替换为运行环境平台，其它值原样返回。
func (p Platform) Resolve() Platform {
	if p == PlatformCurrent || p == "" {
		return Current()
	}
	return p
}

// Fallbacks 返回同一语言下的探测顺序：具体平台优先，其次 common。
func (p Platform) Fallbacks() []Platform {
	resolved := p.Resolve()
	if resolved == PlatformCommon {
		return []Platform{PlatformCommon}
	}
	return []Platform{resolved, PlatformCommon}
}

func (p Platform) String() string {
	return string(p)
}

// Current 根据 runtime.GOOS 返回当前平台，未知系统退回 DefaultPlatform。
func Current() Platform {
	return platformForGOOS(runtime.GOOS)
}

func platformForGOOS(goos string) Platform {
	if p, ok := goosPlatforms[goos]; ok {
		return p
	}
	return DefaultPlatform
}
