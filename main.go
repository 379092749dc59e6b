package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pagecache/tldr/internal/archive"
	"github.com/pagecache/tldr/internal/cache"
	"github.com/pagecache/tldr/internal/config"
	"github.com/pagecache/tldr/internal/logging"
	"github.com/pagecache/tldr/internal/page"
	"github.com/pagecache/tldr/internal/render"
	"github.com/pagecache/tldr/internal/resolver"
	"github.com/pagecache/tldr/internal/updater"
	"github.com/pagecache/tldr/internal/upstream"
	"github.com/pagecache/tldr/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath     string
	explicitConfig bool
	checkOnly      bool
	showVersion    bool
	update         bool
	clearCache     bool
	list           bool
	renderFile     string
	platform       string
	language       string
	color          string
	command        []string
}

const suggestionLimit = 5

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	colorMode := cfg.Global.Color
	if opts.color != "" {
		colorMode = strings.ToLower(opts.color)
	}
	renderOpts := render.Options{
		Color:  render.ColorEnabled(colorMode, stdOut, os.Getenv),
		Logger: logger,
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_dir"] = cfg.Global.CacheDir
		fields["archive_url"] = cfg.Source.ArchiveURL
		fields["auth_mode"] = cfg.Source.AuthMode()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	if opts.renderFile != "" {
		return renderLocalFile(opts.renderFile, renderOpts)
	}

	platform, language, err := queryDefaults(cfg.Global, opts)
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		return 2
	}

	store, err := cache.NewStore(cfg.Global.CacheDir)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	upd, err := buildUpdater(cfg, store, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化更新器失败: %v\n", err)
		return 1
	}
	svc := updater.NewService(store, upd, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["cache_dir"] = cfg.Global.CacheDir
	fields["version"] = version.Full()
	if status, err := svc.Status(ctx, cfg.Global.MaxAge.DurationValue()); err == nil {
		fields["cache_exists"] = status.Exists
		fields["cache_stale"] = status.Stale
	}
	logger.WithFields(fields).Debug("配置加载完成")

	if opts.clearCache {
		if err := svc.Clear(ctx); err != nil {
			fmt.Fprintf(stdErr, "清理缓存失败: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdOut, "缓存已清理")
		if !opts.update && !opts.list && len(opts.command) == 0 {
			return 0
		}
	}

	if opts.update && len(opts.command) == 0 {
		return runUpdate(ctx, svc)
	}

	if opts.list {
		return runList(ctx, svc, platform, language)
	}

	if len(opts.command) == 0 {
		printUsage()
		return 2
	}

	return runLookup(ctx, svc, updater.Query{
		Command:     strings.Join(opts.command, " "),
		Platform:    platform,
		Language:    language,
		ForceUpdate: opts.update,
		MaxAge:      cfg.Global.MaxAge.DurationValue(),
	}, renderOpts, logger)
}

// loadConfig 显式指定的配置文件必须存在；默认路径缺失时使用默认值。
func loadConfig(opts cliOptions) (*config.Config, error) {
	if opts.explicitConfig {
		return config.Load(opts.configPath)
	}
	return config.LoadOptional(opts.configPath)
}

func queryDefaults(global config.GlobalConfig, opts cliOptions) (page.Platform, page.Language, error) {
	platform := global.ResolvedPlatform()
	if opts.platform != "" {
		p, err := page.ParsePlatform(opts.platform)
		if err != nil {
			return "", "", err
		}
		platform = p
	}

	language := global.ResolvedLanguage()
	if opts.language != "" {
		lang, err := page.ParseLanguage(opts.language)
		if err != nil {
			return "", "", err
		}
		language = lang
	}
	return platform, language, nil
}

func buildUpdater(cfg *config.Config, store cache.Store, logger *logrus.Logger) (*updater.Updater, error) {
	client, err := upstream.NewClient(cfg.Source, logger)
	if err != nil {
		return nil, err
	}
	fetcher := upstream.NewFetcher(client, upstream.Options{
		Username: cfg.Source.Username,
		Password: cfg.Source.Password,
		MaxSize:  cfg.Source.MaxArchiveSize,
	})
	return updater.NewUpdater(updater.Options{
		Fetcher:    fetcher,
		Unpacker:   archive.Unpacker{MaxEntrySize: cfg.Source.MaxPageSize},
		Store:      store,
		ArchiveURL: cfg.Source.ArchiveURL,
		AuthMode:   cfg.Source.AuthMode(),
		Timeout:    cfg.Source.UpdateTimeout.DurationValue(),
		Logger:     logger,
	})
}

func runUpdate(ctx context.Context, svc *updater.Service) int {
	report, err := svc.Update(ctx)
	if err != nil {
		fmt.Fprintf(stdErr, "更新失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdOut, "缓存已更新: %d 个页面\n", report.Pages)
	return 0
}

func runList(ctx context.Context, svc *updater.Service, platform page.Platform, language page.Language) int {
	commands, err := svc.List(ctx, platform, language)
	if err != nil {
		return reportLookupError(err)
	}
	for _, command := range commands {
		fmt.Fprintln(stdOut, command)
	}
	return 0
}

func runLookup(ctx context.Context, svc *updater.Service, q updater.Query, renderOpts render.Options, logger *logrus.Logger) int {
	result, err := svc.Lookup(ctx, q)
	if result != nil {
		if result.UpdateErr != nil && !errors.Is(err, updater.ErrUpdateFailed) {
			fmt.Fprintf(stdErr, "更新失败，继续使用已有缓存: %v\n", result.UpdateErr)
		}
		if result.Stale {
			fmt.Fprintf(stdErr, "页面缓存已 %d 天未更新，可运行 tldr --update 刷新\n", int(result.Age.Hours()/24))
		}
	}
	if err != nil {
		code := reportLookupError(err)
		if errors.Is(err, resolver.ErrPageNotFound) {
			printSuggestions(ctx, svc, q, logger)
		}
		return code
	}

	if err := render.Page(stdOut, string(result.Match.Content), renderOpts); err != nil {
		fmt.Fprintf(stdErr, "输出页面失败: %v\n", err)
		return 1
	}
	return 0
}

func printSuggestions(ctx context.Context, svc *updater.Service, q updater.Query, logger *logrus.Logger) {
	suggestions, err := svc.Suggest(ctx, q, suggestionLimit)
	if err != nil {
		logger.WithError(err).Debug("suggest_failed")
		return
	}
	if len(suggestions) == 0 {
		return
	}
	fmt.Fprintf(stdErr, "你是否要查找: %s\n", strings.Join(suggestions, ", "))
}

// reportLookupError 将核心错误映射为用户提示，退出码统一为 1。
func reportLookupError(err error) int {
	var storageErr *cache.StorageError
	switch {
	case errors.Is(err, updater.ErrUpdateFailed) && errors.Is(err, cache.ErrEmpty):
		fmt.Fprintf(stdErr, "更新失败，本地也没有可用的页面缓存: %v\n", err)
	case errors.Is(err, cache.ErrEmpty):
		fmt.Fprintln(stdErr, "页面缓存为空，请先运行 tldr --update")
	case errors.Is(err, resolver.ErrPageNotFound):
		fmt.Fprintf(stdErr, "未找到页面: %v\n", err)
	case errors.Is(err, resolver.ErrInvalidCommand):
		fmt.Fprintf(stdErr, "无效的命令名: %v\n", err)
	case errors.As(err, &storageErr):
		fmt.Fprintf(stdErr, "读取缓存失败: %v\n", err)
	default:
		fmt.Fprintf(stdErr, "查询失败: %v\n", err)
	}
	return 1
}

func renderLocalFile(path string, opts render.Options) int {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stdErr, "读取页面文件失败: %v\n", err)
		return 1
	}
	if err := render.Page(stdOut, string(content), opts); err != nil {
		fmt.Fprintf(stdErr, "输出页面失败: %v\n", err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Fprintln(stdErr, "用法: tldr [flags] <command...>")
	fmt.Fprintln(stdErr, "      tldr --update | --list | --clear-cache | --render <file>")
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("tldr", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts cliOptions
	var configFlag string

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 <UserConfigDir>/tldr/config.toml，可被 TLDR_CONFIG 覆盖）")
	fs.BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&opts.showVersion, "version", false, "显示版本信息")
	fs.BoolVar(&opts.update, "update", false, "更新页面缓存")
	fs.BoolVar(&opts.update, "u", false, "--update 的简写")
	fs.BoolVar(&opts.clearCache, "clear-cache", false, "删除页面缓存")
	fs.BoolVar(&opts.list, "list", false, "列出当前平台可用的命令")
	fs.BoolVar(&opts.list, "l", false, "--list 的简写")
	fs.StringVar(&opts.renderFile, "render", "", "渲染本地页面文件")
	fs.StringVar(&opts.renderFile, "f", "", "--render 的简写")
	fs.StringVar(&opts.platform, "platform", "", "页面平台（linux、osx、windows、common 等）")
	fs.StringVar(&opts.platform, "p", "", "--platform 的简写")
	fs.StringVar(&opts.language, "language", "", "页面语言（例如 de、pt_BR）")
	fs.StringVar(&opts.language, "L", "", "--language 的简写")
	fs.StringVar(&opts.color, "color", "", "着色模式: auto、always、never")

	// flag 在第一个位置参数处停止，这里逐段解析以支持 tldr tar -p osx 的写法；
	// "--" 之后的参数全部视为命令。
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
		}
		remaining := fs.Args()
		if consumed := len(rest) - len(remaining); consumed > 0 && rest[consumed-1] == "--" {
			opts.command = append(opts.command, remaining...)
			break
		}
		if len(remaining) == 0 {
			break
		}
		opts.command = append(opts.command, remaining[0])
		rest = remaining[1:]
	}

	switch strings.ToLower(opts.color) {
	case "", config.ColorAuto, config.ColorAlways, config.ColorNever:
	default:
		return cliOptions{}, fmt.Errorf("解析参数失败: 无效的 --color 值 %q", opts.color)
	}

	path := os.Getenv("TLDR_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	opts.explicitConfig = path != ""
	if path == "" {
		path = config.DefaultPath()
	}
	opts.configPath = path

	return opts, nil
}
