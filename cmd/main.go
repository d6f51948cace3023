package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"mitmblock/adblock"
	"mitmblock/config"
	"mitmblock/logger"
	"mitmblock/webapi"
)

func main() {
	// 定义命令行参数
	configPath := flag.String("c", "config.yaml", "配置文件路径")
	workDir := flag.String("w", "", "工作目录")
	checkURL := flag.String("check", "", "判断单个 URL 是否会被拦截后退出")
	domain := flag.String("domain", "", "与 -check 一起使用：发起请求的域名")
	resType := flag.String("type", "", "与 -check 一起使用：资源类型（image/script/stylesheet/...）")
	lint := flag.Bool("lint", false, "加载规则列表，输出诊断信息后退出")
	help := flag.Bool("h", false, "显示帮助信息")

	flag.Parse()

	if *help {
		printHelp()
		os.Exit(0)
	}

	effectiveWorkDir := *workDir
	if effectiveWorkDir == "" {
		var err error
		effectiveWorkDir, err = os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "错误：无法获取当前工作目录：%v\n", err)
			os.Exit(1)
		}
	} else if err := os.Chdir(effectiveWorkDir); err != nil {
		fmt.Fprintf(os.Stderr, "错误：无法进入工作目录：%v\n", err)
		os.Exit(1)
	}

	effectiveConfigPath := *configPath
	if !filepath.IsAbs(effectiveConfigPath) {
		effectiveConfigPath = filepath.Join(effectiveWorkDir, effectiveConfigPath)
	}

	cfg, err := config.LoadConfig(effectiveConfigPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(cfg.System.LogLevel)
	logger.Infof("Log level set to: %s", cfg.System.LogLevel)

	switch {
	case *lint:
		os.Exit(runLint(cfg))
	case *checkURL != "":
		os.Exit(runCheck(cfg, *checkURL, *domain, *resType))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager, err := adblock.NewManager(&cfg.AdBlock)
	if err != nil {
		logger.Fatalf("Failed to create adblock manager: %v", err)
	}
	if err := manager.Start(ctx); err != nil {
		logger.Fatalf("Failed to load filter lists: %v", err)
	}

	var apiServer *webapi.Server
	apiDone := make(chan error, 1)
	if cfg.API.Enabled {
		apiServer = webapi.NewServer(cfg, manager)
		go func() {
			apiDone <- apiServer.Start()
		}()
	}

	// SIGHUP 重新加载规则，SIGINT/SIGTERM 优雅停机
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case s := <-sig:
			if s == syscall.SIGHUP {
				logger.Info("Received SIGHUP, reloading filter lists...")
				if _, err := manager.Reload(ctx); err != nil {
					logger.Errorf("Reload failed, keeping generation %d: %v", manager.Generation(), err)
				}
				continue
			}
			logger.Info("Shutting down...")
			cancel()
			if apiServer != nil {
				if err := apiServer.Stop(); err != nil {
					logger.Errorf("Failed to stop HTTP API: %v", err)
				}
			}
			logger.Info("Stopped.")
			return
		case err := <-apiDone:
			if err != nil {
				logger.Fatalf("HTTP API failed: %v", err)
			}
		}
	}
}

// runCheck 对单个 URL 给出拦截结果
func runCheck(cfg *config.Config, url, domain, typ string) int {
	cfg.AdBlock.UpdateIntervalHours = 0
	cfg.AdBlock.Enable = true

	rc := adblock.RequestContext{Domain: domain}
	if typ != "" {
		t, ok := adblock.ParseResourceType(typ)
		if !ok {
			fmt.Fprintf(os.Stderr, "错误：未知的资源类型 '%s'\n", typ)
			return 2
		}
		rc.Type = t
	}

	manager, err := adblock.NewManager(&cfg.AdBlock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误：%v\n", err)
		return 1
	}
	if err := manager.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "错误：%v\n", err)
		return 1
	}

	res := manager.Match(url, rc)
	fmt.Printf("%s %s\n", res.Decision, url)
	if rule := res.Rule(); rule != "" {
		fmt.Printf("  rule: %s\n", rule)
	}
	if res.Decision == adblock.Block {
		return 3
	}
	return 0
}

// runLint 加载规则列表并输出所有诊断信息
func runLint(cfg *config.Config) int {
	sources, err := adblock.ExpandSources(cfg.AdBlock.Lists, cfg.AdBlock.CacheDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误：%v\n", err)
		return 1
	}

	_, report, err := adblock.Load(context.Background(), sources, adblock.LoadOptions{
		UnknownOptions: adblock.UnknownOptionPolicy(cfg.AdBlock.UnknownOptions),
		MaxConcurrent:  cfg.AdBlock.MaxConcurrentLoads,
		MaxListSize:    int64(cfg.AdBlock.MaxListSize.Bytes()),
	})
	if report != nil {
		for _, d := range report.Diagnostics {
			fmt.Println(d)
		}
		if report.Malformed > len(report.Diagnostics) {
			fmt.Printf("... %d more\n", report.Malformed-len(report.Diagnostics))
		}
		for opt, n := range report.UnknownOptions {
			fmt.Printf("unknown option %q on %d filters\n", opt, n)
		}
		fmt.Printf("%d lines, %d filters, %d exceptions, %d inert, %d comments, %d cosmetic, %d malformed\n",
			report.Lines, report.Filters, report.Exceptions, report.Inert, report.Comments, report.Cosmetic, report.Malformed)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误：%v\n", err)
		if errors.Is(err, adblock.ErrNoRulesLoaded) {
			return 1
		}
		return 2
	}
	if report.Malformed > 0 {
		return 1
	}
	return 0
}

func printHelp() {
	fmt.Print(`mitmblock - 拦截代理的广告过滤引擎

使用方法：
  mitmblock [选项]

选项：
  -c <路径>        配置文件路径（默认：config.yaml）
  -w <目录>        工作目录
  -check <URL>     判断 URL 是否会被拦截（退出码 3 表示拦截）
  -domain <域名>   与 -check 一起使用：发起请求的域名
  -type <类型>     与 -check 一起使用：资源类型
  -lint            检查规则列表并输出诊断信息
  -h               显示帮助信息

运行时信号：
  SIGHUP           重新加载规则列表
  SIGINT/SIGTERM   停止服务
`)
}
