package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/serialcfg/internal/api"
	"github.com/wfunc/serialcfg/internal/config"
	"github.com/wfunc/serialcfg/internal/database"
	apperrors "github.com/wfunc/serialcfg/internal/errors"
	"github.com/wfunc/serialcfg/internal/logger"
	"github.com/wfunc/serialcfg/internal/service"
	ws "github.com/wfunc/serialcfg/internal/websocket"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// App 串口配置工具实例
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	db         *gorm.DB
	logs       *service.SerialLogService
	svc        *service.ConfigService
	hub        *ws.Hub
	httpServer *http.Server

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "", "配置文件路径")
		mockMode    = pflag.Bool("mock", false, "使用回环模拟串口")
		noConsole   = pflag.Bool("no-console", false, "不启动交互命令行，仅提供HTTP接口")
		showVersion = pflag.BoolP("version", "v", false, "显示版本信息")
	)
	pflag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()
	if *mockMode {
		cfg.Serial.MockMode = true
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	app := NewApp(cfg)
	if err := app.Start(); err != nil {
		logger.Fatal("启动失败", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	consoleDone := make(chan struct{})
	if !*noConsole {
		go func() {
			defer close(consoleDone)
			NewConsole(app.svc, os.Stdin, os.Stdout).Run(app.ctx)
		}()
	}

	select {
	case sig := <-sigCh:
		app.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-consoleDone:
	}

	if err := app.Shutdown(); err != nil {
		logger.Error("关闭失败", zap.Error(err))
		os.Exit(1)
	}
}

// NewApp 创建应用实例
func NewApp(cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 初始化组件并执行首次扫描
func (a *App) Start() error {
	a.logger.Info("正在启动串口配置工具...",
		zap.String("version", Version),
		zap.String("driver", a.cfg.Serial.Driver),
		zap.Bool("mock", a.cfg.Serial.MockMode),
	)

	if a.cfg.Database.Enabled {
		if err := database.Init(&a.cfg.Database); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库失败")
		}
		a.db = database.GetDB()
		a.logs = service.NewSerialLogService(a.db, 0)
	}

	a.svc = service.NewConfigService(service.NewPortProvider(&a.cfg.Serial), a.cfg, a.logs)

	if a.cfg.Server.Enabled {
		a.startHTTPServer()
	}

	ports, err := a.svc.Initialize(a.ctx)
	if err != nil {
		// 扫描失败不退出，可在命令行或接口中重新扫描
		a.logger.Warn("初始化扫描失败", zap.Error(err))
	}
	a.logger.Info("初始化完成",
		zap.Int("ports", len(ports)),
		zap.String("state", a.svc.State().String()))

	config.Watch(func(newCfg *config.Config) {
		a.logger.Info("配置已更新，正在重新加载...")
		a.reloadConfig(newCfg)
	})

	return nil
}

// startHTTPServer 启动HTTP控制接口和WebSocket推送
func (a *App) startHTTPServer() {
	gin.SetMode(a.cfg.Server.Mode)

	a.hub = ws.NewHub(logger.GetModuleLogger("websocket"), a.svc.Buffer().Snapshot)
	router := api.NewRouter(api.Options{
		Config:        a.svc,
		Logs:          a.logs,
		Hub:           a.hub,
		DB:            a.db,
		RetentionDays: a.cfg.Database.RetentionDays,
		Logger:        logger.GetModuleLogger("api"),
	})

	a.httpServer = &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		a.hub.Run(a.ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.hub.BridgeBuffer(a.ctx, a.svc.Buffer())
	}()
	go func() {
		defer a.wg.Done()
		a.logger.Info("HTTP服务启动", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP服务异常退出", zap.Error(err))
		}
	}()
}

// Shutdown 优雅关闭
func (a *App) Shutdown() error {
	a.logger.Info("正在关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("HTTP服务关闭失败", zap.Error(err))
		}
	}

	if err := a.svc.Close(shutdownCtx); err != nil {
		a.logger.Warn("关闭串口失败", zap.Error(err))
	}

	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("关闭超时，强制退出")
		return apperrors.New(apperrors.ErrTimeout, "关闭超时")
	}

	if a.logs != nil {
		a.logs.Close()
	}
	if a.db != nil {
		if err := database.Close(); err != nil {
			a.logger.Error("关闭数据库失败", zap.Error(err))
		}
	}

	a.logger.Info("已安全关闭")
	logger.Cleanup()
	return nil
}

// reloadConfig 应用可热更新的配置项
func (a *App) reloadConfig(newCfg *config.Config) {
	logger.SetLevel(newCfg.Log.Level)
	a.svc.ApplyConfig(newCfg)
	a.logger.Info("配置重新加载完成",
		zap.String("log_level", newCfg.Log.Level),
		zap.Int("max_lines", newCfg.Buffer.MaxLines))
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("串口WiFi配置工具\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
