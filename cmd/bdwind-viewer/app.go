package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-viewer/internal/config"
	"github.com/open-beagle/bdwind-viewer/internal/events"
	"github.com/open-beagle/bdwind-viewer/internal/metrics"
	"github.com/open-beagle/bdwind-viewer/internal/webrtc"
	"github.com/open-beagle/bdwind-viewer/internal/webserver"
)

// lifecycleManager 应用按顺序启停的组件
type lifecycleManager interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

type managerInfo struct {
	name    string
	manager lifecycleManager
}

// ViewerApp 查看器应用
type ViewerApp struct {
	config       *config.Config
	bus          *events.DefaultEventBus
	metricsMgr   *metrics.Manager
	webrtcMgr    *webrtc.Manager
	webserverMgr *webserver.Manager
	logger       *logrus.Entry
	startTime    time.Time

	rootCtx    context.Context
	cancelFunc context.CancelFunc
}

// NewViewerApp 创建查看器应用
func NewViewerApp(cfg *config.Config, version webserver.VersionInfo) (*ViewerApp, error) {
	rootCtx, cancelFunc := context.WithCancel(context.Background())

	bus := events.NewEventBus()

	metricsMgr, err := metrics.NewManager(rootCtx, cfg.Metrics)
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("failed to create metrics manager: %w", err)
	}

	webrtcMgr, err := webrtc.NewManager(rootCtx, &webrtc.ManagerConfig{
		Config:   cfg,
		Bus:      bus,
		Observer: metricsMgr.Observer(),
	})
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("failed to create stream manager: %w", err)
	}

	webserverMgr, err := webserver.NewManager(rootCtx, cfg.WebServer, version)
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("failed to create webserver manager: %w", err)
	}

	return &ViewerApp{
		config:       cfg,
		bus:          bus,
		metricsMgr:   metricsMgr,
		webrtcMgr:    webrtcMgr,
		webserverMgr: webserverMgr,
		logger:       config.GetLoggerWithPrefix("app"),
		startTime:    time.Now(),
		rootCtx:      rootCtx,
		cancelFunc:   cancelFunc,
	}, nil
}

// Start 启动应用
// 顺序：事件总线 → metrics → 流管理器 → webserver，任一失败则回滚已启动的组件
func (app *ViewerApp) Start() error {
	app.logger.Info("Starting viewer application...")

	if err := app.bus.Start(); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}

	ctx := app.rootCtx
	if app.config.Lifecycle.StartupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(app.rootCtx, app.config.Lifecycle.StartupTimeout)
		defer cancel()
	}

	managers := app.startOrder()
	for i, mgr := range managers {
		if mgr.name == "webserver" {
			if err := app.registerComponentsWithWebServer(); err != nil {
				app.rollback(managers[:i])
				return fmt.Errorf("failed to register components with webserver: %w", err)
			}
		}

		app.logger.Debugf("Starting %s manager...", mgr.name)
		if err := mgr.manager.Start(ctx); err != nil {
			app.logger.Errorf("Failed to start %s manager: %v", mgr.name, err)
			app.rollback(managers[:i])
			return fmt.Errorf("failed to start %s manager: %w", mgr.name, err)
		}
		app.logger.Debugf("%s manager started successfully", mgr.name)
	}

	app.logger.Info("Viewer application started successfully")
	return nil
}

func (app *ViewerApp) startOrder() []managerInfo {
	return []managerInfo{
		{"metrics", app.metricsMgr},
		{"webrtc", app.webrtcMgr},
		{"webserver", app.webserverMgr},
	}
}

// rollback 逆序停止已启动的组件
func (app *ViewerApp) rollback(started []managerInfo) {
	for j := len(started) - 1; j >= 0; j-- {
		app.logger.Warnf("Rolling back: stopping %s manager...", started[j].name)
		if err := started[j].manager.Stop(context.Background()); err != nil {
			app.logger.Errorf("Failed to stop %s during rollback: %v", started[j].name, err)
		}
	}
	if err := app.bus.Stop(); err != nil {
		app.logger.Debugf("Event bus stop during rollback: %v", err)
	}
}

// Stop 按启动的逆序停止应用
func (app *ViewerApp) Stop(ctx context.Context) error {
	app.logger.Info("Stopping viewer application...")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), app.config.Lifecycle.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	managers := app.startOrder()
	for i := len(managers) - 1; i >= 0; i-- {
		mgr := managers[i]
		if err := mgr.manager.Stop(ctx); err != nil {
			app.logger.Errorf("Failed to stop %s manager: %v", mgr.name, err)
			errs = append(errs, fmt.Errorf("failed to stop %s: %w", mgr.name, err))
		}
	}

	if app.bus.IsRunning() {
		if err := app.bus.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop event bus: %w", err))
		}
	}

	app.cancelFunc()

	if len(errs) > 0 {
		app.logger.Warnf("Viewer application stopped with %d errors", len(errs))
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	app.logger.Info("Viewer application stopped successfully")
	return nil
}

// registerComponentsWithWebServer 注册需要暴露HTTP路由的组件
func (app *ViewerApp) registerComponentsWithWebServer() error {
	if err := app.webserverMgr.RegisterComponent("metrics", app.metricsMgr); err != nil {
		return fmt.Errorf("failed to register metrics component: %w", err)
	}
	if err := app.webserverMgr.RegisterComponent("webrtc", app.webrtcMgr); err != nil {
		return fmt.Errorf("failed to register webrtc component: %w", err)
	}
	return nil
}

// IsHealthy 所有启用的组件都在运行
func (app *ViewerApp) IsHealthy() bool {
	for _, mgr := range app.startOrder() {
		if !mgr.manager.IsRunning() {
			if enabled, ok := mgr.manager.(interface{ IsEnabled() bool }); ok && !enabled.IsEnabled() {
				continue
			}
			return false
		}
	}
	return app.bus.IsRunning()
}

// GetWebServerManager 获取webserver管理器
func (app *ViewerApp) GetWebServerManager() *webserver.Manager {
	return app.webserverMgr
}

// GetWebRTCManager 获取流管理器
func (app *ViewerApp) GetWebRTCManager() *webrtc.Manager {
	return app.webrtcMgr
}

// GetMetricsManager 获取监控管理器
func (app *ViewerApp) GetMetricsManager() *metrics.Manager {
	return app.metricsMgr
}
