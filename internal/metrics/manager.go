package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-viewer/internal/config"
	"github.com/open-beagle/bdwind-viewer/internal/webrtc"
)

// Manager 监控组件管理器
// 内部指标始终采集并挂载在主路由的 /metrics 上，外部端口按配置启用
type Manager struct {
	config          *config.MetricsConfig
	metrics         Metrics
	viewer          *ViewerMetrics
	externalServer  *http.Server
	listener        net.Listener
	logger          *logrus.Entry
	running         bool
	externalRunning bool
	startTime       time.Time
	mutex           sync.RWMutex
	ctx             context.Context
	cancel          context.CancelFunc
}

// NewManager 创建新的监控管理器
func NewManager(ctx context.Context, cfg *config.MetricsConfig) (*Manager, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	if cfg == nil {
		return nil, fmt.Errorf("metrics config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	metrics := NewMetrics(cfg.Namespace)
	viewer, err := NewViewerMetrics(metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create viewer metrics: %w", err)
	}

	childCtx, cancel := context.WithCancel(ctx)

	return &Manager{
		config:  cfg,
		metrics: metrics,
		viewer:  viewer,
		logger:  config.GetLoggerWithPrefix("metrics"),
		ctx:     childCtx,
		cancel:  cancel,
	}, nil
}

// Start 启动监控管理器
func (m *Manager) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.running {
		return ErrServerAlreadyRunning
	}

	m.logger.Debug("Starting metrics manager...")

	// 外部暴露启动失败不影响内部指标
	if m.config.External.Enabled {
		if err := m.startExternalMetrics(); err != nil {
			m.logger.Warnf("Failed to start external metrics server: %v", err)
		}
	} else {
		m.logger.Debug("External metrics disabled, metrics only available on the web server")
	}

	m.running = true
	m.startTime = time.Now()
	m.logger.Info("Metrics manager started successfully")
	return nil
}

// startExternalMetrics 启动外部metrics暴露服务器
func (m *Manager) startExternalMetrics() error {
	addr := net.JoinHostPort(m.config.External.Host, fmt.Sprintf("%d", m.config.External.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	router := http.NewServeMux()
	router.Handle(m.config.External.Path, m.metrics.Handler())

	m.listener = listener
	m.externalServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := m.externalServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Errorf("External metrics server error: %v", err)
		}
	}()

	m.externalRunning = true
	m.logger.Infof("External metrics server started on %s%s", listener.Addr(), m.config.External.Path)
	return nil
}

// Stop 停止监控管理器
func (m *Manager) Stop(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.running {
		return nil
	}

	m.logger.Debug("Stopping metrics manager...")

	if m.cancel != nil {
		m.cancel()
	}

	var err error
	if m.externalRunning && m.externalServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if shutdownErr := m.externalServer.Shutdown(shutdownCtx); shutdownErr != nil {
			err = fmt.Errorf("failed to stop external metrics server: %w", shutdownErr)
		} else {
			m.logger.Debug("External metrics server stopped")
		}
		m.externalRunning = false
	}

	m.running = false
	m.logger.Info("Metrics manager stopped")
	return err
}

// IsEnabled 监控组件始终启用，外部暴露可选
func (m *Manager) IsEnabled() bool {
	return true
}

// IsRunning 检查监控管理器是否正在运行
func (m *Manager) IsRunning() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.running
}

// IsExternalRunning 检查外部metrics服务器是否正在运行
func (m *Manager) IsExternalRunning() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.externalRunning
}

// ExternalAddr 外部服务器实际监听地址，未启动时为空
func (m *Manager) ExternalAddr() string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.listener == nil || !m.externalRunning {
		return ""
	}
	return m.listener.Addr().String()
}

// GetStats 获取监控管理器的统计信息
func (m *Manager) GetStats() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := map[string]interface{}{
		"running":          m.running,
		"external_running": m.externalRunning,
		"external_enabled": m.config.External.Enabled,
		"namespace":        m.config.Namespace,
	}

	if m.running {
		stats["start_time"] = m.startTime.Unix()
		stats["uptime"] = time.Since(m.startTime).Seconds()
	}

	if m.externalRunning {
		stats["external_endpoint"] = m.config.GetExternalEndpoint()
	}

	return stats
}

// GetContext 获取组件的上下文
func (m *Manager) GetContext() context.Context {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.ctx
}

// SetupRoutes 在主路由上注册 /metrics 和 /api/metrics/status
func (m *Manager) SetupRoutes(router *mux.Router) error {
	router.Handle("/metrics", m.metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/api/metrics/status", m.handleMetricsStatus).Methods(http.MethodGet)

	m.logger.Debug("Metrics routes registered successfully")
	return nil
}

// handleMetricsStatus 处理metrics状态请求
func (m *Manager) handleMetricsStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.GetStats()); err != nil {
		m.logger.Warnf("Failed to encode metrics status: %v", err)
	}
}

// Observer 返回供流管理器使用的会话观察者
func (m *Manager) Observer() webrtc.Observer {
	return m.viewer
}

// GetMetrics 获取指标注册表（用于其他组件集成）
func (m *Manager) GetMetrics() Metrics {
	return m.metrics
}
