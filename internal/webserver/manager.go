package webserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-viewer/internal/config"
)

// Manager webserver组件管理器
// 实现 ComponentManager 接口，管理状态API服务器
type Manager struct {
	config    *config.WebServerConfig
	server    *http.Server
	listener  net.Listener
	webServer *WebServer
	logger    *logrus.Entry
	running   bool
	startTime time.Time
	mutex     sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
}

var _ ComponentManager = (*Manager)(nil)

// NewManager 创建新的webserver管理器
func NewManager(ctx context.Context, cfg *config.WebServerConfig, version VersionInfo) (*Manager, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	if cfg == nil {
		return nil, fmt.Errorf("webserver config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webserver config: %w", err)
	}

	webServer, err := NewWebServer(cfg, version)
	if err != nil {
		return nil, fmt.Errorf("failed to create webserver: %w", err)
	}

	childCtx, cancel := context.WithCancel(ctx)

	return &Manager{
		config:    cfg,
		webServer: webServer,
		logger:    config.GetLoggerWithPrefix("webserver-manager"),
		ctx:       childCtx,
		cancel:    cancel,
	}, nil
}

// Start 启动webserver，监听失败时同步返回错误
func (m *Manager) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.running {
		return fmt.Errorf("webserver manager already running")
	}

	if !m.config.Enabled {
		m.logger.Info("Webserver disabled, skipping start")
		return nil
	}

	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.webServer.GetHandler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		var err error
		if m.config.EnableTLS {
			err = m.server.ServeTLS(listener, m.config.TLS.CertFile, m.config.TLS.KeyFile)
		} else {
			err = m.server.Serve(listener)
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Errorf("Webserver error: %v", err)
		}
	}()

	m.webServer.setRunning(true)
	m.running = true
	m.startTime = time.Now()

	m.logger.Infof("Webserver started successfully on %s", m.addressLocked())
	return nil
}

// Stop 优雅关闭HTTP服务器，超时后强制关闭
func (m *Manager) Stop(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.running {
		return nil
	}

	m.logger.Debug("Stopping webserver manager...")

	if m.cancel != nil {
		m.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := m.server.Shutdown(shutdownCtx); err != nil {
		m.logger.Warnf("HTTP server shutdown timeout, forcing close: %v", err)
		if closeErr := m.server.Close(); closeErr != nil {
			m.logger.Errorf("Error during server force close: %v", closeErr)
		}
	}

	m.webServer.setRunning(false)
	m.running = false
	m.logger.Info("Webserver manager stopped")
	return nil
}

// IsEnabled 检查webserver组件是否启用
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled
}

// IsRunning 检查webserver管理器是否正在运行
func (m *Manager) IsRunning() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.running
}

// GetStats 获取webserver管理器的统计信息
func (m *Manager) GetStats() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := map[string]interface{}{
		"running":      m.running,
		"address":      m.addressLocked(),
		"tls_enabled":  m.config.EnableTLS,
		"cors_enabled": m.config.EnableCORS,
		"components":   m.webServer.ListComponents(),
	}
	if m.running {
		stats["start_time"] = m.startTime.Unix()
		stats["uptime"] = time.Since(m.startTime).Seconds()
	}
	return stats
}

// GetContext 获取组件的上下文
func (m *Manager) GetContext() context.Context {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.ctx
}

// SetupRoutes webserver自身的路由在 WebServer 中设置
func (m *Manager) SetupRoutes(router *mux.Router) error {
	return nil
}

// RegisterComponent 将组件路由挂载到webserver上
func (m *Manager) RegisterComponent(name string, component ComponentManager) error {
	return m.webServer.RegisterComponent(name, component)
}

// GetWebServer 获取webserver实例
func (m *Manager) GetWebServer() *WebServer {
	return m.webServer
}

// GetAddress 获取服务器地址，启动后为实际监听地址
func (m *Manager) GetAddress() string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.addressLocked()
}

func (m *Manager) addressLocked() string {
	protocol := "http"
	if m.config.EnableTLS {
		protocol = "https"
	}
	if m.listener != nil && m.running {
		return fmt.Sprintf("%s://%s", protocol, m.listener.Addr())
	}
	return fmt.Sprintf("%s://%s", protocol, net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port)))
}
