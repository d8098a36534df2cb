package webserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-viewer/internal/config"
)

// VersionInfo 版本信息，由 main 在构建时注入
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
}

// WebServer 状态API服务器
type WebServer struct {
	config     *config.WebServerConfig
	router     *mux.Router
	version    VersionInfo
	logger     *logrus.Entry
	mutex      sync.RWMutex
	running    bool
	startTime  time.Time
	components map[string]ComponentManager // 注册的组件
	order      []string
}

var _ ComponentRegistry = (*WebServer)(nil)

// NewWebServer 创建Web服务器
func NewWebServer(cfg *config.WebServerConfig, version VersionInfo) (*WebServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("webserver config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if version.GoVersion == "" {
		version.GoVersion = runtime.Version()
	}

	return &WebServer{
		config:     cfg,
		router:     mux.NewRouter(),
		version:    version,
		logger:     config.GetLoggerWithPrefix("webserver"),
		startTime:  time.Now(),
		components: make(map[string]ComponentManager),
	}, nil
}

// GetRouter 获取路由器实例
func (ws *WebServer) GetRouter() *mux.Router {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	return ws.router
}

// GetHandler 重建路由并返回HTTP处理器，组件路由在此时挂载
func (ws *WebServer) GetHandler() http.Handler {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	ws.setupRoutes()
	return ws.router
}

func (ws *WebServer) setRunning(running bool) {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()
	ws.running = running
	if running {
		ws.startTime = time.Now()
	}
}

// IsRunning 检查服务器是否运行中
func (ws *WebServer) IsRunning() bool {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	return ws.running
}

// RegisterComponent 注册组件
func (ws *WebServer) RegisterComponent(name string, component ComponentManager) error {
	if component == nil {
		return fmt.Errorf("component %s is nil", name)
	}

	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if _, exists := ws.components[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}

	// 服务器已运行时立即挂载路由
	if ws.running {
		if err := component.SetupRoutes(ws.router); err != nil {
			return fmt.Errorf("failed to setup routes for component %s: %w", name, err)
		}
	}

	ws.components[name] = component
	ws.order = append(ws.order, name)
	ws.logger.Debugf("Component %s registered", name)
	return nil
}

// UnregisterComponent 注销组件，已挂载的路由在重建前仍然有效
func (ws *WebServer) UnregisterComponent(name string) error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if _, exists := ws.components[name]; !exists {
		return fmt.Errorf("component %s not found", name)
	}

	delete(ws.components, name)
	for i, n := range ws.order {
		if n == name {
			ws.order = append(ws.order[:i], ws.order[i+1:]...)
			break
		}
	}
	ws.logger.Debugf("Component %s unregistered", name)
	return nil
}

// GetComponent 获取已注册的组件
func (ws *WebServer) GetComponent(name string) (ComponentManager, bool) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	component, exists := ws.components[name]
	return component, exists
}

// ListComponents 按名称排序列出所有已注册的组件
func (ws *WebServer) ListComponents() []string {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	names := make([]string, 0, len(ws.components))
	for name := range ws.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// setupComponentRoutes 按注册顺序设置组件路由
// 调用方必须持有写锁
func (ws *WebServer) setupComponentRoutes() error {
	for _, name := range ws.order {
		if err := ws.components[name].SetupRoutes(ws.router); err != nil {
			return fmt.Errorf("failed to setup routes for component %s: %w", name, err)
		}
		ws.logger.Debugf("Routes for component %s setup successfully", name)
	}
	return nil
}

// API处理器
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ws.mutex.RLock()
	components := make(map[string]interface{}, len(ws.components))
	for name, component := range ws.components {
		components[name] = map[string]interface{}{
			"enabled": component.IsEnabled(),
			"running": component.IsRunning(),
		}
	}
	status := map[string]interface{}{
		"status":     "running",
		"timestamp":  time.Now().Unix(),
		"uptime":     time.Since(ws.startTime).Seconds(),
		"components": components,
		"version":    ws.version.Version,
	}
	ws.mutex.RUnlock()

	ws.writeJSON(w, http.StatusOK, status)
}

func (ws *WebServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, ws.version)
}

// handleHealth 汇总实现了 HealthChecker 的组件，任一不健康返回503
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.mutex.RLock()
	checkers := make(map[string]HealthChecker)
	for name, component := range ws.components {
		if checker, ok := component.(HealthChecker); ok {
			checkers[name] = checker
		}
	}
	running := ws.running
	ws.mutex.RUnlock()

	checks := map[string]interface{}{
		"webserver": running,
	}
	healthy := true
	for name, checker := range checkers {
		result, err := checker.HealthCheck()
		if err != nil {
			healthy = false
			checks[name] = map[string]interface{}{"healthy": false, "error": err.Error()}
			continue
		}
		checks[name] = result
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	ws.writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// handleComponentList 处理组件列表请求
func (ws *WebServer) handleComponentList(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, map[string]interface{}{
		"components": ws.ListComponents(),
	})
}

// handleComponentStats 处理单个组件统计信息请求
func (ws *WebServer) handleComponentStats(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	component, ok := ws.GetComponent(name)
	if !ok {
		ws.writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("component %s not found", name),
		})
		return
	}
	ws.writeJSON(w, http.StatusOK, component.GetStats())
}

func (ws *WebServer) handleNotFound(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// 工具方法
func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Warnf("Failed to encode JSON: %v", err)
	}
}
