package webrtc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-viewer/internal/config"
	"github.com/open-beagle/bdwind-viewer/internal/events"
	"github.com/open-beagle/bdwind-viewer/internal/signaling"
)

// ManagerConfig 流管理器的依赖，未提供的部分根据 Config 构建
type ManagerConfig struct {
	Config *config.Config

	Signaling  SignalingClient
	Factory    PeerConnectionFactory
	Bus        events.EventBus
	Observer   Observer
	PacketSink PacketSink
	MediaSink  MediaSink
}

// Manager 为每个流标识维护一个监督者
type Manager struct {
	config     *config.Config
	sessionCfg SessionConfig
	bus        events.EventBus
	logger     *logrus.Entry
	upgrader   websocket.Upgrader

	streams map[string]*Supervisor
	order   []string

	running   bool
	startTime time.Time
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager 创建流管理器
func NewManager(ctx context.Context, cfg *ManagerConfig) (*Manager, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, fmt.Errorf("manager config is required")
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := config.GetLoggerWithPrefix("stream-manager")

	client := cfg.Signaling
	if client == nil {
		c, err := signaling.NewClient(cfg.Config.Signaling, nil)
		if err != nil {
			return nil, err
		}
		client = c
	}

	factory := cfg.Factory
	if factory == nil {
		f, err := NewPionFactory(FactoryOptions{
			IncludeLoopback: cfg.Config.WebRTC.IncludeLoopback,
			DisableMDNS:     cfg.Config.WebRTC.DisableMDNS,
			LoggerFactory:   NewLogrusLoggerFactory(cfg.Config.Logging.PionLevel, config.GetLoggerWithPrefix("pion")),
		})
		if err != nil {
			return nil, err
		}
		factory = f
	}

	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	childCtx, cancel := context.WithCancel(ctx)

	m := &Manager{
		config: cfg.Config,
		sessionCfg: SessionConfig{
			Signaling:          client,
			Factory:            factory,
			FallbackICEServers: toWebRTCICEServers(cfg.Config.WebRTC.FallbackICEServers),
			GatherTimeout:      cfg.Config.WebRTC.GatherTimeout,
			Observer:           observer,
			PacketSink:         cfg.PacketSink,
			MediaSink:          cfg.MediaSink,
		},
		bus:     cfg.Bus,
		logger:  logger,
		streams: make(map[string]*Supervisor),
		ctx:     childCtx,
		cancel:  cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
	}

	logger.Debug("Stream manager created")
	return m, nil
}

func toWebRTCICEServers(servers []config.ICEServerConfig) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: append([]string(nil), s.URLs...)}
		if s.Username != "" || s.Credential != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	return out
}

// Start 为配置中的每个流启动监督者
func (m *Manager) Start(ctx context.Context) error {
	m.mutex.Lock()
	if m.running {
		m.mutex.Unlock()
		m.logger.Debug("Stream manager already running")
		return nil
	}
	m.running = true
	m.startTime = time.Now()
	m.mutex.Unlock()

	ids := m.config.Viewer.Streams
	if len(ids) == 0 {
		m.logger.Warn("No streams available")
		return nil
	}

	m.logger.Infof("Starting %d streams", len(ids))
	var errs []error
	for _, id := range ids {
		if _, err := m.StartStream(id); err != nil {
			errs = append(errs, fmt.Errorf("stream %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Stop 释放所有监督者
func (m *Manager) Stop(ctx context.Context) error {
	m.mutex.Lock()
	if !m.running {
		m.mutex.Unlock()
		return nil
	}
	m.running = false
	sups := make([]*Supervisor, 0, len(m.streams))
	for _, id := range m.order {
		sups = append(sups, m.streams[id])
	}
	m.streams = make(map[string]*Supervisor)
	m.order = nil
	m.mutex.Unlock()

	m.logger.Infof("Stopping %d streams", len(sups))

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, sup := range sups {
			wg.Add(1)
			go func(s *Supervisor) {
				defer wg.Done()
				s.Dispose()
				m.publish(events.EventStreamStopped, s.StreamID())
			}(sup)
		}
		wg.Wait()
		close(done)
	}()

	defer m.cancel()
	select {
	case <-done:
		m.logger.Info("Stream manager stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stream manager stop: %w", ctx.Err())
	}
}

// StartStream 为一个流标识启动监督者
func (m *Manager) StartStream(id string) (*Supervisor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidStreamID
	}

	m.mutex.Lock()
	if !m.running {
		m.mutex.Unlock()
		return nil, ErrManagerNotRunning
	}
	if _, exists := m.streams[id]; exists {
		m.mutex.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrStreamExists, id)
	}

	sup, err := NewSupervisor(id, SupervisorConfig{
		Session:     m.sessionCfg,
		RetryDelay:  m.config.WebRTC.RetryDelay,
		RetryJitter: m.config.WebRTC.RetryJitter,
		Bus:         m.bus,
	})
	if err != nil {
		m.mutex.Unlock()
		return nil, err
	}
	m.streams[id] = sup
	m.order = append(m.order, id)
	m.mutex.Unlock()

	m.publish(events.EventStreamStarted, id)
	if err := sup.Start(); err != nil {
		return nil, err
	}
	return sup, nil
}

// StopStream 释放一个流的监督者
func (m *Manager) StopStream(id string) error {
	m.mutex.Lock()
	sup, exists := m.streams[id]
	if !exists {
		m.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrStreamNotFound, id)
	}
	delete(m.streams, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mutex.Unlock()

	sup.Dispose()
	m.publish(events.EventStreamStopped, id)
	return nil
}

// Reconnect 立即重建一个流的会话
func (m *Manager) Reconnect(id string) error {
	sup, ok := m.Supervisor(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, id)
	}
	return sup.Reconnect()
}

// Supervisor 按流标识查找监督者
func (m *Manager) Supervisor(id string) (*Supervisor, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	sup, ok := m.streams[id]
	return sup, ok
}

// Status 单个流的状态
func (m *Manager) Status(id string) (StreamStatus, error) {
	sup, ok := m.Supervisor(id)
	if !ok {
		return StreamStatus{}, fmt.Errorf("%w: %s", ErrStreamNotFound, id)
	}
	return sup.Status(), nil
}

// Statuses 按启动顺序返回所有流的状态
func (m *Manager) Statuses() []StreamStatus {
	m.mutex.RLock()
	sups := make([]*Supervisor, 0, len(m.order))
	for _, id := range m.order {
		sups = append(sups, m.streams[id])
	}
	m.mutex.RUnlock()

	statuses := make([]StreamStatus, 0, len(sups))
	for _, sup := range sups {
		statuses = append(statuses, sup.Status())
	}
	return statuses
}

// Streams 流列表响应，没有任何流时 Available 为 false
func (m *Manager) Streams() StreamsResponse {
	statuses := m.Statuses()
	if len(statuses) == 0 {
		return StreamsResponse{
			Available: false,
			Message:   ErrNoStreams.Error(),
			Streams:   statuses,
		}
	}
	return StreamsResponse{Available: true, Streams: statuses}
}

// IsRunning 检查运行状态
func (m *Manager) IsRunning() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.running
}

// IsEnabled 流管理器总是启用
func (m *Manager) IsEnabled() bool {
	return true
}

// GetContext 获取上下文
func (m *Manager) GetContext() context.Context {
	return m.ctx
}

// GetStats 获取统计信息
func (m *Manager) GetStats() map[string]interface{} {
	m.mutex.RLock()
	running := m.running
	startTime := m.startTime
	m.mutex.RUnlock()

	stats := map[string]interface{}{
		"running":    running,
		"start_time": startTime,
	}
	if !running {
		return stats
	}

	byStatus := map[string]int{}
	tracks := 0
	retries := 0
	statuses := m.Statuses()
	for _, st := range statuses {
		byStatus[string(st.Status)]++
		tracks += len(st.Tracks)
		if st.RetryPending {
			retries++
		}
	}

	stats["uptime"] = time.Since(startTime).Seconds()
	stats["streams"] = len(statuses)
	stats["by_status"] = byStatus
	stats["tracks"] = tracks
	stats["retries_pending"] = retries
	return stats
}

// HealthCheck 管理器未运行时不健康；单个流失败不影响健康状态，会自动重试
func (m *Manager) HealthCheck() (map[string]interface{}, error) {
	if !m.IsRunning() {
		return nil, ErrManagerNotRunning
	}

	connected := 0
	statuses := m.Statuses()
	for _, st := range statuses {
		if st.Status == StatusConnected {
			connected++
		}
	}
	return map[string]interface{}{
		"healthy":   true,
		"streams":   len(statuses),
		"connected": connected,
	}, nil
}

func (m *Manager) publish(eventType events.EventType, streamID string) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(events.NewEvent(eventType, streamID, "", nil)); err != nil {
		m.logger.Debugf("Failed to publish %s: %v", eventType, err)
	}
}

// SetupRoutes 注册流管理API
func (m *Manager) SetupRoutes(router *mux.Router) error {
	return newStreamHandlers(m).setupRoutes(router)
}
