package webrtc

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-viewer/internal/config"
	"github.com/open-beagle/bdwind-viewer/internal/events"
)

const defaultRetryDelay = 3 * time.Second

// SupervisorConfig 监督者配置
type SupervisorConfig struct {
	Session SessionConfig

	// RetryDelay 失败到重建会话之间的固定间隔
	RetryDelay time.Duration

	// RetryJitter 在 RetryDelay 上追加 [0, RetryJitter) 的随机延迟
	RetryJitter time.Duration

	Bus events.EventBus

	// OnStatus 每次状态变化时调用，不能阻塞
	OnStatus func(StreamStatus)
}

// Supervisor 保证一个流始终有且只有一个会话，并在失败后按固定间隔重建
type Supervisor struct {
	streamID string
	cfg      SupervisorConfig
	logger   *logrus.Entry

	mutex    sync.Mutex
	current  *Session
	timer    *time.Timer
	retryGen uint64
	attempts int
	retries  int
	started  bool
	disposed bool
}

// NewSupervisor 创建监督者，调用 Start 后才会建立会话
func NewSupervisor(streamID string, cfg SupervisorConfig) (*Supervisor, error) {
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return nil, ErrInvalidStreamID
	}
	if cfg.Session.Signaling == nil {
		return nil, errors.New("signaling client is required")
	}
	if cfg.Session.Factory == nil {
		return nil, errors.New("peer connection factory is required")
	}
	if cfg.Session.Observer == nil {
		cfg.Session.Observer = NopObserver{}
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.RetryJitter < 0 {
		cfg.RetryJitter = 0
	}

	return &Supervisor{
		streamID: streamID,
		cfg:      cfg,
		logger:   config.GetLoggerWithPrefix("supervisor").WithField("stream_id", streamID),
	}, nil
}

// StreamID 流标识
func (sup *Supervisor) StreamID() string { return sup.streamID }

// Start 建立第一个会话，重复调用无效
func (sup *Supervisor) Start() error {
	sup.mutex.Lock()
	if sup.disposed {
		sup.mutex.Unlock()
		return ErrSupervisorDisposed
	}
	if sup.started {
		sup.mutex.Unlock()
		return nil
	}
	sup.started = true
	sup.startSessionLocked()
	sup.mutex.Unlock()

	sup.logger.Info("Stream supervisor started")
	sup.publishStatus()
	return nil
}

// RequestRetry 安排一次重建。已有待执行的重试时不做任何事。
func (sup *Supervisor) RequestRetry() {
	sup.mutex.Lock()
	scheduled := false
	if !sup.disposed {
		scheduled = sup.requestRetryLocked()
	}
	sup.mutex.Unlock()

	if scheduled {
		sup.publishStatus()
	}
}

// CancelPendingRetry 取消待执行的重试
func (sup *Supervisor) CancelPendingRetry() {
	sup.mutex.Lock()
	cancelled := sup.cancelRetryLocked()
	sup.mutex.Unlock()

	if cancelled {
		sup.logger.Debug("Pending retry cancelled")
	}
}

// Reconnect 立即用新会话替换当前会话
func (sup *Supervisor) Reconnect() error {
	sup.mutex.Lock()
	if sup.disposed {
		sup.mutex.Unlock()
		return ErrSupervisorDisposed
	}
	sup.started = true
	sup.cancelRetryLocked()
	old := sup.current
	sup.current = nil
	sup.mutex.Unlock()

	sup.logger.Info("Manual reconnect requested")
	sup.replace(old)
	return nil
}

// Dispose 取消重试并拆除当前会话，可重复调用
func (sup *Supervisor) Dispose() {
	sup.mutex.Lock()
	if sup.disposed {
		sup.mutex.Unlock()
		return
	}
	sup.disposed = true
	sup.cancelRetryLocked()
	old := sup.current
	sup.current = nil
	sup.mutex.Unlock()

	if old != nil {
		old.Close()
	}
	sup.logger.Info("Stream supervisor disposed")
	sup.publishStatus()
}

// Session 当前会话，重建过程中可能为 nil
func (sup *Supervisor) Session() *Session {
	sup.mutex.Lock()
	defer sup.mutex.Unlock()
	return sup.current
}

// RetryPending 是否有待执行的重试
func (sup *Supervisor) RetryPending() bool {
	sup.mutex.Lock()
	defer sup.mutex.Unlock()
	return sup.timer != nil
}

// Attempts 已建立的会话数
func (sup *Supervisor) Attempts() int {
	sup.mutex.Lock()
	defer sup.mutex.Unlock()
	return sup.attempts
}

// Disposed 是否已释放
func (sup *Supervisor) Disposed() bool {
	sup.mutex.Lock()
	defer sup.mutex.Unlock()
	return sup.disposed
}

// Status 当前状态快照
func (sup *Supervisor) Status() StreamStatus {
	sup.mutex.Lock()
	sess := sup.current
	pending := sup.timer != nil
	attempts := sup.attempts
	disposed := sup.disposed
	sup.mutex.Unlock()

	var status StreamStatus
	if sess != nil {
		status = sess.Snapshot()
	} else {
		status = StreamStatus{
			StreamID: sup.streamID,
			Status:   StatusConnecting,
			Tracks:   []TrackInfo{},
			Since:    time.Now(),
		}
		if disposed {
			status.Status = StatusClosed
		}
	}
	status.Attempts = attempts
	status.RetryPending = pending
	return status
}

func (sup *Supervisor) startSessionLocked() *Session {
	sup.attempts++
	sess := newSession(sup.streamID, sup.cfg.Session, sessionHooks{
		statusChanged: sup.onSessionStatus,
		connected:     sup.onSessionConnected,
		retryNeeded:   sup.onSessionRetry,
		trackAdded:    sup.onSessionTrack,
	})
	sup.current = sess
	sess.Start()

	sup.logger.WithField("session_id", sess.ID()).Infof("Session attempt %d started", sup.attempts)
	return sess
}

// replace 先拆除旧会话再建立新会话，两者不会同时存在
func (sup *Supervisor) replace(old *Session) {
	if old != nil {
		old.Close()
	}

	sup.mutex.Lock()
	if sup.disposed || sup.current != nil {
		sup.mutex.Unlock()
		return
	}
	sup.startSessionLocked()
	sup.mutex.Unlock()

	sup.publishStatus()
}

func (sup *Supervisor) requestRetryLocked() bool {
	if sup.timer != nil {
		return false
	}

	sup.retryGen++
	gen := sup.retryGen
	delay := sup.retryDelay()
	sup.timer = time.AfterFunc(delay, func() { sup.fireRetry(gen) })
	sup.retries++

	sup.cfg.Session.Observer.RetryScheduled(sup.streamID)
	sup.publish(events.EventRetryScheduled, "", map[string]interface{}{
		"delay":   delay.String(),
		"attempt": sup.attempts,
	})
	sup.logger.Infof("Retry scheduled in %v", delay)
	return true
}

func (sup *Supervisor) cancelRetryLocked() bool {
	if sup.timer == nil {
		return false
	}
	sup.timer.Stop()
	sup.timer = nil
	sup.retryGen++
	return true
}

func (sup *Supervisor) retryDelay() time.Duration {
	if sup.cfg.RetryJitter <= 0 {
		return sup.cfg.RetryDelay
	}
	return sup.cfg.RetryDelay + rand.N(sup.cfg.RetryJitter)
}

func (sup *Supervisor) fireRetry(gen uint64) {
	sup.mutex.Lock()
	if sup.disposed || sup.timer == nil || gen != sup.retryGen {
		sup.mutex.Unlock()
		return
	}
	sup.timer = nil
	old := sup.current
	sup.current = nil
	sup.mutex.Unlock()

	sup.logger.Info("Retrying connection")
	sup.replace(old)
}

func (sup *Supervisor) isCurrent(sess *Session) bool {
	sup.mutex.Lock()
	defer sup.mutex.Unlock()
	return !sup.disposed && sup.current == sess
}

func (sup *Supervisor) onSessionStatus(sess *Session) {
	if sup.isCurrent(sess) {
		sup.publishStatus()
	}
}

func (sup *Supervisor) onSessionConnected(sess *Session) {
	sup.mutex.Lock()
	if sup.disposed || sup.current != sess {
		sup.mutex.Unlock()
		return
	}
	cancelled := sup.cancelRetryLocked()
	sup.mutex.Unlock()

	if cancelled {
		sup.logger.Info("Connection recovered, pending retry cancelled")
		sup.publishStatus()
	}
}

func (sup *Supervisor) onSessionRetry(sess *Session) {
	sup.mutex.Lock()
	if sup.disposed || sup.current != sess {
		sup.mutex.Unlock()
		return
	}
	scheduled := sup.requestRetryLocked()
	sup.mutex.Unlock()

	if scheduled {
		sup.publishStatus()
	}
}

func (sup *Supervisor) onSessionTrack(sess *Session, track RemoteTrack) {
	if !sup.isCurrent(sess) {
		return
	}
	sup.publish(events.EventTrackAdded, sess.ID(), map[string]interface{}{
		"track_id": track.ID(),
		"kind":     track.Kind().String(),
		"codec":    track.Codec().MimeType,
	})
	sup.publishStatus()
}

func (sup *Supervisor) publishStatus() {
	status := sup.Status()
	if sup.cfg.OnStatus != nil {
		sup.cfg.OnStatus(status)
	}
	sup.publish(events.EventStatusChanged, status.SessionID, map[string]interface{}{
		"status": status,
	})
}

func (sup *Supervisor) publish(eventType events.EventType, sessionID string, data map[string]interface{}) {
	if sup.cfg.Bus == nil {
		return
	}
	if err := sup.cfg.Bus.Publish(events.NewEvent(eventType, sup.streamID, sessionID, data)); err != nil {
		sup.logger.Debugf("Failed to publish %s: %v", eventType, err)
	}
}

// String 便于日志输出
func (sup *Supervisor) String() string {
	return fmt.Sprintf("supervisor(%s)", sup.streamID)
}
