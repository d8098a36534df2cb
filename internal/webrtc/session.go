package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-viewer/internal/config"
	"github.com/open-beagle/bdwind-viewer/internal/signaling"
)

const defaultGatherTimeout = 5 * time.Second

// SignalingClient 会话使用的信令操作，*signaling.Client 实现该接口
type SignalingClient interface {
	FetchICEServers(ctx context.Context) ([]signaling.ICEServer, error)
	FetchCodecs(ctx context.Context, streamID string) ([]signaling.Codec, error)
	ExchangeOffer(ctx context.Context, streamID, offerSDP string) (string, error)
}

// SessionConfig 创建会话所需的依赖
type SessionConfig struct {
	Signaling SignalingClient
	Factory   PeerConnectionFactory

	// FallbackICEServers 信令服务没有下发ICE服务器时使用
	FallbackICEServers []webrtc.ICEServer

	// GatherTimeout ICE收集等待上限，超时后使用已有候选继续
	GatherTimeout time.Duration

	Observer   Observer
	PacketSink PacketSink
	MediaSink  MediaSink
}

// sessionHooks 会话向其所有者报告的回调，调用时不持有会话锁
type sessionHooks struct {
	statusChanged func(s *Session)
	connected     func(s *Session)
	retryNeeded   func(s *Session)
	trackAdded    func(s *Session, track RemoteTrack)
}

// Session 一次协商及其对等连接的完整生命周期
type Session struct {
	id       string
	streamID string
	cfg      SessionConfig
	hooks    sessionHooks
	media    *MediaCollection
	logger   *logrus.Entry

	mutex    sync.Mutex
	pc       PeerConnection
	status   ConnectionStatus
	lastErr  string
	iceState webrtc.ICEConnectionState
	since    time.Time
	started  bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(streamID string, cfg SessionConfig, hooks sessionHooks) *Session {
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = defaultGatherTimeout
	}

	id := uuid.NewString()
	logger := config.GetLoggerWithPrefix("session").WithFields(logrus.Fields{
		"stream_id":  streamID,
		"session_id": id,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		streamID: streamID,
		cfg:      cfg,
		hooks:    hooks,
		logger:   logger,
		status:   StatusConnecting,
		since:    time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.media = newMediaCollection(streamID, cfg.PacketSink, cfg.Observer, logger)
	if cfg.MediaSink != nil {
		s.media.Bind(cfg.MediaSink)
	}
	return s
}

// ID 会话ID
func (s *Session) ID() string { return s.id }

// StreamID 流标识
func (s *Session) StreamID() string { return s.streamID }

// Media 已接收的轨道集合
func (s *Session) Media() *MediaCollection { return s.media }

// Done 协商goroutine退出后关闭
func (s *Session) Done() <-chan struct{} { return s.done }

// Status 当前连接状态和最近一次错误
func (s *Session) Status() (ConnectionStatus, string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.status, s.lastErr
}

// Snapshot 生成状态快照，Attempts 和 RetryPending 由监督者填写
func (s *Session) Snapshot() StreamStatus {
	s.mutex.Lock()
	status := StreamStatus{
		StreamID:  s.streamID,
		SessionID: s.id,
		Status:    s.status,
		Error:     s.lastErr,
		Since:     s.since,
	}
	if s.iceState != webrtc.ICEConnectionStateUnknown {
		status.ICEState = s.iceState.String()
	}
	s.mutex.Unlock()

	status.Tracks = s.media.Tracks()
	return status
}

// Start 在独立goroutine中开始协商，只能调用一次
func (s *Session) Start() {
	s.mutex.Lock()
	if s.started || s.closed {
		s.mutex.Unlock()
		return
	}
	s.started = true
	s.mutex.Unlock()

	s.cfg.Observer.SessionStarted(s.streamID)
	s.cfg.Observer.StatusChanged(s.streamID, "", StatusConnecting)
	go s.negotiate()
}

// Close 拆除会话，可重复调用。
// 关闭后的所有回调都被忽略。
func (s *Session) Close() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true
	from := s.status
	s.status = StatusClosed
	s.since = time.Now()
	pc := s.pc
	started := s.started
	s.mutex.Unlock()

	s.cancel()
	if !started {
		close(s.done)
	}

	if pc != nil {
		if err := pc.Close(); err != nil {
			s.logger.Warnf("Failed to close peer connection: %v", err)
		}
	}
	s.cfg.Observer.StatusChanged(s.streamID, from, StatusClosed)
	s.logger.Debug("Session closed")
}

func (s *Session) isClosed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}

// owns 回调来源是否仍是本会话当前的对等连接
func (s *Session) owns(pc PeerConnection) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return !s.closed && s.pc == pc
}

func (s *Session) negotiate() {
	defer close(s.done)

	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNegotiationPanic, r)
		}
		if err != nil && s.isClosed() {
			return
		}
		s.cfg.Observer.NegotiationFinished(s.streamID, time.Since(start), ClassifyError(err))
		if err != nil {
			s.fail(err)
		}
	}()

	s.setStatus(StatusConnecting, "")
	err = s.runNegotiation(s.ctx)
}

func (s *Session) runNegotiation(ctx context.Context) error {
	// 信令错误自带操作名和流ID，原样返回
	servers, err := s.cfg.Signaling.FetchICEServers(ctx)
	if err != nil {
		return err
	}

	iceServers := signaling.ToWebRTC(servers)
	if len(iceServers) == 0 {
		iceServers = s.cfg.FallbackICEServers
	}
	s.logger.Debugf("Using %d ICE servers", len(iceServers))

	pc, err := s.cfg.Factory.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return err
	}
	if !s.attach(pc) {
		_ = pc.Close()
		return ErrSessionClosed
	}
	s.registerHandlers(pc)

	codecs, err := s.cfg.Signaling.FetchCodecs(ctx, s.streamID)
	if err != nil {
		return err
	}
	for _, codec := range codecs {
		kind, err := codec.Kind()
		if err != nil {
			return err
		}
		if err := pc.AddRecvOnlyTransceiver(kind); err != nil {
			return fmt.Errorf("failed to add %s transceiver: %w", kind, err)
		}
	}
	if err := ensureReceiveKinds(pc); err != nil {
		return err
	}

	offer, err := pc.CreateOffer()
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	gatherComplete := pc.GatheringComplete()
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	if err := s.waitForGathering(ctx, gatherComplete); err != nil {
		return err
	}

	local := pc.LocalDescription()
	if local == nil {
		local = &offer
	}

	answer, err := s.cfg.Signaling.ExchangeOffer(ctx, s.streamID, local.SDP)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	s.logger.Info("Negotiation complete, waiting for ICE connectivity")
	return nil
}

// waitForGathering 超时不算错误，使用当前本地描述继续
func (s *Session) waitForGathering(ctx context.Context, complete <-chan struct{}) error {
	timer := time.NewTimer(s.cfg.GatherTimeout)
	defer timer.Stop()

	select {
	case <-complete:
		s.logger.Debug("ICE gathering complete")
		return nil
	case <-timer.C:
		s.logger.Warnf("ICE gathering did not complete within %v, sending offer with gathered candidates", s.cfg.GatherTimeout)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) attach(pc PeerConnection) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return false
	}
	s.pc = pc
	return true
}

func (s *Session) registerHandlers(pc PeerConnection) {
	pc.OnTrack(func(track RemoteTrack) {
		if !s.owns(pc) {
			return
		}
		s.media.Add(track)
		if s.hooks.trackAdded != nil {
			s.hooks.trackAdded(s, track)
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.handleICEState(pc, state)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if !s.owns(pc) {
			return
		}
		s.logger.Debugf("Peer connection state: %s", state)
	})

	pc.OnICEGatheringStateChange(func(state webrtc.ICEGatheringState) {
		if !s.owns(pc) {
			return
		}
		s.logger.Debugf("ICE gathering state: %s", state)
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil || !s.owns(pc) {
			return
		}
		s.logger.Tracef("Local ICE candidate: %s", candidate.String())
	})
}

func (s *Session) handleICEState(pc PeerConnection, state webrtc.ICEConnectionState) {
	s.mutex.Lock()
	if s.closed || s.pc != pc {
		s.mutex.Unlock()
		return
	}
	s.iceState = state

	var (
		next      ConnectionStatus
		message   string
		retry     bool
		connected bool
	)
	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		next, connected = StatusConnected, true
	case webrtc.ICEConnectionStateDisconnected:
		next, retry = StatusConnecting, true
	case webrtc.ICEConnectionStateFailed:
		next, message, retry = StatusFailed, connectionFailedMessage, true
	case webrtc.ICEConnectionStateClosed:
		next = StatusFailed
	default:
		s.mutex.Unlock()
		s.logger.Debugf("ICE connection state: %s", state)
		s.cfg.Observer.ICEStateChanged(s.streamID, state.String())
		return
	}
	from, changed := s.setStatusLocked(next, message)
	s.mutex.Unlock()

	s.logger.Infof("ICE connection state: %s", state)
	s.cfg.Observer.ICEStateChanged(s.streamID, state.String())
	if changed {
		s.cfg.Observer.StatusChanged(s.streamID, from, next)
	}
	if state == webrtc.ICEConnectionStateFailed {
		s.cfg.Observer.SessionFailed(s.streamID, ClassifyError(ErrConnectionFailed))
	}
	if connected && s.hooks.connected != nil {
		s.hooks.connected(s)
	}
	if retry && s.hooks.retryNeeded != nil {
		s.hooks.retryNeeded(s)
	}
	if changed {
		s.notifyStatus()
	}
}

// fail 记录错误并请求重试
func (s *Session) fail(err error) {
	if errors.Is(err, ErrSessionClosed) {
		return
	}
	s.logger.Errorf("Session failed: %v", err)

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	from, changed := s.setStatusLocked(StatusFailed, err.Error())
	s.mutex.Unlock()

	if changed {
		s.cfg.Observer.StatusChanged(s.streamID, from, StatusFailed)
	}
	s.cfg.Observer.SessionFailed(s.streamID, ClassifyError(err))
	if s.hooks.retryNeeded != nil {
		s.hooks.retryNeeded(s)
	}
	s.notifyStatus()
}

func (s *Session) setStatus(status ConnectionStatus, message string) {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	from, changed := s.setStatusLocked(status, message)
	s.mutex.Unlock()

	if changed {
		s.cfg.Observer.StatusChanged(s.streamID, from, status)
	}
	s.notifyStatus()
}

func (s *Session) setStatusLocked(status ConnectionStatus, message string) (ConnectionStatus, bool) {
	from := s.status
	changed := from != status || s.lastErr != message
	s.status = status
	s.lastErr = message
	if from != status {
		s.since = time.Now()
	}
	return from, changed
}

func (s *Session) notifyStatus() {
	if s.hooks.statusChanged != nil {
		s.hooks.statusChanged(s)
	}
}
