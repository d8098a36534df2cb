package webrtc

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/open-beagle/bdwind-viewer/internal/signaling"
)

const testAnswerSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=sendonly\r\n" +
	"a=rtpmap:96 H264/90000\r\n"

// fakeSignaling 内存信令实现
type fakeSignaling struct {
	mu sync.Mutex

	iceServers []signaling.ICEServer
	codecs     []signaling.Codec
	answer     string

	iceErr      error
	codecErr    error
	exchangeErr error

	// exchangeBlock 非空时 ExchangeOffer 阻塞到关闭或 ctx 取消
	exchangeBlock chan struct{}

	offers        []string
	exchangeCalls int
	exchanged     chan string
}

func newFakeSignaling() *fakeSignaling {
	return &fakeSignaling{
		codecs:    []signaling.Codec{{Type: "video"}, {Type: "audio"}},
		answer:    testAnswerSDP,
		exchanged: make(chan string, 16),
	}
}

func (f *fakeSignaling) FetchICEServers(ctx context.Context) ([]signaling.ICEServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.iceServers, f.iceErr
}

func (f *fakeSignaling) FetchCodecs(ctx context.Context, streamID string) ([]signaling.Codec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codecs, f.codecErr
}

func (f *fakeSignaling) ExchangeOffer(ctx context.Context, streamID, offerSDP string) (string, error) {
	f.mu.Lock()
	f.exchangeCalls++
	f.offers = append(f.offers, offerSDP)
	block := f.exchangeBlock
	answer, err := f.answer, f.exchangeErr
	f.mu.Unlock()

	select {
	case f.exchanged <- offerSDP:
	default:
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return answer, err
}

func (f *fakeSignaling) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchangeCalls
}

// fakePC 可手动触发回调的对等连接
type fakePC struct {
	mu sync.Mutex

	kinds       []webrtc.RTPCodecType
	config      webrtc.Configuration
	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	gather      chan struct{}
	gatherNever bool
	closeCount  int

	onTrack     func(RemoteTrack)
	onICE       func(webrtc.ICEConnectionState)
	onConn      func(webrtc.PeerConnectionState)
	onGathering func(webrtc.ICEGatheringState)
	onCandidate func(*webrtc.ICECandidate)
}

func (p *fakePC) AddRecvOnlyTransceiver(kind webrtc.RTPCodecType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
	return nil
}

func (p *fakePC) TransceiverKinds() []webrtc.RTPCodecType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.RTPCodecType(nil), p.kinds...)
}

func (p *fakePC) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	parts := make([]string, 0, len(p.kinds))
	for _, k := range p.kinds {
		parts = append(parts, k.String())
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer:" + strings.Join(parts, ",")}, nil
}

func (p *fakePC) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	desc.SDP += ";candidates"
	p.local = &desc
	if !p.gatherNever {
		close(p.gather)
	}
	return nil
}

func (p *fakePC) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *fakePC) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closeCount > 0 {
		return errors.New("peer connection closed")
	}
	p.remote = &desc
	return nil
}

func (p *fakePC) GatheringComplete() <-chan struct{} {
	return p.gather
}

func (p *fakePC) OnTrack(h func(RemoteTrack)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = h
}

func (p *fakePC) OnICEConnectionStateChange(h func(webrtc.ICEConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICE = h
}

func (p *fakePC) OnConnectionStateChange(h func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConn = h
}

func (p *fakePC) OnICEGatheringStateChange(h func(webrtc.ICEGatheringState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onGathering = h
}

func (p *fakePC) OnICECandidate(h func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = h
}

// Close 和 pion 一样在关闭时触发 closed 状态
func (p *fakePC) Close() error {
	p.mu.Lock()
	p.closeCount++
	first := p.closeCount == 1
	h := p.onICE
	p.mu.Unlock()

	if first && h != nil {
		h(webrtc.ICEConnectionStateClosed)
	}
	return nil
}

func (p *fakePC) fireICE(state webrtc.ICEConnectionState) {
	p.mu.Lock()
	h := p.onICE
	p.mu.Unlock()
	if h != nil {
		h(state)
	}
}

func (p *fakePC) fireTrack(track RemoteTrack) {
	p.mu.Lock()
	h := p.onTrack
	p.mu.Unlock()
	if h != nil {
		h(track)
	}
}

func (p *fakePC) closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCount
}

func (p *fakePC) hasRemote() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote != nil
}

// fakeFactory 记录创建过的对等连接
type fakeFactory struct {
	mu          sync.Mutex
	pcs         []*fakePC
	gatherNever bool
	err         error
	panicMsg    string
	created     chan *fakePC
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{created: make(chan *fakePC, 16)}
}

func (f *fakeFactory) NewPeerConnection(cfg webrtc.Configuration) (PeerConnection, error) {
	f.mu.Lock()
	if f.panicMsg != "" {
		msg := f.panicMsg
		f.mu.Unlock()
		panic(msg)
	}
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	pc := &fakePC{config: cfg, gather: make(chan struct{}), gatherNever: f.gatherNever}
	f.pcs = append(f.pcs, pc)
	f.mu.Unlock()

	select {
	case f.created <- pc:
	default:
	}
	return pc, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pcs)
}

func (f *fakeFactory) last() *fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pcs) == 0 {
		return nil
	}
	return f.pcs[len(f.pcs)-1]
}

func (f *fakeFactory) wait(t *testing.T) *fakePC {
	t.Helper()
	select {
	case pc := <-f.created:
		return pc
	case <-time.After(2 * time.Second):
		t.Fatal("peer connection was not created")
		return nil
	}
}

// fakeTrack 从通道读取RTP包，关闭后返回 io.EOF
type fakeTrack struct {
	id      string
	kind    webrtc.RTPCodecType
	packets chan *rtp.Packet
}

func newFakeTrack(id string, kind webrtc.RTPCodecType) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, packets: make(chan *rtp.Packet, 16)}
}

func (t *fakeTrack) ID() string                { return t.id }
func (t *fakeTrack) StreamID() string          { return "remote-stream" }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *fakeTrack) Codec() webrtc.RTPCodecParameters {
	if t.kind == webrtc.RTPCodecTypeAudio {
		return webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}}
	}
	return webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}}
}

func (t *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-t.packets
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}

// recordingObserver 记录状态变化
type recordingObserver struct {
	NopObserver
	mu          sync.Mutex
	transitions []ConnectionStatus
	retries     int
	failures    []string
	packets     int
	bytes       int
}

func (o *recordingObserver) StatusChanged(_ string, _, to ConnectionStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, to)
}

func (o *recordingObserver) RetryScheduled(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries++
}

func (o *recordingObserver) SessionFailed(_ string, errKind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, errKind)
}

func (o *recordingObserver) failureKinds() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.failures...)
}

func (o *recordingObserver) PacketReceived(_, _ string, size int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.packets++
	o.bytes += size
}

func (o *recordingObserver) retryCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.retries
}

// recordingSink 记录每次绑定时的轨道数
type recordingSink struct {
	mu    sync.Mutex
	binds []int
}

func (s *recordingSink) BindTracks(_ string, tracks []RemoteTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binds = append(s.binds, len(tracks))
}

func (s *recordingSink) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.binds...)
}
