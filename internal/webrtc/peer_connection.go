// Package webrtc owns the per-stream receive-only peer connection lifecycle.
package webrtc

import (
	"fmt"

	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
)

// RemoteTrack 入站媒体轨道，*webrtc.TrackRemote 满足该接口
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// PeerConnection 会话需要的对等连接能力
type PeerConnection interface {
	// AddRecvOnlyTransceiver 添加单向接收的收发器
	AddRecvOnlyTransceiver(kind webrtc.RTPCodecType) error

	// TransceiverKinds 按添加顺序返回已有收发器的媒体类型
	TransceiverKinds() []webrtc.RTPCodecType

	CreateOffer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	SetRemoteDescription(desc webrtc.SessionDescription) error

	// GatheringComplete ICE收集完成时关闭
	GatheringComplete() <-chan struct{}

	OnTrack(handler func(RemoteTrack))
	OnICEConnectionStateChange(handler func(webrtc.ICEConnectionState))
	OnConnectionStateChange(handler func(webrtc.PeerConnectionState))
	OnICEGatheringStateChange(handler func(webrtc.ICEGatheringState))
	OnICECandidate(handler func(*webrtc.ICECandidate))

	Close() error
}

// PeerConnectionFactory 创建对等连接
type PeerConnectionFactory interface {
	NewPeerConnection(cfg webrtc.Configuration) (PeerConnection, error)
}

// FactoryOptions pion API 的构建参数
type FactoryOptions struct {
	// IncludeLoopback 收集回环地址候选
	IncludeLoopback bool

	// DisableMDNS 关闭 mDNS 候选
	DisableMDNS bool

	// Net 替换网络栈，测试中使用 vnet
	Net transport.Net

	LoggerFactory logging.LoggerFactory
}

// PionFactory 基于 pion API 的工厂，所有会话共享同一个 API 实例
type PionFactory struct {
	api *webrtc.API
}

// NewPionFactory 注册默认编解码器和拦截器并应用网络设置
func NewPionFactory(opts FactoryOptions) (*PionFactory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register default codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	settings := webrtc.SettingEngine{}
	if opts.LoggerFactory != nil {
		settings.LoggerFactory = opts.LoggerFactory
	}
	settings.SetIncludeLoopbackCandidate(opts.IncludeLoopback)
	if opts.DisableMDNS {
		settings.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}
	if opts.Net != nil {
		settings.SetNet(opts.Net)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settings),
	)
	return &PionFactory{api: api}, nil
}

// NewPeerConnection 创建新的 pion 对等连接
func (f *PionFactory) NewPeerConnection(cfg webrtc.Configuration) (PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return &pionPeerConnection{pc: pc}, nil
}

type pionPeerConnection struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeerConnection) AddRecvOnlyTransceiver(kind webrtc.RTPCodecType) error {
	_, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	return err
}

func (p *pionPeerConnection) TransceiverKinds() []webrtc.RTPCodecType {
	transceivers := p.pc.GetTransceivers()
	kinds := make([]webrtc.RTPCodecType, 0, len(transceivers))
	for _, t := range transceivers {
		kinds = append(kinds, t.Kind())
	}
	return kinds
}

func (p *pionPeerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *pionPeerConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *pionPeerConnection) LocalDescription() *webrtc.SessionDescription {
	return p.pc.LocalDescription()
}

func (p *pionPeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *pionPeerConnection) GatheringComplete() <-chan struct{} {
	return webrtc.GatheringCompletePromise(p.pc)
}

func (p *pionPeerConnection) OnTrack(handler func(RemoteTrack)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		handler(track)
	})
}

func (p *pionPeerConnection) OnICEConnectionStateChange(handler func(webrtc.ICEConnectionState)) {
	p.pc.OnICEConnectionStateChange(handler)
}

func (p *pionPeerConnection) OnConnectionStateChange(handler func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(handler)
}

func (p *pionPeerConnection) OnICEGatheringStateChange(handler func(webrtc.ICEGatheringState)) {
	p.pc.OnICEGatheringStateChange(handler)
}

func (p *pionPeerConnection) OnICECandidate(handler func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(handler)
}

func (p *pionPeerConnection) Close() error {
	return p.pc.Close()
}

// ensureReceiveKinds 补齐音频和视频的接收收发器
func ensureReceiveKinds(pc PeerConnection) error {
	have := make(map[webrtc.RTPCodecType]bool)
	for _, kind := range pc.TransceiverKinds() {
		have[kind] = true
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[kind] {
			continue
		}
		if err := pc.AddRecvOnlyTransceiver(kind); err != nil {
			return fmt.Errorf("failed to add %s transceiver: %w", kind, err)
		}
	}
	return nil
}
