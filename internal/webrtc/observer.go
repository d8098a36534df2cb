package webrtc

import "time"

// Observer 会话生命周期的观察者，metrics 包实现该接口
type Observer interface {
	StatusChanged(streamID string, from, to ConnectionStatus)
	ICEStateChanged(streamID, state string)
	NegotiationFinished(streamID string, elapsed time.Duration, errKind string)
	RetryScheduled(streamID string)
	SessionFailed(streamID, errKind string)
	SessionStarted(streamID string)
	TrackAdded(streamID, kind string)
	PacketReceived(streamID, kind string, size int)
}

// NopObserver 不做任何事
type NopObserver struct{}

func (NopObserver) StatusChanged(string, ConnectionStatus, ConnectionStatus) {}
func (NopObserver) ICEStateChanged(string, string)                           {}
func (NopObserver) NegotiationFinished(string, time.Duration, string)        {}
func (NopObserver) RetryScheduled(string)                                    {}
func (NopObserver) SessionFailed(string, string)                             {}
func (NopObserver) SessionStarted(string)                                    {}
func (NopObserver) TrackAdded(string, string)                                {}
func (NopObserver) PacketReceived(string, string, int)                       {}
