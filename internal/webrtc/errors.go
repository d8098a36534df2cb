package webrtc

import (
	"errors"

	"github.com/open-beagle/bdwind-viewer/internal/signaling"
)

var (
	ErrNoStreams          = errors.New("no streams available")
	ErrStreamExists       = errors.New("stream already started")
	ErrStreamNotFound     = errors.New("stream not found")
	ErrInvalidStreamID    = errors.New("invalid stream id")
	ErrManagerNotRunning  = errors.New("stream manager not running")
	ErrSupervisorDisposed = errors.New("supervisor disposed")
	ErrSessionClosed      = errors.New("session closed")
	ErrConnectionFailed   = errors.New("ice connection failed")
	ErrNegotiationPanic   = errors.New("negotiation panicked")
)

// 错误分类，用于指标标签
const (
	ErrorKindTransport    = string(signaling.KindTransport)
	ErrorKindProtocol     = string(signaling.KindProtocol)
	ErrorKindConnectivity = "connectivity"
	ErrorKindInternal     = "internal"
)

// ClassifyError 返回错误所属的分类，nil 返回空字符串
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConnectionFailed):
		return ErrorKindConnectivity
	case signaling.IsTransient(err):
		return ErrorKindTransport
	}
	if kind := signaling.KindOf(err); kind != "" {
		return string(kind)
	}
	return ErrorKindInternal
}
