package signaling

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类
type ErrorKind string

const (
	// KindTransport 网络错误或非2xx响应
	KindTransport ErrorKind = "transport"
	// KindProtocol 响应内容无法解析：空answer、非法base64、非法SDP、未知媒体类型
	KindProtocol ErrorKind = "protocol"
)

var (
	ErrUnexpectedStatus  = errors.New("server error")
	ErrEmptyAnswer       = errors.New("empty answer from server")
	ErrMalformedAnswer   = errors.New("answer is neither base64 nor SDP")
	ErrMalformedSDP      = errors.New("malformed SDP")
	ErrMalformedResponse = errors.New("malformed response")
	ErrUnknownCodec      = errors.New("unknown codec type")
)

// Error 一次信令请求失败的详细信息
type Error struct {
	Kind       ErrorKind
	Op         string
	StreamID   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StreamID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.StreamID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf 返回错误链中信令错误的分类，不是信令错误时返回空字符串
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func transportError(op, streamID string, status int, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, StreamID: streamID, StatusCode: status, Err: err}
}

func protocolError(op, streamID string, err error) *Error {
	return &Error{Kind: KindProtocol, Op: op, StreamID: streamID, Err: err}
}
