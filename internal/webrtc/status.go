package webrtc

import (
	"time"
)

// ConnectionStatus 会话对外暴露的连接状态
type ConnectionStatus string

const (
	StatusConnecting ConnectionStatus = "connecting"
	StatusConnected  ConnectionStatus = "connected"
	StatusFailed     ConnectionStatus = "failed"
	// StatusClosed 会话已拆除，不再接收任何回调
	StatusClosed ConnectionStatus = "closed"
)

// connectionFailedMessage ICE failed 时记录的错误信息
const connectionFailedMessage = "Connection failed"

// TrackInfo 已接收媒体轨道的只读描述
type TrackInfo struct {
	ID       string    `json:"id"`
	StreamID string    `json:"stream_id"`
	Kind     string    `json:"kind"`
	Codec    string    `json:"codec,omitempty"`
	Packets  uint64    `json:"packets"`
	Bytes    uint64    `json:"bytes"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// StreamStatus 单个流的状态快照
type StreamStatus struct {
	StreamID     string           `json:"stream_id"`
	SessionID    string           `json:"session_id,omitempty"`
	Status       ConnectionStatus `json:"status"`
	Error        string           `json:"error,omitempty"`
	ICEState     string           `json:"ice_state,omitempty"`
	Tracks       []TrackInfo      `json:"tracks"`
	Attempts     int              `json:"attempts"`
	RetryPending bool             `json:"retry_pending"`
	Since        time.Time        `json:"since"`
}

// StreamsResponse GET /api/streams 的响应
type StreamsResponse struct {
	Available bool           `json:"available"`
	Message   string         `json:"message,omitempty"`
	Streams   []StreamStatus `json:"streams"`
}
