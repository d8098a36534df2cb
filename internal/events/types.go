package events

import (
	"context"
	"encoding/json"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// 会话状态事件
	EventStatusChanged  EventType = "stream.status_changed"
	EventTrackAdded     EventType = "stream.track_added"
	EventRetryScheduled EventType = "stream.retry_scheduled"

	// 流生命周期事件
	EventStreamStarted EventType = "stream.started"
	EventStreamStopped EventType = "stream.stopped"

	// AllEvents 订阅全部事件类型
	AllEvents EventType = "*"
)

// Event 事件接口
type Event interface {
	Type() EventType

	// StreamID 事件所属的流
	StreamID() string

	// SessionID 事件所属的会话，流级事件为空
	SessionID() string

	Data() map[string]interface{}

	Timestamp() time.Time
}

// EventHandler 事件处理器接口
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, event Event) error

// Handle 调用 f(ctx, event)
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	eventType EventType
	streamID  string
	sessionID string
	data      map[string]interface{}
	timestamp time.Time
}

// NewEvent 创建事件
func NewEvent(eventType EventType, streamID, sessionID string, data map[string]interface{}) *BaseEvent {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &BaseEvent{
		eventType: eventType,
		streamID:  streamID,
		sessionID: sessionID,
		data:      data,
		timestamp: time.Now(),
	}
}

func (e *BaseEvent) Type() EventType              { return e.eventType }
func (e *BaseEvent) StreamID() string             { return e.streamID }
func (e *BaseEvent) SessionID() string            { return e.sessionID }
func (e *BaseEvent) Data() map[string]interface{} { return e.data }
func (e *BaseEvent) Timestamp() time.Time         { return e.timestamp }

// MarshalJSON 推送给websocket客户端的格式
func (e *BaseEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(Envelope(e))
}

// EventEnvelope 事件的JSON表示
type EventEnvelope struct {
	Type      EventType              `json:"type"`
	StreamID  string                 `json:"stream_id"`
	SessionID string                 `json:"session_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Envelope 转换任意事件为可序列化结构
func Envelope(event Event) EventEnvelope {
	return EventEnvelope{
		Type:      event.Type(),
		StreamID:  event.StreamID(),
		SessionID: event.SessionID(),
		Timestamp: event.Timestamp(),
		Data:      event.Data(),
	}
}
