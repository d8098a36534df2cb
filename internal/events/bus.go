// Package events carries stream lifecycle notifications between in-process observers.
package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-viewer/internal/config"
)

var ErrBusNotRunning = errors.New("event bus not running")

const (
	defaultQueueSize      = 64
	defaultHandlerTimeout = 30 * time.Second
)

// EventBus 事件总线接口
type EventBus interface {
	// Publish 异步发布事件
	Publish(event Event) error

	// Subscribe 订阅事件类型，返回取消订阅函数
	Subscribe(eventType EventType, handler EventHandler) (func(), error)

	Start() error

	Stop() error
}

type subscriber struct {
	id      uint64
	handler EventHandler
	queue   chan Event
}

// DefaultEventBus 默认事件总线实现。
// 每个订阅者一个队列和一个goroutine，同一订阅者收到的事件保持发布顺序。
type DefaultEventBus struct {
	subscribers map[EventType]map[uint64]*subscriber
	nextID      uint64
	queueSize   int
	dropped     atomic.Uint64
	published   atomic.Uint64

	mutex   sync.RWMutex
	wg      sync.WaitGroup
	logger  *logrus.Entry
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewEventBus 创建新的事件总线
func NewEventBus() *DefaultEventBus {
	return NewEventBusWithQueueSize(defaultQueueSize)
}

// NewEventBusWithQueueSize 指定每个订阅者的队列长度，队列满时丢弃新事件
func NewEventBusWithQueueSize(size int) *DefaultEventBus {
	if size <= 0 {
		size = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &DefaultEventBus{
		subscribers: make(map[EventType]map[uint64]*subscriber),
		queueSize:   size,
		logger:      config.GetLoggerWithPrefix("event-bus"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start 启动事件总线
func (eb *DefaultEventBus) Start() error {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.running {
		return nil
	}
	if eb.ctx.Err() != nil {
		return errors.New("event bus already stopped")
	}

	eb.running = true
	eb.logger.Debug("Event bus started")
	return nil
}

// Stop 停止事件总线并等待所有处理器退出
func (eb *DefaultEventBus) Stop() error {
	eb.mutex.Lock()
	if !eb.running {
		eb.mutex.Unlock()
		return nil
	}
	eb.running = false
	eb.cancel()
	eb.mutex.Unlock()

	eb.wg.Wait()
	eb.logger.Debug("Event bus stopped")
	return nil
}

// IsRunning 事件总线是否在运行
func (eb *DefaultEventBus) IsRunning() bool {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return eb.running
}

// Publish 异步发布事件
func (eb *DefaultEventBus) Publish(event Event) error {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	if !eb.running {
		return ErrBusNotRunning
	}
	eb.published.Add(1)

	eb.enqueue(eb.subscribers[event.Type()], event)
	if event.Type() != AllEvents {
		eb.enqueue(eb.subscribers[AllEvents], event)
	}
	return nil
}

func (eb *DefaultEventBus) enqueue(subs map[uint64]*subscriber, event Event) {
	for _, sub := range subs {
		select {
		case sub.queue <- event:
		default:
			eb.dropped.Add(1)
			eb.logger.Warnf("Subscriber %d queue full, dropping %s for stream %s", sub.id, event.Type(), event.StreamID())
		}
	}
}

// Subscribe 订阅事件类型
func (eb *DefaultEventBus) Subscribe(eventType EventType, handler EventHandler) (func(), error) {
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.ctx.Err() != nil {
		return nil, ErrBusNotRunning
	}

	eb.nextID++
	sub := &subscriber{
		id:      eb.nextID,
		handler: handler,
		queue:   make(chan Event, eb.queueSize),
	}
	if eb.subscribers[eventType] == nil {
		eb.subscribers[eventType] = make(map[uint64]*subscriber)
	}
	eb.subscribers[eventType][sub.id] = sub

	eb.wg.Add(1)
	go eb.run(sub)

	eb.logger.Debugf("Subscribed handler %d for event type: %s", sub.id, eventType)

	var once sync.Once
	return func() {
		once.Do(func() { eb.unsubscribe(eventType, sub.id) })
	}, nil
}

func (eb *DefaultEventBus) unsubscribe(eventType EventType, id uint64) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subs := eb.subscribers[eventType]
	sub, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(eb.subscribers, eventType)
	}
	close(sub.queue)
	eb.logger.Debugf("Unsubscribed handler %d for event type: %s", id, eventType)
}

func (eb *DefaultEventBus) run(sub *subscriber) {
	defer eb.wg.Done()

	for {
		select {
		case <-eb.ctx.Done():
			return
		case event, ok := <-sub.queue:
			if !ok {
				return
			}
			eb.dispatch(sub, event)
		}
	}
}

func (eb *DefaultEventBus) dispatch(sub *subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Errorf("Event handler panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(eb.ctx, defaultHandlerTimeout)
	defer cancel()

	if err := sub.handler.Handle(ctx, event); err != nil {
		eb.logger.Errorf("Event handler error for %s: %v", event.Type(), err)
	}
}

// GetHandlerCount 获取指定事件类型的处理器数量
func (eb *DefaultEventBus) GetHandlerCount(eventType EventType) int {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return len(eb.subscribers[eventType])
}

// GetStats 获取事件总线统计信息
func (eb *DefaultEventBus) GetStats() map[string]interface{} {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	totalHandlers := 0
	byType := make(map[string]int)
	for eventType, subs := range eb.subscribers {
		totalHandlers += len(subs)
		byType[string(eventType)] = len(subs)
	}

	return map[string]interface{}{
		"running":          eb.running,
		"event_types":      len(eb.subscribers),
		"total_handlers":   totalHandlers,
		"handlers_by_type": byType,
		"published":        eb.published.Load(),
		"dropped":          eb.dropped.Load(),
	}
}
