// Package notifier 实现了记录与视图变更的订阅通知。
// 同一频道在批处理窗口内的事件会合并为一个批次投递，
// 并通过 Kafka 把本实例的事件广播给其他实例。
package notifier

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"infinity-go/pkg/kafka"
	"infinity-go/pkg/log"

	"github.com/google/uuid"
)

// 事件类型。
const (
	KindModelData  = "model_data"
	KindViewUpdate = "view_update"
)

// ModelChannel 返回模型数据变更的频道名。
func ModelChannel(modelID string) string { return "model-" + modelID }

// ViewChannel 返回视图配置变更的频道名。
func ViewChannel(viewID string) string { return "view-" + viewID }

// Message 是投递给订阅者的一条变更事件。
type Message struct {
	Channel   string      `json:"channel"`
	Kind      string      `json:"kind"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// Handler 接收一个按时间戳升序排列的事件批次。
type Handler func(batch []Message)

// Sink 把本实例的事件转发到外部广播通道。
type Sink interface {
	Emit(ctx context.Context, msg Message) error
}

// Subscription 是一个频道上的订阅。每个订阅独立维护自己的批处理状态：
// 空闲时第一条事件启动窗口定时器，窗口内的事件只入队，窗口到期一次性投递。
type Subscription struct {
	ID        string
	Channel   string
	Immediate bool

	handler Handler

	mu      sync.Mutex
	pending []Message
	timer   *time.Timer
	closed  bool
}

func (s *Subscription) enqueue(msg Message, window time.Duration) {
	if s.Immediate {
		s.handler([]Message{msg})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = append(s.pending, msg)
	if s.timer == nil {
		s.timer = time.AfterFunc(window, s.flush)
	}
}

// flush 投递当前批次。没有待投递事件时是空操作，因此可以安全地重复调用。
func (s *Subscription) flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Timestamp < batch[j].Timestamp
	})
	s.handler(batch)
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	// 订阅关闭前把窗口内攒下的事件投递出去
	s.flush()
}

// Notifier 管理全部订阅并在本地与远端之间分发事件。
type Notifier struct {
	origin string
	window time.Duration
	sinks  []Sink

	mu   sync.RWMutex
	subs map[string]map[string]*Subscription
}

// New 创建一个 Notifier。origin 标识本实例，windowMS 是批处理窗口（毫秒）。
func New(origin string, windowMS int, sinks ...Sink) *Notifier {
	return &Notifier{
		origin: origin,
		window: time.Duration(windowMS) * time.Millisecond,
		sinks:  sinks,
		subs:   make(map[string]map[string]*Subscription),
	}
}

// Origin 返回本实例的标识。
func (n *Notifier) Origin() string { return n.origin }

// Subscribe 在频道上注册一个订阅。immediate 为真时事件不攒批，逐条投递。
func (n *Notifier) Subscribe(channel string, immediate bool, handler Handler) *Subscription {
	sub := &Subscription{
		ID:        uuid.NewString(),
		Channel:   channel,
		Immediate: immediate,
		handler:   handler,
	}

	n.mu.Lock()
	if n.subs[channel] == nil {
		n.subs[channel] = make(map[string]*Subscription)
	}
	n.subs[channel][sub.ID] = sub
	n.mu.Unlock()

	log.Infof("[Notifier] 新增订阅, channel: %s, sub: %s, immediate: %v", channel, sub.ID, immediate)
	return sub
}

// Unsubscribe 注销订阅，注销前投递窗口内未投递的事件。
func (n *Notifier) Unsubscribe(sub *Subscription) {
	n.mu.Lock()
	if m := n.subs[sub.Channel]; m != nil {
		delete(m, sub.ID)
		if len(m) == 0 {
			delete(n.subs, sub.Channel)
		}
	}
	n.mu.Unlock()

	sub.close()
	log.Infof("[Notifier] 注销订阅, channel: %s, sub: %s", sub.Channel, sub.ID)
}

// Publish 发布一条本实例产生的事件：本地分发，并转发给所有 Sink。
func (n *Notifier) Publish(ctx context.Context, msg Message) {
	n.dispatch(msg)

	for _, sink := range n.sinks {
		if err := sink.Emit(ctx, msg); err != nil {
			log.Errorf("[Notifier] 转发事件到广播通道失败, channel: %s, error: %v", msg.Channel, err)
		}
	}
}

// HandleEvent 处理其他实例经 Kafka 广播的事件。本实例发出的回声直接丢弃。
func (n *Notifier) HandleEvent(_ context.Context, event kafka.Event) {
	if event.Origin == n.origin {
		return
	}

	var payload interface{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			log.Errorf("[Notifier] 解析远端事件载荷失败: %v", err)
			return
		}
	}
	n.dispatch(Message{
		Channel:   event.Channel,
		Kind:      event.Kind,
		Payload:   payload,
		Timestamp: event.Timestamp,
	})
}

// Close 关闭全部订阅，把窗口内的事件清空投递。
func (n *Notifier) Close() {
	n.mu.Lock()
	var all []*Subscription
	for _, m := range n.subs {
		for _, sub := range m {
			all = append(all, sub)
		}
	}
	n.subs = make(map[string]map[string]*Subscription)
	n.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}

func (n *Notifier) dispatch(msg Message) {
	n.mu.RLock()
	targets := make([]*Subscription, 0, len(n.subs[msg.Channel]))
	for _, sub := range n.subs[msg.Channel] {
		targets = append(targets, sub)
	}
	n.mu.RUnlock()

	for _, sub := range targets {
		sub.enqueue(msg, n.window)
	}
}
