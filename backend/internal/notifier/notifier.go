package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"routine-scheduler/backend/config"
	"routine-scheduler/backend/pkg/metrics"
)

var (
	ErrQueueFull      = errors.New("通知队列已满")
	ErrNotifierClosed = errors.New("通知器已关闭")
)

// Notifier 课表变更通知接口（排课引擎依赖）
// Notify 不得阻塞调用方，返回错误只用于记录日志
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// ── 异步通知器 ──

// AsyncNotifier 有界缓冲 + 固定工作协程的异步发布器
// 发布失败只记录日志，不做同步重试；下游依靠事件日志对账
type AsyncNotifier struct {
	pub     Publisher
	queue   chan Message
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncNotifier 创建异步通知器并启动工作协程
func NewAsyncNotifier(pub Publisher, cfg *config.NotifierConfig, logger *zap.Logger) *AsyncNotifier {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}

	n := &AsyncNotifier{
		pub:     pub,
		queue:   make(chan Message, buffer),
		timeout: cfg.PublishTimeout,
		logger:  logger,
	}

	n.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go n.worker()
	}
	return n
}

// Notify 非阻塞入队；缓冲已满返回 ErrQueueFull
func (n *AsyncNotifier) Notify(_ context.Context, msg Message) error {
	if msg.EventID == "" {
		msg.EventID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrNotifierClosed
	}

	select {
	case n.queue <- msg:
		return nil
	default:
		metrics.ObserveNotify("dropped", 0)
		return ErrQueueFull
	}
}

func (n *AsyncNotifier) worker() {
	defer n.wg.Done()
	for msg := range n.queue {
		n.publish(msg)
	}
}

func (n *AsyncNotifier) publish(msg Message) {
	ctx := context.Background()
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	start := time.Now()
	err := n.pub.Publish(ctx, msg)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.ObserveNotify("failed", elapsed)
		n.logger.Error("课表缓存失效通知发布失败",
			zap.String("event_id", msg.EventID),
			zap.String("action", msg.Action),
			zap.Strings("affected_teacher_ids", msg.AffectedTeacherIDs),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveNotify("ok", elapsed)
}

// Close 停止接收新消息，并在 ctx 截止前排空缓冲
func (n *AsyncNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		n.logger.Warn("通知队列未在截止时间内排空", zap.Int("remaining", len(n.queue)))
		return ctx.Err()
	}
}

// ── 空实现 ──

// NopNotifier 通知关闭或 Redis 不可用时使用
type NopNotifier struct {
	logger *zap.Logger
}

// NewNopNotifier 创建空通知器
func NewNopNotifier(logger *zap.Logger) *NopNotifier {
	return &NopNotifier{logger: logger}
}

func (n *NopNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Debug("通知已关闭，忽略课表变更消息",
		zap.String("action", msg.Action),
		zap.Strings("affected_teacher_ids", msg.AffectedTeacherIDs),
	)
	return nil
}
