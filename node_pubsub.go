package floodnet

import (
	"context"
	"errors"

	"github.com/dep2p/go-floodnet/internal/core/behaviour"
	"github.com/dep2p/go-floodnet/pkg/types"
)

// Publish 向主题发布消息
//
// 消息在事件循环中被编号并发往部分视图；没有可达节点时静默完成。
func (n *Node) Publish(ctx context.Context, topic string, data []byte) error {
	return n.PublishMany(ctx, []string{topic}, data)
}

// PublishMany 向多个主题发布同一条消息
func (n *Node) PublishMany(ctx context.Context, topics []string, data []byte) error {
	ts, err := toTopics(topics)
	if err != nil {
		return err
	}
	payload := append([]byte(nil), data...)
	return n.submit(ctx, func(c *behaviour.Context) {
		n.floodsub.PublishMany(c, ts, payload)
	})
}

// Subscribe 订阅主题
func (n *Node) Subscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	return n.submit(ctx, func(c *behaviour.Context) {
		n.floodsub.Subscribe(c, types.Topic(topic))
	})
}

// Unsubscribe 取消订阅主题
func (n *Node) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	return n.submit(ctx, func(c *behaviour.Context) {
		n.floodsub.Unsubscribe(c, types.Topic(topic))
	})
}

// Subscriptions 返回本地订阅的主题
//
// 需要另一个 goroutine 正在驱动事件循环。
func (n *Node) Subscriptions(ctx context.Context) ([]types.Topic, error) {
	return query(ctx, n, func(*behaviour.Context) []types.Topic {
		return n.floodsub.Subscribed()
	})
}

// PartialView 返回主题的部分视图
//
// 需要另一个 goroutine 正在驱动事件循环。
func (n *Node) PartialView(ctx context.Context, topic string) ([]types.PeerID, error) {
	return query(ctx, n, func(*behaviour.Context) []types.PeerID {
		return n.floodsub.PartialView(types.Topic(topic))
	})
}

func toTopics(topics []string) ([]types.Topic, error) {
	if len(topics) == 0 {
		return nil, ErrEmptyTopic
	}
	out := make([]types.Topic, 0, len(topics))
	for _, t := range topics {
		if t == "" {
			return nil, ErrEmptyTopic
		}
		out = append(out, types.Topic(t))
	}
	return out, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              事件循环命令
// ════════════════════════════════════════════════════════════════════════════

// submit 把命令交给事件循环
func (n *Node) submit(ctx context.Context, fn func(*behaviour.Context)) error {
	switch n.State() {
	case StateIdle, StateStarting:
		return ErrNotStarted
	case StateStopping, StateStopped:
		return ErrNodeClosed
	}
	if err := n.dispatcher.Submit(ctx, fn); err != nil {
		if errors.Is(err, behaviour.ErrClosed) {
			return ErrNodeClosed
		}
		return err
	}
	return nil
}

// query 在事件循环中求值并等待结果
func query[T any](ctx context.Context, n *Node, fn func(*behaviour.Context) T) (T, error) {
	var zero T
	result := make(chan T, 1)
	if err := n.submit(ctx, func(c *behaviour.Context) { result <- fn(c) }); err != nil {
		return zero, err
	}
	select {
	case v := <-result:
		return v, nil
	case <-n.done:
		return zero, ErrNodeClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
