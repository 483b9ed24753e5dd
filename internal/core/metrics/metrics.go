// Package metrics 提供节点级 Prometheus 指标
//
// 每个节点持有独立的 Registry，多个节点可在同一进程中共存。
// 所有方法对 nil *Metrics 安全，未启用指标时直接传 nil。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "floodnet"

// Metrics 节点指标集合
type Metrics struct {
	registry *prometheus.Registry

	MessagesPublished prometheus.Counter
	MessagesDelivered prometheus.Counter
	MessagesRelayed   prometheus.Counter
	MessagesDuplicate prometheus.Counter
	FramesMalformed   *prometheus.CounterVec
	SendErrors        prometheus.Counter
	NotifyDropped     prometheus.Counter

	ConnectedPeers  prometheus.Gauge
	DiscoveredPeers prometheus.Gauge
	Subscriptions   prometheus.Gauge
	PartialViewSize prometheus.Gauge
}

// New 创建指标并注册到新的 Registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		MessagesPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Messages originated by this node",
		}),
		MessagesDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Messages delivered to the local application",
		}),
		MessagesRelayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Message copies forwarded to other peers",
		}),
		MessagesDuplicate: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_duplicate_total",
			Help:      "Inbound messages dropped by the seen cache",
		}),
		FramesMalformed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_malformed_total",
			Help:      "Inbound frames that failed to decode",
		}, []string{"protocol"}),
		SendErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Frames the transport refused to send",
		}),
		NotifyDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the application did not poll",
		}),

		ConnectedPeers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_peers",
			Help:      "Peers with at least one live connection",
		}),
		DiscoveredPeers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovered_peers",
			Help:      "Peers currently in the discovery table",
		}),
		Subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Locally subscribed topics",
		}),
		PartialViewSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partial_view_peers",
			Help:      "Distinct peers across all partial view entries",
		}),
	}
}

// Registry 返回指标注册表（用于 promhttp）
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ============================================================================
//                              nil 安全的记录方法
// ============================================================================

// Published 记录一次本地发布
func (m *Metrics) Published() {
	if m != nil {
		m.MessagesPublished.Inc()
	}
}

// Delivered 记录一次本地投递
func (m *Metrics) Delivered() {
	if m != nil {
		m.MessagesDelivered.Inc()
	}
}

// Relayed 记录 n 份转发
func (m *Metrics) Relayed(n int) {
	if m != nil && n > 0 {
		m.MessagesRelayed.Add(float64(n))
	}
}

// Duplicate 记录一次重复消息
func (m *Metrics) Duplicate() {
	if m != nil {
		m.MessagesDuplicate.Inc()
	}
}

// Malformed 记录一个无法解码的帧
func (m *Metrics) Malformed(protocol string) {
	if m != nil {
		m.FramesMalformed.WithLabelValues(protocol).Inc()
	}
}

// SendFailed 记录一次发送失败
func (m *Metrics) SendFailed() {
	if m != nil {
		m.SendErrors.Inc()
	}
}

// NotificationDropped 记录一次通知丢弃
func (m *Metrics) NotificationDropped() {
	if m != nil {
		m.NotifyDropped.Inc()
	}
}

// SetConnectedPeers 设置已连接节点数
func (m *Metrics) SetConnectedPeers(n int) {
	if m != nil {
		m.ConnectedPeers.Set(float64(n))
	}
}

// SetDiscoveredPeers 设置发现表大小
func (m *Metrics) SetDiscoveredPeers(n int) {
	if m != nil {
		m.DiscoveredPeers.Set(float64(n))
	}
}

// SetSubscriptions 设置本地订阅数
func (m *Metrics) SetSubscriptions(n int) {
	if m != nil {
		m.Subscriptions.Set(float64(n))
	}
}

// SetPartialViewSize 设置部分视图中的节点数
func (m *Metrics) SetPartialViewSize(n int) {
	if m != nil {
		m.PartialViewSize.Set(float64(n))
	}
}
