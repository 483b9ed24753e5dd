package floodsub

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dep2p/go-floodnet/pkg/types"
)

// seenCache 已见消息集合，容量有界且按时间过期
type seenCache struct {
	lru *expirable.LRU[types.MessageID, struct{}]
}

func newSeenCache(size int, ttl time.Duration) *seenCache {
	return &seenCache{lru: expirable.NewLRU[types.MessageID, struct{}](size, nil, ttl)}
}

// add 记录消息，已存在时返回 false
func (s *seenCache) add(id types.MessageID) bool {
	if s.lru.Contains(id) {
		return false
	}
	s.lru.Add(id, struct{}{})
	return true
}

func (s *seenCache) has(id types.MessageID) bool {
	return s.lru.Contains(id)
}

func (s *seenCache) len() int {
	return s.lru.Len()
}
