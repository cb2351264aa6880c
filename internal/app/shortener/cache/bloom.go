package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

type BloomFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewBloomFilter
// expectedItems: 预期存储的元素数量
// falsePositiveRate: 误判率（建议 0.01 即 1%）
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	return &BloomFilter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

func (b *BloomFilter) Add(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.AddString(id)
}

// AddAll 批量加入，用于启动时预热
func (b *BloomFilter) AddAll(ids map[string]struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range ids {
		b.filter.AddString(id)
	}
}

// MightExist 返回 false 表示一定不存在；true 表示可能存在（有误判率）
func (b *BloomFilter) MightExist(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.TestString(id)
}

// Count 返回已添加的元素数量（估算）
func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}
