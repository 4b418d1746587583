package crawlers

import (
	"sync"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
)

// OperationQueue 按URL分组的操作队列
// 职责: 保存每个URL待执行的操作,同一URL的操作严格先进先出
type OperationQueue struct {
	// 每个URL的待执行操作
	items map[string][]models.Operation

	// 按首次入队顺序排列的URL
	keys []string

	// 保护items和keys的锁
	mu sync.Mutex
}

// NewOperationQueue 创建操作队列
func NewOperationQueue() *OperationQueue {
	return &OperationQueue{
		items: make(map[string][]models.Operation),
	}
}

// AddItem 追加一个操作到URL队尾
func (q *OperationQueue) AddItem(key string, op models.Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.items[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.items[key] = append(q.items[key], op)
}

// GetItem 弹出URL最早入队的操作,没有时返回false
func (q *OperationQueue) GetItem(key string) (models.Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops := q.items[key]
	if len(ops) == 0 {
		return models.Operation{}, false
	}
	op := ops[0]
	ops[0] = models.Operation{}
	q.items[key] = ops[1:]
	return op, true
}

// GetItemsCount 返回URL待执行的操作数
func (q *OperationQueue) GetItemsCount(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[key])
}

// GetKeysCount 返回仍有待执行操作的URL数,已清空的URL在此时移除
func (q *OperationQueue) GetKeysCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.prune()
	return len(q.keys)
}

// GetNextKey 返回从offset开始第一个仍有待执行操作的URL
func (q *OperationQueue) GetNextKey(offset int) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if offset < 0 {
		offset = 0
	}
	q.prune()
	if offset >= len(q.keys) {
		return "", false
	}
	return q.keys[offset], true
}

// Keys 返回当前有待执行操作的URL快照
func (q *OperationQueue) Keys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.prune()
	return append([]string(nil), q.keys...)
}

// prune 移除已清空的URL,调用方持有锁
func (q *OperationQueue) prune() {
	kept := q.keys[:0]
	for _, key := range q.keys {
		if len(q.items[key]) > 0 {
			kept = append(kept, key)
			continue
		}
		delete(q.items, key)
	}
	for i := len(kept); i < len(q.keys); i++ {
		q.keys[i] = ""
	}
	q.keys = kept
}
