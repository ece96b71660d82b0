package crawlers

import (
	"container/heap"
	"sync"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

// frontierEntry 堆中的一项
type frontierEntry struct {
	priority float64
	seq      uint64
	node     *models.PageNode
	removed  bool
}

// entryHeap 大顶堆,同优先级按插入顺序(FIFO)
type entryHeap []*frontierEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*frontierEntry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Frontier 最佳优先待探索队列
// 优先级在入队时按祖先平均分计算一次,之后不再更新
// 删除采用惰性方式: 标记墓碑,出队时跳过
type Frontier struct {
	heap    entryHeap
	members map[*models.PageNode]*frontierEntry
	nextSeq uint64
	mu      sync.Mutex
}

// NewFrontier 创建队列
func NewFrontier() *Frontier {
	return &Frontier{
		members: make(map[*models.PageNode]*frontierEntry),
	}
}

// Push 入队,节点已在队列中时忽略
func (f *Frontier) Push(node *models.PageNode) {
	if node == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.members[node]; ok {
		return
	}
	entry := &frontierEntry{
		priority: node.AncestorAverage(),
		seq:      f.nextSeq,
		node:     node,
	}
	f.nextSeq++
	f.members[node] = entry
	heap.Push(&f.heap, entry)
}

// PopMax 取出优先级最高的节点
func (f *Frontier) PopMax() (*models.PageNode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.heap.Len() > 0 {
		entry := heap.Pop(&f.heap).(*frontierEntry)
		if entry.removed {
			continue
		}
		delete(f.members, entry.node)
		return entry.node, true
	}
	return nil, false
}

// Remove 从队列中移除节点(墓碑标记)
func (f *Frontier) Remove(node *models.PageNode) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.members[node]
	if !ok {
		return false
	}
	entry.removed = true
	delete(f.members, node)
	return true
}

// Contains 节点是否在队列中
func (f *Frontier) Contains(node *models.PageNode) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.members[node]
	return ok
}

// Empty 是否没有有效节点
func (f *Frontier) Empty() bool {
	return f.Size() == 0
}

// Size 有效节点数(不含墓碑)
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.members)
}
