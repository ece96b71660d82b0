package models

import (
	"fmt"
	"sort"
	"strings"
)

// PageNode 页面树中的一个节点,每个规范化URL对应唯一节点
// 树由根节点自上而下持有,Parent只是回指引用
type PageNode struct {
	URL          string               `json:"url"`           // 规范化绝对URL(无fragment),节点标识
	RelativePath string               `json:"relative_path"` // path+query,仅用于展示
	Parent       *PageNode            `json:"-"`             // 父节点(根节点为nil)
	Children     map[string]*PageNode `json:"-"`             // 规范化URL -> 子节点
	Depth        int                  `json:"depth"`         // 根为0

	DirectScore float64 `json:"direct_score"` // 评分器给出的直接分数
	Scored      bool    `json:"scored"`       // 是否已被评分
	Explored    bool    `json:"explored"`     // 是否已探索(只置位一次)
	TargetLabel string  `json:"target_label,omitempty"`
}

// NewRootNode 创建根节点
func NewRootNode(url string) *PageNode {
	return &PageNode{
		URL:      url,
		Children: make(map[string]*PageNode),
	}
}

// AddChild 添加子节点,同一URL已存在时返回已有节点
// 相对路径相同但scheme或host不同的URL是不同的节点
func (n *PageNode) AddChild(url, relativePath string) *PageNode {
	if child, ok := n.Children[url]; ok {
		return child
	}
	child := &PageNode{
		URL:          url,
		RelativePath: relativePath,
		Parent:       n,
		Children:     make(map[string]*PageNode),
		Depth:        n.Depth + 1,
	}
	n.Children[url] = child
	return child
}

// ApplyScore 写入评分结果,重复发现同一URL时覆盖而不是平均
func (n *PageNode) ApplyScore(score float64, label string) {
	n.DirectScore = score
	n.Scored = true
	if label != "" {
		n.TargetLabel = label
	}
}

// MarkExplored 标记为已探索,返回本次调用是否真正改变了状态
func (n *PageNode) MarkExplored() bool {
	if n.Explored {
		return false
	}
	n.Explored = true
	return true
}

// AncestorAverage 计算节点自身及所有已评分祖先的平均分
// 链上没有任何已评分节点时返回0
func (n *PageNode) AncestorAverage() float64 {
	var sum float64
	count := 0
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Scored {
			sum += cur.DirectScore
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Lineage 返回从根到当前节点的路径
func (n *PageNode) Lineage() []*PageNode {
	var chain []*PageNode
	for cur := n; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// TotalChildren 子节点总数
func (n *PageNode) TotalChildren() int {
	return len(n.Children)
}

// SubtreeSize 子树节点总数(含自身)
func (n *PageNode) SubtreeSize() int {
	size := 1
	for _, child := range n.Children {
		size += child.SubtreeSize()
	}
	return size
}

// ExploredChildren 已探索的子节点数
func (n *PageNode) ExploredChildren() int {
	count := 0
	for _, child := range n.Children {
		if child.Explored {
			count++
		}
	}
	return count
}

// MaxDepth 子树最大深度
func (n *PageNode) MaxDepth() int {
	max := n.Depth
	for _, child := range n.Children {
		if d := child.MaxDepth(); d > max {
			max = d
		}
	}
	return max
}

// RenderTree 以树形文本输出子树
//
//	└── ✓ (root) [2/3 explored]
//	    ├── ✓ /products [0/0 explored]
func (n *PageNode) RenderTree() string {
	var sb strings.Builder
	n.renderTree(&sb, "", true)
	return strings.TrimRight(sb.String(), "\n")
}

func (n *PageNode) renderTree(sb *strings.Builder, prefix string, isLast bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	display := n.RelativePath
	if display == "" {
		display = "(root)"
	}
	status := "○"
	if n.Explored {
		status = "✓"
	}
	line := fmt.Sprintf("%s%s%s %s [%d/%d explored]", prefix, connector, status, display, n.ExploredChildren(), n.TotalChildren())
	if n.TargetLabel != "" {
		line += fmt.Sprintf(" 🎯 %s", n.TargetLabel)
	}
	sb.WriteString(line)
	sb.WriteString("\n")

	keys := make([]string, 0, len(n.Children))
	for k := range n.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	childPrefix := prefix + "│   "
	if isLast {
		childPrefix = prefix + "    "
	}
	for i, k := range keys {
		n.Children[k].renderTree(sb, childPrefix, i == len(keys)-1)
	}
}
