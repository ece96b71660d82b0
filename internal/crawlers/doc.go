// Package crawlers 提供最佳优先探索所需的页面获取、链接提取和浏览器会话
//
// # 概述
//
// crawlers包包含调度核心的两个共享数据结构(去重登记表和最佳优先队列),
// 以及它们的协作者: 基于Colly的静态抓取器、基于goquery的候选链接提取器、
// 基于go-rod的浏览器会话和robots.txt策略。
//
// # 核心组件
//
// ## Registry (去重登记表)
//
// 全局URL去重。检查与插入在同一把锁中完成,所有登记都经过 MarkIfNew:
//
//	registry := NewRegistry()
//	registry.Seed(startURL)
//	if registry.MarkIfNew(link) {
//	    // 第一次见到
//	}
//
// ## Frontier (最佳优先队列)
//
// 大顶堆,优先级为节点入队时的祖先平均分,同分按入队顺序出队。
// Remove 只打墓碑标记,PopMax 时跳过。
//
//	frontier := NewFrontier()
//	frontier.Push(node)
//	next, ok := frontier.PopMax()
//
// ## CandidateExtractor (候选链接提取器)
//
// 从 a/area/GET表单/data-href/onclick 中提取同域链接,跳过 #、javascript:、
// mailto:、tel: 和已登记的URL。ID从调用方给定的偏移开始递增。
//
//	extractor := NewCandidateExtractor("example.com", registry)
//	candidates := extractor.Extract(html, pageURL, 0)
//
// ## PageFetcher (静态抓取器)
//
// 每次获取克隆一个同步Colly collector,应用头部、超时与10MB体积上限,
// 自行解码 br/deflate 响应。不重试。
//
// ## Browser / RodSession / PagePool
//
// Browser 启动Chromium(可选stealth),通过 PagePool 复用标签页。
// ResourceMonitor 根据可用内存和CPU决定能否再打开会话以及池的大小。
// RodSession 实现 exhaustion.PageSession,供内容展开引擎点击和滚动:
//
//	browser, err := NewBrowser(cfg, headerProvider)
//	if err != nil { /* 处理错误 */ }
//	defer browser.Close()
//
//	session, err := browser.OpenSession(ctx, pageURL)
//	if err != nil { /* 跳过内容展开 */ }
//	defer session.Close()
//
// ## RobotsPolicy
//
// 按主机缓存 robots.txt,获取失败时放行。关闭时一律放行。
//
// # 线程安全
//
// Registry、Frontier、PagePool、ResourceMonitor、RobotsPolicy 均可并发使用。
// RodSession 只应由一个goroutine使用。
package crawlers
