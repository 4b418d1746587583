// Package crawlers 实现抓取调度: 操作队列、页面池、链接跟随和抓取循环
//
// # 概述
//
// 抓取以URL为单位调度。每个URL挂一个操作列表(crawl 或 extract),
// 同一URL的操作在同一个页面上严格按入队顺序执行,页面只导航一次。
//
// # 核心组件
//
// ## OperationQueue (操作队列)
//
// URL -> 操作列表的映射,按URL首次入队的顺序遍历。
// 已清空的URL在 GetKeysCount / GetNextKey 时才移除。
//
//	queue := NewOperationQueue()
//	queue.AddItem("https://example.com/", models.NewCrawlOperation(rule, &entry))
//	key, ok := queue.GetNextKey(0)
//	op, ok := queue.GetItem(key)
//
// ## PagePool (页面池)
//
// 固定数量的页面槽位。见过的URL粘性复用原槽位,新URL按游标轮询分配。
// 同一槽位同一时刻只服务一个URL,因此同时打开的页面不超过槽位数。
//
//	pool := NewPagePool(factory, settings.MaxParallelPages)
//	defer pool.Close()
//
//	page, pageCtx, release, err := pool.Acquire(ctx, pageURL, settings.PageTimeout)
//	if err != nil { /* 导航失败 */ }
//	defer release()
//
// ## LinkFollower (链接跟随)
//
// 按 CrawlRule 查询链接并解析为绝对URL,依次检查:
//   - robots.txt (开启 respectRobotsTxt 时), 跳过原因 robots
//   - 全局已抓取集合, 跳过原因 already crawled
//   - (to, selector) 限制计数器, 超过 maxPagesToCrawl 时跳过原因 limit exceeded
//   - 入队前钩子, 跳过原因 vetoed
//
// 已抓取集合在限制检查之前更新,被限制跳过的URL在本次运行中不会再被抓取。
// to 为 @self 时链接作为新的入口点(分页),否则入队一个 extract 操作。
//
// ## Scheduler (抓取循环)
//
// 每轮通过 GetNextKey(0..n-1) 取最多 n 个URL(n 为页面池大小),
// 用 errgroup 并发处理,每个URL先随机延迟(crawlDelay)再经过全局限速,
// 然后在页面超时(pageTimeout)内执行全部操作。队列为空时结束。
//
// # 错误处理
//
//   - 导航失败、DOM查询失败: 记录并丢弃该URL剩余操作,抓取继续
//   - ConfigError / ContractViolation: 终止整个抓取
//   - ctx 取消: 停止分派,等待进行中的URL返回
//
// # 并发安全
//
//   - OperationQueue: sync.Mutex
//   - PagePool: 分配表 sync.Mutex, 每个槽位独立 sync.Mutex
//   - CrawlState: sync.Mutex, 标记和计数在同一临界区内完成
//   - Stats: sync.Mutex
package crawlers
