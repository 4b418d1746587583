package crawlers

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/RecoveryAshes/CompCrawl/internal/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// EntityExtractor 在页面上执行提取配置
type EntityExtractor interface {
	Extract(ctx context.Context, dom models.DOM, configs []models.ExtractionConfig) (models.Entity, error)
}

// Scheduler 抓取循环
// 每轮最多取 MaxParallelPages 个有待执行操作的URL并发处理,
// 每个URL在自己的页面上按入队顺序执行全部操作,队列为空时结束
type Scheduler struct {
	site      *models.SiteConfig
	settings  models.Settings
	queue     *OperationQueue
	state     *CrawlState
	pool      *PagePool
	follower  *LinkFollower
	extractor EntityExtractor
	storage   models.Storage
	alterer   models.EntityAlterer
	stats     *Stats
	limiter   *rate.Limiter

	// sleep 可在测试中替换
	sleep func(ctx context.Context, d time.Duration) error
}

// SchedulerOptions 抓取循环的依赖
type SchedulerOptions struct {
	Site      *models.SiteConfig
	Pool      *PagePool
	Extractor EntityExtractor
	Storage   models.Storage
	Hooks     models.Hooks

	// Robots 为nil时不检查 robots.txt
	Robots *RobotsChecker

	// Stats 为nil时内部创建
	Stats *Stats
}

// NewScheduler 创建抓取循环
func NewScheduler(opts SchedulerOptions) *Scheduler {
	stats := opts.Stats
	if stats == nil {
		stats = NewStats()
	}
	queue := NewOperationQueue()
	state := NewCrawlState()

	s := &Scheduler{
		site:      opts.Site,
		settings:  opts.Site.Settings,
		queue:     queue,
		state:     state,
		pool:      opts.Pool,
		follower:  NewLinkFollower(opts.Site, queue, state, stats, opts.Hooks.EnqueueFilter, opts.Robots),
		extractor: opts.Extractor,
		storage:   opts.Storage,
		alterer:   opts.Hooks.EntityAlterer,
		stats:     stats,
		sleep:     sleepContext,
	}
	if rps := opts.Site.Settings.MaxRequestsPerSecond; rps > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return s
}

// Stats 返回运行计数器
func (s *Scheduler) Stats() *Stats {
	return s.stats
}

// Queue 返回操作队列
func (s *Scheduler) Queue() *OperationQueue {
	return s.queue
}

// Run 添加所有入口点并运行到队列为空
// 致命错误或ctx取消时停止分派,等待进行中的URL结束后返回
func (s *Scheduler) Run(ctx context.Context) error {
	for _, entry := range s.site.EntryPoints {
		s.state.MarkSeen(entry.URL)
		if err := SeedEntryPoint(s.queue, s.site, entry); err != nil {
			return err
		}
	}
	log.Info().Int("entryPoints", len(s.site.EntryPoints)).Int("pages", s.pool.Size()).Msg("开始抓取")

	for tick := 1; ; tick++ {
		if err := ctx.Err(); err != nil {
			log.Warn().Msg("抓取已取消")
			return err
		}
		if s.queue.GetKeysCount() == 0 {
			log.Info().Int("ticks", tick-1).Msg("队列已清空,抓取结束")
			return nil
		}

		keys := make([]string, 0, s.pool.Size())
		for offset := 0; offset < s.pool.Size(); offset++ {
			key, ok := s.queue.GetNextKey(offset)
			if !ok {
				break
			}
			keys = append(keys, key)
		}
		log.Debug().Int("tick", tick).Int("urls", len(keys)).Msg("分派URL")

		g, gctx := errgroup.WithContext(ctx)
		for _, key := range keys {
			g.Go(func() error {
				return s.drain(gctx, key)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

// drain 在URL对应的页面上按顺序执行全部操作
// 只返回致命错误和取消,单个URL的失败记录后丢弃其剩余操作
func (s *Scheduler) drain(ctx context.Context, pageURL string) error {
	if err := s.politeness(ctx); err != nil {
		return err
	}

	page, pageCtx, release, err := s.pool.Acquire(ctx, pageURL, s.settings.PageTimeout)
	if err != nil {
		return s.fail(ctx, pageURL, "navigate", err)
	}
	defer release()

	for {
		op, ok := s.queue.GetItem(pageURL)
		if !ok {
			break
		}
		if err := s.execute(pageCtx, page, pageURL, op); err != nil {
			return s.fail(ctx, pageURL, op.Kind, err)
		}
	}
	s.stats.pageDone(false)
	return nil
}

// fail 处理URL失败: 致命错误和取消向上返回,其余记录并丢弃剩余操作
func (s *Scheduler) fail(ctx context.Context, pageURL string, kind models.OperationKind, err error) error {
	if models.IsFatal(err) {
		log.Error().Err(err).Str("url", utils.SafeURL(pageURL)).Msg("致命错误,终止抓取")
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	dropped := 0
	for {
		if _, ok := s.queue.GetItem(pageURL); !ok {
			break
		}
		dropped++
	}
	log.Error().Err(err).Str("url", utils.SafeURL(pageURL)).Str("op", string(kind)).Int("dropped", dropped).Msg("页面处理失败")
	s.stats.PageFailed(pageURL, kind, err)
	s.stats.pageDone(true)
	return nil
}

func (s *Scheduler) execute(ctx context.Context, page models.Page, pageURL string, op models.Operation) error {
	switch op.Kind {
	case models.OpCrawl:
		n, err := s.follower.Follow(ctx, page, op.Rule, op.Entry)
		if err != nil {
			return err
		}
		log.Info().Str("url", utils.SafeURL(pageURL)).Str("selector", op.Rule.Selector).Int("enqueued", n).Msg("链接跟随完成")
		return nil
	case models.OpExtract:
		return s.extract(ctx, page, pageURL, op)
	default:
		return &models.ConfigError{Scope: pageURL, Reason: fmt.Sprintf("未知的操作类型 %q", op.Kind)}
	}
}

func (s *Scheduler) extract(ctx context.Context, page models.Page, pageURL string, op models.Operation) error {
	if op.Destination == "" {
		return &models.ConfigError{Scope: pageURL, Reason: "extract 操作缺少目标"}
	}
	if op.Cache {
		if err := s.capture(ctx, page, pageURL); err != nil {
			return err
		}
	}

	entityType, bundle := models.SplitDestination(op.Destination)
	if s.settings.OutputSkipExisting && s.storage.HasEntity(ctx, entityType, bundle, pageURL) {
		log.Debug().Str("url", utils.SafeURL(pageURL)).Msg("实体已存在,跳过")
		s.stats.EntitySkipped()
		return nil
	}

	entity, err := s.extractor.Extract(ctx, page, op.Configs)
	if err != nil {
		return fmt.Errorf("提取失败: %w", err)
	}
	if s.alterer != nil {
		if entity, err = s.alterer.AlterEntity(ctx, entity, op.Destination, pageURL); err != nil {
			return fmt.Errorf("修改实体失败: %w", err)
		}
	}
	if entity == nil {
		log.Debug().Str("url", utils.SafeURL(pageURL)).Msg("实体被丢弃")
		return nil
	}

	if err := s.storage.PersistEntity(ctx, entity, entityType, bundle, pageURL); err != nil {
		return fmt.Errorf("保存实体失败: %w", err)
	}
	s.stats.EntitySaved()
	log.Info().Str("url", utils.SafeURL(pageURL)).Str("to", op.Destination).Int("fields", len(entity)).Msg("实体已保存")
	return nil
}

// capture 缓存页面源码,按设置附带截图
func (s *Scheduler) capture(ctx context.Context, page models.Page, pageURL string) error {
	if s.settings.CacheSkipExisting && s.storage.HasPageMarkup(ctx, pageURL) {
		return nil
	}

	markup, err := page.HTML(ctx)
	if err != nil {
		return fmt.Errorf("读取页面源码失败: %w", err)
	}
	if err := s.storage.PersistPageMarkup(ctx, pageURL, markup); err != nil {
		return fmt.Errorf("缓存页面源码失败: %w", err)
	}
	s.stats.PageCached()

	if !s.settings.CacheWithScreenshot {
		return nil
	}
	png, err := page.Screenshot(ctx)
	if errors.Is(err, models.ErrUnsupported) {
		log.Debug().Str("url", utils.SafeURL(pageURL)).Msg("当前页面驱动不支持截图")
		return nil
	}
	if err != nil {
		return fmt.Errorf("截图失败: %w", err)
	}
	if err := s.storage.PersistScreenshot(ctx, pageURL, png); err != nil {
		return fmt.Errorf("保存截图失败: %w", err)
	}
	return nil
}

// politeness 随机延迟后再经过全局限速
func (s *Scheduler) politeness(ctx context.Context) error {
	lo, hi := s.settings.DelayRange()
	if hi > 0 {
		delay := lo
		if hi > lo {
			delay += rand.N(hi - lo + 1)
		}
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
	if s.limiter != nil {
		return s.limiter.Wait(ctx)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
