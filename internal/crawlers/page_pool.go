package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/rs/zerolog/log"
)

// pageSlot 页面池中的一个槽位
type pageSlot struct {
	// 同一时刻只有一个URL使用该槽位
	mu sync.Mutex

	page       models.Page
	currentURL string
}

// PagePool 固定大小的页面池
// 职责: URL粘性分配到槽位,未见过的URL轮询分配;槽位按需打开页面,爬取结束统一关闭
type PagePool struct {
	factory models.PageFactory
	slots   []*pageSlot

	// URL -> 槽位下标
	openPages map[string]int
	cursor    int

	// 保护openPages和cursor的锁
	mu sync.Mutex

	closed bool
}

// NewPagePool 创建页面池,size小于1时按1处理
func NewPagePool(factory models.PageFactory, size int) *PagePool {
	if size < 1 {
		size = 1
	}
	slots := make([]*pageSlot, size)
	for i := range slots {
		slots[i] = &pageSlot{}
	}
	return &PagePool{
		factory:   factory,
		slots:     slots,
		openPages: make(map[string]int),
	}
}

// Size 返回槽位数
func (pp *PagePool) Size() int {
	return len(pp.slots)
}

// Allocate 返回URL对应的槽位
// 已分配过的URL复用原槽位,否则取当前游标并前移(循环)
func (pp *PagePool) Allocate(pageURL string) int {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if slot, ok := pp.openPages[pageURL]; ok {
		return slot
	}
	slot := pp.cursor
	pp.openPages[pageURL] = slot
	pp.cursor = (pp.cursor + 1) % len(pp.slots)
	return slot
}

// Acquire 获取URL对应槽位的页面,必要时打开页面并导航
// 等待槽位不计入 timeout;取得槽位后才开始计时,返回的ctx用于该URL的全部操作
// timeout 不大于0时不限时。返回的release必须调用,在此之前其他URL无法使用同一槽位
func (pp *PagePool) Acquire(ctx context.Context, pageURL string, timeout time.Duration) (models.Page, context.Context, func(), error) {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil, nil, nil, fmt.Errorf("页面池已关闭")
	}
	pp.mu.Unlock()

	slot := pp.slots[pp.Allocate(pageURL)]
	slot.mu.Lock()

	pageCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		pageCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	release := func() {
		cancel()
		slot.mu.Unlock()
	}

	if slot.page == nil {
		page, err := pp.factory.NewPage(pageCtx)
		if err != nil {
			release()
			return nil, nil, nil, fmt.Errorf("打开页面失败: %w", err)
		}
		slot.page = page
		log.Debug().Int("slots", len(pp.slots)).Msg("打开新页面")
	}

	if slot.currentURL != pageURL {
		if err := slot.page.Navigate(pageCtx, pageURL); err != nil {
			// 导航失败后页面状态未知,下一个URL重新导航
			slot.currentURL = ""
			release()
			return nil, nil, nil, fmt.Errorf("导航失败 [%s]: %w", pageURL, err)
		}
		slot.currentURL = pageURL
	}
	return slot.page, pageCtx, release, nil
}

// OpenCount 返回已打开的页面数
func (pp *PagePool) OpenCount() int {
	n := 0
	for _, slot := range pp.slots {
		slot.mu.Lock()
		if slot.page != nil {
			n++
		}
		slot.mu.Unlock()
	}
	return n
}

// Close 关闭所有页面和底层浏览器会话
func (pp *PagePool) Close() error {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil
	}
	pp.closed = true
	pp.mu.Unlock()

	var errs []error
	for _, slot := range pp.slots {
		slot.mu.Lock()
		if slot.page != nil {
			if err := slot.page.Close(); err != nil {
				log.Warn().Err(err).Msg("关闭页面失败")
				errs = append(errs, err)
			}
			slot.page = nil
			slot.currentURL = ""
		}
		slot.mu.Unlock()
	}
	if err := pp.factory.Close(); err != nil {
		errs = append(errs, fmt.Errorf("关闭浏览器失败: %w", err))
	}

	log.Info().Msg("页面池已关闭")
	return errors.Join(errs...)
}
