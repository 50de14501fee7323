package conversation

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer 控制同一轮内相邻端点调用之间的节奏，不改变调用顺序。
type Pacer interface {
	// BeforeQuery 在调用端点前执行。
	BeforeQuery(ctx context.Context, endpoint string) error
	// AfterAnswer 在端点成功返回后执行。
	AfterAnswer(ctx context.Context, endpoint string) error
}

// DefaultPacingDelay 是固定节奏下每次成功调用后的等待时间。
const DefaultPacingDelay = time.Second

// FixedPacer 在每次成功调用后固定等待 Delay。
type FixedPacer struct {
	Delay time.Duration
}

// BeforeQuery 实现 Pacer。
func (FixedPacer) BeforeQuery(context.Context, string) error { return nil }

// AfterAnswer 实现 Pacer，ctx 取消时提前返回。
func (p FixedPacer) AfterAnswer(ctx context.Context, _ string) error {
	if p.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoPacer 不做任何等待。
type NoPacer struct{}

// BeforeQuery 实现 Pacer。
func (NoPacer) BeforeQuery(context.Context, string) error { return nil }

// AfterAnswer 实现 Pacer。
func (NoPacer) AfterAnswer(context.Context, string) error { return nil }

// TokenBucketPacer 为每个端点维护独立的令牌桶，在调用前等待令牌。
// 限流器在多个请求之间共享，因此限制的是进程对该端点的整体调用频率。
type TokenBucketPacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewTokenBucketPacer 创建令牌桶节奏器，interval 为补充一个令牌的间隔。
func NewTokenBucketPacer(interval time.Duration, burst int) *TokenBucketPacer {
	if interval <= 0 {
		interval = DefaultPacingDelay
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketPacer{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(interval),
		burst:    burst,
	}
}

// BeforeQuery 等待端点对应的令牌。
func (p *TokenBucketPacer) BeforeQuery(ctx context.Context, endpoint string) error {
	return p.limiter(endpoint).Wait(ctx)
}

// AfterAnswer 实现 Pacer。
func (p *TokenBucketPacer) AfterAnswer(context.Context, string) error { return nil }

func (p *TokenBucketPacer) limiter(endpoint string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	limiter, ok := p.limiters[endpoint]
	if !ok {
		limiter = rate.NewLimiter(p.limit, p.burst)
		p.limiters[endpoint] = limiter
	}
	return limiter
}

var (
	_ Pacer = FixedPacer{}
	_ Pacer = NoPacer{}
	_ Pacer = (*TokenBucketPacer)(nil)
)
