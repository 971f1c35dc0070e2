// Package throttle 在外部协作方前加令牌桶限速
package throttle

import (
	"context"

	"golang.org/x/time/rate"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/workflow/port"
)

// NewLimiter PerSecond<=0 时不限速
func NewLimiter(cfg config.RateConfig) *rate.Limiter {
	if cfg.PerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.PerSecond), burst)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

type generator struct {
	next    port.StoryGenerator
	limiter *rate.Limiter
}

// Generator 限速的故事生成器；limiter 为 nil 时原样返回 next
func Generator(next port.StoryGenerator, limiter *rate.Limiter) port.StoryGenerator {
	if limiter == nil {
		return next
	}
	return &generator{next: next, limiter: limiter}
}

func (g *generator) Generate(ctx context.Context, req port.GenerationRequest) (string, error) {
	if err := wait(ctx, g.limiter); err != nil {
		return "", err
	}
	return g.next.Generate(ctx, req)
}

type narrator struct {
	next    port.Narrator
	limiter *rate.Limiter
}

func Narrator(next port.Narrator, limiter *rate.Limiter) port.Narrator {
	if limiter == nil {
		return next
	}
	return &narrator{next: next, limiter: limiter}
}

func (n *narrator) Narrate(ctx context.Context, req port.NarrationRequest) (string, error) {
	if err := wait(ctx, n.limiter); err != nil {
		return "", err
	}
	return n.next.Narrate(ctx, req)
}

type describer struct {
	next    port.ImageDescriber
	limiter *rate.Limiter
}

func Describer(next port.ImageDescriber, limiter *rate.Limiter) port.ImageDescriber {
	if limiter == nil {
		return next
	}
	return &describer{next: next, limiter: limiter}
}

func (d *describer) Describe(ctx context.Context, imageRef string) (string, error) {
	if err := wait(ctx, d.limiter); err != nil {
		return "", err
	}
	return d.next.Describe(ctx, imageRef)
}
