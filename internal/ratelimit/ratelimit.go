package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Limiter — фиксированное окно (не token bucket): после сброса окна
// разрешается burst до полного потолка. Счётчик и старт окна — общее
// состояние процесса, вся последовательность check-and-increment под мьютексом.
type Limiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time

	clock Clock
	sleep func(ctx context.Context, d time.Duration) error
}

func New(limitPerWindow int, window time.Duration) *Limiter {
	if limitPerWindow <= 0 {
		limitPerWindow = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limit:  limitPerWindow,
		window: window,
		clock:  systemClock{},
		sleep:  sleepCtx,
	}
}

func (l *Limiter) WithClock(c Clock) *Limiter {
	if c != nil {
		l.clock = c
	}
	return l
}

func (l *Limiter) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Limiter {
	if fn != nil {
		l.sleep = fn
	}
	return l
}

// Acquire блокирует вызывающего, пока запрос не впишется в текущее окно.
// Инкремент происходит на каждую попытку запроса, в том числе на те,
// которые потом завершатся ошибкой.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.clock.Now()
		if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
			l.count = 0
			l.windowStart = now
		}
		if l.count < l.limit {
			l.count++
			l.mu.Unlock()
			return nil
		}
		wait := l.window - now.Sub(l.windowStart)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

type Usage struct {
	Count     int       `json:"count"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

func (l *Limiter) Usage() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	count := l.count
	start := l.windowStart
	if start.IsZero() || now.Sub(start) >= l.window {
		count = 0
		start = now
	}
	return Usage{
		Count:     count,
		Remaining: l.limit - count,
		ResetAt:   start.Add(l.window),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
