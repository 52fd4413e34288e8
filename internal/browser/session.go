// Package browser acquires sessions on a remote pooled browser and drives
// page loads for the scrape workers.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

var (
	// ErrAcquire covers connection and pool-saturation failures. Always
	// retryable via queue redelivery.
	ErrAcquire = errors.New("browser session acquisition failed")

	// ErrNavigation covers page load failures and timeouts. Retryable.
	ErrNavigation = errors.New("page navigation failed")

	// ErrMarkerTimeout means the page loaded but the expected content marker
	// never appeared. Not retryable: the page is structurally missing what
	// the extractor needs.
	ErrMarkerTimeout = errors.New("content marker did not appear")
)

// Provider hands out browser sessions, one per job attempt.
type Provider interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is a single remote browser tab. Close is idempotent and must be
// called on every exit path once acquired.
type Session interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// RemoteProvider connects to a pooled browser endpoint over WebSocket
// (Bright Data style). The endpoint URL carries credentials and is supplied
// by configuration only.
type RemoteProvider struct {
	wsURL          string
	acquireTimeout time.Duration
}

func NewRemoteProvider(wsURL string, acquireTimeout time.Duration) (*RemoteProvider, error) {
	if wsURL == "" {
		return nil, errors.New("browser websocket endpoint is required")
	}
	if acquireTimeout <= 0 {
		acquireTimeout = 15 * time.Second
	}
	return &RemoteProvider{
		wsURL:          wsURL,
		acquireTimeout: acquireTimeout,
	}, nil
}

func (p *RemoteProvider) Acquire(ctx context.Context) (Session, error) {
	// The allocator is rooted in a fresh context so the session outlives the
	// acquire call; its lifetime ends at Close.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), p.wsURL, chromedp.NoModifyURL)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	session := &remoteSession{
		ctx:         taskCtx,
		taskCancel:  taskCancel,
		allocCancel: allocCancel,
	}

	done := make(chan error, 1)
	go func() {
		// Run with no actions establishes the browser connection eagerly.
		done <- chromedp.Run(taskCtx)
	}()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("%w: %v", ErrAcquire, err)
		}
		return session, nil
	case <-timer.C:
		_ = session.Close()
		return nil, fmt.Errorf("%w: no session within %s", ErrAcquire, p.acquireTimeout)
	case <-ctx.Done():
		_ = session.Close()
		return nil, fmt.Errorf("%w: %v", ErrAcquire, ctx.Err())
	}
}

type remoteSession struct {
	ctx         context.Context
	taskCancel  context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

func (s *remoteSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	runCtx, cancel := s.boundedContext(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	return nil
}

func (s *remoteSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := s.boundedContext(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrMarkerTimeout, selector)
		}
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (s *remoteSession) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := s.boundedContext(ctx, 10*time.Second)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

func (s *remoteSession) Close() error {
	s.closeOnce.Do(func() {
		s.taskCancel()
		s.allocCancel()
	})
	return nil
}

// boundedContext derives a per-action context from the session, honoring both
// the caller's cancellation and the action timeout.
func (s *remoteSession) boundedContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, timeoutCancel := context.WithTimeout(s.ctx, timeout)
	if ctx == nil {
		return runCtx, timeoutCancel
	}

	stop := context.AfterFunc(ctx, timeoutCancel)
	return runCtx, func() {
		stop()
		timeoutCancel()
	}
}
