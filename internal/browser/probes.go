package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/lp-linkcheck/internal/pagecheck"
)

const collectImagesJS = `() => Array.from(document.images).map((el) => {
  const rect = el.getBoundingClientRect();
  const cs = window.getComputedStyle(el);
  return {
    src: el.currentSrc || el.getAttribute('src') || '',
    complete: el.complete,
    naturalW: el.naturalWidth,
    naturalH: el.naturalHeight,
    boxW: rect.width,
    boxH: rect.height,
    objectFit: cs.objectFit || 'fill',
  };
})`

const forceLazyLoadJS = `() => {
  document.querySelectorAll('img').forEach((img) => {
    const real = img.getAttribute('data-lazy-src') || img.getAttribute('data-src') || img.getAttribute('data-original');
    if (real && img.getAttribute('src') !== real) {
      img.setAttribute('src', real);
    }
  });
}`

const awaitImagesJS = `(ms) => Promise.race([
  Promise.all(Array.from(document.images).map((img) => img.complete ? null : new Promise((resolve) => {
    img.addEventListener('load', resolve, { once: true });
    img.addEventListener('error', resolve, { once: true });
  }))),
  new Promise((resolve) => setTimeout(resolve, ms)),
])`

// WaitNetworkIdle waits for the network to go quiet. Pages with long-polling
// trackers never do, so a timeout is not an error.
func (s *Session) WaitNetworkIdle(ctx context.Context, bound time.Duration) {
	_ = s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: timeoutMS(ctx, bound),
	})
}

// CollectImages samples every <img> in the document.
func (s *Session) CollectImages() ([]pagecheck.ImageSample, error) {
	raw, err := s.page.Evaluate(collectImagesJS)
	if err != nil {
		return nil, fmt.Errorf("collect images: %w", err)
	}
	// Evaluate returns generic maps; a JSON pass maps them onto the struct tags.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("collect images: %w", err)
	}
	var samples []pagecheck.ImageSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("collect images: %w", err)
	}
	return samples, nil
}

// ForceLazyLoad copies lazy-load source attributes into src and waits, up to
// bound, for the swapped images to finish.
func (s *Session) ForceLazyLoad(bound time.Duration) error {
	if _, err := s.page.Evaluate(forceLazyLoadJS); err != nil {
		return fmt.Errorf("force lazy load: %w", err)
	}
	if _, err := s.page.Evaluate(awaitImagesJS, bound.Milliseconds()); err != nil {
		return fmt.Errorf("await images: %w", err)
	}
	return nil
}

// ScrollY returns window.scrollY.
func (s *Session) ScrollY() (float64, error) {
	v, err := s.page.Evaluate(`() => window.scrollY`)
	if err != nil {
		return 0, err
	}
	return toFloat(v), nil
}

// Wheel scrolls by dy CSS pixels with the mouse wheel.
func (s *Session) Wheel(dy float64) error {
	return s.page.Mouse().Wheel(0, dy)
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitScrollSettled samples scrollY twice, 100ms apart, until the page stops
// moving or ctx is done.
func (s *Session) WaitScrollSettled(ctx context.Context) error {
	for {
		y1, err := s.ScrollY()
		if err != nil {
			return err
		}
		if err := Sleep(ctx, 100*time.Millisecond); err != nil {
			return err
		}
		y2, err := s.ScrollY()
		if err != nil {
			return err
		}
		if pagecheck.ScrollSettled(y1, y2) {
			return nil
		}
	}
}

// Screenshot captures the viewport. When path is set the image is also
// written there.
func (s *Session) Screenshot(path string) ([]byte, error) {
	opts := playwright.PageScreenshotOptions{}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		opts.Path = playwright.String(path)
	}
	return s.page.Screenshot(opts)
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	default:
		return 0
	}
}
