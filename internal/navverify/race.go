package navverify

import (
	"context"
	"time"
)

// observation is what the two watchers saw after a click.
type observation struct {
	page    Page
	sameURL string
	sameOK  bool
	// extra holds tabs beyond the first; they are closed, never compared.
	extra []Page
}

func (o observation) any() bool {
	return o.page != nil || o.sameOK
}

func (o *observation) addPage(p Page) {
	if p == nil {
		return
	}
	if o.page == nil {
		o.page = p
		return
	}
	o.extra = append(o.extra, p)
}

// race waits for the first watcher to fire, then keeps listening for the
// other one for at most settle so that a click producing both a new tab and a
// same-tab navigation is seen as such. ctx bounds the whole wait.
func race(ctx context.Context, pages <-chan Page, moved <-chan string, settle time.Duration) observation {
	var seen observation

	select {
	case p := <-pages:
		seen.addPage(p)
	case u := <-moved:
		seen.sameURL, seen.sameOK = u, true
	case <-ctx.Done():
		return seen
	}

	if settle <= 0 {
		return collectReady(seen, pages, moved)
	}
	timer := time.NewTimer(settle)
	defer timer.Stop()

	for seen.page == nil || !seen.sameOK {
		select {
		case p := <-pages:
			seen.addPage(p)
		case u := <-moved:
			if !seen.sameOK {
				seen.sameURL, seen.sameOK = u, true
			}
		case <-timer.C:
			return collectReady(seen, pages, moved)
		case <-ctx.Done():
			return collectReady(seen, pages, moved)
		}
	}
	return collectReady(seen, pages, moved)
}

// drainNow collects whatever the watchers have already delivered without
// blocking.
func drainNow(pages <-chan Page, moved <-chan string) observation {
	return collectReady(observation{}, pages, moved)
}

func collectReady(seen observation, pages <-chan Page, moved <-chan string) observation {
	for {
		select {
		case p := <-pages:
			seen.addPage(p)
			continue
		default:
		}
		select {
		case u := <-moved:
			if !seen.sameOK {
				seen.sameURL, seen.sameOK = u, true
			}
			continue
		default:
		}
		return seen
	}
}
