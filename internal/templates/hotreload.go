package templates

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Notifier broadcasts reloads: the channel returned by C is closed on the
// next Notify and replaced with a fresh one.
type Notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// C returns the channel closed by the next Notify
func (n *Notifier) C() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

func (n *Notifier) Notify() {
	n.mu.Lock()
	close(n.ch)
	n.ch = make(chan struct{})
	n.mu.Unlock()
}

// ReloadStatus is the answer of the hot reload long-poll
type ReloadStatus struct {
	Reload bool   `json:"reload" xml:"Reload" yaml:"reload"`
	ETag   string `json:"etag" xml:"ETag" yaml:"etag"`
}

// HotReload tracks the combined ETag of engines sharing one Notifier
type HotReload struct {
	notifier *Notifier
	engines  []*Engine
}

func NewHotReload(notifier *Notifier, engines ...*Engine) *HotReload {
	return &HotReload{notifier: notifier, engines: engines}
}

// ETag joins the ETags of all engines
func (h *HotReload) ETag() string {
	tags := make([]string, 0, len(h.engines))
	for _, e := range h.engines {
		tags = append(tags, e.ETag())
	}
	return strings.Join(tags, ".")
}

// Wait answers a client that last saw etag. An empty etag returns at once,
// a stale one asks for a reload, otherwise Wait blocks until the next
// reload, the timeout or ctx is done.
func (h *HotReload) Wait(ctx context.Context, etag string, timeout time.Duration) ReloadStatus {
	changed := h.notifier.C()
	current := h.ETag()
	if etag == "" {
		return ReloadStatus{ETag: current}
	}
	if etag != current {
		return ReloadStatus{Reload: true, ETag: current}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-changed:
		current = h.ETag()
		return ReloadStatus{Reload: current != etag, ETag: current}
	case <-timer.C:
	case <-ctx.Done():
	}
	return ReloadStatus{ETag: current}
}
