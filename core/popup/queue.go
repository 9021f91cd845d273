package popup

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/school"
)

var (
	ErrNothingShown      = errors.New("no popup is showing")
	ErrAlreadySubscribed = errors.New("popup queue already has a subscriber")
	ErrClosed            = errors.New("popup queue is closed")

	// MarkTimeout bounds the read-receipt write triggered by a dismissal.
	MarkTimeout = 10 * time.Second
)

type State int

const (
	Idle State = iota
	Showing
)

func (s State) String() string {
	if s == Showing {
		return "showing"
	}
	return "idle"
}

// Item is an unread record waiting to be presented.
type Item struct {
	Kind  school.Kind `json:"kind"`
	ID    string      `json:"id"`
	Title string      `json:"title"`
}

type key struct {
	kind school.Kind
	id   string
}

func (it Item) key() key { return key{it.Kind, it.ID} }

// MarkFunc acknowledges a dismissed item.
type MarkFunc func(ctx context.Context, it Item) error

// Queue presents items one at a time, in the order they were enqueued.
// Dismissing the shown item marks it read without waiting for the write, then shows the next one.
type Queue struct {
	mu      sync.Mutex
	pending []Item
	current *Item
	known   map[key]struct{} // queued, shown or dismissed
	mark    MarkFunc
	log     core.Logger
	sub     chan Item
	closed  bool
	marks   sync.WaitGroup
}

func New(mark MarkFunc, log core.Logger) *Queue {
	return &Queue{
		known: make(map[key]struct{}),
		mark:  mark,
		log:   log,
	}
}

// Enqueue appends items not seen before to the tail and returns how many were added.
// When idle, the first item is shown right away.
func (q *Queue) Enqueue(items ...Item) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}
	added := 0
	for _, it := range items {
		if _, ok := q.known[it.key()]; ok {
			continue
		}
		q.known[it.key()] = struct{}{}
		q.pending = append(q.pending, it)
		added++
	}
	if q.current == nil {
		q.advance()
	}
	return added
}

// Current returns the shown item.
func (q *Queue) Current() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return Item{}, false
	}
	return *q.current, true
}

func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return Idle
	}
	return Showing
}

// Len returns the number of items waiting behind the shown one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Dismiss closes the shown item, fires its mark-as-read and shows the next item if any.
func (q *Queue) Dismiss() (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return Item{}, ErrNothingShown
	}
	it := *q.current
	q.current = nil

	if q.mark != nil {
		q.marks.Add(1)
		go func() {
			defer q.marks.Done()
			ctx, cancel := context.WithTimeout(context.Background(), MarkTimeout)
			defer cancel()
			if err := q.mark(ctx, it); err != nil {
				q.log.Error("marking dismissed popup as read", err, map[string]interface{}{
					"kind": string(it.Kind),
					"id":   it.ID,
				})
			}
		}()
	}

	q.advance()
	return it, nil
}

// Subscribe returns the channel on which shown items are published.
// Only one subscriber is allowed; publishing never blocks, so a slow subscriber may miss
// items and should fall back to Current.
func (q *Queue) Subscribe() (<-chan Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case q.closed:
		return nil, ErrClosed
	case q.sub != nil:
		return nil, ErrAlreadySubscribed
	}
	q.sub = make(chan Item, 16)
	if q.current != nil {
		q.sub <- *q.current
	}
	return q.sub, nil
}

// Wait blocks until every fired mark-as-read returned.
func (q *Queue) Wait() {
	q.marks.Wait()
}

// Close drops pending items and closes the subscription.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.pending = nil
	q.current = nil
	if q.sub != nil {
		close(q.sub)
	}
}

// advance shows the next pending item. q.mu must be held.
func (q *Queue) advance() {
	if len(q.pending) == 0 {
		return
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	q.current = &next

	if q.sub != nil {
		select {
		case q.sub <- next:
		default:
			q.log.Warn("popup subscriber is lagging, dropping notification", map[string]interface{}{"id": next.ID})
		}
	}
}
