package readtrack

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/popup"
	"github.com/trezcool/wazazi/core/school"
)

var (
	ErrStaleResult      = errors.New("aggregation result is stale")
	ErrStudentNotLinked = errors.New("student is not linked to this parent")
	ErrItemNotInFeed    = errors.New("item is not in the feed")
)

// Session is the view state of one signed-in parent: the selected student, the enriched feed,
// the unread badges and the popup queue.
//
// Every change of identity or selection starts a new generation; an aggregation result is only
// applied if no newer generation started while it was in flight.
type Session struct {
	agg *Aggregator
	log core.Logger
	rec Recorder

	mu         sync.Mutex
	identity   Identity
	generation uint64
	feed       Feed
	selectedID string
	badges     Badges
	scanned    bool // unread items of the first non-empty feed were queued

	popups *popup.Queue
	pushed map[itemKey]struct{} // popups queued from push events for the current identity
}

type itemKey struct {
	kind school.Kind
	id   string
}

func NewSession(agg *Aggregator, log core.Logger, id Identity) *Session {
	s := &Session{
		agg:      agg,
		log:      log,
		rec:      agg.opts.Recorder,
		identity: id,
		feed:     NewFeed(),
		pushed:   make(map[itemKey]struct{}),
	}
	s.popups = popup.New(s.markPopup, log)
	return s
}

func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Generation returns the current request generation.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// begin starts a new generation and returns it along with the identity to aggregate for.
func (s *Session) begin() (uint64, Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation, s.identity
}

// Refresh re-runs the aggregation and applies its result unless a newer generation started meanwhile.
// Aggregation failures leave an empty feed; only core.ErrPermissionDenied and ErrStaleResult are returned.
func (s *Session) Refresh(ctx context.Context) error {
	gen, id := s.begin()
	feed, err := s.agg.Aggregate(ctx, id)
	if applyErr := s.apply(gen, feed); applyErr != nil {
		return applyErr
	}
	return err
}

// apply installs a feed computed for generation gen.
func (s *Session) apply(gen uint64, feed Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.rec.StaleDiscarded()
		s.log.Debug("discarding stale aggregation result", map[string]interface{}{
			"uid":        s.identity.UID,
			"generation": gen,
			"current":    s.generation,
		})
		return ErrStaleResult
	}

	s.feed = feed
	if _, ok := feed.Student(s.selectedID); !ok {
		s.selectedID = ""
		if len(feed.Students) > 0 {
			s.selectedID = feed.Students[0].ID
		}
	}
	s.recompute()

	if !s.scanned && !feed.IsEmpty() {
		s.scanned = true
		s.popups.Enqueue(unreadItems(feed)...)
	}
	return nil
}

// Select changes the selected student and recomputes the badges from the current feed.
func (s *Session) Select(studentID string) (Badges, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.feed.Student(studentID); !ok {
		return s.badges, ErrStudentNotLinked
	}
	s.generation++
	s.selectedID = studentID
	s.recompute()
	return s.badges, nil
}

// SetIdentity replaces the parent the session aggregates for and clears its state.
// Popups are dropped as well unless only the email changed.
func (s *Session) SetIdentity(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	if id.UID != s.identity.UID || !sameStudents(id, s.identity) {
		s.popups.Close()
		s.popups = popup.New(s.markPopup, s.log)
		s.pushed = make(map[itemKey]struct{})
		s.scanned = false
	}
	s.identity = id
	s.feed = NewFeed()
	s.selectedID = ""
	s.badges = Badges{}
}

// Selected returns the selected student, if any.
func (s *Session) Selected() (school.Student, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed.Student(s.selectedID)
}

func (s *Session) Badges() Badges {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.badges
}

// Feed returns a copy of the whole feed.
func (s *Session) Feed() Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed.Clone()
}

// SelectedFeed returns a copy of the feed restricted to the selected student.
func (s *Session) SelectedFeed() Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	selected, ok := s.feed.Student(s.selectedID)
	if !ok {
		out := NewFeed()
		out.Students = append(out.Students, s.feed.Students...)
		return out
	}
	return s.feed.ForStudent(selected)
}

func (s *Session) Popups() *popup.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popups
}

// MarkRead flags an item as read locally, then upserts its receipt.
// A failed write is logged and left unreconciled until the next refresh; only
// core.ErrPermissionDenied is returned.
func (s *Session) MarkRead(ctx context.Context, kind school.Kind, itemID string) (Badges, error) {
	s.mu.Lock()
	if !s.feed.MarkRead(kind, itemID) {
		s.mu.Unlock()
		return Badges{}, ErrItemNotInFeed
	}
	s.recompute()
	badges, id := s.badges, s.identity
	s.mu.Unlock()

	if err := s.agg.MarkAsRead(ctx, id, kind, itemID); err != nil {
		s.log.Error("writing read receipt", err, map[string]interface{}{"uid": id.UID, "kind": string(kind), "id": itemID})
		if core.IsPermissionDenied(err) {
			return badges, core.ErrPermissionDenied
		}
	}
	return badges, nil
}

// Close releases the popup queue.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.popups.Close()
}

// Push queues a popup announced by a push event and returns how many items were added.
func (s *Session) Push(it popup.Item) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.popups.Enqueue(it)
	if n > 0 {
		s.pushed[itemKey{it.Kind, it.ID}] = struct{}{}
	}
	return n
}

// markPopup acknowledges a dismissed popup. Items missing from the feed are only written
// when a push event announced them to the current identity.
func (s *Session) markPopup(ctx context.Context, it popup.Item) error {
	_, err := s.MarkRead(ctx, it.Kind, it.ID)
	if errors.Cause(err) != ErrItemNotInFeed {
		return err
	}

	s.mu.Lock()
	_, pushed := s.pushed[itemKey{it.Kind, it.ID}]
	id := s.identity
	s.mu.Unlock()
	if !pushed {
		return err
	}
	return s.agg.MarkAsRead(ctx, id, it.Kind, it.ID)
}

// recompute refreshes the badges. s.mu must be held.
func (s *Session) recompute() {
	selected, ok := s.feed.Student(s.selectedID)
	if !ok {
		s.badges = Summarize(s.feed, nil)
		return
	}
	s.badges = Summarize(s.feed, &selected)
}

// unreadItems lists the unread records of a feed as popup items, newest first per bucket.
func unreadItems(f Feed) []popup.Item {
	var items []popup.Item
	for _, st := range f.Students {
		for _, c := range f.CommentsByStudent[st.ID] {
			if !c.IsReadByCurrentUser {
				items = append(items, popup.Item{Kind: school.KindComment, ID: c.ID, Title: c.Subject})
			}
		}
		for _, n := range f.NotificationsByClass[st.ClassID] {
			if !n.IsReadByCurrentUser {
				items = append(items, popup.Item{Kind: school.KindNotification, ID: n.ID, Title: n.Title})
			}
		}
		for _, b := range f.BroadcastsByClass[st.ClassID] {
			if !b.IsReadByCurrentUser {
				items = append(items, popup.Item{Kind: school.KindBroadcast, ID: b.ID, Title: b.Title})
			}
		}
	}
	return items
}
