package readtrack

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/school"
)

// ReceiptPolicy decides what a failed receipt lookup does to an aggregation pass.
type ReceiptPolicy int

const (
	// ReceiptsDefaultUnread counts an item whose receipt could not be read as unread.
	ReceiptsDefaultUnread ReceiptPolicy = iota
	// ReceiptsFailClosed aborts the pass on the first failed receipt lookup.
	ReceiptsFailClosed
)

type (
	Options struct {
		Policy ReceiptPolicy
		// Concurrency caps in-flight receipt lookups; <= 0 means no cap.
		Concurrency int
		Recorder    Recorder
	}

	// Aggregator fetches the records of a parent's students, joins the parent's read receipts
	// and groups them for badge counting.
	Aggregator struct {
		repo school.Repository
		log  core.Logger
		opts Options
	}

	itemRef struct {
		kind school.Kind
		id   string
	}
)

func NewAggregator(repo school.Repository, log core.Logger, opts Options) *Aggregator {
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	return &Aggregator{repo: repo, log: log, opts: opts}
}

// Chunk splits ids into consecutive groups of at most size ids.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = core.MaxDisjunctionValues
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// chunked runs fn once per chunk of ids and concatenates the results in chunk order.
func chunked[T any](ctx context.Context, ids []string, fn func(ctx context.Context, chunk []string) ([]T, error)) ([]T, error) {
	chunks := Chunk(ids, core.MaxDisjunctionValues)
	results := make([][]T, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			res, err := fn(gctx, chunk)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []T
	for _, res := range results {
		out = append(out, res...)
	}
	return out, nil
}

// Aggregate builds the feed of a parent.
// Any failure yields an empty feed and is logged. Only core.ErrPermissionDenied is returned,
// so the caller can end the parent's session.
func (a *Aggregator) Aggregate(ctx context.Context, id Identity) (Feed, error) {
	start := time.Now()
	feed, err := a.fetch(ctx, id)
	a.opts.Recorder.ObserveAggregation(time.Since(start))
	if err != nil {
		a.opts.Recorder.AggregationFailed()
		a.log.Error("aggregating feed", err, map[string]interface{}{"uid": id.UID})
		if core.IsPermissionDenied(err) {
			return NewFeed(), core.ErrPermissionDenied
		}
		return NewFeed(), nil
	}
	return feed, nil
}

func (a *Aggregator) fetch(ctx context.Context, id Identity) (Feed, error) {
	feed := NewFeed()
	studentIDs := core.UniqueStrings(id.StudentIDs)
	if len(studentIDs) == 0 {
		return feed, nil
	}

	students, err := chunked(ctx, studentIDs, func(ctx context.Context, chunk []string) ([]school.Student, error) {
		a.opts.Recorder.QueryIssued("students")
		return a.repo.StudentsByIDs(ctx, chunk)
	})
	if err != nil {
		return feed, errors.Wrap(err, "fetching students")
	}
	seenStudents := make(map[string]bool, len(students))
	classSet := make(map[string]bool)
	var classIDs []string
	for _, s := range students {
		if seenStudents[s.ID] {
			continue
		}
		seenStudents[s.ID] = true
		feed.Students = append(feed.Students, s)
		if s.ClassID != "" && !classSet[s.ClassID] {
			classSet[s.ClassID] = true
			classIDs = append(classIDs, s.ClassID)
		}
	}

	var (
		comments   []school.Comment
		notifs     []school.Notification
		broadcasts []school.Broadcast
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		comments, err = chunked(gctx, studentIDs, func(ctx context.Context, chunk []string) ([]school.Comment, error) {
			a.opts.Recorder.QueryIssued("comments")
			return a.repo.CommentsForStudents(ctx, chunk)
		})
		return errors.Wrap(err, "fetching comments")
	})
	g.Go(func() (err error) {
		notifs, err = chunked(gctx, classIDs, func(ctx context.Context, chunk []string) ([]school.Notification, error) {
			a.opts.Recorder.QueryIssued("notifications")
			return a.repo.NotificationsForClasses(ctx, chunk)
		})
		return errors.Wrap(err, "fetching notifications")
	})
	g.Go(func() (err error) {
		broadcasts, err = chunked(gctx, classIDs, func(ctx context.Context, chunk []string) ([]school.Broadcast, error) {
			a.opts.Recorder.QueryIssued("broadcasts")
			return a.repo.BroadcastsForClasses(ctx, chunk)
		})
		return errors.Wrap(err, "fetching broadcasts")
	})
	if err = g.Wait(); err != nil {
		return feed, err
	}

	comments = dedupe(comments, func(c school.Comment) string { return c.ID })
	notifs = dedupe(notifs, func(n school.Notification) string { return n.ID })
	broadcasts = dedupe(broadcasts, func(b school.Broadcast) string { return b.ID })

	refs := make([]itemRef, 0, len(comments)+len(notifs)+len(broadcasts))
	for _, c := range comments {
		refs = append(refs, itemRef{school.KindComment, c.ID})
	}
	for _, n := range notifs {
		refs = append(refs, itemRef{school.KindNotification, n.ID})
	}
	for _, b := range broadcasts {
		refs = append(refs, itemRef{school.KindBroadcast, b.ID})
	}
	read, err := a.gatherReceipts(ctx, id.UID, refs)
	if err != nil {
		return feed, err
	}

	for _, c := range comments {
		key := c.StudentID
		feed.CommentsByStudent[key] = append(feed.CommentsByStudent[key], EnrichedComment{
			Comment:             c,
			IsReadByCurrentUser: read[itemRef{school.KindComment, c.ID}],
		})
	}
	for _, n := range notifs {
		key := n.ClassID
		feed.NotificationsByClass[key] = append(feed.NotificationsByClass[key], EnrichedNotification{
			Notification:        n,
			IsReadByCurrentUser: read[itemRef{school.KindNotification, n.ID}],
		})
	}
	for _, b := range broadcasts {
		isRead := read[itemRef{school.KindBroadcast, b.ID}]
		for _, classID := range core.UniqueStrings(b.ClassIDs) {
			if !classSet[classID] {
				continue
			}
			feed.BroadcastsByClass[classID] = append(feed.BroadcastsByClass[classID], EnrichedBroadcast{
				Broadcast:           b,
				IsReadByCurrentUser: isRead,
			})
		}
	}
	sortBuckets(feed)
	return feed, nil
}

// gatherReceipts looks up the receipt of uid on every item concurrently and returns
// the read flags keyed by item.
func (a *Aggregator) gatherReceipts(ctx context.Context, uid string, refs []itemRef) (map[itemRef]bool, error) {
	type result struct {
		isRead bool
		err    error
	}
	results := make([]result, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	if a.opts.Concurrency > 0 {
		g.SetLimit(a.opts.Concurrency)
	}
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			rcpt, found, err := a.repo.Receipt(gctx, ref.kind, ref.id, uid)
			a.opts.Recorder.ReceiptLookup(err == nil)
			if err != nil {
				results[i].err = err
				if a.opts.Policy == ReceiptsFailClosed || core.IsPermissionDenied(err) {
					return errors.Wrapf(err, "getting receipt of %s %s", ref.kind, ref.id)
				}
				return nil
			}
			results[i].isRead = found && rcpt.IsRead
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	read := make(map[itemRef]bool, len(refs))
	for i, ref := range refs {
		if err := results[i].err; err != nil {
			a.log.Warn("receipt lookup failed, counting item as unread", err, map[string]interface{}{
				"kind": string(ref.kind),
				"id":   ref.id,
				"uid":  uid,
			})
		}
		read[ref] = results[i].isRead
	}
	return read, nil
}

// MarkAsRead upserts the read receipt of a parent on an item.
func (a *Aggregator) MarkAsRead(ctx context.Context, id Identity, kind school.Kind, itemID string) error {
	return errors.Wrap(a.repo.MarkRead(ctx, kind, itemID, id.UID, id.Email), "marking item as read")
}

func dedupe[T any](items []T, key func(T) string) []T {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		k := key(it)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, it)
	}
	return out
}
