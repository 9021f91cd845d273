package readtrack

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/wazazi/core/school"
	inmemdb "github.com/trezcool/wazazi/storage/database/inmem"
	"github.com/trezcool/wazazi/storage/docrepos"
	testutil "github.com/trezcool/wazazi/tests"
)

// recordingRepo wraps a school.Repository, records the id chunks of every query and
// injects failures.
type recordingRepo struct {
	school.Repository

	mu          sync.Mutex
	calls       map[string][][]string
	queryErrs   map[string]error // {collection: err}
	receiptErrs map[string]error // {item id: err}
	markErr     error

	// when set, the next StudentsByIDs call signals entered then blocks until release is closed
	entered chan struct{}
	release chan struct{}

	// when set, every receipt lookup waits for the others before returning
	barrier *barrier
}

func newRecordingRepo(repo school.Repository) *recordingRepo {
	return &recordingRepo{
		Repository:  repo,
		calls:       make(map[string][][]string),
		queryErrs:   make(map[string]error),
		receiptErrs: make(map[string]error),
	}
}

func (r *recordingRepo) record(coll string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[coll] = append(r.calls[coll], append([]string(nil), ids...))
	return r.queryErrs[coll]
}

func (r *recordingRepo) chunks(coll string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[coll]
}

func (r *recordingRepo) StudentsByIDs(ctx context.Context, ids []string) ([]school.Student, error) {
	r.mu.Lock()
	entered, release := r.entered, r.release
	r.entered, r.release = nil, nil
	r.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}
	if err := r.record("students", ids); err != nil {
		return nil, err
	}
	return r.Repository.StudentsByIDs(ctx, ids)
}

// holdNextStudentsQuery blocks the next students query until release is closed.
func (r *recordingRepo) holdNextStudentsQuery() (entered, release chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entered, r.release = make(chan struct{}), make(chan struct{})
	return r.entered, r.release
}

func (r *recordingRepo) CommentsForStudents(ctx context.Context, ids []string) ([]school.Comment, error) {
	if err := r.record("comments", ids); err != nil {
		return nil, err
	}
	return r.Repository.CommentsForStudents(ctx, ids)
}

func (r *recordingRepo) NotificationsForClasses(ctx context.Context, ids []string) ([]school.Notification, error) {
	if err := r.record("notifications", ids); err != nil {
		return nil, err
	}
	return r.Repository.NotificationsForClasses(ctx, ids)
}

func (r *recordingRepo) BroadcastsForClasses(ctx context.Context, ids []string) ([]school.Broadcast, error) {
	if err := r.record("broadcasts", ids); err != nil {
		return nil, err
	}
	return r.Repository.BroadcastsForClasses(ctx, ids)
}

func (r *recordingRepo) Receipt(ctx context.Context, kind school.Kind, itemID, uid string) (school.Receipt, bool, error) {
	if r.barrier != nil {
		r.barrier.arrive()
	}
	r.mu.Lock()
	err := r.receiptErrs[itemID]
	r.mu.Unlock()
	if err != nil {
		return school.Receipt{}, false, err
	}
	return r.Repository.Receipt(ctx, kind, itemID, uid)
}

func (r *recordingRepo) MarkRead(ctx context.Context, kind school.Kind, itemID, uid, parentName string) error {
	r.mu.Lock()
	err := r.markErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Repository.MarkRead(ctx, kind, itemID, uid, parentName)
}

// barrier releases its callers once n of them arrived, or after a timeout.
// With n <= 0 each caller just holds for a short while, to measure concurrency.
type barrier struct {
	mu       sync.Mutex
	n        int
	arrived  int
	inFlight int
	maxSeen  int
	done     chan struct{}
	timedOut bool
}

func newBarrier(n int) *barrier {
	return &barrier{n: n, done: make(chan struct{})}
}

func (b *barrier) arrive() {
	b.mu.Lock()
	b.arrived++
	b.inFlight++
	if b.inFlight > b.maxSeen {
		b.maxSeen = b.inFlight
	}
	if b.arrived == b.n {
		close(b.done)
	}
	b.mu.Unlock()

	if b.n <= 0 {
		time.Sleep(20 * time.Millisecond)
	} else {
		select {
		case <-b.done:
		case <-time.After(time.Second):
			b.mu.Lock()
			b.timedOut = true
			b.mu.Unlock()
		}
	}

	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
}

type fixture struct {
	db   *inmemdb.DB
	repo *recordingRepo
	agg  *Aggregator
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	db := inmemdb.Open()
	repo := newRecordingRepo(docrepos.NewSchoolRepository(db))
	return fixture{
		db:   db,
		repo: repo,
		agg:  NewAggregator(repo, testutil.NewLogger(), opts),
	}
}
