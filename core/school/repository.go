package school

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrUnknownKind     = errors.New("unknown item kind")
)

// Repository gives access to school records.
// Methods taking a list of ids accept at most core.MaxDisjunctionValues of them.
type Repository interface {
	StudentsByIDs(ctx context.Context, ids []string) ([]Student, error)
	CommentsForStudents(ctx context.Context, studentIDs []string) ([]Comment, error)
	NotificationsForClasses(ctx context.Context, classIDs []string) ([]Notification, error)
	BroadcastsForClasses(ctx context.Context, classIDs []string) ([]Broadcast, error)

	// Receipt returns the read receipt of uid on an item; found is false when none was written yet.
	Receipt(ctx context.Context, kind Kind, itemID, uid string) (rcpt Receipt, found bool, err error)
	// MarkRead merges {is_read: true, read_at: <server time>} into the receipt of uid on an item.
	MarkRead(ctx context.Context, kind Kind, itemID, uid, parentName string) error

	CreateStudent(ctx context.Context, s Student) (Student, error)
	CreateComment(ctx context.Context, c Comment) (Comment, error)
	CreateNotification(ctx context.Context, n Notification) (Notification, error)
	CreateBroadcast(ctx context.Context, b Broadcast) (Broadcast, error)
}
