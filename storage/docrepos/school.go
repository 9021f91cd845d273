package docrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/school"
)

const (
	studentsCollection      = "students"
	commentsCollection      = "comments"
	notificationsCollection = "notifications"
	broadcastsCollection    = "notificationsForClass"
	receiptsCollection      = "reads"
)

var collections = map[school.Kind]string{
	school.KindComment:      commentsCollection,
	school.KindNotification: notificationsCollection,
	school.KindBroadcast:    broadcastsCollection,
}

type schoolRepository struct {
	store core.DocStore
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(store core.DocStore) school.Repository {
	return &schoolRepository{store: store}
}

func (repo *schoolRepository) StudentsByIDs(ctx context.Context, ids []string) ([]school.Student, error) {
	if len(ids) > core.MaxDisjunctionValues {
		return nil, core.ErrTooManyValues
	}
	if len(ids) == 0 {
		return nil, nil
	}
	docs, err := repo.store.Query(ctx, core.Query{
		Collection: studentsCollection,
		Filters:    []core.Filter{core.Where("id", core.OpIn, ids)},
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]school.Student, 0, len(docs))
	for _, doc := range docs {
		var s school.Student
		if err = doc.DataTo(&s); err != nil {
			return nil, errors.Wrap(err, "decoding student")
		}
		students = append(students, s)
	}
	return students, nil
}

func (repo *schoolRepository) CommentsForStudents(ctx context.Context, studentIDs []string) ([]school.Comment, error) {
	docs, err := repo.queryIn(ctx, commentsCollection, "student_id", core.OpIn, studentIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying comments")
	}
	comments := make([]school.Comment, 0, len(docs))
	for _, doc := range docs {
		var c school.Comment
		if err = doc.DataTo(&c); err != nil {
			return nil, errors.Wrap(err, "decoding comment")
		}
		comments = append(comments, c)
	}
	return comments, nil
}

func (repo *schoolRepository) NotificationsForClasses(ctx context.Context, classIDs []string) ([]school.Notification, error) {
	docs, err := repo.queryIn(ctx, notificationsCollection, "class_id", core.OpIn, classIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notifs := make([]school.Notification, 0, len(docs))
	for _, doc := range docs {
		var n school.Notification
		if err = doc.DataTo(&n); err != nil {
			return nil, errors.Wrap(err, "decoding notification")
		}
		notifs = append(notifs, n)
	}
	return notifs, nil
}

func (repo *schoolRepository) BroadcastsForClasses(ctx context.Context, classIDs []string) ([]school.Broadcast, error) {
	docs, err := repo.queryIn(ctx, broadcastsCollection, "class_ids", core.OpArrayContainsAny, classIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying broadcasts")
	}
	broadcasts := make([]school.Broadcast, 0, len(docs))
	for _, doc := range docs {
		var b school.Broadcast
		if err = doc.DataTo(&b); err != nil {
			return nil, errors.Wrap(err, "decoding broadcast")
		}
		broadcasts = append(broadcasts, b)
	}
	return broadcasts, nil
}

// queryIn runs one membership query, newest documents first.
func (repo *schoolRepository) queryIn(ctx context.Context, coll, field, op string, values []string) ([]core.Document, error) {
	if len(values) > core.MaxDisjunctionValues {
		return nil, core.ErrTooManyValues
	}
	if len(values) == 0 {
		return nil, nil
	}
	return repo.store.Query(ctx, core.Query{
		Collection: coll,
		Filters:    []core.Filter{core.Where(field, op, values)},
		OrderBy:    "created_at",
		Descending: true,
	})
}

func (repo *schoolRepository) receiptPath(kind school.Kind, itemID, uid string) (string, error) {
	coll, ok := collections[kind]
	if !ok {
		return "", school.ErrUnknownKind
	}
	if !core.IsDocID(itemID) || !core.IsDocID(uid) {
		return "", school.ErrItemNotFound
	}
	return core.DocPath(coll, itemID, receiptsCollection, uid), nil
}

func (repo *schoolRepository) Receipt(ctx context.Context, kind school.Kind, itemID, uid string) (school.Receipt, bool, error) {
	path, err := repo.receiptPath(kind, itemID, uid)
	if err != nil {
		return school.Receipt{}, false, err
	}
	doc, err := repo.store.Get(ctx, path)
	if err != nil {
		if core.IsNotFound(err) {
			return school.Receipt{}, false, nil
		}
		return school.Receipt{}, false, errors.Wrap(err, "getting receipt")
	}
	var rcpt school.Receipt
	if err = doc.DataTo(&rcpt); err != nil {
		return school.Receipt{}, false, errors.Wrap(err, "decoding receipt")
	}
	return rcpt, true, nil
}

func (repo *schoolRepository) MarkRead(ctx context.Context, kind school.Kind, itemID, uid, parentName string) error {
	path, err := repo.receiptPath(kind, itemID, uid)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"is_read": true,
		"read_at": core.ServerTimestamp,
	}
	if parentName != "" {
		data["parent_name"] = parentName
	}
	return errors.Wrap(repo.store.Set(ctx, path, data, core.MergeAll), "writing receipt")
}

func (repo *schoolRepository) create(ctx context.Context, coll, id string, data map[string]interface{}) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	data["id"] = id
	if err := repo.store.Set(ctx, core.DocPath(coll, id), data); err != nil {
		return "", errors.Wrapf(err, "creating %s document", coll)
	}
	return id, nil
}

func (repo *schoolRepository) CreateStudent(ctx context.Context, s school.Student) (school.Student, error) {
	id, err := repo.create(ctx, studentsCollection, s.ID, map[string]interface{}{
		"class_id":      s.ClassID,
		"name":          s.Name,
		"school":        s.School,
		"academic_year": s.AcademicYear,
	})
	s.ID = id
	return s, err
}

func (repo *schoolRepository) CreateComment(ctx context.Context, c school.Comment) (school.Comment, error) {
	id, err := repo.create(ctx, commentsCollection, c.ID, map[string]interface{}{
		"student_id":   c.StudentID,
		"subject":      c.Subject,
		"content":      c.Content,
		"teacher_name": c.TeacherName,
		"created_at":   c.CreatedAt,
	})
	c.ID = id
	return c, err
}

func (repo *schoolRepository) CreateNotification(ctx context.Context, n school.Notification) (school.Notification, error) {
	id, err := repo.create(ctx, notificationsCollection, n.ID, map[string]interface{}{
		"class_id":   n.ClassID,
		"title":      n.Title,
		"content":    n.Content,
		"created_at": n.CreatedAt,
	})
	n.ID = id
	return n, err
}

func (repo *schoolRepository) CreateBroadcast(ctx context.Context, b school.Broadcast) (school.Broadcast, error) {
	classIDs := b.ClassIDs
	if classIDs == nil {
		classIDs = []string{}
	}
	id, err := repo.create(ctx, broadcastsCollection, b.ID, map[string]interface{}{
		"class_ids":  classIDs,
		"title":      b.Title,
		"content":    b.Content,
		"created_at": b.CreatedAt,
	})
	b.ID = id
	return b, err
}
