package readtrack

import (
	"sort"

	"github.com/trezcool/wazazi/core/school"
)

type (
	// Identity is the signed-in parent an aggregation runs for.
	Identity struct {
		UID        string
		Email      string
		StudentIDs []string
	}

	EnrichedComment struct {
		school.Comment
		IsReadByCurrentUser bool `json:"is_read_by_current_user"`
	}

	EnrichedNotification struct {
		school.Notification
		IsReadByCurrentUser bool `json:"is_read_by_current_user"`
	}

	EnrichedBroadcast struct {
		school.Broadcast
		IsReadByCurrentUser bool `json:"is_read_by_current_user"`
	}

	// Feed holds the enriched records of a parent grouped for badge counting.
	// Buckets are ordered by descending creation time.
	Feed struct {
		Students             []school.Student                  `json:"students"`
		CommentsByStudent    map[string][]EnrichedComment      `json:"comments_by_student"`
		NotificationsByClass map[string][]EnrichedNotification `json:"notifications_by_class"`
		BroadcastsByClass    map[string][]EnrichedBroadcast    `json:"broadcasts_by_class"`
	}

	// Badges are the unread counts of the selected student.
	Badges struct {
		Comments             int `json:"comments"`
		ClassNotifications   int `json:"class_notifications"`
		GeneralNotifications int `json:"general_notifications"`
	}
)

func NewFeed() Feed {
	return Feed{
		Students:             []school.Student{},
		CommentsByStudent:    make(map[string][]EnrichedComment),
		NotificationsByClass: make(map[string][]EnrichedNotification),
		BroadcastsByClass:    make(map[string][]EnrichedBroadcast),
	}
}

// IsEmpty reports whether f holds no records at all.
func (f Feed) IsEmpty() bool {
	return len(f.Students) == 0 && len(f.CommentsByStudent) == 0 &&
		len(f.NotificationsByClass) == 0 && len(f.BroadcastsByClass) == 0
}

// Student returns the linked student with the given id.
func (f Feed) Student(id string) (school.Student, bool) {
	for _, s := range f.Students {
		if s.ID == id {
			return s, true
		}
	}
	return school.Student{}, false
}

// MarkRead flags every occurrence of an item as read and reports whether one was found.
func (f Feed) MarkRead(kind school.Kind, id string) bool {
	found := false
	switch kind {
	case school.KindComment:
		for _, bucket := range f.CommentsByStudent {
			for i := range bucket {
				if bucket[i].ID == id {
					bucket[i].IsReadByCurrentUser = true
					found = true
				}
			}
		}
	case school.KindNotification:
		for _, bucket := range f.NotificationsByClass {
			for i := range bucket {
				if bucket[i].ID == id {
					bucket[i].IsReadByCurrentUser = true
					found = true
				}
			}
		}
	case school.KindBroadcast:
		for _, bucket := range f.BroadcastsByClass {
			for i := range bucket {
				if bucket[i].ID == id {
					bucket[i].IsReadByCurrentUser = true
					found = true
				}
			}
		}
	}
	return found
}

// Clone returns a deep copy of f.
func (f Feed) Clone() Feed {
	out := NewFeed()
	out.Students = append(out.Students, f.Students...)
	for k, v := range f.CommentsByStudent {
		out.CommentsByStudent[k] = append([]EnrichedComment(nil), v...)
	}
	for k, v := range f.NotificationsByClass {
		out.NotificationsByClass[k] = append([]EnrichedNotification(nil), v...)
	}
	for k, v := range f.BroadcastsByClass {
		out.BroadcastsByClass[k] = append([]EnrichedBroadcast(nil), v...)
	}
	return out
}

// ForStudent returns the part of f relevant to one student.
func (f Feed) ForStudent(s school.Student) Feed {
	out := NewFeed()
	out.Students = append(out.Students, f.Students...)
	if v, ok := f.CommentsByStudent[s.ID]; ok {
		out.CommentsByStudent[s.ID] = append([]EnrichedComment(nil), v...)
	}
	if v, ok := f.NotificationsByClass[s.ClassID]; ok {
		out.NotificationsByClass[s.ClassID] = append([]EnrichedNotification(nil), v...)
	}
	if v, ok := f.BroadcastsByClass[s.ClassID]; ok {
		out.BroadcastsByClass[s.ClassID] = append([]EnrichedBroadcast(nil), v...)
	}
	return out
}

// Summarize counts the unread records of the selected student.
// It is a pure function of its inputs; a nil student gives zero counts.
func Summarize(f Feed, selected *school.Student) Badges {
	var b Badges
	if selected == nil {
		return b
	}
	for _, c := range f.CommentsByStudent[selected.ID] {
		if !c.IsReadByCurrentUser {
			b.Comments++
		}
	}
	for _, n := range f.NotificationsByClass[selected.ClassID] {
		if !n.IsReadByCurrentUser {
			b.ClassNotifications++
		}
	}
	for _, n := range f.BroadcastsByClass[selected.ClassID] {
		if !n.IsReadByCurrentUser {
			b.GeneralNotifications++
		}
	}
	return b
}

func sortBuckets(f Feed) {
	for _, bucket := range f.CommentsByStudent {
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].CreatedAt.After(bucket[j].CreatedAt) })
	}
	for _, bucket := range f.NotificationsByClass {
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].CreatedAt.After(bucket[j].CreatedAt) })
	}
	for _, bucket := range f.BroadcastsByClass {
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].CreatedAt.After(bucket[j].CreatedAt) })
	}
}
