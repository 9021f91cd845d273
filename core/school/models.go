package school

import "time"

// Kind identifies a readable item collection.
type Kind string

const (
	KindComment      Kind = "comment"
	KindNotification Kind = "notification"
	KindBroadcast    Kind = "broadcast" // notification sent to several classes
)

var AllKinds = []Kind{KindComment, KindNotification, KindBroadcast}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, bool) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

type Student struct {
	ID           string `json:"id"`
	ClassID      string `json:"class_id"`
	Name         string `json:"name"`
	School       string `json:"school"`
	AcademicYear string `json:"academic_year"`
}

type Comment struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	Subject     string    `json:"subject"`
	Content     string    `json:"content"`
	TeacherName string    `json:"teacher_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Broadcast is a notification addressed to several classes at once.
type Broadcast struct {
	ID        string    `json:"id"`
	ClassIDs  []string  `json:"class_ids"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Receipt records whether a user read an item. A missing receipt means unread.
type Receipt struct {
	IsRead     bool      `json:"is_read"`
	ReadAt     time.Time `json:"read_at"`
	ParentName string    `json:"parent_name,omitempty"`
}
