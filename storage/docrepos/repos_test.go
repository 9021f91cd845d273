package docrepos

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/school"
	"github.com/trezcool/wazazi/core/user"
	inmemdb "github.com/trezcool/wazazi/storage/database/inmem"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(inmemdb.Open())
	now := time.Now().UTC().Truncate(time.Second)

	usr := user.User{
		Name:       "Parent",
		Email:      "parent@test.test",
		Role:       user.RoleParent,
		StudentIDs: []string{"s1"},
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, usr.SetPassword("Pwd-1234"))

	created, err := repo.CreateUser(ctx, usr)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := repo.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, got.Email)
	assert.Equal(t, []string{"s1"}, got.StudentIDs)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.NoError(t, got.CheckPassword("Pwd-1234"), "password hash survives the round trip")

	got, err = repo.GetUserByEmail(ctx, "parent@test.test")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = repo.GetUserByEmail(ctx, "nobody@test.test")
	assert.Equal(t, user.ErrNotFound, err)
	_, err = repo.GetUserByID(ctx, "no/such/id")
	assert.Equal(t, user.ErrNotFound, err)

	got.DeviceTokens = []string{"tok"}
	_, err = repo.UpdateUser(ctx, got)
	require.NoError(t, err)
	got, _ = repo.GetUserByID(ctx, created.ID)
	assert.Equal(t, []string{"tok"}, got.DeviceTokens)

	_, err = repo.UpdateUser(ctx, user.User{ID: "ghost"})
	assert.Equal(t, user.ErrNotFound, err)

	admin := usr
	admin.Email, admin.Role, admin.CreatedAt = "admin@test.test", user.RoleAdmin, now.Add(time.Minute)
	_, err = repo.CreateUser(ctx, admin)
	require.NoError(t, err)

	parents, err := repo.QueryUsers(ctx, user.RoleParent)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, created.ID, parents[0].ID)
	all, err := repo.QueryUsers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.DeleteUser(ctx, created.ID))
	_, err = repo.GetUserByID(ctx, created.ID)
	assert.Equal(t, user.ErrNotFound, err)
}

func TestSchoolRepository_Limits(t *testing.T) {
	ctx := context.Background()
	repo := NewSchoolRepository(inmemdb.Open())
	eleven := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}

	_, err := repo.StudentsByIDs(ctx, eleven)
	assert.Equal(t, core.ErrTooManyValues, err)
	_, err = repo.CommentsForStudents(ctx, eleven)
	assert.Equal(t, core.ErrTooManyValues, errors.Cause(err))
	_, err = repo.NotificationsForClasses(ctx, eleven)
	assert.Equal(t, core.ErrTooManyValues, errors.Cause(err))
	_, err = repo.BroadcastsForClasses(ctx, eleven)
	assert.Equal(t, core.ErrTooManyValues, errors.Cause(err))

	students, err := repo.StudentsByIDs(ctx, nil)
	assert.NoError(t, err)
	assert.Empty(t, students)
}

func TestSchoolRepository_Queries(t *testing.T) {
	ctx := context.Background()
	repo := NewSchoolRepository(inmemdb.Open())
	t0 := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

	_, err := repo.CreateStudent(ctx, school.Student{ID: "s1", ClassID: "A", Name: "Amani"})
	require.NoError(t, err)
	_, err = repo.CreateComment(ctx, school.Comment{ID: "c1", StudentID: "s1", CreatedAt: t0})
	require.NoError(t, err)
	_, err = repo.CreateComment(ctx, school.Comment{ID: "c2", StudentID: "s1", CreatedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	_, err = repo.CreateNotification(ctx, school.Notification{ID: "n1", ClassID: "A", CreatedAt: t0})
	require.NoError(t, err)
	b, err := repo.CreateBroadcast(ctx, school.Broadcast{ClassIDs: []string{"A", "B"}, Title: "Congés", CreatedAt: t0})
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)

	students, err := repo.StudentsByIDs(ctx, []string{"s1", "s2"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, school.Student{ID: "s1", ClassID: "A", Name: "Amani"}, students[0])

	comments, err := repo.CommentsForStudents(ctx, []string{"s1"})
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "c2", comments[0].ID, "newest first")
	assert.True(t, comments[1].CreatedAt.Equal(t0))

	notifs, err := repo.NotificationsForClasses(ctx, []string{"A"})
	require.NoError(t, err)
	assert.Len(t, notifs, 1)

	broadcasts, err := repo.BroadcastsForClasses(ctx, []string{"B", "C"})
	require.NoError(t, err)
	require.Len(t, broadcasts, 1)
	assert.Equal(t, []string{"A", "B"}, broadcasts[0].ClassIDs)
}

func TestSchoolRepository_Receipts(t *testing.T) {
	ctx := context.Background()
	repo := NewSchoolRepository(inmemdb.Open())

	_, found, err := repo.Receipt(ctx, school.KindComment, "c1", "u1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.MarkRead(ctx, school.KindComment, "c1", "u1", "p@test.test"))
	require.NoError(t, repo.MarkRead(ctx, school.KindComment, "c1", "u1", ""))

	rcpt, found, err := repo.Receipt(ctx, school.KindComment, "c1", "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, rcpt.IsRead)
	assert.False(t, rcpt.ReadAt.IsZero())
	assert.Equal(t, "p@test.test", rcpt.ParentName, "merge keeps existing fields")

	_, found, err = repo.Receipt(ctx, school.KindBroadcast, "c1", "u1")
	require.NoError(t, err)
	assert.False(t, found, "receipts are scoped to their collection")

	assert.Equal(t, school.ErrUnknownKind, repo.MarkRead(ctx, "homework", "c1", "u1", ""))
	assert.Equal(t, school.ErrItemNotFound, repo.MarkRead(ctx, school.KindComment, "../c1", "u1", ""))
}
