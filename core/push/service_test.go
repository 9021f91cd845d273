package push

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/popup"
	"github.com/trezcool/wazazi/core/readtrack"
	"github.com/trezcool/wazazi/core/school"
	"github.com/trezcool/wazazi/core/user"
	emailsvc "github.com/trezcool/wazazi/services/email"
	inmemdb "github.com/trezcool/wazazi/storage/database/inmem"
	"github.com/trezcool/wazazi/storage/docrepos"
	testutil "github.com/trezcool/wazazi/tests"
)

type fixture struct {
	svc      *Service
	userRepo user.Repository
	sessions *readtrack.Registry
}

func newFixture() fixture {
	db := inmemdb.Open()
	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	userRepo := docrepos.NewUserRepository(db)
	users := user.NewService(userRepo, emailsvc.NewConsoleServiceMock(conf, logger), conf)
	agg := readtrack.NewAggregator(docrepos.NewSchoolRepository(db), logger, readtrack.Options{})
	sessions := readtrack.NewRegistry(agg, logger)
	return fixture{svc: NewService(users, sessions, logger), userRepo: userRepo, sessions: sessions}
}

func TestService_RegisterToken(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	usr := testutil.CreateUser(t, fx.userRepo, "Parent", "parent@test.test", "Pwd-1234", user.RoleParent, nil, true)

	require.NoError(t, fx.svc.RegisterToken(ctx, usr.ID, "tok-1"))
	require.NoError(t, fx.svc.RegisterToken(ctx, usr.ID, "tok-1"))
	require.NoError(t, fx.svc.RegisterToken(ctx, usr.ID, " tok-2 "))

	got, err := fx.userRepo.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-1", "tok-2"}, got.DeviceTokens, "tokens are never duplicated")

	err = fx.svc.RegisterToken(ctx, usr.ID, "  ")
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))

	err = fx.svc.RegisterToken(ctx, "ghost", "tok")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_HandleForeground(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	sess := fx.sessions.Open(readtrack.Identity{UID: "u1", Email: "parent@test.test"})
	defer fx.sessions.Drop("u1")

	tests := []struct {
		name    string
		evt     Event
		wantErr error
		wantLen int // waiting behind the shown item
	}{
		{name: "unknown kind", evt: Event{UserID: "u1", Kind: "homework", ItemID: "h1"}, wantErr: ErrInvalidEvent},
		{name: "missing item", evt: Event{UserID: "u1", Kind: "comment"}, wantErr: ErrInvalidEvent},
		{name: "offline user", evt: Event{UserID: "u2", Kind: "comment", ItemID: "c1"}},
		{name: "queued", evt: Event{UserID: "u1", Kind: "comment", ItemID: "c1", Title: "Maths"}, wantLen: 0},
		{name: "duplicate", evt: Event{UserID: "u1", Kind: "comment", ItemID: "c1"}, wantLen: 0},
		{name: "second item", evt: Event{UserID: "u1", Kind: "broadcast", ItemID: "b1"}, wantLen: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fx.svc.HandleForeground(ctx, tt.evt)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLen, sess.Popups().Len())
		})
	}

	cur, ok := sess.Popups().Current()
	require.True(t, ok)
	assert.Equal(t, popup.Item{Kind: school.KindComment, ID: "c1", Title: "Maths"}, cur)
}

func TestService_HandleMessage(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	sess := fx.sessions.Open(readtrack.Identity{UID: "u1"})
	defer fx.sessions.Drop("u1")

	require.NoError(t, fx.svc.HandleMessage(ctx, "parents.notifications", []byte("u1"),
		[]byte(`{"kind":"notification","item_id":"n1","title":"Réunion"}`)))
	cur, ok := sess.Popups().Current()
	require.True(t, ok)
	assert.Equal(t, "n1", cur.ID, "user id falls back to the message key")

	assert.Error(t, fx.svc.HandleMessage(ctx, "parents.notifications", nil, []byte("{")))
}
