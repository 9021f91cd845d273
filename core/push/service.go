package push

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/popup"
	"github.com/trezcool/wazazi/core/readtrack"
	"github.com/trezcool/wazazi/core/school"
	"github.com/trezcool/wazazi/core/user"
)

var (
	ErrEmptyToken   = errors.New("device token is required")
	ErrInvalidEvent = errors.New("invalid foreground event")
)

// Event is a push message received while the app is in the foreground.
type Event struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
	ItemID string `json:"item_id"`
	Title  string `json:"title"`
}

type Service struct {
	users    *user.Service
	sessions *readtrack.Registry
	log      core.Logger
}

func NewService(users *user.Service, sessions *readtrack.Registry, log core.Logger) *Service {
	return &Service{users: users, sessions: sessions, log: log}
}

// RegisterToken stores a device token on the user. Refreshed tokens go through here too.
func (svc *Service) RegisterToken(ctx context.Context, uid, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.NewValidationError(ErrEmptyToken, core.FieldError{Field: "token", Error: ErrEmptyToken.Error()})
	}
	if _, err := svc.users.AddDeviceToken(ctx, uid, token); err != nil {
		return errors.Wrap(err, "registering device token")
	}
	return nil
}

// HandleForeground queues the event's item as a popup in the user's live session.
// Events for users without a live session are dropped.
func (svc *Service) HandleForeground(ctx context.Context, evt Event) error {
	kind, ok := school.ParseKind(evt.Kind)
	if !ok || evt.UserID == "" || evt.ItemID == "" {
		return ErrInvalidEvent
	}
	sess, ok := svc.sessions.Get(evt.UserID)
	if !ok {
		svc.log.Debug("foreground event for offline user", map[string]interface{}{"uid": evt.UserID})
		return nil
	}
	if n := sess.Push(popup.Item{Kind: kind, ID: evt.ItemID, Title: evt.Title}); n == 0 {
		svc.log.Debug("foreground item already queued", map[string]interface{}{"kind": evt.Kind, "id": evt.ItemID})
	}
	return nil
}

// HandleMessage decodes a raw foreground event and handles it.
func (svc *Service) HandleMessage(ctx context.Context, topic string, key, value []byte) error {
	var evt Event
	if err := json.Unmarshal(value, &evt); err != nil {
		return errors.Wrapf(err, "decoding %s message", topic)
	}
	if evt.UserID == "" {
		evt.UserID = string(key)
	}
	return svc.HandleForeground(ctx, evt)
}
