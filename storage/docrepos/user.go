package docrepos

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/user"
)

const usersCollection = "users"

type userRepository struct {
	store core.DocStore
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(store core.DocStore) user.Repository {
	return &userRepository{store: store}
}

// userRecord is the stored shape of a user.User.
type userRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	StudentIDs   []string  `json:"student_ids"`
	DeviceTokens []string  `json:"device_tokens"`
	IsActive     bool      `json:"is_active"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastLogin    time.Time `json:"last_login"`
}

func (repo *userRepository) toData(usr user.User) map[string]interface{} {
	studentIDs := usr.StudentIDs
	if studentIDs == nil {
		studentIDs = []string{}
	}
	tokens := usr.DeviceTokens
	if tokens == nil {
		tokens = []string{}
	}
	return map[string]interface{}{
		"name":          usr.Name,
		"email":         usr.Email,
		"role":          usr.Role,
		"student_ids":   studentIDs,
		"device_tokens": tokens,
		"is_active":     usr.IsActive,
		"password_hash": base64.StdEncoding.EncodeToString(usr.PasswordHash),
		"created_at":    usr.CreatedAt,
		"updated_at":    usr.UpdatedAt,
		"last_login":    usr.LastLogin,
	}
}

func (repo *userRepository) fromDoc(doc core.Document) (user.User, error) {
	var rec userRecord
	if err := doc.DataTo(&rec); err != nil {
		return user.User{}, errors.Wrap(err, "decoding user")
	}
	hash, err := base64.StdEncoding.DecodeString(rec.PasswordHash)
	if err != nil {
		return user.User{}, errors.Wrap(err, "decoding password hash")
	}
	return user.User{
		ID:           doc.ID,
		Name:         rec.Name,
		Email:        rec.Email,
		Role:         rec.Role,
		StudentIDs:   rec.StudentIDs,
		DeviceTokens: rec.DeviceTokens,
		IsActive:     rec.IsActive,
		PasswordHash: hash,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		LastLogin:    rec.LastLogin,
	}, nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	if err := repo.store.Set(ctx, core.DocPath(usersCollection, usr.ID), repo.toData(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if !core.IsDocID(id) {
		return user.User{}, user.ErrNotFound
	}
	doc, err := repo.store.Get(ctx, core.DocPath(usersCollection, id))
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return repo.fromDoc(doc)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	docs, err := repo.store.Query(ctx, core.Query{
		Collection: usersCollection,
		Filters:    []core.Filter{core.Where("email", core.OpEqual, email)},
		Limit:      1,
	})
	if err != nil {
		return user.User{}, errors.Wrap(err, "querying user by email")
	}
	if len(docs) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.fromDoc(docs[0])
}

func (repo *userRepository) QueryUsers(ctx context.Context, role string) ([]user.User, error) {
	q := core.Query{Collection: usersCollection, OrderBy: "created_at"}
	if role != "" {
		q.Filters = append(q.Filters, core.Where("role", core.OpEqual, role))
	}
	docs, err := repo.store.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		usr, err := repo.fromDoc(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, usr)
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if err := repo.store.Update(ctx, core.DocPath(usersCollection, usr.ID), repo.toData(usr)); err != nil {
		if core.IsNotFound(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string) error {
	if !core.IsDocID(id) {
		return user.ErrNotFound
	}
	return errors.Wrap(repo.store.Delete(ctx, core.DocPath(usersCollection, id)), "deleting user")
}
