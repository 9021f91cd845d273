package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/wazazi/core"
)

// Roles
const (
	RoleParent = "parent"
	RoleAdmin  = "admin"
)

var AllRoles = []string{RoleParent, RoleAdmin}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role,omitempty"`
	StudentIDs   []string  `json:"student_ids"`
	DeviceTokens []string  `json:"-"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsParent() bool { return u.Role == RoleParent }
func (u *User) IsAdmin() bool  { return u.Role == RoleAdmin }

// HasDeviceToken reports whether token is already registered for u.
func (u *User) HasDeviceToken(token string) bool {
	for _, t := range u.DeviceTokens {
		if t == token {
			return true
		}
	}
	return false
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required,notblank"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string   `json:"role" validate:"omitempty,oneof=parent admin"`
	StudentIDs      []string `json:"student_ids" validate:"omitempty,dive,docid"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.StudentIDs = core.UniqueStrings(nu.StudentIDs)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(ctx, nu.Email)
}

// LinkStudents replaces the students linked to a parent.
type LinkStudents struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,docid"`
}

func (ls *LinkStudents) Validate(validate *validator.Validate) error {
	ls.StudentIDs = core.UniqueStrings(ls.StudentIDs)
	return validate.Struct(ls)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }
