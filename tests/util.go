package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/school"
	"github.com/trezcool/wazazi/core/user"
	logsvc "github.com/trezcool/wazazi/services/logger"
)

// NewConfig returns a configuration fit for tests, without reading the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:                       "TEST",
		TestMode:                  true,
		AppName:                   "Wazazi",
		SecretKey:                 "test-secret-key",
		FrontendBaseURL:           "http://localhost:19006",
		FromEmail:                 "Wazazi <noreply@localhost>",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			Host:                      "localhost",
			Port:                      "8000",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
		Database: core.DatabaseConfig{Driver: "memory"},
	}
}

// NewLogger returns a logger writing nowhere, with error reporting disabled.
func NewLogger() *logsvc.RollbarLogger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), NewConfig())
}

// NewValidator returns a validator with every custom validation registered, and the
// translator holding their messages.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	studentIDs []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:       name,
		Email:      email,
		Role:       role,
		StudentIDs: studentIDs,
		IsActive:   isActive,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo school.Repository, id, classID, name string) school.Student {
	t.Helper()

	s, err := repo.CreateStudent(context.Background(), school.Student{
		ID:           id,
		ClassID:      classID,
		Name:         name,
		School:       "Lycée Wazazi",
		AcademicYear: "2025-2026",
	})
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return s
}

func CreateComment(t *testing.T, repo school.Repository, id, studentID string, createdAt time.Time) school.Comment {
	t.Helper()

	c, err := repo.CreateComment(context.Background(), school.Comment{
		ID:          id,
		StudentID:   studentID,
		Subject:     "Maths",
		Content:     "Bon travail",
		TeacherName: "Mme Mbuyi",
		CreatedAt:   createdAt,
	})
	if err != nil {
		t.Fatalf("createComment() failed: %v", err)
	}
	return c
}

func CreateNotification(t *testing.T, repo school.Repository, id, classID string, createdAt time.Time) school.Notification {
	t.Helper()

	n, err := repo.CreateNotification(context.Background(), school.Notification{
		ID:        id,
		ClassID:   classID,
		Title:     "Réunion",
		Content:   "Réunion des parents vendredi",
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("createNotification() failed: %v", err)
	}
	return n
}

func CreateBroadcast(t *testing.T, repo school.Repository, id string, classIDs []string, createdAt time.Time) school.Broadcast {
	t.Helper()

	b, err := repo.CreateBroadcast(context.Background(), school.Broadcast{
		ID:        id,
		ClassIDs:  classIDs,
		Title:     "Congés",
		Content:   "L'école sera fermée lundi",
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("createBroadcast() failed: %v", err)
	}
	return b
}
