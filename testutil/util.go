package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage/database"
)

// Config returns a copy of core.Conf set up for tests: silent, in-memory, no debug output.
func Config() *core.Config {
	conf := *core.Conf
	conf.TestMode = true
	conf.Debug = false
	conf.Storage.Backend = core.StorageInMem
	conf.Storage.LocalDir = os.TempDir()
	conf.Server.DisableReqLogs = true
	conf.Redis.Addr = ""
	return &conf
}

func Logger(t *testing.T) core.Logger {
	t.Helper()
	logger, err := logsvc.NewRollbarLogger(Config(), "test")
	if err != nil {
		t.Fatalf("Logger() failed: %v", err)
	}
	return logger
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	status user.Status,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Type:      user.TypeEmployee,
		Status:    status,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	for _, role := range roles {
		switch role {
		case user.RoleAdmin, user.RoleAdminOwner:
			usr.Type = user.TypeAdmin
		case user.RoleCompany:
			usr.Type = user.TypeCompany
			usr.CompanyName = name + " Inc."
		}
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, title, category string, capacity int, createdAt ...time.Time) course.Course {
	t.Helper()
	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		ID:         uuid.New().String(),
		Title:      title,
		Instructor: "Ada Lovelace",
		Category:   category,
		Capacity:   capacity,
		Status:     course.StatusActive,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

// OpenDB connects to the postgres database named by DATABASE_TEST_URL, migrates it
// and empties its tables. The test is skipped when the variable is not set.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_TEST_URL")
	if dsn == "" {
		t.Skip("DATABASE_TEST_URL is not set")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	if _, err = db.Exec("TRUNCATE attachments, comments, posts, enrollments, courses, users CASCADE"); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
