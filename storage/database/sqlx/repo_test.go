package sqlxrepos_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/board"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	"github.com/trezcool/academia/storage/database"
	boiledrepos "github.com/trezcool/academia/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
	"github.com/trezcool/academia/testutil"
)

type env struct {
	ctx     context.Context
	catalog course.Catalog
	ledger  course.Ledger
	courses course.Repository
	users   user.Repository
	boards  board.Repository
}

func newEnv(t *testing.T) env {
	t.Helper()
	db := testutil.OpenDB(t)
	logger := testutil.Logger(t)
	mailSvc := emailsvc.NewConsoleServiceMock(testutil.Config(), logger)

	tx := database.NewTransactor(db)
	courseRepo := sqlxrepos.NewCourseRepository(db)
	userRepo := boiledrepos.NewUserRepository(db)
	catalog := course.NewCatalog(tx, courseRepo)
	return env{
		ctx:     context.Background(),
		catalog: catalog,
		ledger:  course.NewLedger(tx, catalog, sqlxrepos.NewEnrollmentRepository(db), user.NewService(userRepo, mailSvc), mailSvc, logger),
		courses: courseRepo,
		users:   userRepo,
		boards:  sqlxrepos.NewBoardRepository(db),
	}
}

func (e env) learner(t *testing.T, n int) user.User {
	t.Helper()
	return testutil.CreateUser(t, e.users, fmt.Sprintf("Learner %d", n), "", fmt.Sprintf("learner%d@test.test", n), "", []string{user.RoleUser}, user.StatusActive)
}

func (e env) requireCourse(t *testing.T, id string, wantCount int, wantStatus course.Status) {
	t.Helper()
	crs, err := e.catalog.Get(e.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wantCount, crs.CurrentEnrollment, "current enrollment")
	assert.Equal(t, wantStatus, crs.Status, "course status")
}

func TestLedger_Postgres(t *testing.T) {
	e := newEnv(t)
	crs := testutil.CreateCourse(t, e.courses, "Databases", "Engineering", 1)
	u1, u2 := e.learner(t, 1), e.learner(t, 2)

	enr, err := e.ledger.Enroll(e.ctx, u1.ID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, "Databases", enr.CourseTitle)
	assert.Equal(t, u1.Email, enr.UserEmail)
	e.requireCourse(t, crs.ID, 1, course.StatusFull)

	_, err = e.ledger.Enroll(e.ctx, u1.ID, crs.ID)
	assert.Equal(t, course.ErrDuplicateEnrollment, errors.Cause(err))
	_, err = e.ledger.Enroll(e.ctx, u2.ID, crs.ID)
	assert.Equal(t, course.ErrCourseUnavailable, errors.Cause(err))

	_, err = e.catalog.Update(e.ctx, crs.ID, course.UpdateCourse{Capacity: 2})
	require.NoError(t, err)
	e.requireCourse(t, crs.ID, 1, course.StatusActive)

	enr, err = e.ledger.Approve(e.ctx, enr.ID)
	require.NoError(t, err)
	assert.NotNil(t, enr.ApprovedAt)

	err = e.ledger.Cancel(e.ctx, enr.ID)
	assert.Equal(t, course.ErrInvalidTransition, errors.Cause(err))
	e.requireCourse(t, crs.ID, 1, course.StatusActive)

	_, err = e.ledger.Reject(e.ctx, enr.ID)
	require.NoError(t, err)
	e.requireCourse(t, crs.ID, 0, course.StatusActive)

	_, err = e.ledger.Get(e.ctx, "not-a-uuid")
	assert.Equal(t, course.ErrEnrollmentNotFound, errors.Cause(err))
}

func TestLedger_PostgresConcurrentEnroll(t *testing.T) {
	e := newEnv(t)
	const capacity, learners = 3, 20
	crs := testutil.CreateCourse(t, e.courses, "Networking", "Engineering", capacity)

	var (
		wg                 sync.WaitGroup
		mu                 sync.Mutex
		enrolled, rejected int
	)
	for i := 0; i < learners; i++ {
		usr := e.learner(t, i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.Enroll(e.ctx, usr.ID, crs.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				enrolled++
			} else if errors.Cause(err) == course.ErrCourseUnavailable {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, enrolled)
	assert.Equal(t, learners-capacity, rejected)
	e.requireCourse(t, crs.ID, capacity, course.StatusFull)
}

func TestUserDelete_PostgresReleasesSeats(t *testing.T) {
	e := newEnv(t)
	crs := testutil.CreateCourse(t, e.courses, "Compilers", "Engineering", 2)
	u1, u2 := e.learner(t, 1), e.learner(t, 2)

	_, err := e.ledger.Enroll(e.ctx, u1.ID, crs.ID)
	require.NoError(t, err)
	enr2, err := e.ledger.Enroll(e.ctx, u2.ID, crs.ID)
	require.NoError(t, err)
	e.requireCourse(t, crs.ID, 2, course.StatusFull)

	n, err := e.users.DeleteUsersByID(e.ctx, []string{u1.ID, "not-a-uuid"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	e.requireCourse(t, crs.ID, 1, course.StatusActive)

	require.NoError(t, e.ledger.Cancel(e.ctx, enr2.ID))
	n, err = e.users.DeleteUsersByID(e.ctx, []string{u2.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	e.requireCourse(t, crs.ID, 0, course.StatusActive)
}

func TestUserRepository_Postgres(t *testing.T) {
	e := newEnv(t)
	admin := testutil.CreateUser(t, e.users, "Admin", "admin", "admin@test.test", "secret", []string{user.RoleUser, user.RoleAdmin}, user.StatusActive)
	testutil.CreateUser(t, e.users, "Acme", "acme", "acme@test.test", "", []string{user.RoleUser, user.RoleCompany}, user.StatusPending)
	e.learner(t, 1)

	assert.Equal(t, user.ErrUsernameExists, e.users.CheckUsernameUniqueness(e.ctx, "admin", "new@test.test", nil))
	assert.Equal(t, user.ErrEmailExists, e.users.CheckUsernameUniqueness(e.ctx, "", "acme@test.test", nil))
	assert.NoError(t, e.users.CheckUsernameUniqueness(e.ctx, "admin", "admin@test.test", []user.User{admin}))

	_, err := e.users.CreateUser(e.ctx, user.User{Email: "admin@test.test", Status: user.StatusActive, CreatedAt: core.Now(), UpdatedAt: core.Now()})
	assert.Equal(t, user.ErrEmailExists, errors.Cause(err))

	got, err := e.users.GetUser(e.ctx, user.GetFilter{UsernameOrEmail: []string{"admin"}})
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)
	assert.NoError(t, got.CheckPassword("secret"))
	assert.ElementsMatch(t, admin.Roles, got.Roles)

	_, err = e.users.GetUser(e.ctx, user.GetFilter{ID: "nope"})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	users, err := e.users.QueryUsers(e.ctx, &user.QueryFilter{Statuses: []user.Status{user.StatusPending}}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "acme", users[0].Username)

	users, err = e.users.QueryUsers(e.ctx, &user.QueryFilter{Roles: []string{user.RoleAdmin}}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, admin.ID, users[0].ID)

	users, err = e.users.QueryUsers(e.ctx, nil, []core.DBOrdering{{Field: "email", Ascending: true}})
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "acme@test.test", users[0].Email)

	stats, err := e.users.CountUsers(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, user.Stats{TotalUsers: 3, ActiveUsers: 2, PendingUsers: 1, CompanyUsers: 1}, stats)
}

func TestBoardRepository_Postgres(t *testing.T) {
	e := newEnv(t)
	author := e.learner(t, 1)
	now := core.Now()

	p, err := e.boards.CreatePost(e.ctx, board.Post{
		ID: "6a1f0c4e-4b8e-4d55-9a4c-8f0d2b7f6a11", BoardType: board.BoardQnA, Title: "How to 100% pass?",
		Content: "question", AuthorID: author.ID, AuthorName: author.Name, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	_, err = e.boards.CreateComment(e.ctx, board.Comment{
		ID: "0b9f2f5c-2d3e-4a8e-8c55-5af0c1b8d6e2", PostID: p.ID, AuthorID: author.ID, Content: "me too", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, e.boards.IncrementViewCount(e.ctx, p.ID))

	got, err := e.boards.GetPost(e.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ViewCount)
	assert.Equal(t, 1, got.CommentCount)
	assert.Equal(t, author.Name, got.AuthorName)

	posts, total, err := e.boards.QueryPosts(e.ctx, board.QueryFilter{BoardType: board.BoardQnA, Keyword: "100%"}, core.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, posts, 1)

	_, total, err = e.boards.QueryPosts(e.ctx, board.QueryFilter{BoardType: board.BoardQnA, Keyword: "1000"}, core.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.Zero(t, total)

	stats, err := e.boards.CountPosts(e.ctx, board.BoardQnA)
	require.NoError(t, err)
	assert.Equal(t, board.Stats{BoardType: board.BoardQnA, PostCount: 1, CommentCount: 1}, stats)

	require.NoError(t, e.boards.DeletePost(e.ctx, p.ID))
	comments, err := e.boards.QueryComments(e.ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
	assert.Equal(t, board.ErrPostNotFound, errors.Cause(e.boards.DeletePost(e.ctx, p.ID)))
}
