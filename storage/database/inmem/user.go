package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	defer repo.db.read(exec)()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.write(exec)()

	for _, u := range repo.db.users {
		if u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
		if usr.Username != "" && u.Username == usr.Username {
			return user.User{}, user.ErrUsernameExists
		}
	}
	usr.ID = uuid.New().String()
	usr.Roles = copyRoles(usr.Roles)
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	defer repo.db.read(exec)()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if filter == nil || matchUser(usr, filter) {
			users = append(users, usr)
		}
	}
	sortUsers(users, ordering)
	return users, nil
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(usr.Name), s) &&
			!strings.Contains(usr.Username, s) &&
			!strings.Contains(usr.Email, s) {
			return false
		}
	}
	if len(filter.Roles) > 0 && !hasAnyRole(usr, filter.Roles) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, usr.Status) {
		return false
	}
	if len(filter.Types) > 0 && !containsType(filter.Types, usr.Type) {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func hasAnyRole(usr user.User, roles []string) bool {
	for _, want := range roles {
		for _, role := range usr.Roles {
			if role == want {
				return true
			}
		}
	}
	return false
}

func containsStatus(statuses []user.Status, s user.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func containsType(types []user.UserType, t user.UserType) bool {
	for _, ut := range types {
		if ut == t {
			return true
		}
	}
	return false
}

// sortUsers orders users by ordering, then by creation date (newest first).
func sortUsers(users []user.User, ordering []core.DBOrdering) {
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		for _, ord := range ordering {
			cmp := compareUserField(a, b, ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func compareUserField(a, b user.User, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "user_type":
		return strings.Compare(string(a.Type), string(b.Type))
	case "created_at":
		return compareTime(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTime(a.UpdatedAt, b.UpdatedAt)
	case "last_login":
		return compareTime(a.LastLogin, b.LastLogin)
	}
	return 0
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.read(exec)()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.users {
		switch {
		case filter.Username != "":
			if usr.Username == filter.Username {
				return usr, nil
			}
		case filter.Email != "":
			if usr.Email == filter.Email {
				return usr, nil
			}
		case len(filter.UsernameOrEmail) > 0:
			for _, val := range filter.UsernameOrEmail {
				if val != "" && (usr.Username == val || usr.Email == val) {
					return usr, nil
				}
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.write(exec)()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	usr.Roles = copyRoles(usr.Roles)
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.write(exec)()

	for id, u := range repo.db.users {
		if u.Email == usr.Email || (usr.Username != "" && u.Username == usr.Username) {
			usr.ID = id
			usr.CreatedAt = u.CreatedAt
			usr.Roles = copyRoles(usr.Roles)
			repo.db.users[id] = usr
			return usr, nil
		}
	}
	usr.ID = uuid.New().String()
	usr.Roles = copyRoles(usr.Roles)
	repo.db.users[usr.ID] = usr
	return usr, nil
}

// DeleteUsersByID removes users with their enrollments, posts and comments.
// Seats held by removed enrollments are released.
func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	defer repo.db.write(exec)()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.users[id]; !ok {
			continue
		}
		delete(repo.db.users, id)
		n++

		for eid, enr := range repo.db.enrollments {
			if enr.UserID != id {
				continue
			}
			if enr.Status.HoldsSeat() {
				repo.db.releaseSeat(enr.CourseID)
			}
			delete(repo.db.enrollments, eid)
		}
		for pid, p := range repo.db.posts {
			if p.AuthorID == id {
				repo.db.deletePost(pid)
			}
		}
		for cid, c := range repo.db.comments {
			if c.AuthorID == id {
				delete(repo.db.comments, cid)
			}
		}
	}
	return n, nil
}

func (repo *userRepository) CountUsers(_ context.Context, exec ...core.DBExecutor) (user.Stats, error) {
	defer repo.db.read(exec)()

	var stats user.Stats
	for _, usr := range repo.db.users {
		stats.TotalUsers++
		switch usr.Status {
		case user.StatusActive:
			stats.ActiveUsers++
		case user.StatusPending:
			stats.PendingUsers++
		}
		if usr.Type == user.TypeCompany {
			stats.CompanyUsers++
		}
	}
	return stats, nil
}

func copyRoles(roles []string) []string {
	if roles == nil {
		return nil
	}
	return append(make([]string, 0, len(roles)), roles...)
}
