package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/boil"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/storage/database"
)

const (
	userColumns = `id, name, username, email, phone_number, company_name, user_type, status, roles,
	password_hash, created_at, updated_at, last_login`

	uniqueViolation = "23505"
)

type userRow struct {
	ID           string            `boil:"id"`
	Name         string            `boil:"name"`
	Username     null.String       `boil:"username"`
	Email        string            `boil:"email"`
	PhoneNumber  string            `boil:"phone_number"`
	CompanyName  string            `boil:"company_name"`
	UserType     string            `boil:"user_type"`
	Status       string            `boil:"status"`
	Roles        types.StringArray `boil:"roles"`
	PasswordHash null.Bytes        `boil:"password_hash"`
	CreatedAt    time.Time         `boil:"created_at"`
	UpdatedAt    time.Time         `boil:"updated_at"`
	LastLogin    null.Time         `boil:"last_login"`
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) boil.ContextExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo userRepository) boil(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        usr.Email,
		PhoneNumber:  usr.PhoneNumber,
		CompanyName:  usr.CompanyName,
		UserType:     string(usr.Type),
		Status:       string(usr.Status),
		Roles:        roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unboil(row userRow) user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email,
		PhoneNumber:  row.PhoneNumber,
		CompanyName:  row.CompanyName,
		Type:         user.UserType(row.UserType),
		Status:       user.Status(row.Status),
		Roles:        row.Roles,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	return usr
}

func (repo userRepository) unboilSlice(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unboil(row))
	}
	return users
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps unique constraint violations to the matching user error.
func (repo userRepository) trapUniqueErr(err error, msg string) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		if pqErr.Constraint == "users_username_key" {
			return user.ErrUsernameExists
		}
		return user.ErrEmailExists
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	excluded := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded = append(excluded, u.ID)
	}

	var taken []struct {
		Username null.String `boil:"username"`
		Email    string      `boil:"email"`
	}
	err := queries.Raw(`
		SELECT username, email FROM users
		WHERE ((username = $1 AND $1 <> '') OR email = $2) AND NOT (id::text = ANY($3))`,
		username, email, pq.Array(excluded)).Bind(ctx, repo.getExec(exec), &taken)
	if err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, t := range taken {
		if username != "" && t.Username.String == username {
			return user.ErrUsernameExists
		}
	}
	if len(taken) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	u := repo.boil(usr)

	var row userRow
	err := queries.Raw(`
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+userColumns,
		u.ID, u.Name, u.Username, u.Email, u.PhoneNumber, u.CompanyName, u.UserType, u.Status, u.Roles,
		u.PasswordHash, u.CreatedAt, u.UpdatedAt, u.LastLogin,
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return user.User{}, repo.trapUniqueErr(err, "inserting user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	var where database.Where

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := database.Like(filter.Search)
			where.Add("(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)", val, val, val)
		}
		// users with any of the provided roles
		if len(filter.Roles) > 0 {
			where.Add("roles && ?", pq.Array(filter.Roles))
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				statuses = append(statuses, string(s))
			}
			where.Add("status = ANY(?)", pq.Array(statuses))
		}
		if len(filter.Types) > 0 {
			userTypes := make([]string, 0, len(filter.Types))
			for _, t := range filter.Types {
				userTypes = append(userTypes, string(t))
			}
			where.Add("user_type = ANY(?)", pq.Array(userTypes))
		}
		if !filter.CreatedFrom.IsZero() {
			where.Add("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			where.Add("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	orderBy := core.OrderByClause(ordering, "created_at DESC")
	if len(ordering) > 0 {
		orderBy += ", created_at DESC"
	}

	var rows []userRow
	err := queries.Raw(`SELECT `+userColumns+` FROM users`+where.String()+orderBy+`, id`, where.Args()...).
		Bind(ctx, repo.getExec(exec), &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.unboilSlice(rows), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var where database.Where

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		where.Add("id = ?", filter.ID)
	case filter.Username != "":
		where.Add("username = ?", filter.Username)
	case filter.Email != "":
		where.Add("email = ?", filter.Email)
	case filter.UsernameOrEmail != nil:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		if email == "" {
			return user.User{}, user.ErrNotFound
		}
		where.Add("(username = ? OR email = ?)", uname, email)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	err := queries.Raw(`SELECT `+userColumns+` FROM users`+where.String()+` LIMIT 1`, where.Args()...).
		Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if _, err := uuid.Parse(usr.ID); err != nil {
		return user.User{}, user.ErrNotFound
	}
	u := repo.boil(usr)

	var row userRow
	err := queries.Raw(`
		UPDATE users SET name = $2, username = $3, email = $4, phone_number = $5, company_name = $6,
			user_type = $7, status = $8, roles = $9, password_hash = $10, updated_at = $11, last_login = $12
		WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.Name, u.Username, u.Email, u.PhoneNumber, u.CompanyName,
		u.UserType, u.Status, u.Roles, u.PasswordHash, u.UpdatedAt, u.LastLogin,
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, repo.trapUniqueErr(err, "updating user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	existing, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{usr.Username, usr.Email}}, exec...)
	switch {
	case err == nil:
		usr.ID = existing.ID
		return repo.UpdateUser(ctx, usr, exec...)
	case errors.Cause(err) == user.ErrNotFound:
		return repo.CreateUser(ctx, usr, exec...)
	default:
		return user.User{}, err
	}
}

// DeleteUsersByID frees the course seats held by the users' enrollments, then
// deletes the users. Enrollments, posts and comments cascade.
func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	res, err := queries.Raw(`
		WITH held AS (
			SELECT course_id FROM enrollments
			WHERE user_id = ANY($1::uuid[]) AND status IN ('PENDING', 'APPROVED')
			FOR UPDATE
		), released AS (
			SELECT course_id, COUNT(*) AS n FROM held GROUP BY course_id
		), seats AS (
			UPDATE courses c SET
				current_enrollment = GREATEST(c.current_enrollment - r.n, 0),
				status = CASE
					WHEN c.status = 'CLOSED' THEN c.status
					WHEN GREATEST(c.current_enrollment - r.n, 0) >= c.capacity THEN 'FULL'
					ELSE 'ACTIVE'
				END,
				updated_at = $2
			FROM released r
			WHERE c.id = r.course_id
		)
		DELETE FROM users WHERE id = ANY($1::uuid[])`,
		pq.Array(valid), core.Now(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}

func (repo userRepository) CountUsers(ctx context.Context, exec ...core.DBExecutor) (user.Stats, error) {
	var counts struct {
		Total   int `boil:"total"`
		Active  int `boil:"active"`
		Pending int `boil:"pending"`
		Company int `boil:"company"`
	}
	err := queries.Raw(`
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'ACTIVE') AS active,
			COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
			COUNT(*) FILTER (WHERE user_type = 'COMPANY') AS company
		FROM users`).Bind(ctx, repo.getExec(exec), &counts)
	if err != nil {
		return user.Stats{}, errors.Wrap(err, "counting users")
	}
	return user.Stats{
		TotalUsers:   counts.Total,
		ActiveUsers:  counts.Active,
		PendingUsers: counts.Pending,
		CompanyUsers: counts.Company,
	}, nil
}
