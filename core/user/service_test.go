package user_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	"github.com/trezcool/academia/testutil"
)

const strongPwd = "Zx9!qLm#4vT"

func newService(t *testing.T) (user.Service, user.Repository) {
	t.Helper()
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	mailSvc := emailsvc.NewConsoleServiceMock(testutil.Config(), testutil.Logger(t))
	emailsvc.ResetSentMessages()
	return user.NewService(repo, mailSvc), repo
}

// fieldErrors flattens validation errors into field -> message.
func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	flds := make(map[string]string)
	switch vErr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		for _, fe := range vErr {
			if _, ok := flds[fe.Field()]; !ok {
				flds[fe.Field()] = fe.Translate(core.Translator)
			}
		}
	case *core.ValidationError:
		for _, fe := range vErr.Fields {
			flds[fe.Field] = fe.Error
		}
	default:
		t.Fatalf("not a validation error: %v", err)
	}
	return flds
}

func TestNewUser_Validate(t *testing.T) {
	svc, repo := newService(t)
	testutil.CreateUser(t, repo, "Taken", "taken_name", "taken@test.test", strongPwd, []string{user.RoleUser}, user.StatusActive)

	valid := func(modify func(nu *user.NewUser)) user.NewUser {
		nu := user.NewUser{Name: "Jane Doe", Username: "jane_doe", Email: "jane@test.test", Password: strongPwd, PasswordConfirm: strongPwd}
		if modify != nil {
			modify(&nu)
		}
		return nu
	}
	pwd := func(p string) func(nu *user.NewUser) {
		return func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = p, p }
	}

	tests := []struct {
		name    string
		nu      user.NewUser
		wantErr map[string]string
	}{
		{name: "valid", nu: valid(nil)},
		{name: "required", nu: user.NewUser{}, wantErr: map[string]string{
			"name": "this field is required", "email": "this field is required",
			"password": "this field is required", "password_confirm": "this field is required",
		}},
		{name: "short username", nu: valid(func(nu *user.NewUser) { nu.Username = "jd" }), wantErr: map[string]string{"username": "username must be at least 6 characters in length"}},
		{name: "bad username", nu: valid(func(nu *user.NewUser) { nu.Username = "jane-doe" }), wantErr: map[string]string{"username": "only alphanumeric characters and underscores are allowed"}},
		{name: "bad email", nu: valid(func(nu *user.NewUser) { nu.Email = "jane" }), wantErr: map[string]string{"email": "email must be a valid email address"}},
		{name: "bad user type", nu: valid(func(nu *user.NewUser) { nu.Type = "ROBOT" }), wantErr: map[string]string{"user_type": "invalid user type"}},
		{name: "company name", nu: valid(func(nu *user.NewUser) { nu.Type = user.TypeCompany }), wantErr: map[string]string{"company_name": "this field is required"}},
		{name: "bad roles", nu: valid(func(nu *user.NewUser) { nu.Roles = []string{"root"} }), wantErr: map[string]string{"roles": "invalid roles"}},
		{name: "confirmation", nu: valid(func(nu *user.NewUser) { nu.PasswordConfirm = "other" }), wantErr: map[string]string{"password_confirm": "password_confirm must be equal to Password"}},
		{name: "short password", nu: valid(pwd("Ab1!")), wantErr: map[string]string{"password": "password must contain at least 8 characters"}},
		{name: "space in password", nu: valid(pwd("Ab1! cdefg")), wantErr: map[string]string{"password": "password must not contain whitespace"}},
		{name: "numeric password", nu: valid(pwd("1234567890")), wantErr: map[string]string{"password": "password cannot be entirely numeric"}},
		{name: "simple password", nu: valid(pwd("abcdefgh1")), wantErr: map[string]string{"password": "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"}},
		{name: "password like email", nu: valid(pwd("Jane@test.test1")), wantErr: map[string]string{"password": "password cannot be similar to user attributes"}},
		{name: "email taken", nu: valid(func(nu *user.NewUser) { nu.Email = "TAKEN@test.test" }), wantErr: map[string]string{"email": "a user with this email already exists"}},
		{name: "username taken", nu: valid(func(nu *user.NewUser) { nu.Username = "Taken_Name" }), wantErr: map[string]string{"username": "a user with this username already exists"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(context.Background(), svc)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, fieldErrors(t, err))
		})
	}
}

func TestService_Signup(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	company := user.NewUser{Name: "Acme", Email: "hr@acme.test", Type: user.TypeCompany, CompanyName: "Acme Inc.", Password: strongPwd, Roles: []string{user.RoleAdminOwner}}
	usr, err := svc.Signup(ctx, company)
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.Equal(t, user.StatusPending, usr.Status)
	assert.Equal(t, []string{user.RoleUser, user.RoleCompany}, usr.Roles) // chosen roles are ignored
	assert.True(t, usr.IsCompany())
	assert.False(t, usr.IsAdmin())
	assert.NoError(t, usr.CheckPassword(strongPwd))
	assert.Empty(t, emailsvc.SentMessages())

	_, err = svc.Signup(ctx, user.NewUser{Name: "Boss", Email: "boss@test.test", Type: user.TypeAdmin, Password: strongPwd})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"user_type": "this user type cannot be chosen at signup"}, fieldErrors(t, err))

	usr, err = svc.Create(ctx, user.NewUser{Name: "Boss", Email: "boss@test.test", Type: user.TypeAdmin, Password: strongPwd})
	require.NoError(t, err)
	assert.Equal(t, user.StatusActive, usr.Status)
	assert.True(t, usr.IsAdmin())
}

func TestService_SetStatus(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Jane", "jane_doe", "jane@test.test", strongPwd, []string{user.RoleUser}, user.StatusPending)

	tests := []struct {
		status      user.Status
		wantSubject string
	}{
		{status: user.StatusActive, wantSubject: "Account approved"},
		{status: user.StatusActive}, // unchanged: no email
		{status: user.StatusSuspended, wantSubject: "Account suspended"},
		{status: user.StatusRejected, wantSubject: "Account rejected"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			emailsvc.ResetSentMessages()
			got, err := svc.SetStatus(ctx, usr.ID, tt.status)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)

			msgs := emailsvc.SentMessages()
			if tt.wantSubject == "" {
				assert.Empty(t, msgs)
				return
			}
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.wantSubject, msgs[0].Subject)
			assert.Equal(t, "account_status", msgs[0].TemplateName)
			assert.Equal(t, usr.Email, msgs[0].To[0].Address)
		})
	}

	_, err := svc.SetStatus(ctx, "nope", user.StatusActive)
	assert.True(t, core.IsNotFound(err))
}

func TestService_PasswordReset(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Jane", "jane_doe", "jane@test.test", strongPwd, []string{user.RoleUser}, user.StatusActive)
	pending := testutil.CreateUser(t, repo, "Pat", "pat_pending", "pat@test.test", strongPwd, []string{user.RoleUser}, user.StatusPending)

	assert.Equal(t, user.ErrNotFound, errors.Cause(svc.RequestPasswordReset(ctx, "nobody@test.test")))
	assert.Equal(t, user.ErrNotFound, errors.Cause(svc.RequestPasswordReset(ctx, pending.Email)))
	assert.Empty(t, emailsvc.SentMessages())

	require.NoError(t, svc.RequestPasswordReset(ctx, " JANE@test.test "))
	msgs := emailsvc.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "password_reset", msgs[0].TemplateName)
	data, ok := msgs[0].TemplateData.(map[string]interface{})
	require.True(t, ok)
	uid, _ := data["UID"].(string)
	token, _ := data["Token"].(string)
	require.NotEmpty(t, uid)
	require.NotEmpty(t, token)

	newPwd := "Yq7#wEr!2pLk"
	tests := []struct {
		name    string
		data    user.ResetUserPassword
		wantErr bool
	}{
		{name: "bad uid", data: user.ResetUserPassword{UID: "bad", Token: token, Password: newPwd, PasswordConfirm: newPwd}, wantErr: true},
		{name: "bad token", data: user.ResetUserPassword{UID: uid, Token: "1-abc", Password: newPwd, PasswordConfirm: newPwd}, wantErr: true},
		{name: "weak password", data: user.ResetUserPassword{UID: uid, Token: token, Password: "password", PasswordConfirm: "password"}, wantErr: true},
		{name: "reset", data: user.ResetUserPassword{UID: uid, Token: token, Password: newPwd, PasswordConfirm: newPwd}},
		// the token is bound to the old password hash
		{name: "token used", data: user.ResetUserPassword{UID: uid, Token: token, Password: strongPwd, PasswordConfirm: strongPwd}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ResetPassword(ctx, tt.data)
			if tt.wantErr {
				require.Error(t, err)
				var vErr *core.ValidationError
				_, isFieldErr := errors.Cause(err).(validator.ValidationErrors)
				assert.True(t, errors.As(err, &vErr) || isFieldErr, "validation error expected, got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}

	got, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword(newPwd))
}

func TestService_QueryStatsDelete(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, repo, "Admin", "admin_one", "admin@test.test", strongPwd, []string{user.RoleUser, user.RoleAdmin}, user.StatusActive)
	comp := testutil.CreateUser(t, repo, "Acme", "acme_hr", "hr@acme.test", strongPwd, []string{user.RoleUser, user.RoleCompany}, user.StatusActive)
	jane := testutil.CreateUser(t, repo, "Jane", "jane_doe", "jane@test.test", strongPwd, []string{user.RoleUser}, user.StatusPending)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.Stats{TotalUsers: 3, ActiveUsers: 2, PendingUsers: 1, CompanyUsers: 1}, stats)

	tests := []struct {
		name     string
		filter   *user.QueryFilter
		ordering []core.DBOrdering
		want     []user.User
	}{
		{name: "all by username", ordering: []core.DBOrdering{{Field: "username", Ascending: true}}, want: []user.User{comp, admin, jane}},
		{name: "unknown ordering is dropped", filter: &user.QueryFilter{Statuses: []user.Status{user.StatusActive}}, ordering: []core.DBOrdering{{Field: "password_hash"}, {Field: "name", Ascending: true}}, want: []user.User{comp, admin}},
		{name: "role", filter: &user.QueryFilter{Roles: []string{user.RoleCompany}}, want: []user.User{comp}},
		{name: "type", filter: &user.QueryFilter{Types: []user.UserType{user.TypeAdmin}}, want: []user.User{admin}},
		{name: "search", filter: &user.QueryFilter{Search: "JANE"}, want: []user.User{jane}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Query(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	require.NoError(t, svc.Delete(ctx, jane.ID, "unknown"))
	_, err = svc.GetByID(ctx, jane.ID)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}
