package echoapi_test

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
)

func Test_userApi_signupApproveLogin(t *testing.T) {
	e := setup(t)
	admin := e.admin(t)
	adminToken := getToken(t, e.conf, admin)

	signup := user.NewUser{Name: "Jane Doe", Email: "Jane@Test.test", Password: strongPwd, PasswordConfirm: strongPwd}
	login := echoapi.LoginRequest{Username: "jane@test.test", Password: strongPwd}

	rec := e.serve(httpTest{method: http.MethodPost, path: "/api/users/signup", body: marchallObj(t, signup)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var jane user.User
	unmarshal(t, rec, &jane)
	assert.Equal(t, "jane@test.test", jane.Email)
	assert.Equal(t, user.StatusPending, jane.Status)
	assert.Equal(t, user.TypeEmployee, jane.Type)
	assert.Equal(t, []string{user.RoleUser}, jane.Roles)

	asAdmin := signup
	asAdmin.Email = "boss@test.test"
	asAdmin.Type = user.TypeAdmin

	runTests(t, e, []httpTest{
		{
			name: "duplicate email", method: http.MethodPost, path: "/api/users/signup", body: marchallObj(t, signup),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": "a user with this email already exists"}),
		},
		{
			name: "admin type refused", method: http.MethodPost, path: "/api/users/signup", body: marchallObj(t, asAdmin),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"user_type": "this user type cannot be chosen at signup"}),
		},
		{
			name: "pending cannot login", method: http.MethodPost, path: "/api/users/login", body: marchallObj(t, login),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account pending approval"}),
		},
		{
			name: "approval is admin only", method: http.MethodPost, path: "/api/users/" + jane.ID + "/approve",
			token: getToken(t, e.conf, e.learner(t, "learner")), wantCode: http.StatusNotFound,
		},
	})

	rec = e.serve(httpTest{method: http.MethodPost, path: "/api/users/" + jane.ID + "/approve", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &jane)
	assert.Equal(t, user.StatusActive, jane.Status)
	msgs := emailsvc.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Account approved", msgs[0].Subject)
	assert.Equal(t, "jane@test.test", msgs[0].To[0].Address)

	rec = e.serve(httpTest{method: http.MethodPost, path: "/api/users/login", body: marchallObj(t, login)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	unmarshal(t, rec, &resp)
	require.NotEmpty(t, resp.Token)

	rec = e.serve(httpTest{method: http.MethodGet, path: "/api/users/me", token: resp.Token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me user.User
	unmarshal(t, rec, &me)
	assert.Equal(t, jane.ID, me.ID)
	assert.False(t, me.LastLogin.IsZero())
}

func Test_userApi_login(t *testing.T) {
	e := setup(t)
	e.learner(t, "active")
	e.learner(t, "rejected", user.StatusRejected)
	e.learner(t, "suspended", user.StatusSuspended)

	body := func(uname, pwd string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
	}
	tests := []httpTest{
		{
			name: "required fields", body: body("", ""), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoapi.LoginRequest{Username: "this field is required", Password: "this field is required"}),
		},
		{name: "unknown user", body: body("nobody", strongPwd), wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"})},
		{name: "wrong password", body: body("active", "nope"), wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"})},
		{name: "rejected", body: body("rejected", strongPwd), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account rejected"})},
		{name: "suspended", body: body("suspended", strongPwd), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account suspended"})},
		{name: "by username", body: body(" ACTIVE ", strongPwd)},
		{name: "by email", body: body("active@test.test", strongPwd)},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/users/login"
	}
	runTests(t, e, tests)
}

func Test_userApi_loginRateLimited(t *testing.T) {
	e := setup(t, withLimiter(2))
	e.learner(t, "active")

	req := httpTest{method: http.MethodPost, path: "/api/users/login", body: marchallObj(t, echoapi.LoginRequest{Username: "active", Password: "nope"})}
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusBadRequest, e.serve(req).Code)
	}
	rec := e.serve(req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), marchallObj(t, httpErr{Error: "too many requests, try again later"}))
	require.NoError(t, err)
	assert.True(t, ok, rec.Body.String())
}

func Test_userApi_query(t *testing.T) {
	e := setup(t)
	admin := e.admin(t)
	alice := e.learner(t, "alice")
	bob := e.learner(t, "bob")
	carol := e.learner(t, "carol", user.StatusPending)
	adminToken := getToken(t, e.conf, admin)

	path := func(params ...string) string {
		v := make(url.Values)
		for i := 0; i+1 < len(params); i += 2 {
			v.Add(params[i], params[i+1])
		}
		return "/api/users?" + v.Encode()
	}

	runTests(t, e, []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", method: http.MethodGet, path: "/api/users", token: getToken(t, e.conf, alice),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "order by username", method: http.MethodGet, path: path("ordering", "username"), token: adminToken, wantData: marchallList(t, admin, alice, bob, carol)},
		{name: "order by -username", method: http.MethodGet, path: path("ordering", "-username"), token: adminToken, wantData: marchallList(t, carol, bob, alice, admin)},
		{name: "pending", method: http.MethodGet, path: path("status", "pending"), token: adminToken, wantData: marchallList(t, carol)},
		{name: "search", method: http.MethodGet, path: path("search", "ALI"), token: adminToken, wantData: marchallList(t, alice)},
		{name: "search (unknown)", method: http.MethodGet, path: path("search", "zed"), token: adminToken, wantData: marchallList(t)},
		{name: "role", method: http.MethodGet, path: path("role", user.RoleAdmin), token: adminToken, wantData: marchallList(t, admin)},
		{
			name: "created_to in the past", method: http.MethodGet, path: path("created_to", "2001-01-01"),
			token: adminToken, wantData: marchallList(t),
		},
		{
			name: "invalid created_from", method: http.MethodGet, path: path("created_from", "yesterday"), token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"created_from": "invalid date, use YYYY-MM-DD or RFC 3339"}),
		},
		{
			name: "stats", method: http.MethodGet, path: "/api/users/stats", token: adminToken,
			wantData: marchallObj(t, user.Stats{TotalUsers: 4, ActiveUsers: 3, PendingUsers: 1}),
		},
		{name: "roles", method: http.MethodGet, path: "/api/users/roles", token: adminToken, wantData: marchallObj(t, user.Roles)},
	})
}

func Test_userApi_detail(t *testing.T) {
	e := setup(t)
	admin := e.admin(t)
	alice := e.learner(t, "alice_w")
	bob := e.learner(t, "bob_tan")
	adminToken := getToken(t, e.conf, admin)
	aliceToken := getToken(t, e.conf, alice)

	runTests(t, e, []httpTest{
		{name: "self", method: http.MethodGet, path: "/api/users/" + alice.ID, token: aliceToken, wantData: marchallObj(t, alice)},
		{name: "other user hidden", method: http.MethodGet, path: "/api/users/" + bob.ID, token: aliceToken, wantCode: http.StatusNotFound},
		{name: "admin", method: http.MethodGet, path: "/api/users/" + bob.ID, token: adminToken, wantData: marchallObj(t, bob)},
		{
			name: "roles are admin only", method: http.MethodPut, path: "/api/users/" + alice.ID, token: aliceToken,
			body: marchallObj(t, user.UpdateUser{Roles: []string{user.RoleAdmin}}), wantCode: http.StatusForbidden,
		},
		{
			name: "role above own", method: http.MethodPut, path: "/api/users/" + bob.ID, token: adminToken,
			body:     marchallObj(t, user.UpdateUser{Roles: []string{user.RoleAdminOwner}}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{name: "cannot suspend self", method: http.MethodPost, path: "/api/users/" + admin.ID + "/suspend", token: adminToken, wantCode: http.StatusForbidden},
		{name: "cannot delete self", method: http.MethodDelete, path: "/api/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "delete is admin only", method: http.MethodDelete, path: "/api/users/" + alice.ID, token: aliceToken, wantCode: http.StatusForbidden},
	})

	rec := e.serve(httpTest{method: http.MethodPut, path: "/api/users/" + alice.ID, token: aliceToken, body: marchallObj(t, user.UpdateUser{Name: "Alice Liddell"})})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var upd user.User
	unmarshal(t, rec, &upd)
	assert.Equal(t, "Alice Liddell", upd.Name)
	assert.Equal(t, alice.Email, upd.Email)

	rec = e.serve(httpTest{method: http.MethodPost, path: "/api/users/" + bob.ID + "/suspend", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	// a suspension takes effect on existing tokens
	rec = e.serve(httpTest{method: http.MethodGet, path: "/api/users/me", token: getToken(t, e.conf, bob)})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.serve(httpTest{method: http.MethodDelete, path: "/api/users?id=" + bob.ID + "&id=" + alice.ID, token: adminToken})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.serve(httpTest{method: http.MethodGet, path: "/api/users/me", token: aliceToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func Test_userApi_refreshToken(t *testing.T) {
	e := setup(t)
	alice := e.learner(t, "alice")
	pending := e.learner(t, "pending", user.StatusPending)

	now := time.Now()
	unrefreshableClaims := echoapi.GetUserClaims(e.conf, alice)
	unrefreshableClaims.StandardClaims = jwt.StandardClaims{
		Issuer:    e.conf.AppName,
		Subject:   alice.ID,
		ExpiresAt: now.Add(e.conf.Server.JWTExpirationDelta).Unix(),
		IssuedAt:  now.Unix(),
	}
	unrefreshableClaims.OrigIssuedAt = now.Add(-2 * e.conf.Server.JWTRefreshExpirationDelta).Unix() // older than threshold
	unrefreshableToken, err := echoapi.GenerateToken(e.conf, unrefreshableClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: getToken(t, e.conf, pending), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account pending approval"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Invalid token", token: "not-a-jwt", wantCode: http.StatusUnauthorized},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/users/token-refresh"
	}
	runTests(t, e, tests)

	// cannot guess new token.. just check that it's not empty
	rec := e.serve(httpTest{method: http.MethodPost, path: "/api/users/token-refresh", token: getToken(t, e.conf, alice)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	unmarshal(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
}

func Test_userApi_passwordReset(t *testing.T) {
	e := setup(t)
	e.learner(t, "alice")

	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	runTests(t, e, []httpTest{
		{
			name: "required email", method: http.MethodPost, path: "/api/users/password-reset", body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "this field is required"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/api/users/password-reset",
			body: marchallObj(t, echoapi.PasswordResetRequest{Email: "nobody@test.test"}), wantData: successData,
		},
	})
	assert.Empty(t, emailsvc.SentMessages())

	rec := e.serve(httpTest{
		method: http.MethodPost, path: "/api/users/password-reset",
		body: marchallObj(t, echoapi.PasswordResetRequest{Email: "ALICE@test.test"}),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	msgs := emailsvc.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Password Reset", msgs[0].Subject)

	rec = e.serve(httpTest{
		method: http.MethodPost, path: "/api/users/password-reset-confirm",
		body: marchallObj(t, user.ResetUserPassword{UID: "bad", Token: "bad", Password: strongPwd, PasswordConfirm: strongPwd}),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
