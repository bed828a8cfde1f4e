package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/board"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	ratelimitsvc "github.com/trezcool/academia/services/ratelimit"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	filestore "github.com/trezcool/academia/storage/files"
	"github.com/trezcool/academia/testutil"
)

const strongPwd = "Zx9!qLm#4vT"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type env struct {
	conf    *core.Config
	app     *echoapi.Server
	users   user.Repository
	courses course.Repository
	ledger  course.Ledger
	boards  board.Repository
}

func setup(t *testing.T, opts ...func(*echoapi.Options)) env {
	t.Helper()
	conf := testutil.Config()
	logger := testutil.Logger(t)
	db := inmemdb.Open()

	usrRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	boardRepo := inmemdb.NewBoardRepository(db)
	files, err := filestore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	emailsvc.ResetSentMessages()
	usrSvc := user.NewService(usrRepo, mailSvc)
	catalog := course.NewCatalog(db, courseRepo)
	ledger := course.NewLedger(db, catalog, inmemdb.NewEnrollmentRepository(db), usrSvc, mailSvc, logger)

	options := &echoapi.Options{
		Conf:     conf,
		Logger:   logger,
		UserSvc:  usrSvc,
		Catalog:  catalog,
		Ledger:   ledger,
		BoardSvc: board.NewService(boardRepo, files, 1<<10, logger),
	}
	for _, opt := range opts {
		opt(options)
	}

	// set up server
	return env{
		conf:    conf,
		app:     echoapi.NewServer(options),
		users:   usrRepo,
		courses: courseRepo,
		ledger:  ledger,
		boards:  boardRepo,
	}
}

func withLimiter(limit int) func(*echoapi.Options) {
	return func(opts *echoapi.Options) {
		opts.Limiter = ratelimitsvc.NewMemoryLimiter(limit, opts.Conf.RateLimit.Window)
	}
}

func (e env) admin(t *testing.T) user.User {
	t.Helper()
	return testutil.CreateUser(t, e.users, "Admin", "admin", "admin@test.test", strongPwd, []string{user.RoleUser, user.RoleAdmin}, user.StatusActive)
}

func (e env) learner(t *testing.T, uname string, status ...user.Status) user.User {
	t.Helper()
	st := user.StatusActive
	if len(status) > 0 {
		st = status[0]
	}
	return testutil.CreateUser(t, e.users, "Learner "+uname, uname, uname+"@test.test", strongPwd, []string{user.RoleUser}, st)
}

func (e env) course(t *testing.T, title, category string, capacity int) course.Course {
	t.Helper()
	return testutil.CreateCourse(t, e.courses, title, category, capacity)
}

func (e env) serve(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	e.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := echoapi.GenerateToken(conf, echoapi.GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

// checkCodeAndData compares the response with tt. A nil wantData only checks the code.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if !assert.Equal(t, tt.wantCode, rec.Code, "status code; body %s", rec.Body.String()) {
		return
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, e env, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, e.serve(tt))
		})
	}
}
