package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/board"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
)

type (
	Options struct {
		Conf     *core.Config
		Logger   core.Logger
		UserSvc  user.Service
		Catalog  course.Catalog
		Ledger   course.Ledger
		BoardSvc board.Service
		// Limiter throttles login and password reset requests. Nil disables it.
		Limiter core.RateLimiter
	}

	Server struct {
		opts     *Options
		app      *echo.Echo
		auth     *authenticator
		shutdown chan os.Signal
		errors   chan error
	}
)

func NewServer(opts *Options) *Server {
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		auth:     newAuthenticator(opts.Conf, opts.UserSvc),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	// multipart bodies carry several attachments
	s.app.Use(middleware.BodyLimit(bodyLimit(conf.Storage.MaxUploadSize)))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", s.home)

	api := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig(false))
	optJWT := middleware.JWTWithConfig(s.auth.jwtConfig(true))
	limit := rateLimitMiddleware(s.opts.Limiter, s.opts.Logger)

	registerUserAPI(api, jwt, limit, s.auth, s.opts.UserSvc, s.opts.Ledger, s.opts.Logger)
	registerCourseAPI(api, jwt, s.auth, s.opts.Catalog, s.opts.Ledger)
	registerEnrollmentAPI(api, jwt, s.auth, s.opts.Ledger)
	registerBoardAPI(api, jwt, optJWT, s.auth, s.opts.BoardSvc)
}

// Start serves until the server is shut down. Errors other than a clean
// shutdown are sent to Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}

func bodyLimit(maxUploadSize int64) string {
	const mb = 1 << 20
	if maxUploadSize <= 0 {
		maxUploadSize = 10 * mb
	}
	// room for a handful of files plus the multipart framing
	return strconv.FormatInt(5*maxUploadSize/mb+1, 10) + "M"
}
