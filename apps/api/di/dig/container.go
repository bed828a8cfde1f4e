package dig_container

import (
	"context"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/board"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	ratelimitsvc "github.com/trezcool/academia/services/ratelimit"
	"github.com/trezcool/academia/storage/database"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	boiledrepos "github.com/trezcool/academia/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
	filestore "github.com/trezcool/academia/storage/files"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage is the set of repositories backed by the configured database.
	Storage struct {
		dig.Out

		Tx          core.Transactor
		Users       user.Repository
		Courses     course.Repository
		Enrollments course.EnrollmentRepository
		Boards      board.Repository
		Closer      func() error
	}
)

func newConfig() *core.Config {
	return core.Conf
}

func newLogger(conf *core.Config) (core.Logger, error) {
	return logsvc.NewRollbarLogger(conf, "API")
}

func newDBLogger(conf *core.Config) (core.Logger, error) {
	return logsvc.NewRollbarLogger(conf, "DB")
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) (Storage, error) {
	if conf.Storage.Backend == core.StorageInMem {
		loggerParam.Logger.Warn("using the in-memory store: data is lost on restart")
		db := inmemdb.Open()
		return Storage{
			Tx:          db,
			Users:       inmemdb.NewUserRepository(db),
			Courses:     inmemdb.NewCourseRepository(db),
			Enrollments: inmemdb.NewEnrollmentRepository(db),
			Boards:      inmemdb.NewBoardRepository(db),
			Closer:      func() error { return nil },
		}, nil
	}

	db, err := setUpDB(conf)
	if err != nil {
		return Storage{}, errors.Wrap(err, "setting up database")
	}
	return Storage{
		Tx:          database.NewTransactor(db),
		Users:       boiledrepos.NewUserRepository(db),
		Courses:     sqlxrepos.NewCourseRepository(db),
		Enrollments: sqlxrepos.NewEnrollmentRepository(db),
		Boards:      sqlxrepos.NewBoardRepository(db),
		Closer:      db.Close,
	}, nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newFileStore(conf *core.Config) (board.FileStore, error) {
	return filestore.New(context.Background(), conf)
}

func newRateLimiter(conf *core.Config) (core.RateLimiter, error) {
	return ratelimitsvc.New(context.Background(), conf)
}

func newCatalog(tx core.Transactor, repo course.Repository) course.Catalog {
	return course.NewCatalog(tx, repo)
}

func newLedger(
	tx core.Transactor,
	catalog course.Catalog,
	repo course.EnrollmentRepository,
	users user.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) course.Ledger {
	return course.NewLedger(tx, catalog, repo, users, mailSvc, logger)
}

func newBoardService(conf *core.Config, repo board.Repository, files board.FileStore, logger core.Logger) board.Service {
	return board.NewService(repo, files, conf.Storage.MaxUploadSize, logger)
}

func newServerOptions(
	conf *core.Config,
	logger core.Logger,
	usrSvc user.Service,
	catalog course.Catalog,
	ledger course.Ledger,
	boardSvc board.Service,
	limiter core.RateLimiter,
) *echoapi.Options {
	return &echoapi.Options{
		Conf:     conf,
		Logger:   logger,
		UserSvc:  usrSvc,
		Catalog:  catalog,
		Ledger:   ledger,
		BoardSvc: boardSvc,
		Limiter:  limiter,
	}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(newFileStore))
	must(c.Provide(newRateLimiter))
	must(c.Provide(user.NewService))
	must(c.Provide(newCatalog))
	must(c.Provide(newLedger))
	must(c.Provide(newBoardService))
	must(c.Provide(newServerOptions))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
