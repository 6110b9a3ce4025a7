package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/NguetchuissiBrunel/xccm-gateway/apps/api/echo"
	"github.com/NguetchuissiBrunel/xccm-gateway/core"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/session"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/user"
	logsvc "github.com/NguetchuissiBrunel/xccm-gateway/services/logger"
	"github.com/NguetchuissiBrunel/xccm-gateway/storage/database"
	inmemdb "github.com/NguetchuissiBrunel/xccm-gateway/storage/database/inmem"
	sqlxrepos "github.com/NguetchuissiBrunel/xccm-gateway/storage/database/sqlx"
	inmemstore "github.com/NguetchuissiBrunel/xccm-gateway/storage/session/inmem"
	redisstore "github.com/NguetchuissiBrunel/xccm-gateway/storage/session/redis"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "GATEWAY : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up user storage
	usrRepo, dbClose, err := setUpUserRepo(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up user storage: %v", err), err)
	}
	defer dbClose()
	usrSvc := user.NewService(usrRepo)

	// set up the durable session store
	var sessions session.Provider
	if conf.SessionStoreAddr != "" {
		rp := redisstore.NewProvider(conf)
		defer func() { _ = rp.Close() }()
		sessions = rp
	} else {
		sessions = inmemstore.NewProvider()
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Gateway Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			Sessions:   sessions,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpUserRepo opens the configured user storage: postgres when a database
// user is configured, the in-memory table otherwise (DEV/TEST).
func setUpUserRepo(conf *core.Config) (user.Repository, func(), error) {
	if conf.Database.User == "" {
		db, err := inmemdb.Open()
		if err != nil {
			return nil, nil, err
		}
		return inmemdb.NewUserRepository(db), func() {}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, nil, err
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return sqlxrepos.NewUserRepository(db), dbCloser(db), nil
}

func dbCloser(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
