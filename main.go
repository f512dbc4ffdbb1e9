package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/talkincode/packflow/config"
	"github.com/talkincode/packflow/internal/adminapi"
	"github.com/talkincode/packflow/internal/app"
	"github.com/talkincode/packflow/internal/webserver"
)

var (
	conffile = flag.String("c", "", "config yaml file")
	initdb   = flag.Bool("initdb", false, "drop and recreate all tables, then exit")
)

func main() {
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*conffile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	webserver.Init(cfg, application)
	adminapi.Init()

	addr := net.JoinHostPort(cfg.Web.Host, strconv.Itoa(cfg.Web.Port))
	errc := make(chan error, 1)
	go func() {
		errc <- webserver.Start(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if err != nil {
			zap.L().Error("admin server stopped", zap.Error(err))
		}
	case s := <-sig:
		zap.L().Info("shutting down", zap.String("signal", s.String()))
		if err := webserver.Shutdown(10 * time.Second); err != nil {
			zap.L().Error("shutdown error", zap.Error(err))
		}
	}
}
