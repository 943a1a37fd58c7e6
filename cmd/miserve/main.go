// Command miserve serves a directory over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"math"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/sirion/mi"
	"github.com/sirion/mi/fs"
	"github.com/sirion/mi/logger"
)

type statusReport struct {
	Running bool           `json:"running"`
	Served  uint64         `json:"served"`
	Workers int            `json:"workers"`
	Conns   map[string]int `json:"conns"`
}

func main() {
	port := flag.Int("port", 8080, "port to listen on, 1-65535")
	root := flag.String("root", ".", "directory to serve")
	prefix := flag.String("prefix", "/", "URI prefix mapped onto -root")
	workers := flag.Int("workers", runtime.NumCPU(), "handler pool size")
	readTimeout := flag.Duration("read-timeout", mi.DefaultReadTimeout, "per-read deadline, 0 disables")
	listDirs := flag.Bool("list-dirs", false, "generate directory listings")
	accessLog := flag.String("access-log", "", "file to append access lines to, - for stdout")
	level := flag.String("log-level", "info", "silent, error, warn, info or debug")
	seed := flag.String("seed", "", "directory copied into -root before serving")
	flag.Parse()

	lvl, err := logger.ParseLevel(*level)
	if err != nil {
		lvl = logger.Info
	}
	log := logger.New(os.Stderr, lvl)

	if *port < 1 || *port > math.MaxUint16 {
		log.Errorf("Invalid port %d", *port)
		os.Exit(2)
	}

	if len(*seed) > 0 {
		if err := fs.CopyRecursively(*seed, *root); err != nil {
			log.Errorf("Seeding %s from %s failed: %v", *root, *seed, err)
			os.Exit(1)
		}
	}

	srv := mi.New()
	srv.Workers = *workers
	srv.ReadTimeout = *readTimeout
	srv.ErrorLog = os.Stderr

	switch *accessLog {
	case "":
		srv.AccessLog = io.Discard
	case "-":
		srv.AccessLog = os.Stdout
	default:
		f, err := os.OpenFile(*accessLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			log.Errorf("Cannot open access log: %v", err)
			os.Exit(1)
		}
		defer f.Close()
		srv.AccessLog = f
	}

	srv.Handle(mi.PathIs("/_status"), func(_ *mi.Request, res *mi.Response) {
		conns := make(map[string]int)
		for state, n := range srv.ConnStates() {
			conns[state.String()] = n
		}

		_ = res.JSON(statusReport{
			Running: srv.Running(),
			Served:  srv.Served(),
			Workers: *workers,
			Conns:   conns,
		})
		_ = res.End()
	})

	files := mi.NewFileHandler(*prefix, *root, log)
	files.ListDirs = *listDirs
	srv.AddHandler(files)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Infof("Stopping server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Shutdown: %v", err)
		}
	}()

	log.Infof("Serving %s at :%d%s", *root, *port, *prefix)
	if err := srv.Listen(uint16(*port)); err != nil && !errors.Is(err, mi.ErrServerClosed) {
		log.Errorf("Listen: %v", err)
		os.Exit(1)
	}
}
