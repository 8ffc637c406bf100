package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/emberchat/emberchat/internal/backend/localproc"
	"github.com/emberchat/emberchat/internal/backend/loopback"
	"github.com/emberchat/emberchat/internal/backend/remote"
	backendrouter "github.com/emberchat/emberchat/internal/backend/router"
	"github.com/emberchat/emberchat/internal/catalog"
	"github.com/emberchat/emberchat/internal/chat"
	"github.com/emberchat/emberchat/internal/config"
	"github.com/emberchat/emberchat/internal/httpserver"
	"github.com/emberchat/emberchat/internal/logging"
	"github.com/emberchat/emberchat/internal/store"
	storepostgres "github.com/emberchat/emberchat/internal/store/postgres"
	storesqlite "github.com/emberchat/emberchat/internal/store/sqlite"
	"github.com/emberchat/emberchat/internal/version"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	const maxLogBytes = int64(100 * 1024 * 1024)
	if logTarget := strings.TrimSpace(cfg.LogFile); logTarget != "" {
		rot, err := logging.NewRotatingWriter(logTarget, maxLogBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		log.SetPrefix("[emberchatd] ")
		defer rot.Close()
	}

	log.Printf("[INFO] emberchatd: starting %s", version.FullInfo())

	ctx := context.Background()

	var st store.Store
	switch cfg.DBDriver {
	case "postgres":
		st, err = storepostgres.New(cfg.PostgresDSN)
	default:
		st, err = storesqlite.New(cfg.DBPath)
	}
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	seeds := catalog.DefaultSeed()
	if cfg.ModelsFile != "" {
		seeds, err = catalog.LoadSeed(cfg.ModelsFile)
		if err != nil {
			log.Fatalf("load model seed: %v", err)
		}
	}
	for _, ref := range seeds {
		if err := st.SeedModel(ctx, ref); err != nil {
			log.Fatalf("seed model %q: %v", ref.Label, err)
		}
	}
	log.Printf("[INFO] emberchatd: catalog seeded with %d built-in models", len(seeds))

	rtr := backendrouter.New()
	if err := rtr.Register(catalog.KindLoopback, loopback.New()); err != nil {
		log.Fatalf("register loopback adapter: %v", err)
	}
	if cfg.RemoteBaseURL != "" {
		ra, err := remote.New(remote.Config{
			BaseURL:        cfg.RemoteBaseURL,
			APIKey:         cfg.RemoteAPIKey,
			RequestTimeout: cfg.RemoteTimeout,
		})
		if err != nil {
			log.Fatalf("init remote adapter: %v", err)
		}
		if err := rtr.Register(catalog.KindRemote, ra); err != nil {
			log.Fatalf("register remote adapter: %v", err)
		}
	} else {
		log.Printf("[WARN] emberchatd: remote_base_url unset; remote models will not route")
	}
	if cfg.LocalExecPath != "" {
		la, err := localproc.New(localproc.Config{
			ExecPath: cfg.LocalExecPath,
			Timeout:  cfg.LocalTimeout,
		})
		if err != nil {
			log.Fatalf("init local adapter: %v", err)
		}
		if err := rtr.Register(catalog.KindLocalProcess, la); err != nil {
			log.Fatalf("register local adapter: %v", err)
		}
	} else {
		log.Printf("[WARN] emberchatd: local_exec_path unset; local models will not route")
	}

	svc := chat.New(chat.Config{
		Store:    st,
		Router:   rtr,
		Template: cfg.PromptTemplate,
		Profile:  cfg.UserProfile,
	})

	srv := httpserver.New(svc, st, log.Default())
	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	go func() {
		log.Printf("[INFO] emberchatd: listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("[INFO] emberchatd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] emberchatd: shutdown: %v", err)
	}
}
