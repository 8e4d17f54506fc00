package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/roobiinpandey/al-marya-rostary-sub003/internal/auth"
	"github.com/roobiinpandey/al-marya-rostary-sub003/internal/router"
	"github.com/roobiinpandey/al-marya-rostary-sub003/internal/server/middleware"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/cache"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/config"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/state"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/state/statemanager"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/transport"
)

const (
	statsNamespace = "stats"
	statsCacheKey  = "registry"
)

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	eventRouter  *router.EventRouter
	cacheStore   *cache.Store
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) (*App, error) {
	stateManager := statemanager.NewInMemoryManager(logger)
	eventRouter := router.NewEventRouter(logger, stateManager)
	cacheStore := cache.New(logger, cfg.Cache.SweepInterval)

	verifier, err := auth.NewVerifierFromJWKS(rootCtx, logger, cfg.Server.Auth.SessionSecret, cfg.Server.Auth.JWKSURL)
	if err != nil {
		return nil, err
	}

	app := &App{
		logger:       logger,
		stateManager: stateManager,
		eventRouter:  eventRouter,
		cacheStore:   cacheStore,
		config:       cfg,
		ctx:          rootCtx,
	}

	// Close the oldest connection of a subject that is over the limit.
	connCycler := func(subject string) {
		oldest, found := stateManager.FindOldestSubjectConnection(subject)
		if found {
			logger.Info("Cycling connection: closing oldest",
				slog.String("subject", subject),
				slog.String("connID", oldest.ID.String()),
			)
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewAdmissionMiddleware(logger, verifier),
			middleware.NewConnectionLimiter(
				logger,
				stateManager.SubjectConnectionCount,
				connCycler,
				cfg.Server.ConnectionLimit,
			),
		),
	)
	mux.HandleFunc("/stats", app.statsHandler)
	mux.HandleFunc("/healthz", app.healthHandler)

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app, nil
}

// Notifier exposes the internal seam the CRUD layer calls after committing a
// change to the document store.
func (a *App) Notifier() *router.EventRouter {
	return a.eventRouter
}

func (a *App) Run() error {
	a.cacheStore.Start(a.ctx)

	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("subject", reqMeta.Identity.Subject),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		nil,
		nil,
		a.logger,
	)

	// register the admitted connection
	stateConn, err := a.stateManager.Register(conn, state.ConnectionMeta{
		Subject:   reqMeta.Identity.Subject,
		Email:     reqMeta.Identity.Email,
		Scheme:    reqMeta.Identity.Scheme,
		IPAddress: reqMeta.IP,
	})
	if err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}

	// honor the group requested in the handshake, if any.
	if reqMeta.HasGroup {
		if err := a.stateManager.JoinGroup(stateConn.ID, reqMeta.RequestedGroup); err != nil {
			connLogger.Error("Failed to join requested group", slog.Any("error", err))
			conn.Close(err)
			return
		}
	}

	conn.SetOnMessageHandler(a.eventRouter.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Deregistering connection due to closure", slog.String("connID", id.String()))
		a.stateManager.Deregister(id)
	})

	connLogger.Info("Connection fully established", slog.String("scheme", reqMeta.Identity.Scheme))
	conn.Run()
	<-conn.Done()
}

// statsHandler serves a point-in-time registry snapshot. Responses are cached
// briefly so dashboard polling never hammers the registry lock.
func (a *App) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if cached, ok := a.cacheStore.Get(statsNamespace, statsCacheKey); ok {
		w.Write(cached.([]byte))
		return
	}

	body, err := json.Marshal(a.stateManager.Stats())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	a.cacheStore.Set(statsNamespace, statsCacheKey, body, a.config.Cache.StatsTTL)
	w.Write(body)
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections; every admitted connection is
	// a member of the public group.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.stateManager.GroupMembers(state.GroupPublic) {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.cacheStore.Stop()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
