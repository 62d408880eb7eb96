// Package relay assembles storage, the websocket services and the game
// server registry into one running relay.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/gameconfig"
	"github.com/echorelay-project/echorelay/internal/login"
	"github.com/echorelay-project/echorelay/internal/matching"
	"github.com/echorelay-project/echorelay/internal/network"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/serverdb"
	"github.com/echorelay-project/echorelay/internal/storage"
	"github.com/echorelay-project/echorelay/internal/transaction"
)

// Service names, as reported in logs, events and stats.
const (
	ServiceLogin       = "login"
	ServiceConfig      = "config"
	ServiceMatching    = "matching"
	ServiceServerDB    = "serverdb"
	ServiceTransaction = "transaction"
)

// ServiceNames lists the services in display order.
var ServiceNames = []string{ServiceLogin, ServiceConfig, ServiceMatching, ServiceServerDB, ServiceTransaction}

// Options overrides dependencies New would otherwise build from config.
type Options struct {
	// Store replaces the configured storage backend.
	Store storage.Store
	// Clock drives login session expiry.
	Clock login.Clock
	// Ping replaces the UDP game server validation ping.
	Ping serverdb.PingFunc
}

// Relay is the central orchestrator: it owns the resources, every service
// and the listener they share.
type Relay struct {
	cfg       *config.Config
	eventBus  *events.EventBus
	resources *storage.Resources
	sessions  *login.SessionCache

	login    *login.Service
	engine   *matching.Engine
	registry *serverdb.Registry
	server   *network.Server
	services map[string]*network.Service

	startedAt time.Time
	logger    zerolog.Logger
}

// New opens storage, deploys missing default resources and wires every
// service onto a server built from cfg.
func New(ctx context.Context, cfg *config.Config, eventBus *events.EventBus, opts Options) (*Relay, error) {
	snap := cfg.Snapshot()

	store := opts.Store
	if store == nil {
		var err error
		store, err = storage.Open(ctx, storage.Options{
			Backend:       storage.Backend(snap.Storage.Backend),
			SQLitePath:    snap.Storage.Path,
			RedisAddr:     snap.Storage.RedisAddr,
			RedisPassword: snap.Storage.RedisPassword,
			RedisDB:       snap.Storage.RedisDB,
			RedisPrefix:   snap.Storage.RedisPrefix,
			CacheSize:     snap.Storage.CacheSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
	}
	resources := storage.NewResources(store)
	if err := storage.EnsureDeployed(ctx, resources); err != nil {
		resources.Close()
		return nil, fmt.Errorf("failed to deploy default resources: %w", err)
	}

	r := &Relay{
		cfg:       cfg,
		eventBus:  eventBus,
		resources: resources,
		sessions:  login.NewSessionCache(opts.Clock, time.Duration(snap.Login.DisconnectGraceSec)*time.Second),
		services:  make(map[string]*network.Service),
		startedAt: time.Now(),
		logger:    log.With().Str("component", "relay").Logger(),
	}

	r.login = login.NewService(resources, r.sessions, eventBus)
	r.registry = serverdb.NewRegistry(resources, eventBus)
	r.engine = matching.NewEngine(r.registry, resources, r.login, matching.Options{
		ForceIntoAnySession:     snap.Matching.ForceIntoAnySession,
		FavorPopulationOverPing: snap.Matching.FavorPopulationOverPing,
		MaxCandidates:           snap.Matching.MaxCandidates,
	}, eventBus)
	serverDB := serverdb.NewService(r.registry, serverdb.Options{
		APIKey:           snap.ServerDB.APIKey,
		ValidateEndpoint: snap.ServerDB.ValidateEndpoint,
		ValidateTimeout:  time.Duration(snap.ServerDB.ValidateTimeoutMS) * time.Millisecond,
		Ping:             opts.Ping,
	})
	tx, err := transaction.NewService()
	if err != nil {
		resources.Close()
		return nil, err
	}

	var tlsCert, tlsKey string
	if snap.Server.TLSEnabled {
		tlsCert, tlsKey = snap.Server.TLSCertFile, snap.Server.TLSKeyFile
	}
	r.server = network.NewServer(network.ServerOptions{
		Address:              net.JoinHostPort(snap.Server.Host, strconv.Itoa(snap.Server.Port)),
		TLSCertFile:          tlsCert,
		TLSKeyFile:           tlsKey,
		ConnectionsPerSecond: snap.Server.ConnectionsPerSecond,
	}, eventBus)
	r.server.SetAccessChecker(resources)

	svcOpts := network.DefaultServiceOptions()
	svcOpts.Strict = snap.Server.StrictCodec
	if snap.Server.ReadTimeoutSec > 0 {
		svcOpts.ReadTimeout = time.Duration(snap.Server.ReadTimeoutSec) * time.Second
	}
	svcOpts.RateLimit = network.RateLimitConfig{
		MessagesPerSecond: snap.Server.MessagesPerSecond,
		Burst:             snap.Server.MessageBurst,
	}

	paths := snap.Server.Paths
	r.handle(paths.Login, ServiceLogin, r.login, svcOpts)
	r.handle(paths.Config, ServiceConfig, gameconfig.NewService(resources), svcOpts)
	r.handle(paths.Matching, ServiceMatching, matching.NewService(r.engine), svcOpts)
	r.handle(paths.ServerDB, ServiceServerDB, serverDB, svcOpts)
	r.handle(paths.Transaction, ServiceTransaction, tx, svcOpts)

	r.server.AddObserver(r.lifecycleObserver())
	if snap.Logging.Verbose {
		r.server.AddObserver(r.packetObserver())
	}

	return r, nil
}

func (r *Relay) handle(path, name string, h network.Handler, opts network.ServiceOptions) {
	svc := network.NewService(name, h, opts)
	r.server.Handle(path, svc)
	r.services[name] = svc
}

// Mount serves h for every request under prefix on the relay listener.
func (r *Relay) Mount(prefix string, h http.Handler) {
	r.server.Mount(prefix, h)
}

// Start serves until ctx is done or Shutdown is called.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info().Strs("paths", r.server.Paths()).Msg("relay started")
	err := r.server.Start(ctx)
	r.logger.Info().Msg("relay stopped")
	return err
}

// Shutdown closes every peer, then the listener, then storage.
func (r *Relay) Shutdown(ctx context.Context) error {
	var errs []error
	if err := r.server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	r.login.Stop()
	if err := r.resources.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
	}
	return errors.Join(errs...)
}

// Config returns the configuration the relay was built from.
func (r *Relay) Config() *config.Config { return r.cfg }

// EventBus returns the relay's event bus.
func (r *Relay) EventBus() *events.EventBus { return r.eventBus }

// Resources returns the resource accessors.
func (r *Relay) Resources() *storage.Resources { return r.resources }

// Server returns the websocket server. It implements http.Handler.
func (r *Relay) Server() *network.Server { return r.server }

// Registry returns the game server registry.
func (r *Relay) Registry() *serverdb.Registry { return r.registry }

// Matching returns the matchmaking engine.
func (r *Relay) Matching() *matching.Engine { return r.engine }

// Login returns the login service.
func (r *Relay) Login() *login.Service { return r.login }

// Service returns the named service.
func (r *Relay) Service(name string) (*network.Service, bool) {
	svc, ok := r.services[name]
	return svc, ok
}

// Services returns every service in display order.
func (r *Relay) Services() []*network.Service {
	out := make([]*network.Service, 0, len(ServiceNames))
	for _, name := range ServiceNames {
		if svc, ok := r.services[name]; ok {
			out = append(out, svc)
		}
	}
	return out
}

// PurgeSessions drops expired login tokens.
func (r *Relay) PurgeSessions(ctx context.Context) error {
	return r.login.Purge(ctx)
}

func (r *Relay) lifecycleObserver() network.Observer {
	return network.Observer{
		Connected: func(p *network.Peer) {
			p.Logger().Info().Msg("client connected")
		},
		Disconnected: func(p *network.Peer) {
			p.Logger().Info().Msg("client disconnected")
		},
	}
}

func (r *Relay) packetObserver() network.Observer {
	return network.Observer{
		Received: func(p *network.Peer, packet []protocol.Message) {
			p.Logger().Debug().Strs("messages", messageNames(p, packet)).Msg("client->server")
		},
		Sent: func(p *network.Peer, packet []protocol.Message) {
			p.Logger().Debug().Strs("messages", messageNames(p, packet)).Msg("server->client")
		},
	}
}

func messageNames(p *network.Peer, packet []protocol.Message) []string {
	registry := p.Service().Codec().Registry()
	names := make([]string, len(packet))
	for i, m := range packet {
		if name, ok := registry.Name(m.Symbol()); ok {
			names[i] = name
		} else {
			names[i] = m.Symbol().String()
		}
	}
	return names
}
