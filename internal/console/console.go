// Package console composes the dispatcher console: route directory, map
// surface, realtime channel and session tracker, with an explicit
// Open/Close lifecycle.
package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ridetrack/internal/broker"
	"ridetrack/internal/config"
	"ridetrack/internal/directory"
	"ridetrack/internal/journal"
	"ridetrack/internal/mapsurface"
	"ridetrack/internal/model"
	"ridetrack/internal/notify"
	"ridetrack/internal/realtime"
	"ridetrack/internal/tracking"
)

var (
	ErrAlreadyOpen = errors.New("console already open")
	ErrNotOpen     = errors.New("console not open")
)

// Options carries the collaborators built by main. Zero values get in-memory
// defaults.
type Options struct {
	Config  config.Config
	Broker  broker.EventBroker
	Journal journal.Journal
	Locator mapsurface.Locator
	// Extra notifiers (webhooks) run after the broker and log notifiers.
	Notifiers  []notify.Notifier
	HTTPClient *http.Client
	Logger     log.FieldLogger
}

type Console struct {
	Directory *directory.Directory
	Surface   *mapsurface.Surface
	Realtime  *realtime.Client
	Tracker   *tracking.Tracker
	Broker    broker.EventBroker
	Journal   journal.Journal
	Notifier  notify.Notifier

	log log.FieldLogger

	mu     sync.Mutex
	open   bool
	off    func()
	cancel context.CancelFunc
	done   chan struct{}
}

func New(o Options) (*Console, error) {
	c := o.Config
	logger := o.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	if o.Broker == nil {
		o.Broker = broker.NewBroker()
	}
	if o.Journal == nil {
		o.Journal = journal.NewMemory()
	}
	if o.Locator == nil {
		o.Locator = mapsurface.StaticLocator{Lat: c.Map.Lat, Lng: c.Map.Lng}
	}
	colors, err := tracking.NewAllocator(c.Map.ColorStrategy, c.Map.Palette)
	if err != nil {
		return nil, err
	}
	wsURL, err := realtime.WebsocketURL(c.APIURL, c.Realtime.Path)
	if err != nil {
		return nil, fmt.Errorf("realtime url: %w", err)
	}

	dir := directory.New(c.APIURL, c.RoutesPath, c.FetchTimeout, logger.WithField("component", "directory"))
	if o.HTTPClient != nil {
		dir.WithClient(o.HTTPClient)
	}
	surface := mapsurface.New(mapsurface.NewBrokerEngine(o.Broker, c.Map.APIKey), o.Locator, mapsurface.Options{
		Zoom:           c.Map.Zoom,
		FallbackCenter: model.LatLng{Lat: c.Map.Lat, Lng: c.Map.Lng},
		Logger:         logger.WithField("component", "mapsurface"),
	})
	rt := realtime.NewClient(wsURL, realtime.Options{
		ReconnectInitial: c.Realtime.ReconnectInitial,
		ReconnectMax:     c.Realtime.ReconnectMax,
		PingInterval:     c.Realtime.PingInterval,
		Logger:           logger.WithField("component", "realtime"),
	})
	notifier := append(notify.Fanout{
		notify.Broker{B: o.Broker},
		notify.Log{Logger: logger.WithField("component", "notify")},
	}, o.Notifiers...)

	tracker := tracking.NewTracker(tracking.Deps{
		Surface:  surface,
		Routes:   dir,
		Emitter:  rt,
		Notifier: notifier,
		Colors:   colors,
		Journal:  o.Journal,
		Logger:   logger.WithField("component", "tracking"),
	})

	return &Console{
		Directory: dir,
		Surface:   surface,
		Realtime:  rt,
		Tracker:   tracker,
		Broker:    o.Broker,
		Journal:   o.Journal,
		Notifier:  notifier,
		log:       logger.WithField("component", "console"),
	}, nil
}

// Open fetches the routes and brings the map up, subscribes the tracker to
// new-position and starts the realtime channel. The channel keeps running
// until Close.
func (c *Console) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return ErrAlreadyOpen
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		routes := c.Directory.Fetch(gctx)
		c.log.WithField("routes", len(routes)).Info("route list loaded")
		return nil
	})
	g.Go(func() error { return c.Surface.Init(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.off = c.Realtime.On(model.EventNewPosition, c.Tracker.PositionHandler(runCtx))
	c.cancel = cancel
	c.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := c.Realtime.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.WithError(err).Error("realtime channel stopped")
		}
	}(c.done)
	c.open = true
	return nil
}

// Close removes the new-position listener and stops the realtime channel.
// Sessions stay in the registry.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	c.off()
	c.cancel()
	<-c.done
	c.open = false
	c.log.Info("console closed")
	return nil
}

func (c *Console) Start(ctx context.Context, routeID string) (tracking.StartResult, error) {
	return c.Tracker.Start(ctx, routeID)
}

// Ready reports whether the map is up and the realtime channel connected.
func (c *Console) Ready() bool {
	return c.Surface.Ready() && c.Realtime.Connected()
}
