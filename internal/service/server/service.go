package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/oshokin/sos-engine/internal/adapters/carrier"
	"github.com/oshokin/sos-engine/internal/adapters/devicecache"
	"github.com/oshokin/sos-engine/internal/adapters/directory"
	"github.com/oshokin/sos-engine/internal/adapters/filestore"
	"github.com/oshokin/sos-engine/internal/adapters/geocode"
	"github.com/oshokin/sos-engine/internal/adapters/minio"
	"github.com/oshokin/sos-engine/internal/adapters/mqtt"
	"github.com/oshokin/sos-engine/internal/adapters/notify"
	"github.com/oshokin/sos-engine/internal/adapters/postgres"
	"github.com/oshokin/sos-engine/internal/adapters/redisstream"
	"github.com/oshokin/sos-engine/internal/adapters/websocket"
	"github.com/oshokin/sos-engine/internal/config"
	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
	"github.com/oshokin/sos-engine/internal/metrics"
	"github.com/oshokin/sos-engine/internal/repository/archive"
	"github.com/oshokin/sos-engine/internal/repository/chain"
	"github.com/oshokin/sos-engine/internal/service/capture"
	"github.com/oshokin/sos-engine/internal/service/emergency"
	"github.com/oshokin/sos-engine/internal/service/escalation"
	"github.com/oshokin/sos-engine/internal/service/evidence"
	"github.com/oshokin/sos-engine/internal/service/housekeeping"
	"github.com/oshokin/sos-engine/internal/service/location"
	"github.com/oshokin/sos-engine/internal/service/tracking"
)

const (
	// geocodeCacheSize is the number of reverse-geocoded points kept in memory.
	geocodeCacheSize = 1024
	// eventBuffer is the subscription buffer of every event sink.
	eventBuffer = 256
	// wearableQoS is the MQTT QoS of the wearable subscription.
	wearableQoS = 1
)

// components holds the engine and every collaborator wired around it.
type components struct {
	// engine is the alert lifecycle engine.
	engine *emergency.Service
	// devices caches device-reported fixes.
	devices *devicecache.Cache
	// metrics holds the Prometheus collectors.
	metrics *metrics.Metrics
	// hub streams events to websocket clients.
	hub *websocket.Hub

	// sinks tracks event sink goroutines.
	sinks sync.WaitGroup
	// closers release resources in reverse order of acquisition.
	closers []func()
}

// newComponents builds the engine and its collaborators from the settings.
// Optional backends (Postgres, MinIO, Redis, MQTT) are used only when configured.
//
//nolint:funlen // Linear wiring.
func newComponents(ctx context.Context, cfg *config.Config) (_ *components, err error) {
	c := &components{
		metrics: metrics.New(),
		devices: devicecache.New(cfg.Location.DeviceTTL),
	}

	defer func() {
		if err != nil {
			_ = c.shutdown(context.WithoutCancel(ctx))
		}
	}()

	classifier := location.NewClassifier(cfg.Location.DefaultOperator)
	circles := location.NewCircleTable(cfg.Location.DefaultCircle)

	carriers := carrier.NewClients(cfg.Carriers, &http.Client{Timeout: cfg.Emergency.DispatchTimeout})

	resolverOptions := []location.Option{
		location.WithDeviceSource(c.devices),
		location.WithTierTimeout(cfg.Emergency.TierTimeout),
		location.WithStaticAccuracy(cfg.Location.StaticAccuracy),
	}

	for op, client := range carriers {
		resolverOptions = append(resolverOptions, location.WithNetworkSource(op, client))
	}

	resolver := location.NewResolver(classifier, circles, resolverOptions...)

	geocoder, err := geocode.New(circles, geocodeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create geocoder: %w", err)
	}

	store, err := newContentStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	evidenceChain, err := chain.Open(cfg.EvidenceChainFile)
	if err != nil {
		return nil, fmt.Errorf("open evidence chain: %w", err)
	}

	ledger := evidence.NewLedger(store, evidenceChain)

	contacts, err := directory.Load(cfg.DirectoryFile)
	if err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}

	archiver, err := c.newArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}

	scheduler := escalation.NewScheduler(ctx)
	c.closers = append(c.closers, scheduler.Stop)

	tracker := tracking.NewController(ctx, c.devices, cfg.Emergency.TrackingInterval)
	c.closers = append(c.closers, tracker.Stop)

	gateway := carrier.NewGateway(carriers, classifier, cfg.Emergency.CallDelay)

	broker, err := c.connectMQTT(cfg.MQTT)
	if err != nil {
		return nil, err
	}

	var commander capture.Commander = logCommander{}
	if broker != nil {
		commander = mqtt.NewCommander(broker, cfg.MQTT.CommandTopic)
	}

	c.engine, err = emergency.New(ctx, emergency.Dependencies{
		Resolver:  resolver,
		Ledger:    ledger,
		Scheduler: scheduler,
		Contacts:  contacts,
		Notifier:  notify.New(gateway, notify.DefaultParallelism),
		Tracking:  tracker,
		Capture:   capture.NewController(commander),
		Caller:    gateway,
		Archive:   archiver,
		Geocoder:  geocoder,
		Directory: contacts,
		Metrics:   c.metrics,
	}, emergency.Settings{
		ResponseTimeout: cfg.Emergency.ResponseTimeout,
		DispatchTimeout: cfg.Emergency.DispatchTimeout,
		Tombstones:      cfg.Emergency.Tombstones,
		USSDCodes:       []string{cfg.USSD.EmergencyCode, cfg.USSD.ServiceCode},
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	tracker.Bind(c.engine)

	if broker != nil {
		listener := mqtt.NewWearableListener(ctx, c.engine)
		if err := broker.Subscribe(cfg.MQTT.WearableTopic, wearableQoS, listener.Handle); err != nil {
			return nil, fmt.Errorf("subscribe to wearables: %w", err)
		}
	}

	c.hub = websocket.NewHub(ctx)
	c.runSink(func(events <-chan alert.Event) { c.hub.Run(ctx, events) })

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func() { _ = client.Close() })

		publisher := redisstream.New(client, cfg.Redis.Stream, cfg.Redis.MaxLen, c.metrics)
		c.runSink(func(events <-chan alert.Event) { publisher.Run(ctx, events) })

		logger.InfoKV(ctx, "Publishing events to redis", "addr", cfg.Redis.Addr, "stream", cfg.Redis.Stream)
	}

	stopHousekeeping, err := housekeeping.Start(ctx, cfg.Housekeeping.Schedule,
		housekeeping.NewJob(c.engine, c.metrics, cfg.Housekeeping.StaleAfter).WithChain(evidenceChain))
	if err != nil {
		return nil, err
	}

	c.closers = append(c.closers, stopHousekeeping)

	logger.InfoKV(ctx, "Engine ready",
		"carriers", len(carriers),
		"subjects", contacts.Len(),
		"chain_entries", evidenceChain.Len(),
		"mqtt", broker != nil,
	)

	return c, nil
}

// newContentStore selects MinIO when an endpoint is configured, the local directory otherwise.
func newContentStore(cfg config.StorageConfig) (evidence.ContentStore, error) {
	if cfg.Minio.Endpoint != "" {
		store, err := minio.New(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("create minio store: %w", err)
		}

		return store, nil
	}

	store, err := filestore.New(cfg.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("create evidence store: %w", err)
	}

	return store, nil
}

// newArchive selects Postgres when a DSN is configured, the JSON-lines file otherwise.
func (c *components) newArchive(ctx context.Context, cfg *config.Config) (emergency.Archiver, error) {
	if cfg.Postgres.DSN == "" {
		return archive.NewFileRepository(cfg.ArchiveFile), nil
	}

	db, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres archive: %w", err)
	}

	c.closers = append(c.closers, func() { _ = db.Close() })

	return db, nil
}

// connectMQTT returns nil when no broker is configured.
func (c *components) connectMQTT(cfg config.MQTTConfig) (*mqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, nil //nolint:nilnil // MQTT is optional.
	}

	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", err)
	}

	c.closers = append(c.closers, client.Disconnect)

	return client, nil
}

// runSink subscribes a sink to the engine events and runs it in the background.
func (c *components) runSink(run func(events <-chan alert.Event)) {
	events, cancel := c.engine.Subscribe(eventBuffer)

	c.sinks.Add(1)

	go func() {
		defer c.sinks.Done()
		defer cancel()

		run(events)
	}()
}

// shutdown closes the engine, drains the event sinks and releases every resource.
func (c *components) shutdown(ctx context.Context) error {
	var err error

	if c.engine != nil {
		err = c.engine.Close(ctx)
	}

	c.sinks.Wait()
	c.release()

	if err != nil {
		return fmt.Errorf("close engine: %w", err)
	}

	return nil
}

// release runs the closers in reverse order.
func (c *components) release() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}

	c.closers = nil
}

// logCommander stands in for MQTT when no broker is configured.
type logCommander struct{}

// SendCommand only logs the command.
func (logCommander) SendCommand(ctx context.Context, subjectID string, cmd capture.Command) error {
	logger.WarnKV(ctx, "Device command dropped",
		"subject_id", subjectID,
		"action", cmd.Action,
		"alert_id", cmd.AlertID,
	)

	return nil
}
