package main

import (
	"context"
	"time"

	httpin "menu360/internal/adapters/inbound/http"
	kafkain "menu360/internal/adapters/inbound/kafka"
	"menu360/internal/adapters/outbound/cache"
	"menu360/internal/adapters/outbound/kvstore"
	"menu360/internal/adapters/outbound/postgres"
	"menu360/internal/adapters/outbound/publisher"
	"menu360/internal/adapters/outbound/supabase"
	"menu360/internal/adapters/outbound/toast"
	"menu360/internal/app/config"
	"menu360/internal/app/logging"
	"menu360/internal/app/metrics"
	"menu360/internal/app/runtime"
	"menu360/internal/core/cart"
	"menu360/internal/core/fixtures"
	"menu360/internal/core/realtime"
	"menu360/internal/core/service"
	"menu360/internal/migrations"
	"menu360/internal/ports/outbound"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := runtime.NotifyContext(context.Background())
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component(logger, "main")

	// backend
	var (
		repo  outbound.Repository
		media outbound.MediaStore
		sb    *supabase.Client
	)
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		sb, err = supabase.New(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseKey, Bucket: cfg.StorageBucket})
		if err != nil {
			log.WithError(err).Fatal("supabase client")
		}
		media = supabase.NewStorage(sb, cfg.StorageBucket)
	}

	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := postgres.New(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns: int32(cfg.DBMaxConns),
			MinConns: int32(cfg.DBMinConns),
		})
		if err != nil {
			log.WithError(err).Fatal("db init")
		}
		defer db.Close()

		if cfg.RunMigrations {
			migCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := postgres.RunMigrations(migCtx, db.Pool, migrations.FS, logging.Component(logger, "migrations"))
			cancel()
			if err != nil {
				log.WithError(err).Fatal("migrations")
			}
		}
		repo = postgres.NewRepository(db.Pool)
	case config.BackendSupabase:
		repo = supabase.NewRepository(sb, logging.Component(logger, "supabase"))
	}

	// on-device storage
	var kv outbound.KVStore
	var memKV *kvstore.Memory
	switch cfg.KVDriver {
	case config.KVRedis:
		r, err := kvstore.NewRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			log.WithError(err).Fatal("redis")
		}
		defer func() { _ = r.Close() }()
		kv = r
	default:
		memKV = kvstore.NewMemory()
		kv = memKV
	}

	// notifications
	hub := toast.NewHub(cfg.ToastCapacity, cfg.ToastTTL)
	notifiers := publisher.Notifiers{hub}
	if cfg.TelegramToken != "" {
		tg, err := publisher.NewTelegram(cfg.TelegramToken, cfg.TelegramChats, logging.Component(logger, "telegram"))
		if err != nil {
			log.WithError(err).Fatal("telegram")
		}
		go tg.Run(ctx)
		notifiers = append(notifiers, tg)
	}

	var events publisher.Publishers
	if cfg.AMQPURL != "" {
		amqpPub, err := publisher.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.WithError(err).Fatal("amqp")
		}
		defer func() { _ = amqpPub.Close() }()
		events = append(events, amqpPub)
	}
	var orderEvents outbound.OrderEventPublisher
	if len(events) > 0 {
		orderEvents = events
	}

	// core
	memCache := cache.NewMemoryCache(cfg.CacheStaleTime)
	if err := metrics.RegisterCache(memCache); err != nil {
		log.WithError(err).Warn("[metrics] cache collectors not registered")
	}
	gen, err := fixtures.New()
	if err != nil {
		log.WithError(err).Fatal("fixtures")
	}

	rec := metrics.Recorder{}
	catalogSvc := service.NewCatalogService(repo, memCache, gen, rec, logging.Component(logger, "catalog"))
	localToasts := cfg.RealtimeDriver == config.RealtimeNone
	orderSvc := service.NewOrderService(repo, memCache, catalogSvc, orderEvents, notifiers, localToasts, logging.Component(logger, "orders"))
	menuSvc := service.NewMenuService(repo, memCache, catalogSvc, media, logging.Component(logger, "menu"))
	carts := cart.NewRegistry(kv, notifiers, orderSvc, rec, cart.Options{
		SubmitDelay: cfg.CartSubmitDelay,
		TTL:         cfg.CartTTL,
	}, logging.Component(logger, "cart"))

	// warm cache
	if n, err := catalogSvc.WarmCache(ctx, cfg.CacheWarmRestaurants); err != nil {
		log.WithError(err).Warn("[warmup] failed")
	} else {
		log.WithFields(logrus.Fields{"records": n, "entries": memCache.Entries()}).Info("[warmup] cache loaded")
	}

	// realtime
	var feed outbound.ChangeFeed
	var sbFeed *supabase.Realtime
	if cfg.RealtimeDriver == config.RealtimeSupabase {
		sbFeed, err = supabase.NewRealtime(cfg.SupabaseURL, cfg.SupabaseKey,
			supabase.RealtimeOptions{Heartbeat: cfg.RealtimeHeartbeat}, logging.Component(logger, "realtime"))
		if err != nil {
			log.WithError(err).Fatal("realtime")
		}
		feed = sbFeed
	}
	bridge := realtime.NewBridge(memCache, feed, notifiers, rec, logging.Component(logger, "bridge"))

	var watches []*realtime.Watch
	var consumer *kafkain.Consumer
	switch cfg.RealtimeDriver {
	case config.RealtimeSupabase:
		for _, rid := range cfg.RealtimeRestaurants {
			w, err := bridge.Watch(ctx, rid)
			if err != nil {
				log.WithError(err).WithField("restaurant_id", rid).Error("[realtime] watch failed")
				continue
			}
			watches = append(watches, w)
		}
	case config.RealtimeKafka:
		consumer = kafkain.NewConsumer(kafkain.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			Topics:   cfg.KafkaTopics,
			GroupID:  cfg.KafkaConsumerGroup,
			MinBytes: cfg.KafkaMinBytes,
			MaxBytes: cfg.KafkaMaxBytes,
		}, bridge, logging.Component(logger, "kafka"))
		go consumer.Run(ctx)
	}

	// HTTP
	limiter := httpin.NewLimiter(cfg.SubmitRateInterval, cfg.SubmitRateBurst)
	deps := httpin.Deps{
		Catalog:  catalogSvc,
		Orders:   orderSvc,
		Menu:     menuSvc,
		Carts:    carts,
		Sessions: httpin.NewSessions(kv, cfg.SecureCookies),
		Auth:     httpin.NewAuthenticator(cfg.JWTSecret, kv, logging.Component(logger, "auth")),
		Limiter:  limiter,
		Toasts:   hub,
		Log:      logging.Component(logger, "http"),
	}
	router := httpin.NewRouter(httpin.NewHandlers(deps), httpin.NewUI(deps))
	httpSrv := runtime.NewHTTPServer(cfg.HTTPAddr, router, logging.Component(logger, "http"))
	httpSrv.Start()

	// maintenance
	type job struct {
		name, spec string
		fn         func(context.Context) (int, error)
	}
	sched := runtime.NewScheduler(ctx, logging.Component(logger, "cron"))
	jobs := []job{
		{"cache-refresh", cfg.CacheRefreshSpec, catalogSvc.Refresh},
		{"ratelimit-cleanup", cfg.MaintenanceSpec, func(context.Context) (int, error) {
			return limiter.Cleanup(10 * cfg.SubmitRateInterval), nil
		}},
		{"toast-prune", cfg.MaintenanceSpec, func(context.Context) (int, error) { return hub.Prune(), nil }},
		{"cart-evict", cfg.MaintenanceSpec, func(context.Context) (int, error) {
			return carts.Evict(cfg.CartIdleEviction), nil
		}},
	}
	if memKV != nil {
		jobs = append(jobs, job{"kv-sweep", cfg.MaintenanceSpec, func(context.Context) (int, error) { return memKV.Sweep(), nil }})
	}
	for _, j := range jobs {
		if err := sched.Add(j.name, j.spec, j.fn); err != nil {
			log.WithError(err).Fatal("scheduler")
		}
	}
	sched.Start()

	<-ctx.Done()
	log.Info("[shutdown] signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	closers := runtime.NewShutdown(logging.Component(logger, "shutdown"))
	closers.Add("http", func(ctx context.Context) error { return httpSrv.Shutdown(ctx, cfg.ShutdownTimeout) })
	closers.Add("scheduler", func(ctx context.Context) error { sched.Stop(ctx); return nil })
	for _, w := range watches {
		closers.Add("realtime-watch", w.Close)
	}
	if sbFeed != nil {
		closers.Add("realtime", func(context.Context) error { sbFeed.Close(); return nil })
	}
	if consumer != nil {
		closers.Add("kafka", func(context.Context) error { return consumer.Close() })
	}
	closers.Run(shutdownCtx)
	log.Info("[shutdown] bye")
}
