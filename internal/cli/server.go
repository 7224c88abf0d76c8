package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"room-event-service/internal/app"
	"room-event-service/internal/config"
	"room-event-service/internal/domain"
	"room-event-service/internal/eventlog"
	"room-event-service/internal/infra/memory"
	"room-event-service/internal/infra/postgres"
	infraredis "room-event-service/internal/infra/redis"
	"room-event-service/internal/logging"
	"room-event-service/internal/projection"
	transport "room-event-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the room event server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// roomStore is what both room repositories provide.
type roomStore interface {
	app.RoomQuestionRepository
	app.AnalyticsRepository
}

type eventSource interface {
	app.Dispatcher
	transport.EventStream
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var (
		store    app.EventStore
		rooms    roomStore
		loader   memory.QuestionLoader
		memRooms *memory.RoomRepository
	)
	if cfg.Postgres.URL != "" {
		db := openBun(cfg.Postgres.URL)
		defer db.Close()
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		store = postgres.NewEventStore(db)
		rooms = postgres.NewRoomRepository(db)
		loader = postgres.NewQuestionLoader(pool)
	} else {
		memRooms = memory.NewRoomRepository()
		memRooms.AddRoom(sampleRoom)
		store = memory.NewEventStore()
		rooms = memRooms
		loader = memory.NewStaticQuestionLoader(sampleQuestions()...)
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.QuestionCatalog
	if redisClient != nil {
		catalog = infraredis.NewQuestionCatalog(redisClient, loader, config.TTLDuration(cfg.Redis.TTL, catalogTTL))
	} else {
		catalog = memory.NewQuestionCatalog(loader, catalogTTL)
	}

	// Live delivery goes through Redis pub/sub when it is configured so every
	// instance sees every room's events.
	var live eventSource = app.NewBroadcaster()
	if redisClient != nil {
		live = infraredis.NewEventPublisher(redisClient, log)
	}

	registry := eventlog.NewRegistry()
	windows := projection.NewActiveQuestionProjector(store, registry, log)
	latest := projection.NewLatestValueProjector(store, registry, log)
	state := projection.NewRoomStateProjector(store, registry, log)

	emitter := app.NewEmitter(store, registry, app.Dispatchers{live})
	deriver := app.NewCodeEditorDeriver(catalog, windows, latest, emitter, log)
	questions := app.NewRoomQuestionService(rooms, emitter, deriver, log)
	editor := app.NewCodeEditorService(emitter)
	queries := app.NewRoomQueryService(state, windows)
	analytics := app.NewAnalyticsService(rooms)

	if memRooms != nil {
		if err := seedSampleRoom(ctx, questions, memRooms); err != nil {
			return err
		}
		log.Info().
			Str("roomId", sampleRoom.ID.String()).
			Msg("serving in-memory sample room")
	}

	wsHandler := transport.NewWSHandler(questions, editor, queries, live, log)
	roomsHandler := transport.NewRoomsHandler(analytics, queries, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	roomsHandler.Register(mux)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting room event service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

var (
	sampleRoom = domain.Room{
		ID:   uuid.MustParse("6f1d2c1e-0000-4000-8000-000000000001"),
		Name: "Sample interview",
		Type: domain.RoomTypeStandard,
	}
	sampleHost    = uuid.MustParse("6f1d2c1e-0000-4000-8000-0000000000aa")
	sampleSQL     = uuid.MustParse("6f1d2c1e-0000-4000-8000-000000000101")
	sampleReverse = uuid.MustParse("6f1d2c1e-0000-4000-8000-000000000102")
)

// sampleQuestions backs the in-memory mode; Postgres deployments load the catalog from the questions table.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: sampleSQL, Value: "Explain the difference between INNER and LEFT JOIN"},
		{
			ID:    sampleReverse,
			Value: "Reverse a singly linked list",
			CodeEditor: &domain.CodeEditor{
				Content: "func reverse(head *Node) *Node {\n}\n",
				Lang:    "go",
			},
		},
	}
}

func seedSampleRoom(ctx context.Context, questions *app.RoomQuestionService, rooms *memory.RoomRepository) error {
	for i, q := range sampleQuestions() {
		if _, _, err := questions.Attach(ctx, sampleRoom.ID, q.ID, sampleHost, i); err != nil {
			return err
		}
		if err := rooms.SetQuestionValue(sampleRoom.ID, q.ID, q.Value); err != nil {
			return err
		}
	}
	return rooms.AddParticipant(sampleRoom.ID, domain.Participant{
		UserID:   sampleHost,
		Nickname: "host",
		Type:     domain.ParticipantExpert,
	})
}
