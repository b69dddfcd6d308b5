package router

import (
	"context"
	"database/sql"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"medical-record-store/internal/adapters/analysis/gemini"
	mem "medical-record-store/internal/adapters/storage/memory"
	pg "medical-record-store/internal/adapters/storage/postgres"
	sq "medical-record-store/internal/adapters/storage/sqlite"
	"medical-record-store/internal/domain/access"
	"medical-record-store/internal/domain/changelog"
	"medical-record-store/internal/domain/records"
	"medical-record-store/internal/domain/replicas"
	"medical-record-store/internal/domain/sharing"
	syncer "medical-record-store/internal/domain/sync"
	"medical-record-store/internal/middleware"
	"medical-record-store/internal/platform/logger"
	"medical-record-store/internal/ports/analysis"
	"medical-record-store/internal/ports/auth"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, intenta por env:
	// DB_DSN => postgres, RECORD_DB_PATH => sqlite, sino in-memory.
	DB *sql.DB

	// Opcional: path de la base sqlite local (réplica). Pisa el env.
	SQLitePath string

	// Opcional: analizador de reportes. Si es nil intenta configurarlo
	// por env (GEMINI_API_KEY); sin key el endpoint devuelve 503.
	Analyzer analysis.Analyzer

	Logger logger.Logger
}

func NewRouter(opts Options) http.Handler {
	logr := opts.Logger
	if logr == nil {
		logr = logger.NewFromEnv()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.SessionContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var (
		logRepo      changelog.Repository
		sharingRepo  sharing.Repository
		replicasRepo replicas.Repository
	)

	db := opts.DB
	if db == nil {
		if dsn := os.Getenv("DB_DSN"); dsn != "" {
			opened, err := pg.Open(dsn)
			if err == nil {
				db = opened
			} else {
				logr.Error("postgres open failed, falling back", map[string]any{"err": err.Error()})
			}
		}
	}

	sqlitePath := opts.SQLitePath
	if sqlitePath == "" {
		sqlitePath = os.Getenv("RECORD_DB_PATH")
	}

	switch {
	case db != nil:
		logRepo = pg.NewChangeLogRepo(db)
		sharingRepo = pg.NewSharingRepo(db)
		replicasRepo = pg.NewReplicasRepo(db)
	case sqlitePath != "":
		store, err := sq.Open(sqlitePath)
		if err != nil {
			logr.Error("sqlite open failed, using in-memory", map[string]any{"err": err.Error()})
			logRepo = mem.NewChangeLogRepo()
			sharingRepo = mem.NewSharingRepo()
			replicasRepo = mem.NewReplicasRepo()
			break
		}
		logRepo = sq.NewChangeLogRepo(store)
		sharingRepo = sq.NewSharingRepo(store)
		replicasRepo = sq.NewReplicasRepo(store)
	default:
		logRepo = mem.NewChangeLogRepo()
		sharingRepo = mem.NewSharingRepo()
		replicasRepo = mem.NewReplicasRepo()
	}

	// Services por módulo
	replicasSvc := replicas.NewService(replicasRepo)
	logSvc := changelog.NewService(logRepo, replicasSvc)
	docStore := records.NewStore(replicasSvc, logSvc)
	sharingSvc := sharing.NewService(sharingRepo, docStore)
	resolver := access.NewResolver(sharingSvc, docStore)
	engine := syncer.NewEngine(logSvc, docStore, logr)

	// Rehidratar el estado materializado desde el log durable.
	if err := warmStore(logSvc, docStore); err != nil {
		logr.Error("warm store failed", map[string]any{"err": err.Error()})
	}

	analyzer := opts.Analyzer
	if analyzer == nil {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			client, err := gemini.NewClient(gemini.Config{
				APIKey:  key,
				BaseURL: os.Getenv("GEMINI_BASE_URL"),
				Model:   os.Getenv("GEMINI_MODEL"),
			})
			if err == nil {
				analyzer = gemini.NewAnalyzer(client)
			}
		}
	}

	// El adapter de gemini también atiende el chat; otros analyzers
	// pueden no hacerlo.
	chatter, _ := analyzer.(analysis.Chatter)

	// Rutas por módulo
	changelog.RegisterRoutes(r, logSvc, docStore, analyzer, chatter)
	sharing.RegisterRoutes(r, sharingSvc)
	access.RegisterRoutes(r, resolver)
	replicas.RegisterRoutes(r, replicasSvc)
	syncer.RegisterRoutes(r, logSvc, engine, docStore)

	return r
}

func warmStore(logSvc *changelog.Service, store *records.Store) error {
	ctx := context.Background()
	summary, err := logSvc.ClockSummary(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(summary))
	for id := range summary {
		ids = append(ids, id)
	}
	return store.Warm(ctx, ids)
}
