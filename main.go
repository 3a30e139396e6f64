package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kinship/cycle-api/api"
	"github.com/kinship/cycle-api/cycle"
	"github.com/kinship/cycle-api/datastore"
	"github.com/kinship/cycle-api/logger"
	"github.com/kinship/cycle-api/matching"
	"github.com/kinship/cycle-api/migrations"
	"github.com/kinship/cycle-api/scheduler"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	log, err := logger.New(getEnv("LOG_MODE", "development"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	config := api.Config{
		HTTPPort:             getEnv("HTTP_PORT", ":8080"),
		DatabaseType:         getEnv("DB_TYPE", "postgres"),
		DatabaseHost:         getEnv("DB_HOST", "localhost"),
		DatabaseUser:         getEnv("DB_USER", "postgres"),
		DatabasePassword:     getEnv("DB_PASSWORD", ""),
		DatabaseName:         getEnv("DB_NAME", "kinship"),
		SSLMode:              getEnv("SSL_MODE", "disable"),
		JwtSecret:            getEnv("JWT_SECRET", "your-secret-key-change-this"),
		JwtAccessDuration:    getEnvInt("JWT_ACCESS_DURATION", 86400), // 1 day
		JwtDomain:            getEnv("JWT_DOMAIN", ""),
		AllowedOrigins:       getEnvSlice("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		DevMode:              getEnvBool("DEV_MODE", true),
		CohortSwitchCooldown: time.Duration(getEnvInt("COHORT_SWITCH_COOLDOWN_DAYS", 30)) * cycle.Day,
	}
	policy := matching.Policy{
		SelectionCap:   getEnvInt("SELECTION_CAP", matching.DefaultPolicy().SelectionCap),
		PoolSize:       getEnvInt("POOL_SIZE", matching.DefaultPolicy().PoolSize),
		MatchThreshold: getEnvInt("MATCH_THRESHOLD", matching.DefaultPolicy().MatchThreshold),
	}
	cycleLength := getEnvInt("CYCLE_LENGTH_DAYS", cycle.DefaultLength)

	connStr := datastore.BuildDBConnStr(
		config.DatabaseHost,
		config.DatabasePassword,
		config.DatabaseUser,
		config.DatabaseName,
		config.SSLMode,
	)

	dbConn, err := datastore.NewDB(config.DatabaseType, connStr)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer dbConn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrations.RunMigrations(ctx, dbConn, log); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	userRepo, err := datastore.NewUserDatabase(dbConn)
	if err != nil {
		log.Fatal("failed to create user repository", "error", err)
	}
	connectionRepo, err := datastore.NewConnectionDatabase(dbConn)
	if err != nil {
		log.Fatal("failed to create connection repository", "error", err)
	}
	cycleRepo, err := datastore.NewCycleDatabase(dbConn)
	if err != nil {
		log.Fatal("failed to create cycle repository", "error", err)
	}
	kinshipRepo, err := datastore.NewKinshipDatabase(dbConn)
	if err != nil {
		log.Fatal("failed to create kinship repository", "error", err)
	}
	answerRepo, err := datastore.NewAnswerDatabase(dbConn)
	if err != nil {
		log.Fatal("failed to create answer repository", "error", err)
	}
	resolutionRepo, err := datastore.NewResolutionDatabase(dbConn)
	if err != nil {
		log.Fatal("failed to create resolution repository", "error", err)
	}

	var snapshots matching.SnapshotStore
	if addr := getEnv("REDIS_ADDR", ""); addr != "" {
		cache, err := datastore.NewRankingCache(addr, log)
		if err != nil {
			log.Fatal("failed to connect to redis", "error", err)
		}
		defer cache.Close()
		snapshots = cache
	} else {
		log.Warn("REDIS_ADDR not set, ranking snapshots are kept in memory")
		snapshots = matching.NewMemorySnapshots()
	}

	prompts, err := matching.LoadPromptSets(getEnv("PROMPTS_FILE", ""))
	if err != nil {
		log.Fatal("failed to load prompt sets", "error", err)
	}

	now := func() time.Time { return time.Now().UTC() }
	clock := cycle.NewClock(cycleRepo, now, cycleLength, log)
	pool := matching.NewPool(kinshipRepo, connectionRepo, snapshots, matching.DefaultScore, policy.PoolSize, now, log)
	exchange := matching.NewExchange(userRepo, connectionRepo, answerRepo, prompts, matching.TokenOverlapRule{Threshold: policy.MatchThreshold}, now, log)
	resolver := matching.NewResolver(clock, connectionRepo, resolutionRepo, snapshots, userRepo, policy.SelectionCap, log)

	app := &api.Application{
		Config:      config,
		Log:         log,
		Auth:        api.JWTAuth{Secret: config.JwtSecret},
		UserRepo:    userRepo,
		Connections: connectionRepo,
		Activity:    kinshipRepo,
		Clock:       clock,
		Pool:        pool,
		Exchange:    exchange,
		Resolver:    resolver,
		Prompts:     prompts,
	}

	cycleScheduler := scheduler.NewScheduler(cycleRepo, clock, pool, snapshots, resolver, scheduler.Config{
		Interval:    getEnvDuration("CYCLE_POLL_INTERVAL", time.Hour),
		Grace:       getEnvDuration("AUTO_CLOSE_GRACE", 48*time.Hour),
		Concurrency: getEnvInt("SCHEDULER_CONCURRENCY", 4),
	}, log)
	cycleScheduler.Start(ctx)
	defer cycleScheduler.Stop()

	log.Info("kinship cycle api starting", "cycle_length_days", cycleLength, "selection_cap", policy.SelectionCap)
	if err := app.Serve(ctx, http.NewServeMux()); err != nil {
		log.Error("server error", "error", err)
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

func getEnvSlice(key, defaultValue string) []string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
