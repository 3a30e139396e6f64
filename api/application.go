package api

import (
	"context"
	"time"

	"github.com/kinship/cycle-api/cycle"
	"github.com/kinship/cycle-api/datastore"
	"github.com/kinship/cycle-api/logger"
	"github.com/kinship/cycle-api/matching"
)

type Config struct {
	HTTPPort             string
	DatabaseType         string
	DatabaseHost         string
	DatabaseUser         string
	DatabasePassword     string
	DatabaseName         string
	SSLMode              string
	JwtSecret            string
	JwtAccessDuration    int // seconds
	JwtDomain            string
	AllowedOrigins       []string
	DevMode              bool
	CohortSwitchCooldown time.Duration
}

// ActivityStore records the reactions, replies and posts the kinship corpus reads.
type ActivityStore interface {
	RecordInteraction(ctx context.Context, actorID, targetID, kind string) error
	CreatePost(ctx context.Context, authorID, cohortID, body string) error
}

type Application struct {
	Config      Config
	Log         *logger.Logger
	Auth        AuthProvider
	UserRepo    datastore.UserRepository
	Connections matching.ConnectionStore
	Activity    ActivityStore
	Clock       *cycle.Clock
	Pool        *matching.Pool
	Exchange    *matching.Exchange
	Resolver    *matching.Resolver
	Prompts     *matching.PromptSets
}

func (app *Application) now() time.Time {
	if app.Clock != nil {
		return app.Clock.Now()
	}
	return time.Now().UTC()
}

func (app *Application) logger() *logger.Logger {
	if app.Log == nil {
		return logger.Nop()
	}
	return app.Log
}
