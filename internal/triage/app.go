package triage

import (
	"github.com/colonyops/triage/internal/client"
	"github.com/colonyops/triage/internal/core/config"
	"github.com/colonyops/triage/internal/core/eventbus"
	"github.com/colonyops/triage/internal/core/kv"
	"github.com/colonyops/triage/internal/core/messaging"
	"github.com/colonyops/triage/internal/core/notify"
	"github.com/colonyops/triage/internal/data/db"
)

// App bundles the assembled application for the command layer. It is
// populated once in main's Before hook; commands hold a pointer to it.
type App struct {
	Config  *config.Config
	Engine  *Engine
	Bus     *eventbus.EventBus
	Source  client.DocumentSource
	Actions client.ActionService
	Channel messaging.Channel
	History notify.Store
	KV      kv.KV
	DB      *db.DB
	Version string
}

// NewApp constructs the app aggregate.
func NewApp(cfg *config.Config, engine *Engine, bus *eventbus.EventBus, source client.DocumentSource, actions client.ActionService, channel messaging.Channel, history notify.Store, kvStore kv.KV, database *db.DB, version string) *App {
	return &App{
		Config:  cfg,
		Engine:  engine,
		Bus:     bus,
		Source:  source,
		Actions: actions,
		Channel: channel,
		History: history,
		KV:      kvStore,
		DB:      database,
		Version: version,
	}
}
