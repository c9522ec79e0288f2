package main

import (
	"strings"
	"sync"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/config"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/control"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/dlq"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/fingerprint"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services/entitlements"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/worker"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// appServices bundles the service graph CLI commands operate on. The CLI
// talks to the shared SQLite database directly; a concurrently running
// daemon is safe because every store mutation is a conditional single-row
// update.
type appServices struct {
	cfg          *config.Config
	store        *queue.Store
	deadLetters  *dlq.Service
	control      *control.Service
	fingerprints *fingerprint.Service
	trigger      *worker.Trigger
}

// withServices opens the store, builds the service graph, runs fn, and
// closes everything down.
func (c *commandContext) withServices(fn func(*appServices) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	logger := logging.NewNop()
	dlqStore, err := dlq.NewStore(store.DB(), cfg)
	if err != nil {
		return err
	}
	trigger := worker.NewTrigger()
	processor := worker.NewProcessor(cfg, store, dlqStore,
		worker.UnconfiguredAnalyzer{}, nil, entitlements.NewConfigResolver(cfg), logger)

	return fn(&appServices{
		cfg:          cfg,
		store:        store,
		deadLetters:  dlq.NewService(dlqStore, store, logger),
		control:      control.NewService(store, processor, trigger, logger),
		fingerprints: fingerprint.NewService(store, logger),
		trigger:      trigger,
	})
}
