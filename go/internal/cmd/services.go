package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/kenoboard/go/internal/game"
	"github.com/mcdev12/kenoboard/go/internal/game/display"
	"github.com/mcdev12/kenoboard/go/internal/game/mirror"
	"github.com/mcdev12/kenoboard/go/internal/game/stream"
)

type Services struct {
	Store   *game.Store
	Stream  *stream.Manager
	Display *display.Service // nil when disabled
	Mirror  *mirror.Mirror   // nil when disabled
}

func setupServices(config *Config) (*Services, error) {
	// Wire up the chain
	// Store → stream manager → display gateway / mirror
	clock := clockwork.NewRealClock()

	store, err := game.NewStore(config.HistorySize, clock)
	if err != nil {
		return nil, fmt.Errorf("create game store: %w", err)
	}

	manager := stream.NewManager(config.connectionConfig(), store, stream.WithClock(clock))

	services := &Services{
		Store:  store,
		Stream: manager,
	}

	if config.DisplayEnabled {
		services.Display = display.NewService(config.displayConfig(), store, manager, clock)
	}

	if mcfg := config.mirrorConfig(); mcfg.Enabled() {
		m, err := mirror.Connect(mcfg, store, manager)
		if err != nil {
			return nil, fmt.Errorf("setup NATS mirror: %w", err)
		}
		services.Mirror = m
	}

	return services, nil
}
