// Package app assembles the storefront bot: configuration, session store,
// commerce client, conversation machine and the Telegram routes binding them
// together.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/bootstrap"
	corecmd "github.com/m3rciful/shopbot/core/cmd"
	"github.com/m3rciful/shopbot/core/logger"
	coretelegram "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/router"
	"github.com/m3rciful/shopbot/shop/commerce"
	"github.com/m3rciful/shopbot/shop/dialog"
	"github.com/m3rciful/shopbot/shop/session"
	"github.com/m3rciful/shopbot/shop/view"

	"log/slog"
)

// App holds the assembled storefront.
type App struct {
	cfg        *Config
	db         *sqlx.DB
	store      session.Store
	dispatcher *Dispatcher
}

var _ corecmd.TelegramApp = (*App)(nil)

// Bootstrap initializes logging and the selected session store, then wires
// the commerce client and conversation machine.
func Bootstrap(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config provided")
	}

	var (
		db    *sqlx.DB
		store session.Store
	)
	switch cfg.Sessions.Backend {
	case SessionsMemory:
		if err := logger.InitLogger(&cfg.Config); err != nil {
			return nil, fmt.Errorf("app: logger init failed: %w", err)
		}
		store = session.NewMemoryStore()
		logger.DB.Info("session store",
			slog.String("event", "backend"),
			slog.String("backend", SessionsMemory),
		)
	default:
		res, err := bootstrap.Run(bootstrap.Options{
			Config:   &cfg.Config,
			Database: cfg.Database,
		})
		if err != nil {
			return nil, err
		}
		db = res.DB
		store = session.NewPostgresStore(db)
	}

	api := commerce.NewClient(cfg.Commerce, store)
	machine := dialog.NewMachine(api, store)
	dispatcher := newDispatcher(machine, store, newDeliverer(api))

	return &App{
		cfg:        cfg,
		db:         db,
		store:      store,
		dispatcher: dispatcher,
	}, nil
}

// TelegramRunOptions builds the bot runtime: command and callback registry,
// routes and middleware.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.dispatcher.HandleStart,
		Description: "Restart and show the product menu",
	})

	actionKeys := []string{
		view.ActionProduct,
		view.ActionCart,
		view.ActionMenu,
		view.ActionQty,
		view.ActionRemove,
		view.ActionCheckout,
		view.ActionEmailOK,
		view.ActionEmailBad,
	}
	for _, key := range actionKeys {
		if err := reg.RegisterCallback(key, a.dispatcher.HandleCallback); err != nil {
			return coretelegram.RunOptions{}, err
		}
	}
	// Stale buttons from older screens flow through the machine as
	// fall-through input instead of dead-ending.
	reg.SetCallbackNotFound(a.dispatcher.HandleCallback)

	routes := router.CommandRoutes(reg)
	routes = append(routes,
		router.TextRoute(reg, router.TextOptions{Dialog: a.dispatcher.HandleText}),
		router.CallbackRoute(reg, router.CallbackOptions{}),
	)

	onLimited := func(c tele.Context) error {
		return tghelpers.SendText(c, "Too many taps, give it a second")
	}

	opts := coretelegram.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Config, onLimited),
		Routes:      routes,
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			return a.Close()
		},
	}
	return opts, nil
}

// Close releases the database handle when one was opened.
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
