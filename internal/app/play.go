package app

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"valentine/internal/client"
	"valentine/internal/config"
	"valentine/internal/flow"
	"valentine/internal/identity"
	"valentine/internal/troll"
	"valentine/internal/ui"
)

type PlayOptions struct {
	In     io.Reader
	Out    io.Writer
	Theme  string
	Logger *log.Logger
	// Client overrides the API client built from the config.
	Client *client.Client
	// Timings override the production pacing; zero values keep defaults.
	FlowTimings  flow.Timings
	TrollTimings troll.Timings
}

// Play runs the visitor flow against the configured backend until the
// visitor reaches an outcome or ctx is cancelled.
func Play(ctx context.Context, cfg config.Config, opts PlayOptions) (flow.Outcome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	api := opts.Client
	if api == nil {
		api = client.New(cfg.Client.APIURL, nil)
	}
	term := ui.NewTerminal(opts.In, opts.Out, ui.ThemeFor(opts.Out, opts.Theme))

	tracker := flow.NewTracker(api, identity.NewStore(cfg.Client.StatePath))
	if err := initWithRetry(ctx, tracker, term, logger); err != nil {
		return "", err
	}

	controller := troll.New(troll.Options{
		Backend:        api,
		Watcher:        api,
		Display:        term,
		Prompt:         term,
		RepairCode:     cfg.Client.RepairCode,
		SupportContact: cfg.Client.SupportContact,
		Timings:        opts.TrollTimings,
		Logger:         logger,
	})
	router := flow.NewRouter(flow.RouterOptions{
		API:     api,
		Tracker: tracker,
		Display: term,
		Prompt:  term,
		Troll:   controller,
		Timings: opts.FlowTimings,
		Logger:  logger,
	})
	return router.Run(ctx)
}

func initWithRetry(ctx context.Context, tracker *flow.Tracker, term *ui.Terminal, logger *log.Logger) error {
	for {
		st, err := tracker.Init(ctx)
		if err == nil {
			logger.Debug("session ready", "session", st.SessionID, "stage", st.CurrentStage)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("could not start session", "err", err)
		term.Show(ui.Event{Kind: ui.EventNotice, Text: "Could not reach Saturn."})
		retry, perr := term.Confirm(ctx, "Try again?")
		if perr != nil {
			return perr
		}
		if !retry {
			return err
		}
	}
}
