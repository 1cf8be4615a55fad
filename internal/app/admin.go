package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"valentine/internal/client"
	"valentine/internal/config"
	"valentine/internal/monitor"
	"valentine/internal/ui"
	"valentine/internal/wire"
)

// Operator bundles a logged-in monitor with the output it renders to.
type Operator struct {
	Monitor *monitor.Monitor
	out     io.Writer
	theme   ui.Theme
	mu      sync.Mutex
}

// NewOperator logs in against the configured API.
func NewOperator(ctx context.Context, cfg config.Config, password string, out io.Writer, logger *log.Logger) (*Operator, error) {
	m := monitor.New(client.New(cfg.Client.APIURL, nil), monitor.WithLogger(logger))
	if err := m.Login(ctx, password); err != nil {
		return nil, fmt.Errorf("admin login: %w", err)
	}
	return &Operator{Monitor: m, out: out, theme: ui.ThemeFor(out, "")}, nil
}

func (o *Operator) print(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.out, s)
}

func (o *Operator) ListSessions(ctx context.Context) error {
	if err := o.Monitor.Refresh(ctx); err != nil {
		return err
	}
	o.print(ui.SessionTable(o.theme, o.Monitor.Sessions()))
	return nil
}

func (o *Operator) ShowSession(ctx context.Context, id string) error {
	d, err := o.Monitor.Detail(ctx, id)
	if err != nil {
		return err
	}
	o.print(ui.SessionDetail(o.theme, d))
	return nil
}

// Approve prints the refreshed detail on success. A rejected approval is
// reported but is not an error.
func (o *Operator) Approve(ctx context.Context, id string) {
	if !o.Monitor.Approve(ctx, id) {
		o.print(o.theme.Notice.Render("approval not applied for " + id))
		return
	}
	if d, ok := o.Monitor.CachedDetail(id); ok {
		o.print(ui.SessionDetail(o.theme, d))
		return
	}
	o.print(o.theme.Pass.Render("approved " + id))
}

// Watch re-renders the session list on every refresh until ctx is done.
// With autoApprove every pending challenge is approved as it appears.
func (o *Operator) Watch(ctx context.Context, autoApprove bool) error {
	updates := make(chan []wire.AdminSession, 1)
	o.Monitor.OnUpdate(func(list []wire.AdminSession) {
		select {
		case updates <- list:
		default:
		}
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case list := <-updates:
				o.print(ui.SessionTable(o.theme, list))
				if !autoApprove {
					continue
				}
				for _, s := range monitor.Pending(list) {
					if o.Monitor.Approve(ctx, s.SessionID) {
						o.print(o.theme.Pass.Render("approved " + s.SessionID))
					}
				}
			}
		}
	}()
	err := o.Monitor.Run(ctx)
	wg.Wait()
	return err
}
