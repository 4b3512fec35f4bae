package xmpp

import (
	"context"
	"log/slog"

	"gosrc.io/xmpp"

	"github.com/rejoinhq/rejoin/internal/config"
)

// Component is the XEP-0114 external component that carries member
// chat traffic in and out of the platform. The chat server treats it
// as a gateway subdomain, one JID per gym account.
type Component struct {
	sm     *xmpp.StreamManager
	comp   *xmpp.Component
	cancel context.CancelFunc
}

func stanzaRouter(handler *Handler) *xmpp.Router {
	router := xmpp.NewRouter()
	router.HandleFunc("message", handler.HandleMessage)
	router.HandleFunc("presence", handler.HandlePresence)
	router.HandleFunc("iq", handler.HandleIQ)
	return router
}

func NewComponent(cfg config.XMPPConfig, handler *Handler) (*Component, error) {
	opts := xmpp.ComponentOptions{
		TransportConfiguration: xmpp.TransportConfiguration{
			Address: cfg.ComponentAddr(),
			Domain:  cfg.ComponentName,
		},
		Domain:   cfg.ComponentName,
		Secret:   cfg.ComponentSecret,
		Name:     "Rejoin Member Gateway",
		Category: "gateway",
		Type:     "service",
	}

	comp, err := xmpp.NewComponent(opts, stanzaRouter(handler), func(err error) {
		slog.Error("XMPP component error", "error", err)
	})
	if err != nil {
		return nil, err
	}

	// StreamManager reconnects on stream drops so a chat server
	// restart does not take the gateway down with it.
	sm := xmpp.NewStreamManager(comp, func(s xmpp.Sender) {
		slog.Info("XMPP component connected", "domain", cfg.ComponentName)
	})

	return &Component{sm: sm, comp: comp}, nil
}

// Start runs the component until ctx is cancelled or the stream fails
// beyond recovery.
func (c *Component) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.sm.Run()
	}()

	select {
	case <-ctx.Done():
		c.sm.Stop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Sender exposes the raw component for outbound stanzas.
func (c *Component) Sender() xmpp.Sender {
	return c.comp
}

func (c *Component) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.sm.Stop()
}
