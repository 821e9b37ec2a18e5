package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dinh2350/lunar/internal/agent"
	"github.com/dinh2350/lunar/internal/channels"
	"github.com/dinh2350/lunar/internal/channels/telegram"
	"github.com/dinh2350/lunar/internal/gateway"
	"github.com/dinh2350/lunar/internal/sessions"
	"github.com/dinh2350/lunar/pkg/models"
	"github.com/spf13/cobra"
)

const shutdownGrace = 10 * time.Second

func buildServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP/WebSocket gateway and any enabled channel connectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*cfgPath)
		},
	}
}

func runServe(cfgPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	if n, err := rt.indexer.IndexAll(ctx); err != nil {
		rt.logger.Warn("initial index pass failed", "error", err)
	} else {
		rt.logger.Info("initial index pass complete", "chunks", n)
	}
	if err := rt.indexer.Watch(ctx, rt.logger); err != nil {
		rt.logger.Warn("starting memory index watcher failed, falling back to IndexAll-only", "error", err)
	}
	defer rt.indexer.Close()

	registry := channels.NewRegistry()
	if rt.cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(telegram.Config{
			Token:  rt.cfg.Channels.Telegram.Token,
			Logger: rt.logger,
		})
		if err != nil {
			return fmt.Errorf("telegram adapter: %w", err)
		}
		registry.Register(adapter)
	}
	if err := registry.StartAll(ctx); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}
	defer registry.StopAll(context.Background())

	go fanInboundToLoop(ctx, rt, registry)

	server := gateway.NewServer(rt.cfg.Server.AgentName, rt.loop.Model, rt.loop.System, rt.loop, rt.sessions, rt.metrics, rt.audit, rt.promMetrics, rt.logger)
	mux := http.NewServeMux()
	server.Mount(mux)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", rt.cfg.Gateway.Port),
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	rt.logger.Info("gateway listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// fanInboundToLoop drains every registered channel's merged inbound stream
// (§4.H's fan-in) and runs each envelope through the same §4.D -> §4.G ->
// §4.D safety pipeline HTTP and WebSocket use, replying on the envelope's
// own channel.
func fanInboundToLoop(ctx context.Context, rt *runtime, registry *channels.Registry) {
	for env := range registry.Fan(ctx) {
		reply := runChannelTurn(ctx, rt, env)

		out, ok := registry.Outbound(env.Provider)
		if !ok {
			continue
		}
		if err := out.Send(ctx, env, reply); err != nil {
			rt.logger.Error("send reply failed", "provider", env.Provider, "error", err)
		}
	}
}

func runChannelTurn(ctx context.Context, rt *runtime, env models.Envelope) string {
	sessionID := sessions.Resolve(env.Provider, env.PeerID, rt.cfg.Server.AgentName)

	in := gateway.InputPipeline().Run(env.Text)
	if in.Blocked {
		rt.logger.Warn("channel turn blocked", "provider", env.Provider, "reason", in.Reason)
		return gateway.FallbackReply
	}

	var events chan agent.StreamEvent
	reply, err := rt.loop.Run(ctx, sessionID, env.Text, rt.router.Definitions(), events)
	if err != nil {
		rt.logger.Error("agent loop failed", "provider", env.Provider, "error", err)
		return gateway.FallbackReply
	}

	out := gateway.OutputPipeline(rt.loop.System).Run(reply)
	if out.Blocked {
		rt.logger.Warn("channel turn output blocked", "provider", env.Provider, "reason", out.Reason)
		return gateway.FallbackReply
	}
	return reply
}
