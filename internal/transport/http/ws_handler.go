package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/Ladkan/MeChat/internal/auth"
	"github.com/Ladkan/MeChat/internal/config"
	"github.com/Ladkan/MeChat/internal/core"
	"github.com/Ladkan/MeChat/internal/proto"
	"github.com/Ladkan/MeChat/internal/utils"
)

// maxDecodeErrors is how many consecutive malformed frames a connection may send
// before it is closed.
const maxDecodeErrors = 3

var errTooManyDecodeErrors = errors.New("too many malformed frames")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub             *core.Hub
	gate            *auth.Gate
	origins         []string
	readLimit       int64
	clientBuffer    int
	framesPerMinute int
	log             *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, gate *auth.Gate, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:             hub,
		gate:            gate,
		origins:         cfg.AllowedOrigins,
		readLimit:       cfg.MaxMessageBytes,
		clientBuffer:    cfg.ClientBuffer,
		framesPerMinute: cfg.FramesPerMinute,
		log:             logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	// Credentials are resolved once, from the upgrade request.
	identity, authErr := h.gate.Authenticate(ctx, r)

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	if authErr != nil {
		h.log.Info().Err(authErr).Str("remote", r.RemoteAddr).Msg("ws connection rejected")
		_ = conn.Close(websocket.StatusPolicyViolation, "Unauthorized")
		return
	}
	defer conn.CloseNow()
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	client := core.NewClient(utils.NewID(), identity, h.clientBuffer)
	if err := h.hub.RegisterClient(client); err != nil {
		h.log.Warn().Err(err).Str("user_id", identity.ID).Msg("hub refused client")
		_ = conn.Close(websocket.StatusTryAgainLater, "server shutting down")
		return
	}
	defer h.hub.UnregisterClient(client)

	h.log.Info().Str("client_id", client.ID).Str("user_id", identity.ID).Msg("ws client connected")

	limiter := newFrameLimiter(h.framesPerMinute)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			// Close reasons are capped at 123 bytes, so err itself is only logged.
			switch {
			case errors.Is(err, errTooManyDecodeErrors):
				status = websocket.StatusUnsupportedData
				reason = "malformed frames"
			case status == websocket.StatusNormalClosure:
				status = websocket.StatusInternalError
				reason = "internal error"
			}
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	h.log.Info().Str("client_id", client.ID).Str("user_id", identity.ID).Msg("ws client disconnected")
	_ = conn.Close(status, reason)
}

func (h *WSHandler) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, o := range h.origins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
	}
	opts.OriginPatterns = h.origins
	return opts
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *frameLimiter) error {
	decodeErrors := 0
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			if err := h.writeError(ctx, conn, proto.Error{
				Code:    core.ErrCodeRateLimited,
				Message: "too many messages",
			}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr, err := decodeFrame(data)
		if err != nil {
			decodeErrors++
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("malformed ws frame")
			if decodeErrors >= maxDecodeErrors {
				return fmt.Errorf("%w: %w", errTooManyDecodeErrors, err)
			}
			if err := h.writeError(ctx, conn, proto.Error{
				Code:    core.ErrCodeBadRequest,
				Message: "malformed payload",
			}); err != nil {
				return err
			}
			continue
		}
		decodeErrors = 0

		if protoErr != nil {
			if err := h.writeError(ctx, conn, *protoErr); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			env, err := outboundFromEvent(event)
			if err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("map ws event")
				continue
			}
			if err := wsjson.Write(ctx, conn, env); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, e proto.Error) error {
	env, err := proto.NewEnvelope(proto.EventError, e)
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, conn, env)
}
