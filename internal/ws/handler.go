package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/card-duel-backend/internal/hub"
	"github.com/DoyleJ11/card-duel-backend/pkg/types"
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
	maxFrame     = 4 << 10
)

type Options struct {
	// OriginPatterns loosens the same-origin check, e.g. for a dev client.
	OriginPatterns []string
}

func Handler(h *hub.Hub, log *zap.Logger, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(maxFrame)

		transportID := uuid.NewString()
		out := make(chan types.ServerEvent, outboxSize)
		log := log.With(zap.String("transport_id", transportID))

		if !h.Post(hub.Connect{TransportID: transportID, Outbox: out}) {
			conn.Close(websocket.StatusTryAgainLater, "shutting down")
			return
		}
		defer h.Post(hub.Disconnect{TransportID: transportID})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine: the hub closes out when it drops this transport.
		go func() {
			defer cancel()
			for ev := range out {
				payload, err := types.EncodeServer(ev)
				if err != nil {
					log.Error("encode event", zap.String("type", ev.EventType()), zap.Error(err))
					continue
				}
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err = conn.Write(wctx, websocket.MessageText, payload)
				wcancel()
				if err != nil {
					return
				}
			}
			conn.Close(websocket.StatusPolicyViolation, "dropped")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("read", zap.Error(err))
					}
				}
				return
			}

			msg, err := types.DecodeClient(data)
			if err != nil {
				writeError(ctx, conn, types.ErrCodeBadRequest, err.Error())
				continue
			}
			if !h.Post(hub.FromClient{TransportID: transportID, Msg: msg}) {
				return
			}
		}
	}
}

// writeError answers a frame the hub never saw. conn.Write is safe to call
// alongside the writer goroutine.
func writeError(ctx context.Context, conn *websocket.Conn, code, message string) {
	payload, err := types.EncodeServer(types.ErrorMsg{Code: code, Message: message})
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
