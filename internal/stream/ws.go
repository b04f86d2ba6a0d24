// Package stream serves aggregation requests over a websocket. Each text
// frame is one request; answers come back on the same socket in request
// order.
package stream

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"modelhub/internal/aggregate"
	"modelhub/internal/logging"
	"modelhub/pkg/models"
)

const (
	maxMessageSize = 64 << 10
	writeWait      = 10 * time.Second
)

type Message struct {
	Type       string   `json:"type"` // search, trending, details
	ID         string   `json:"id,omitempty"`
	Query      string   `json:"q,omitempty"`
	Page       int      `json:"page,omitempty"`
	PageSize   int      `json:"pageSize,omitempty"`
	SortBy     string   `json:"sortBy,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	FreeOnly   bool     `json:"freeOnly,omitempty"`
	MinPrice   *float64 `json:"minPrice,omitempty"`
	MaxPrice   *float64 `json:"maxPrice,omitempty"`
	Source     string   `json:"source,omitempty"`
	ExternalID string   `json:"externalId,omitempty"`
}

type Reply struct {
	Type    string `json:"type"` // welcome, result, error
	ID      string `json:"id,omitempty"`
	Request string `json:"request,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newUpgrader(checkOrigin bool) websocket.Upgrader {
	u := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	if !checkOrigin {
		u.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return u
}

// WSHandler upgrades the request and answers messages until the client
// goes away. With checkOrigin set, cross-origin upgrades are refused.
func WSHandler(agg *aggregate.Aggregator, hub *Hub, checkOrigin bool) gin.HandlerFunc {
	upgrader := newUpgrader(checkOrigin)

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logging.Ctx(c.Request.Context()).Debug().Err(err).Msg("ws upgrade failed")
			return
		}
		ws.SetReadLimit(maxMessageSize)

		hub.Add(ws)
		log := logging.Ctx(c.Request.Context())
		log.Info().Int("clients", hub.Count()).Msg("ws client connected")

		// Hijacked sockets never cancel the request context; readLoop does.
		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()
		payloads := readLoop(ctx, cancel, ws)

		_ = writeReply(ws, Reply{Type: "welcome", Data: gin.H{"sources": agg.SourceNames()}})

		for payload := range payloads {
			var msg Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				if writeReply(ws, Reply{Type: "error", Error: "malformed message"}) != nil {
					break
				}
				continue
			}

			reply := handle(ctx, agg, msg)
			if ctx.Err() != nil {
				break
			}
			if err := writeReply(ws, reply); err != nil {
				break
			}
		}

		hub.Remove(ws)
		log.Info().Msg("ws client disconnected")
	}
}

// readLoop feeds incoming frames to the handler and cancels ctx when the
// socket fails or closes.
func readLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		defer cancel()
		for {
			_, payload, err := ws.ReadMessage()
			if err != nil {
				return
			}
			select {
			case out <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func handle(ctx context.Context, agg *aggregate.Aggregator, msg Message) Reply {
	ctx = logging.ContextWithRequestID(ctx, logging.NewRequestID())
	reply := Reply{Type: "result", ID: msg.ID, Request: msg.Type}

	var (
		data any
		err  error
	)
	switch strings.ToLower(msg.Type) {
	case "search":
		data, err = agg.Run(ctx, msg.request())
	case "trending":
		req := msg.request()
		req.Query = ""
		data, err = agg.Trending(ctx, req)
	case "details":
		if msg.Source == "" || msg.ExternalID == "" {
			err = errors.New("source and externalId are required")
			break
		}
		data, err = agg.Details(ctx, msg.Source, msg.ExternalID)
	default:
		err = errors.New("unknown message type")
	}

	if err != nil {
		reply.Type = "error"
		reply.Error = errorText(err)
		return reply
	}
	reply.Data = data
	return reply
}

func (m Message) request() aggregate.Request {
	return aggregate.Request{
		Query:    m.Query,
		Page:     m.Page,
		PageSize: m.PageSize,
		Sort:     models.ParseSortKey(m.SortBy),
		Sources:  m.Sources,
		FreeOnly: m.FreeOnly,
		MinPrice: m.MinPrice,
		MaxPrice: m.MaxPrice,
	}
}

func errorText(err error) string {
	if errors.Is(err, aggregate.ErrNotFound) {
		return "not found"
	}
	return err.Error()
}

func writeReply(ws *websocket.Conn, r Reply) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, b)
}
