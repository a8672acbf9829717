package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StreamHandler serves a session's progress events as server-sent events.
type StreamHandler struct {
	streams Subscriber
	logger  *zap.Logger
}

func (h *StreamHandler) Register(e *echo.Echo) {
	e.GET("/stream", h.stream)
}

// stream attaches to the session (creating it on first touch) and writes one
// data frame per event until the client goes away, which destroys the session.
func (h *StreamHandler) stream(c echo.Context) error {
	req := c.Request()
	ctx, span := serverTracer.Start(req.Context(), "StreamHandler.stream")
	defer span.End()

	sessionID := strings.TrimSpace(c.QueryParam("id"))
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Queue ID required")
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.streams.Subscribe(sessionID)
	defer sub.Close()
	logger := h.logger.With(zap.String("session_id", sessionID))
	logger.Debug("stream attached")

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			logger.Debug("stream ended", zap.Error(err))
			return nil
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return nil
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return nil
		}
		flusher.Flush()
	}
}
