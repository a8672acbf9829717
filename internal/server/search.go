package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/citesearch/internal/pipeline"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type searchRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

type searchResponse struct {
	Status string          `json:"status"`
	Query  string          `json:"query"`
	Result pipeline.Answer `json:"result"`
}

// SearchHandler runs the pipeline for POST /search.
type SearchHandler struct {
	runner  Runner
	timeout time.Duration
	logger  *zap.Logger
}

func (h *SearchHandler) Register(e *echo.Echo) {
	e.POST("/search", h.search)
}

func (h *SearchHandler) search(c echo.Context) error {
	ctx, span := serverTracer.Start(c.Request().Context(), "SearchHandler.search")
	defer span.End()

	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Query parameter is required")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Session ID is required")
	}
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	// a client disconnect must not cancel the run
	runCtx := context.WithoutCancel(ctx)
	if h.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, h.timeout)
		defer cancel()
	}
	answer, err := h.runner.Run(runCtx, req.Query, req.SessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch {
		case errors.Is(err, pipeline.ErrEmptyQuery):
			return echo.NewHTTPError(http.StatusBadRequest, "Query parameter is required")
		case errors.Is(err, pipeline.ErrMissingSession):
			return echo.NewHTTPError(http.StatusBadRequest, "Session ID is required")
		}
		return err
	}
	return c.JSON(http.StatusOK, searchResponse{Status: "success", Query: req.Query, Result: answer})
}
