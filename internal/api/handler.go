package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"modelhub/internal/aggregate"
	"modelhub/internal/logging"
	"modelhub/pkg/models"
)

type Handler struct {
	Agg             *aggregate.Aggregator
	DefaultPageSize int
	MaxPageSize     int
}

func NewHandler(agg *aggregate.Aggregator, defaultPageSize, maxPageSize int) *Handler {
	if maxPageSize <= 0 {
		maxPageSize = aggregate.MaxPageSize
	}
	if defaultPageSize <= 0 || defaultPageSize > maxPageSize {
		defaultPageSize = min(aggregate.DefaultPageSize, maxPageSize)
	}
	return &Handler{Agg: agg, DefaultPageSize: defaultPageSize, MaxPageSize: maxPageSize}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/search", h.search)                       // GET /search?q&page&pageSize&sortBy&sources&freeOnly&minPrice&maxPrice
	rg.GET("/trending", h.trending)                   // GET /trending?page&pageSize&sources
	rg.GET("/details/:source/:externalId", h.details) // GET /details/thingiverse/763622
	rg.GET("/sources", h.sources)
}

func (h *Handler) search(c *gin.Context) {
	req, err := h.parseRequest(c, true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.run(c, req)
}

func (h *Handler) trending(c *gin.Context) {
	req, err := h.parseRequest(c, false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Query = ""
	h.run(c, req)
}

func (h *Handler) run(c *gin.Context, req aggregate.Request) {
	resp, err := h.Agg.Run(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) details(c *gin.Context) {
	l, err := h.Agg.Details(c.Request.Context(), c.Param("source"), c.Param("externalId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

type breakerReporter interface {
	BreakerState() string
}

type sourceInfo struct {
	Name    string `json:"name"`
	Breaker string `json:"breaker,omitempty"`
}

func (h *Handler) sources(c *gin.Context) {
	srcs := h.Agg.Sources()
	out := make([]sourceInfo, 0, len(srcs))
	for _, s := range srcs {
		info := sourceInfo{Name: s.Name()}
		if br, ok := s.(breakerReporter); ok {
			info.Breaker = br.BreakerState()
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"sources": out})
}

// writeError maps core errors onto status codes. Aggregation failures of
// individual sources never get here.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, aggregate.ErrUnknownSource):
		body := gin.H{"error": "unknown source"}
		var ue *aggregate.UnknownSourceError
		if errors.As(err, &ue) {
			body["sources"] = ue.Names
		}
		c.JSON(http.StatusNotFound, body)
	case errors.Is(err, aggregate.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		logging.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

type paramError struct {
	name string
}

func (e *paramError) Error() string { return "invalid " + e.name }

func (h *Handler) parseRequest(c *gin.Context, withFilters bool) (aggregate.Request, error) {
	req := aggregate.Request{
		Query:   c.Query("q"),
		Sources: sourcesParam(c),
	}

	page, err := parseInt(c.Query("page"), 1)
	if err != nil {
		return req, &paramError{"page"}
	}
	req.Page = max(page, 1)

	pageSize, err := parseInt(c.Query("pageSize"), h.DefaultPageSize)
	if err != nil {
		return req, &paramError{"pageSize"}
	}
	req.PageSize = min(max(pageSize, 1), h.MaxPageSize)

	if !withFilters {
		return req, nil
	}

	req.Sort = models.ParseSortKey(c.Query("sortBy"))

	if raw := strings.TrimSpace(c.Query("freeOnly")); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return req, &paramError{"freeOnly"}
		}
		req.FreeOnly = b
	}
	if req.MinPrice, err = parsePrice(c.Query("minPrice")); err != nil {
		return req, &paramError{"minPrice"}
	}
	if req.MaxPrice, err = parsePrice(c.Query("maxPrice")); err != nil {
		return req, &paramError{"maxPrice"}
	}
	return req, nil
}

// sourcesParam accepts sources=a,b as well as sources=a&sources=b.
func sourcesParam(c *gin.Context) []string {
	var out []string
	for _, v := range c.QueryArray("sources") {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseInt(s string, def int) (int, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

func parsePrice(s string) (*float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return nil, errors.New("bad price")
	}
	return &f, nil
}
