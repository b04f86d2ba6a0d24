package grpcserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"modelhub/internal/aggregate"
	"modelhub/internal/logging"
	"modelhub/pkg/models"
)

type Server struct {
	Agg             *aggregate.Aggregator
	DefaultPageSize int
}

func NewServer(agg *aggregate.Aggregator, defaultPageSize int) *Server {
	if defaultPageSize <= 0 {
		defaultPageSize = aggregate.DefaultPageSize
	}
	return &Server{Agg: agg, DefaultPageSize: defaultPageSize}
}

func (s *Server) pageSize(n int32) int {
	if n <= 0 {
		return s.DefaultPageSize
	}
	return int(n)
}

func (s *Server) Search(ctx context.Context, req *SearchRequest) (*aggregate.Response, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request required")
	}
	if (req.MinPrice != nil && *req.MinPrice < 0) || (req.MaxPrice != nil && *req.MaxPrice < 0) {
		return nil, status.Error(codes.InvalidArgument, "price bounds must be >= 0")
	}

	resp, err := s.Agg.Run(ctx, aggregate.Request{
		Query:    strings.TrimSpace(req.Query),
		Page:     int(req.Page),
		PageSize: s.pageSize(req.PageSize),
		Sort:     models.ParseSortKey(req.SortBy),
		Sources:  req.Sources,
		FreeOnly: req.FreeOnly,
		MinPrice: req.MinPrice,
		MaxPrice: req.MaxPrice,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

func (s *Server) Trending(ctx context.Context, req *TrendingRequest) (*aggregate.Response, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request required")
	}
	resp, err := s.Agg.Trending(ctx, aggregate.Request{
		Page:     int(req.Page),
		PageSize: s.pageSize(req.PageSize),
		Sources:  req.Sources,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

func (s *Server) GetDetails(ctx context.Context, req *DetailsRequest) (*models.Listing, error) {
	if req == nil || strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.ExternalID) == "" {
		return nil, status.Error(codes.InvalidArgument, "source and external_id required")
	}
	l, err := s.Agg.Details(ctx, req.Source, strings.TrimSpace(req.ExternalID))
	if err != nil {
		return nil, toStatus(err)
	}
	return l, nil
}

type breakerReporter interface {
	BreakerState() string
}

func (s *Server) ListSources(ctx context.Context, _ *ListSourcesRequest) (*ListSourcesResponse, error) {
	srcs := s.Agg.Sources()
	resp := &ListSourcesResponse{Sources: make([]SourceInfo, 0, len(srcs))}
	for _, src := range srcs {
		info := SourceInfo{Name: src.Name()}
		if br, ok := src.(breakerReporter); ok {
			info.Breaker = br.BreakerState()
		}
		resp.Sources = append(resp.Sources, info)
	}
	return resp, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, aggregate.ErrUnknownSource):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, aggregate.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// UnaryLogger tags each call with a request id (from x-request-id
// metadata when present) and logs its outcome.
func UnaryLogger() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-request-id"); len(v) > 0 {
				id = v[0]
			}
		}
		if id == "" {
			id = logging.NewRequestID()
		}
		ctx = logging.ContextWithRequestID(ctx, id)

		start := time.Now()
		resp, err := handler(ctx, req)

		ev := logging.Ctx(ctx).Info()
		if err != nil {
			ev = logging.Ctx(ctx).Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("latency", time.Since(start)).
			Msg("grpc call")
		return resp, err
	}
}
