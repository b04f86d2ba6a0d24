package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"modelhub/internal/aggregate"
	"modelhub/pkg/models"
)

const serviceName = "modelhub.v1.AggregatorService"

type SearchRequest struct {
	Query    string   `json:"q"`
	Page     int32    `json:"page"`
	PageSize int32    `json:"page_size"`
	SortBy   string   `json:"sort_by,omitempty"`
	Sources  []string `json:"sources,omitempty"`
	FreeOnly bool     `json:"free_only,omitempty"`
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
}

type TrendingRequest struct {
	Page     int32    `json:"page"`
	PageSize int32    `json:"page_size"`
	Sources  []string `json:"sources,omitempty"`
}

type DetailsRequest struct {
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`
}

type ListSourcesRequest struct{}

type SourceInfo struct {
	Name    string `json:"name"`
	Breaker string `json:"breaker,omitempty"`
}

type ListSourcesResponse struct {
	Sources []SourceInfo `json:"sources"`
}

// AggregatorServiceServer is the server API for AggregatorService.
type AggregatorServiceServer interface {
	Search(context.Context, *SearchRequest) (*aggregate.Response, error)
	Trending(context.Context, *TrendingRequest) (*aggregate.Response, error)
	GetDetails(context.Context, *DetailsRequest) (*models.Listing, error)
	ListSources(context.Context, *ListSourcesRequest) (*ListSourcesResponse, error)
}

func RegisterAggregatorServiceServer(s grpc.ServiceRegistrar, srv AggregatorServiceServer) {
	s.RegisterService(&AggregatorServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(AggregatorServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AggregatorServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AggregatorServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var AggregatorServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AggregatorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Search", AggregatorServiceServer.Search),
		unaryHandler("Trending", AggregatorServiceServer.Trending),
		unaryHandler("GetDetails", AggregatorServiceServer.GetDetails),
		unaryHandler("ListSources", AggregatorServiceServer.ListSources),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "modelhub/v1/aggregator",
}

// AggregatorClient calls AggregatorService with the JSON codec.
type AggregatorClient struct {
	cc grpc.ClientConnInterface
}

func NewAggregatorClient(cc grpc.ClientConnInterface) *AggregatorClient {
	return &AggregatorClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AggregatorClient) Search(ctx context.Context, in *SearchRequest, opts ...grpc.CallOption) (*aggregate.Response, error) {
	return invoke[aggregate.Response](ctx, c.cc, "Search", in, opts)
}

func (c *AggregatorClient) Trending(ctx context.Context, in *TrendingRequest, opts ...grpc.CallOption) (*aggregate.Response, error) {
	return invoke[aggregate.Response](ctx, c.cc, "Trending", in, opts)
}

func (c *AggregatorClient) GetDetails(ctx context.Context, in *DetailsRequest, opts ...grpc.CallOption) (*models.Listing, error) {
	return invoke[models.Listing](ctx, c.cc, "GetDetails", in, opts)
}

func (c *AggregatorClient) ListSources(ctx context.Context, in *ListSourcesRequest, opts ...grpc.CallOption) (*ListSourcesResponse, error) {
	return invoke[ListSourcesResponse](ctx, c.cc, "ListSources", in, opts)
}
