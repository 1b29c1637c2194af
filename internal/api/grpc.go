package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nyashahama/sepet-backend/internal/triage"
)

// ─── sepet.v1.TriageAnalysis ──────────────────────────────────────────────────

// DecideMethod is the full gRPC method name.
const DecideMethod = "/sepet.v1.TriageAnalysis/Decide"

type triageAnalysisServer interface {
	Decide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var triageAnalysisDesc = grpc.ServiceDesc{
	ServiceName: "sepet.v1.TriageAnalysis",
	HandlerType: (*triageAnalysisServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Decide", Handler: decideHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sepet/v1/triage_analysis.proto",
}

func decideHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(triageAnalysisServer).Decide(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DecideMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(triageAnalysisServer).Decide(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterGRPC exposes d as sepet.v1.TriageAnalysis on gs.
func RegisterGRPC(gs grpc.ServiceRegistrar, d Decider, logger *slog.Logger) {
	gs.RegisterService(&triageAnalysisDesc, &grpcDecider{decider: d, logger: logger})
}

type grpcDecider struct {
	decider Decider
	logger  *slog.Logger
}

// Decide takes {screening:{...}, profile:{...}} using the same keys as the
// HTTP API and returns {alerta_risco, parecer_ia}.
func (g *grpcDecider) Decide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var sc triage.Screening
	var p triage.Profile
	if err := fieldInto(req, "screening", &sc); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := fieldInto(req, "profile", &p); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	d := g.decider.Decide(ctx, sc, p)
	g.logger.Info("grpc: decided", "pet", p.DisplayName(), "risk_flag", d.RiskFlag)

	out, err := structpb.NewStruct(map[string]any{
		"alerta_risco": d.RiskFlag,
		"parecer_ia":   d.Opinion,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode decision")
	}
	return out, nil
}

// fieldInto decodes one object field of req into dst via its JSON tags. A
// missing field leaves dst at its zero value.
func fieldInto(req *structpb.Struct, key string, dst any) error {
	v, ok := req.GetFields()[key]
	if !ok {
		return nil
	}
	if v.GetStructValue() == nil {
		return fmt.Errorf("%s must be an object", key)
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
