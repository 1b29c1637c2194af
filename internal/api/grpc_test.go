package api_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nyashahama/sepet-backend/internal/api"
	"github.com/nyashahama/sepet-backend/internal/triage"
)

// rulesDecider decides with the deterministic evaluator and records input.
type rulesDecider struct {
	screening triage.Screening
	profile   triage.Profile
}

func (r *rulesDecider) Decide(_ context.Context, sc triage.Screening, p triage.Profile) triage.Decision {
	r.screening, r.profile = sc, p
	return triage.Evaluate(sc, p)
}

func dialDecider(t *testing.T, d api.Decider) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	api.RegisterGRPC(gs, d, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCDecide(t *testing.T) {
	d := &rulesDecider{}
	conn := dialDecider(t, d)

	in, err := structpb.NewStruct(map[string]any{
		"screening": map[string]any{
			"entendeu_risco_anestesico": true,
			"jejum_12h":                 true,
			"desmaio":                   true,
		},
		"profile": map[string]any{
			"pet_nome":        "Rex",
			"pet_idade_anos":  2,
			"pet_idade_meses": 3,
		},
	})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), api.DecideMethod, in, out); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if !d.screening.Fainting || d.profile.Name != "Rex" || d.profile.AgeMonths != 3 {
		t.Errorf("request not decoded: %+v %+v", d.screening, d.profile)
	}

	want := triage.Evaluate(d.screening, d.profile)
	got := out.AsMap()
	if got["alerta_risco"] != want.RiskFlag || got["parecer_ia"] != want.Opinion {
		t.Errorf("got %v, want %+v", got, want)
	}
}

func TestGRPCDecide_BadShapeIsInvalidArgument(t *testing.T) {
	conn := dialDecider(t, &rulesDecider{})

	in, _ := structpb.NewStruct(map[string]any{"screening": "yes"})
	err := conn.Invoke(context.Background(), api.DecideMethod, in, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}
