package auth

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// passHandler is a grpc.UnaryHandler that returns ("ok", nil).
func passHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok", nil
}

func TestAPIKeyInterceptor(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		key      string
		md       metadata.MD // nil: no metadata at all
		wantCode codes.Code
	}{
		{"mode none passes", "none", "secret", nil, codes.OK},
		{"empty key passes", "apikey", "", nil, codes.OK},
		{"correct key", "apikey", "secret", metadata.Pairs("x-api-key", "secret"), codes.OK},
		{"wrong key", "apikey", "secret", metadata.Pairs("x-api-key", "wrong"), codes.Unauthenticated},
		{"missing header", "apikey", "secret", metadata.MD{}, codes.Unauthenticated},
		{"no metadata", "apikey", "secret", nil, codes.Unauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}
			i := APIKeyInterceptor(tt.mode, "X-API-Key", tt.key)
			res, err := i(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
			if code := status.Code(err); code != tt.wantCode {
				t.Fatalf("code: got %v, want %v", code, tt.wantCode)
			}
			if tt.wantCode == codes.OK && res != "ok" {
				t.Errorf("result: got %v, want ok", res)
			}
		})
	}
}

// stream is a grpc.ServerStream carrying only a context.
type stream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *stream) Context() context.Context { return s.ctx }

func TestAPIKeyStreamInterceptor(t *testing.T) {
	i := APIKeyStreamInterceptor("apikey", "x-api-key", "secret")
	called := false
	handler := func(srv interface{}, ss grpc.ServerStream) error {
		called = true
		return nil
	}

	bad := &stream{ctx: metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "nope"))}
	if err := i(nil, bad, &grpc.StreamServerInfo{}, handler); status.Code(err) != codes.Unauthenticated {
		t.Errorf("wrong key: got %v, want Unauthenticated", err)
	}
	if called {
		t.Error("handler called despite wrong key")
	}

	good := &stream{ctx: metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "secret"))}
	if err := i(nil, good, &grpc.StreamServerInfo{}, handler); err != nil {
		t.Errorf("correct key: unexpected error %v", err)
	}
	if !called {
		t.Error("handler not called")
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		mode   string
		key    string
		header string
		query  string
		want   int
	}{
		{"disabled", "none", "secret", "", "", http.StatusNoContent},
		{"no key configured", "apikey", "", "", "", http.StatusNoContent},
		{"header", "apikey", "secret", "secret", "", http.StatusNoContent},
		{"query parameter", "apikey", "secret", "", "secret", http.StatusNoContent},
		{"wrong header", "apikey", "secret", "nope", "", http.StatusUnauthorized},
		{"missing", "apikey", "secret", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := APIKeyMiddleware(tt.mode, "X-API-Key", tt.key, ok)
			target := "/api/v1/health"
			if tt.query != "" {
				target += "?api_key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestHealthServiceBehindInterceptor(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(APIKeyInterceptor("apikey", "x-api-key", "secret")),
		grpc.StreamInterceptor(APIKeyStreamInterceptor("apikey", "x-api-key", "secret")),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	go srv.Serve(lis) //nolint:errcheck
	defer srv.Stop()

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	if _, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{}); status.Code(err) != codes.Unauthenticated {
		t.Errorf("Check without key: got %v, want Unauthenticated", err)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "secret")
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check with key: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status: got %v, want SERVING", resp.GetStatus())
	}
}
