package server_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"

	"github.com/go-i2p/tunneld/internal/server"
)

func TestHealthHandlerLogsAndRecovers(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	checker := grpchealth.NewStaticChecker("i2ptunnel.tunnel.v1.Tunnel")
	path, handler := server.NewHealthHandler(checker, logger)

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := grpchealth.NewClient(srv.Client(), srv.URL)
	resp, err := client.Check(context.Background(), &grpchealth.CheckRequest{Service: "i2ptunnel.tunnel.v1.Tunnel"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != grpchealth.StatusServing {
		t.Errorf("Status = %v, want %v", resp.Status, grpchealth.StatusServing)
	}
}

func TestLoggingInterceptorWrapsErrors(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	interceptor := server.LoggingInterceptor(logger)

	wantErr := connect.NewError(connect.CodeNotFound, errors.New("missing"))
	next := func(_ context.Context, _ connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, wantErr
	}

	wrapped := interceptor(next)
	_, err := wrapped(context.Background(), connect.NewRequest(&grpchealth.CheckRequest{}))
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestRecoveryInterceptorCatchesPanic(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	interceptor := server.RecoveryInterceptor(logger)

	next := func(_ context.Context, _ connect.AnyRequest) (connect.AnyResponse, error) {
		panic("boom")
	}

	wrapped := interceptor(next)
	_, err := wrapped(context.Background(), connect.NewRequest(&grpchealth.CheckRequest{}))
	if err == nil {
		t.Fatal("expected error after panic, got nil")
	}

	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected connect.Error, got %T: %v", err, err)
	}
	if connectErr.Code() != connect.CodeInternal {
		t.Errorf("code = %s, want Internal", connectErr.Code())
	}
	if !errors.Is(err, server.ErrPanicRecovered) {
		t.Errorf("err does not wrap ErrPanicRecovered: %v", err)
	}
}
