package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/casconfig"
	"xdao.co/dagstore/storage/casregistry"
	"xdao.co/dagstore/storage/grpccas"

	_ "xdao.co/dagstore/storage/gcs"
	_ "xdao.co/dagstore/storage/ipfs"
	_ "xdao.co/dagstore/storage/localfs"
	_ "xdao.co/dagstore/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("dagstored", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	configPath := fs.String("config", "", "YAML backend config file")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	logLevel := fs.String("log-level", "info", "Log level: debug|info|warn|error")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(errOut, "invalid --log-level: %v\n", err)
		return 2
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	var (
		cas     storage.CAS
		closeFn func() error
		err     error
	)
	if *configPath != "" {
		cfg, lerr := casconfig.LoadFile(*configPath)
		if lerr != nil {
			logger.Error("loading config", "path", *configPath, "error", lerr)
			return 2
		}
		preferred := ""
		if fs.Changed("backend") {
			preferred = *backend
		}
		cas, closeFn, err = cfg.Open(casregistry.UsageDaemon, preferred)
	} else {
		cas, closeFn, err = casregistry.Open(*backend, casregistry.UsageDaemon)
	}
	if err != nil {
		logger.Error("opening backend", "backend", *backend, "error", err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Error("listening", "address", *listen, "error", err)
		return 1
	}

	s := newServer(cas, logger)
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		s.GracefulStop()
	}()

	logger.Info("dagstored listening", "address", lis.Addr().String(), "backend", *backend, "config", *configPath)
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("serving", "error", err)
		return 1
	}
	return 0
}

// newServer returns a gRPC server exposing cas as the CAS service.
func newServer(cas storage.CAS, logger *slog.Logger) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})
	return s
}

// loggingInterceptor logs one record per unary call. Failed calls log at warn
// level, except NotFound, which is an ordinary answer for a block store.
func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		level := slog.LevelDebug
		if err != nil && code != codes.NotFound {
			level = slog.LevelWarn
		}
		attrs := []any{
			"method", info.FullMethod,
			"code", code.String(),
			"duration", time.Since(start),
		}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		logger.Log(ctx, level, "rpc", attrs...)
		return resp, err
	}
}
