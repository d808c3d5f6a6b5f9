// Command ocrpipe runs images through a PaddleOCR-json engine and prints the
// recognized text.
//
//	ocrpipe [flags] image...
//	ocrpipe [flags] remote://host:port image...
//	ocrpipe [flags] -clipboard
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/zhubert/ocrpipe/cli"
	"github.com/zhubert/ocrpipe/config"
	"github.com/zhubert/ocrpipe/logger"
	"github.com/zhubert/ocrpipe/metrics"
	"github.com/zhubert/ocrpipe/ocr"
	"github.com/zhubert/ocrpipe/paths"
	"github.com/zhubert/ocrpipe/process"
	"github.com/zhubert/ocrpipe/protocol"
	"github.com/zhubert/ocrpipe/remote"
	"github.com/zhubert/ocrpipe/textblock"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath  string
	executable  string
	mode        string
	debug       bool
	timeout     time.Duration
	metricsAddr string
	check       bool
	cleanup     bool
	trace       bool
	visualize   bool
	clearLogs   bool
	clipboard   bool
	parser      string
	target      string // remote://host:port, empty for a local engine
	images      []string
}

func main() {
	code := run(os.Args[1:], os.Stdout, os.Stderr)
	logger.Close()
	os.Exit(code)
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	if opts.clearLogs {
		n, err := logger.ClearLogs()
		if err != nil {
			fmt.Fprintln(stderr, "clear logs:", err)
			return 1
		}
		fmt.Fprintf(stdout, "removed %d log file(s)\n", n)
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}
	logger.SetDebug(cfg.Debug)
	log := logger.WithComponent("main")

	var parser textblock.Parser
	if cfg.TextParser != "" {
		parser, _ = textblock.ByName(cfg.TextParser)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.trace {
		shutdown, err := setupTracing(stderr)
		if err != nil {
			fmt.Fprintln(stderr, "tracing:", err)
			return 1
		}
		defer shutdown()
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, registry, log)
		defer srv.Close()
	}

	if opts.target != "" {
		addr, err := remote.ParseTarget(opts.target)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		build, err := argBuilder(opts.visualize)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return recognizeAll(ctx, remote.New(addr, log).Do, build, opts.images, cfg.RequestTimeout.Duration, parser, stdout)
	}

	prereqs := cli.EnginePrerequisites(cfg)
	if opts.check {
		fmt.Fprint(stdout, cli.FormatCheckResults(cli.CheckAll(prereqs)))
		printLayout(stdout, cfg)
		if cli.ValidateRequired(prereqs) != nil {
			return 1
		}
		return 0
	}
	if err := cli.ValidateRequired(prereqs); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if opts.cleanup {
		n, err := process.CleanupOrphaned(ctx, cfg.ExecutablePath(), nil)
		if err != nil {
			log.Warn("orphan cleanup failed", "error", err)
		} else if n > 0 {
			fmt.Fprintf(stderr, "killed %d orphaned engine(s)\n", n)
		}
	}

	client, err := ocr.New(ocr.Options{
		Path:      cfg.ExecutablePath(),
		Args:      cfg.CommandArgs(),
		Dir:       cfg.WorkingDir,
		Env:       cfg.EnvList(),
		Debug:     cfg.Debug,
		Clipboard: cfg.Clipboard,
		Metrics:   m,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := client.Shutdown(sctx); err != nil {
			log.Warn("engine shutdown", "error", err)
		}
	}()

	id, err := client.WaitReady(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "engine did not start:", err)
		return 1
	}
	logger.WithWorker(id.PID).Info("engine ready", "address", id.HostPort())

	do := client.Request
	switch {
	case cfg.Mode == config.ModeSocket:
		rc, err := client.Remote()
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		do = rc.Do
	case opts.clipboard:
		do = func(ctx context.Context, _ protocol.Arg) (*protocol.Response, error) {
			return client.RunClipboard(ctx)
		}
	}
	build, err := argBuilder(opts.visualize)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return recognizeAll(ctx, do, build, opts.images, cfg.RequestTimeout.Duration, parser, stdout)
}

func parseArgs(args []string, output io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("ocrpipe", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "config file (default: the ocrpipe config directory)")
	fs.StringVar(&opts.executable, "exe", "", "PaddleOCR-json executable")
	fs.StringVar(&opts.mode, "mode", "", `transport: "pipe" or "socket"`)
	fs.BoolVar(&opts.debug, "debug", false, "debug logging")
	fs.DurationVar(&opts.timeout, "timeout", 0, "per-image timeout (0 waits forever)")
	fs.StringVar(&opts.metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	fs.BoolVar(&opts.check, "check", false, "check the engine installation and exit")
	fs.BoolVar(&opts.cleanup, "cleanup", false, "kill orphaned engines before starting")
	fs.BoolVar(&opts.trace, "trace", false, "write request spans to stderr")
	fs.BoolVar(&opts.visualize, "visualize", false, "have the engine save annotated images to the output directory")
	fs.BoolVar(&opts.clearLogs, "clear-logs", false, "remove ocrpipe log files and exit")
	fs.BoolVar(&opts.clipboard, "clipboard", false, "recognize the image on the clipboard instead of files")
	fs.StringVar(&opts.parser, "parser", "", `print arranged text: "none", "single_line" or "multi_para"`)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: ocrpipe [flags] [remote://host:port] image...")
		fmt.Fprintln(fs.Output(), "       ocrpipe [flags] [remote://host:port] -clipboard")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	rest := fs.Args()
	if len(rest) > 0 && remote.IsTarget(rest[0]) {
		opts.target = rest[0]
		rest = rest[1:]
	}
	opts.images = rest

	if opts.clipboard {
		if len(opts.images) > 0 {
			return opts, errors.New("-clipboard takes no images")
		}
		opts.images = []string{protocol.ClipboardPath}
	}
	if len(opts.images) == 0 && !opts.check && !opts.clearLogs {
		fs.Usage()
		return opts, errors.New("no images given")
	}
	return opts, nil
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.executable != "" {
		cfg.Executable = opts.executable
	}
	if opts.mode != "" {
		cfg.Mode = opts.mode
	}
	if opts.debug {
		cfg.Debug = true
	}
	if opts.timeout > 0 {
		cfg.RequestTimeout = config.Duration{Duration: opts.timeout}
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if opts.parser != "" {
		cfg.TextParser = opts.parser
	}
	return cfg, cfg.Validate()
}

// setupTracing installs a global tracer provider that prints spans to w.
func setupTracing(w io.Writer) (func(), error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		tp.Shutdown(ctx)
	}, nil
}

func serveMetrics(addr string, gatherer prometheus.Gatherer, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(gatherer))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	return srv
}

// printLayout shows where ocrpipe reads and writes its files.
func printLayout(w io.Writer, cfg *config.Config) {
	layout := "xdg"
	if paths.IsDotDirLayout() {
		layout = "dot-dir"
	}
	fmt.Fprintf(w, "Files (%s layout):\n", layout)
	if p := cfg.FilePath(); p != "" {
		fmt.Fprintf(w, "  config: %s\n", p)
	}
	if p, err := logger.DefaultLogPath(); err == nil {
		fmt.Fprintf(w, "  log:    %s\n", p)
	}
	if p, err := paths.OutputDir(); err == nil {
		fmt.Fprintf(w, "  output: %s\n", p)
	}
}

// argBuilder returns how image paths become requests. With visualize the
// engine writes an annotated copy of each image into paths.OutputDir.
func argBuilder(visualize bool) (func(image string) protocol.Arg, error) {
	if !visualize {
		return protocol.PathArg, nil
	}
	dir, err := paths.OutputDir()
	if err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}
	return func(image string) protocol.Arg {
		arg := protocol.PathArg(image)
		arg.Visualize = true
		arg.Output = filepath.Join(dir, filepath.Base(image))
		return arg
	}, nil
}

type requestFunc func(ctx context.Context, arg protocol.Arg) (*protocol.Response, error)

// recognizeAll runs each image in turn and prints its result. The exit code
// is 1 when any image failed.
func recognizeAll(ctx context.Context, do requestFunc, build func(string) protocol.Arg, images []string, timeout time.Duration, parser textblock.Parser, w io.Writer) int {
	status := 0
	for _, image := range images {
		rctx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			rctx, cancel = context.WithTimeout(ctx, timeout)
		}
		resp, err := do(rctx, build(image))
		cancel()

		if len(images) > 1 {
			fmt.Fprintf(w, "== %s\n", image)
		}
		if !printResult(w, resp, err, parser) {
			status = 1
		}
		if ctx.Err() != nil {
			return 1
		}
	}
	return status
}

// printResult writes one image's outcome and reports whether it succeeded.
// Status errors still carry a response; transport failures are shown with
// their client-side code. With a parser the text is printed as arranged
// blocks instead of one line per detection.
func printResult(w io.Writer, resp *protocol.Response, err error, parser textblock.Parser) bool {
	var te *remote.TransportError
	switch {
	case resp != nil && resp.Code == protocol.CodeOK && parser != nil:
		textblock.Apply(parser, resp)
		fmt.Fprint(w, resp.Text())
		return true
	case resp != nil && resp.Code == protocol.CodeOK:
		for i, d := range resp.Data {
			fmt.Fprintf(w, "%d-Confidence: %.2f, Text: %s\n", i+1, d.Score, d.Text)
		}
		return true
	case resp != nil && resp.Code == protocol.CodeOKNone:
		fmt.Fprintln(w, "No text recognized in image.")
		return true
	case resp != nil:
		fmt.Fprintf(w, "Image recognition failed. Error code: %d, Error message: %s\n", resp.Code, resp.Message)
	case errors.As(err, &te):
		fmt.Fprintf(w, "Image recognition failed. Error code: %d, Error message: %v\n", te.Code, te.Err)
	default:
		fmt.Fprintf(w, "Image recognition failed: %v\n", err)
	}
	return false
}
