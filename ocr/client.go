package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhubert/ocrpipe/config"
	"github.com/zhubert/ocrpipe/logger"
	"github.com/zhubert/ocrpipe/metrics"
	"github.com/zhubert/ocrpipe/protocol"
	"github.com/zhubert/ocrpipe/queue"
	"github.com/zhubert/ocrpipe/remote"
	"github.com/zhubert/ocrpipe/worker"
)

// Options configures a Client. The zero value starts the default engine.
type Options struct {
	Path  string         // Engine executable; empty uses config.DefaultExecutable()
	Args  []string       // Raw arguments, passed after Flags
	Flags map[string]any // Engine flags, rendered by config.FormatFlags
	Dir   string         // Working directory; empty uses the executable's directory
	Env   []string       // Extra KEY=value environment entries

	// Debug logs every request and response line.
	Debug bool

	// Clipboard says the engine was built with clipboard support. Without
	// it RunClipboard fails locally with protocol.CodeErrClipFormat.
	Clipboard bool

	// RequestTimeout bounds Request and the Run helpers. Zero means no limit
	// beyond the caller's context.
	RequestTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// TracerProvider receives a span per Request. Nil uses the global provider.
	TracerProvider trace.TracerProvider
}

const tracerName = "github.com/zhubert/ocrpipe/ocr"

// Future resolves to the worker's response for one request.
type Future = queue.Future[*protocol.Response]

// Client supervises one worker process.
type Client struct {
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics
	tp      trace.TracerProvider
	tracer  trace.Tracer
	proc    *worker.Process
	queue   *queue.Queue[string, *protocol.Response]

	mu           sync.Mutex
	state        State
	identity     protocol.Identity
	handshakeErr error
	exitErr      *ExitedError
	terminated   bool

	ready  chan struct{}
	exited chan struct{}

	wg sync.WaitGroup
}

// New starts the worker and returns without waiting for its handshake.
// A worker that cannot be started returns a *worker.SpawnError.
func New(opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = logger.WithComponent("ocr")
	}
	path := opts.Path
	if path == "" {
		path = config.DefaultExecutable()
	}
	args := append(config.FormatFlags(opts.Flags), opts.Args...)

	proc, err := worker.Spawn(path, args, worker.Options{Dir: opts.Dir, Env: opts.Env}, log)
	if err != nil {
		return nil, err
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	c := &Client{
		opts:    opts,
		log:     log.With("workerPID", proc.Pid()),
		metrics: opts.Metrics,
		tp:      tp,
		tracer:  tp.Tracer(tracerName),
		proc:    proc,
		state:   StateStarting,
		ready:   make(chan struct{}),
		exited:  make(chan struct{}),
	}
	c.queue = queue.New(c.send, queue.Callbacks[*protocol.Response]{
		OnSubmit: func(ev queue.Event) {
			c.metrics.RecordSubmit(ev.Queued)
		},
		OnTransmit: func(ev queue.Event) {
			c.metrics.RecordTransmit(ev.Queued, ev.Elapsed)
		},
		OnComplete: func(ev queue.Event, resp *protocol.Response) {
			c.metrics.RecordComplete(outcome(resp, ev.Err), ev.Queued, ev.Elapsed)
		},
	}, c.log)

	c.metrics.RecordWorkerStart()
	c.wg.Go(c.consume)
	return c, nil
}

// Ready is closed once the handshake succeeded.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Exited is closed after the worker exited and every pending request failed.
func (c *Client) Exited() <-chan struct{} {
	return c.exited
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns what the worker announced. It is the zero Identity until
// Ready is closed.
func (c *Client) Identity() protocol.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Pid returns the OS process id of the spawned executable.
func (c *Client) Pid() int {
	return c.proc.Pid()
}

// ExitCode returns the worker's exit status once it exited normally.
func (c *Client) ExitCode() (int, bool) {
	return c.proc.ExitCode()
}

// Err returns the *ExitedError once the worker exited, nil before.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exitErr == nil {
		return nil
	}
	return c.exitErr
}

// WaitReady blocks until the handshake arrives, the worker exits, or ctx ends.
func (c *Client) WaitReady(ctx context.Context) (protocol.Identity, error) {
	select {
	case <-c.ready:
		return c.Identity(), nil
	case <-c.exited:
		select {
		case <-c.ready:
			return c.Identity(), nil
		default:
		}
		return protocol.Identity{}, c.Err()
	case <-ctx.Done():
		return protocol.Identity{}, ctx.Err()
	}
}

// Submit queues arg and returns immediately. It fails with ErrClosed after
// Terminate or once the worker exited, and with a validation error for an
// arg without exactly one image source.
func (c *Client) Submit(arg protocol.Arg) (*Future, error) {
	c.mu.Lock()
	closed := c.terminated || c.state == StateExited
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	line, err := arg.Encode()
	if err != nil {
		return nil, fmt.Errorf("invalid ocr request: %w", err)
	}

	f, err := c.queue.Submit(line)
	if err != nil {
		return nil, err
	}
	if c.opts.Debug {
		c.log.Debug("request submitted", "exchangeID", f.ID(), "line", truncate(line, 200))
	}
	return f, nil
}

// Request submits arg and waits for its response. A worker failure code
// returns the response together with a *protocol.StatusError.
func (c *Client) Request(ctx context.Context, arg protocol.Arg) (resp *protocol.Response, err error) {
	ctx, span := c.tracer.Start(ctx, "ocr.Request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("ocr.worker_pid", c.Pid())))
	defer func() {
		endSpan(span, resp, err)
	}()

	f, err := c.Submit(arg)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("ocr.exchange_id", f.ID()))

	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	resp, err = f.Wait(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return nil, fmt.Errorf("ocr request %s: %w", f.ID(), err)
	}
	return resp, err
}

// Run recognizes the image file at path.
func (c *Client) Run(ctx context.Context, path string) (*protocol.Response, error) {
	return c.Request(ctx, protocol.PathArg(path))
}

// RunBase64 recognizes a base64 encoded image.
func (c *Client) RunBase64(ctx context.Context, b64 string) (*protocol.Response, error) {
	return c.Request(ctx, protocol.Base64Arg(b64))
}

// RunBytes recognizes an encoded image held in memory.
func (c *Client) RunBytes(ctx context.Context, image []byte) (*protocol.Response, error) {
	return c.Request(ctx, protocol.BytesArg(image))
}

// ClipboardEnabled reports whether RunClipboard reaches the worker.
func (c *Client) ClipboardEnabled() bool {
	return c.opts.Clipboard
}

// RunClipboard recognizes the image on the system clipboard.
func (c *Client) RunClipboard(ctx context.Context) (*protocol.Response, error) {
	if !c.opts.Clipboard {
		resp := &protocol.Response{Code: protocol.CodeErrClipFormat, Message: "clipboard function not available"}
		return resp, resp.Err()
	}
	return c.Request(ctx, protocol.ClipboardArg())
}

// Remote returns a socket client for the address the worker advertised.
// It fails with ErrClosed once the worker exited.
func (c *Client) Remote() (*remote.Client, error) {
	c.mu.Lock()
	state, id := c.state, c.identity
	c.mu.Unlock()

	switch state {
	case StateStarting:
		return nil, ErrNotReady
	case StateExited:
		return nil, ErrClosed
	}
	if !id.HasAddress() {
		return nil, ErrNoAddress
	}
	rc := remote.New(id.HostPort(), c.log)
	rc.SetTracerProvider(c.tp)
	return rc, nil
}

// Terminate kills the worker. Later submissions fail with ErrClosed and
// pending requests fail with an *ExitedError once the exit is observed.
// Safe to call in any state and any number of times.
func (c *Client) Terminate() error {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return nil
	}
	c.terminated = true
	c.mu.Unlock()

	c.log.Info("terminating worker")
	return c.proc.Kill()
}

// Shutdown terminates the worker and waits for Exited or ctx.
func (c *Client) Shutdown(ctx context.Context) error {
	if err := c.Terminate(); err != nil {
		return err
	}
	select {
	case <-c.exited:
		c.wg.Wait()
		c.proc.Wait()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send is the queue's transmit step, the only writer of the worker's stdin.
func (c *Client) send(ex *queue.Exchange[string, *protocol.Response]) error {
	if c.opts.Debug {
		c.log.Debug("sending request", "exchangeID", ex.ID)
	}
	return c.proc.WriteLine(ex.Request)
}

// consume routes worker output: the first non-blank line is the handshake,
// every later line answers the in-flight request.
func (c *Client) consume() {
	handshaken := false
	for line := range c.proc.Lines() {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !handshaken {
			handshaken = true
			c.handshake(line)
			continue
		}
		c.dispatch(line)
	}

	<-c.proc.Done()
	c.finish()
}

func (c *Client) handshake(line string) {
	id, err := protocol.ParseHandshake(line)
	if err != nil {
		c.log.Error("worker handshake failed", "error", err)
		c.mu.Lock()
		c.handshakeErr = err
		c.mu.Unlock()
		if killErr := c.proc.Kill(); killErr != nil {
			c.log.Error("failed to kill worker after bad handshake", "error", killErr)
		}
		return
	}

	c.mu.Lock()
	c.identity = id
	c.state = StateReady
	c.mu.Unlock()

	c.log.Info("worker ready", "pid", id.PID, "address", id.HostPort())
	c.metrics.RecordWorkerReady()
	c.queue.Open()
	close(c.ready)
}

func (c *Client) dispatch(line string) {
	c.mu.Lock()
	failed := c.handshakeErr != nil
	c.mu.Unlock()
	if failed {
		c.log.Debug("discarding output after failed handshake", "line", truncate(line, 200))
		return
	}

	resp, err := protocol.ParseResponse(line)
	if err != nil {
		c.log.Warn("unparseable worker output", "error", err)
	} else {
		err = resp.Err()
	}
	if c.opts.Debug {
		c.log.Debug("response received", "line", truncate(line, 200))
	}

	if !c.queue.Resolve(resp, err) {
		c.log.Warn("worker output with no request in flight", "line", truncate(line, 200))
		c.metrics.RecordUnsolicited()
	}
}

// finish runs once after the process was reaped and its output drained.
func (c *Client) finish() {
	exitErr := &ExitedError{}
	if code, ok := c.proc.ExitCode(); ok {
		exitErr.Code = &code
	}

	c.mu.Lock()
	exitErr.Cause = c.handshakeErr
	c.exitErr = exitErr
	c.state = StateExited
	c.mu.Unlock()

	c.queue.Close(exitErr)

	reason := metrics.ExitNormal
	switch {
	case exitErr.Cause != nil:
		reason = metrics.ExitHandshake
	case exitErr.Code == nil:
		reason = metrics.ExitSignal
	}
	c.metrics.RecordWorkerExit(reason)

	c.log.Info("worker exited", "reason", reason, "error", exitErr)
	close(c.exited)
}

// outcome classifies a finished exchange for metrics.
func outcome(resp *protocol.Response, err error) string {
	var (
		statusErr *protocol.StatusError
		parseErr  *protocol.ParseError
		writeErr  *worker.WriteError
	)
	switch {
	case err == nil && resp != nil && resp.Code == protocol.CodeOKNone:
		return metrics.OutcomeNoText
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &statusErr):
		return metrics.OutcomeFailure
	case errors.As(err, &parseErr):
		return metrics.OutcomeInvalid
	case errors.As(err, &writeErr):
		return metrics.OutcomeWrite
	default:
		return metrics.OutcomeExited
	}
}

// endSpan records the exchange outcome on span and ends it.
func endSpan(span trace.Span, resp *protocol.Response, err error) {
	result := outcome(resp, err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		result = "abandoned"
	}
	span.SetAttributes(attribute.String("ocr.outcome", result))
	if resp != nil {
		span.SetAttributes(
			attribute.Int("ocr.code", resp.Code),
			attribute.Int("ocr.detections", len(resp.Data)),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
