// Package remote talks to a PaddleOCR-json worker over its TCP socket.
// Each request uses its own connection: the request line is written, the
// write side is closed, and the single response line is read back.
package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhubert/ocrpipe/protocol"
)

const tracerName = "github.com/zhubert/ocrpipe/remote"

// Scheme prefixes an executable path that names a remote worker instead.
const Scheme = "remote://"

// ErrNotRemote is returned by ParseTarget for paths without the remote scheme.
var ErrNotRemote = errors.New("not a remote target")

// TransportError is a failure to reach the worker or to understand its reply.
// Code is one of the client-side protocol codes.
type TransportError struct {
	Code int
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote ocr %s failed (%d %s): %v", e.Op, e.Code, protocol.CodeText(e.Code), e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTarget reports whether path uses the remote scheme.
func IsTarget(path string) bool {
	return strings.HasPrefix(path, Scheme)
}

// ParseTarget turns "remote://host:port" into a dialable host:port. The host
// aliases "any" and "loopback" stand for 0.0.0.0 and 127.0.0.1.
func ParseTarget(target string) (string, error) {
	if !IsTarget(target) {
		return "", ErrNotRemote
	}
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(target, Scheme))
	if err != nil {
		return "", fmt.Errorf("invalid remote target %q: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid remote target %q: bad port %q", target, portStr)
	}

	switch host {
	case "any":
		host = "0.0.0.0"
	case "loopback", "":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, portStr), nil
}

// Client sends requests to one worker socket. It is safe for concurrent use;
// the worker serializes requests itself.
type Client struct {
	addr   string
	dialer net.Dialer
	log    *slog.Logger
	tracer trace.Tracer
}

// New returns a client for the worker listening on addr (host:port).
func New(addr string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		addr:   addr,
		log:    log.With("remote", addr),
		tracer: otel.GetTracerProvider().Tracer(tracerName),
	}
}

// SetTracerProvider replaces the global tracer provider for this client.
// Call it before the client is shared.
func (c *Client) SetTracerProvider(tp trace.TracerProvider) {
	if tp != nil {
		c.tracer = tp.Tracer(tracerName)
	}
}

// Addr returns the worker address.
func (c *Client) Addr() string {
	return c.addr
}

// Do runs one OCR request. Like ocr.Client.Request, a worker failure code
// returns the response together with a *protocol.StatusError.
func (c *Client) Do(ctx context.Context, arg protocol.Arg) (resp *protocol.Response, err error) {
	ctx, span := c.tracer.Start(ctx, "ocr.remote.Do",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("server.address", c.addr)))
	defer func() {
		if resp != nil {
			span.SetAttributes(attribute.Int("ocr.code", resp.Code))
		}
		var te *TransportError
		if errors.As(err, &te) {
			span.SetAttributes(attribute.Int("ocr.code", te.Code))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}()

	line, err := arg.Encode()
	if err != nil {
		return nil, &TransportError{Code: protocol.CodeRequestEncoding, Op: "encode", Err: err}
	}
	resp, err = c.roundTrip(ctx, line)
	if err != nil {
		return nil, err
	}
	return resp, resp.Err()
}

// Ping sends an empty task and succeeds if the worker answers with any
// well-formed response.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, "{}")
	return err
}

func (c *Client) roundTrip(ctx context.Context, line string) (*protocol.Response, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, &TransportError{Code: protocol.CodeWorkerCrashed, Op: "dial", Err: err}
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		return nil, c.contextErr(ctx, &TransportError{Code: protocol.CodeWorkerCrashed, Op: "write", Err: err})
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			c.log.Debug("failed to half-close connection", "error", err)
		}
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	reply = strings.TrimRight(reply, "\r\n")
	if reply == "" {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, c.contextErr(ctx, &TransportError{Code: protocol.CodeNoResponse, Op: "read", Err: err})
	}

	resp, err := protocol.ParseResponse(reply)
	if err != nil {
		return nil, &TransportError{Code: protocol.CodeResponseDecode, Op: "decode", Err: err}
	}
	c.log.Debug("remote response", "code", resp.Code)
	return resp, nil
}

// contextErr prefers the context's error when the connection was torn down
// because ctx ended.
func (c *Client) contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("remote ocr request: %w", ctxErr)
	}
	return err
}
