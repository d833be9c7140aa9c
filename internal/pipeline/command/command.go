// Package command runs an external converter process as a pipeline.
//
// The converter reads the PDF on stdin and writes one JSON object per line
// to stdout:
//
//	{"type":"thinking","text":"..."}
//	{"type":"progress","step":1,"name":"...","detail":"...","extra":{...}}
//	{"type":"draft","step":3,"name":"...","detail":"...","payload":"<base64 notebook>"}
//	{"type":"error","message":"..."}
//	{"type":"result","payload":"<base64 notebook>"}
//
// Lines that are not JSON objects are logged and skipped. The job id, model
// and credential are passed as NOTEBOOK_JOB_ID, NOTEBOOK_MODEL and
// NOTEBOOK_API_KEY in the environment, along with TRACEPARENT when the job
// is traced. The tail of stderr is included in the error when the process
// exits non-zero.
package command

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Davygupta47/notebook/internal/logging"
	"github.com/Davygupta47/notebook/internal/pipeline"
	"github.com/Davygupta47/notebook/internal/services"
	"github.com/Davygupta47/notebook/internal/textutil"
)

const (
	stageName     = "command"
	maxLineBytes  = 64 << 20
	stderrTailLen = 4096
)

// Executor abstracts process execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args, env []string, stdin []byte, onStdout func([]byte), stderr io.Writer) error
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithExecutor injects a custom executor.
func WithExecutor(exec Executor) Option {
	return func(p *Pipeline) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logging.NewComponentLogger(logger, "command-pipeline")
	}
}

// Pipeline invokes a converter binary once per job.
type Pipeline struct {
	binary string
	args   []string
	exec   Executor
	logger *slog.Logger
}

// New constructs a command pipeline.
func New(binary string, args []string, opts ...Option) (*Pipeline, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("converter command required")
	}
	p := &Pipeline{
		binary: binary,
		args:   append([]string(nil), args...),
		exec:   processExecutor{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type message struct {
	Type    string         `json:"type"`
	Text    string         `json:"text"`
	Step    int            `json:"step"`
	Name    string         `json:"name"`
	Detail  string         `json:"detail"`
	Extra   map[string]any `json:"extra"`
	Payload string         `json:"payload"`
	Message string         `json:"message"`
}

// Run implements pipeline.Pipeline.
func (p *Pipeline) Run(ctx context.Context, req pipeline.Request, sink pipeline.Sink) ([]byte, error) {
	ctx, span := otel.Tracer("github.com/Davygupta47/notebook/internal/pipeline/command").Start(ctx, "converter.run",
		trace.WithAttributes(attribute.String("converter.binary", p.binary)),
	)
	defer span.End()
	data, err := p.run(ctx, req, sink)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "converter failed")
	}
	return data, err
}

func (p *Pipeline) run(ctx context.Context, req pipeline.Request, sink pipeline.Sink) ([]byte, error) {
	if sink == nil {
		sink = pipeline.Discard{}
	}
	logger := p.logger.With(logging.String(logging.FieldJobID, req.JobID))

	env := append(os.Environ(),
		"NOTEBOOK_JOB_ID="+req.JobID,
		"NOTEBOOK_MODEL="+req.Model,
		"NOTEBOOK_API_KEY="+req.Credential,
	)
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for key, value := range carrier {
		env = append(env, strings.ToUpper(key)+"="+value)
	}

	var (
		result   []byte
		protoErr error
	)
	onLine := func(line []byte) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			return
		}
		var msg message
		if line[0] != '{' || json.Unmarshal(line, &msg) != nil {
			logger.Debug("converter output", logging.String("line", textutil.Truncate(string(line), 200)))
			return
		}
		switch msg.Type {
		case "thinking":
			if strings.TrimSpace(msg.Text) != "" {
				sink.Thinking(msg.Text)
			}
		case "progress":
			sink.Progress(msg.Step, msg.Name, msg.Detail, msg.Extra)
		case "draft":
			payload, err := base64.StdEncoding.DecodeString(msg.Payload)
			if err != nil {
				logger.Warn("converter draft payload invalid; skipping", logging.Error(err))
				sink.Progress(msg.Step, msg.Name, msg.Detail, msg.Extra)
				return
			}
			sink.Draft(msg.Step, msg.Name, msg.Detail, msg.Extra, payload)
		case "error":
			pipeline.ReportFailure(sink, strings.TrimSpace(msg.Message))
		case "result":
			payload, err := base64.StdEncoding.DecodeString(msg.Payload)
			if err != nil {
				protoErr = fmt.Errorf("decode result payload: %w", err)
				return
			}
			result = payload
		default:
			logger.Debug("unknown converter message", logging.String("type", msg.Type))
		}
	}

	stderr := &tailBuffer{limit: stderrTailLen}
	err := p.exec.Run(ctx, p.binary, p.args, env, req.Input, onLine, stderr)
	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, services.Wrap(services.ErrTimeout, stageName, "run", "converter timed out", err)
	case err != nil && ctx.Err() != nil:
		return nil, services.Wrap(services.ErrTransient, stageName, "run", "converter cancelled", ctx.Err())
	case err != nil:
		detail := "converter failed"
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			detail += ": " + tail
		}
		return nil, services.Wrap(services.ErrExternalTool, stageName, "run", detail, err)
	case protoErr != nil:
		return nil, services.Wrap(services.ErrExternalTool, stageName, "result", "", protoErr)
	case len(result) == 0:
		return nil, services.Wrap(services.ErrExternalTool, stageName, "result", "converter produced no result", nil)
	}
	return result, nil
}

type processExecutor struct{}

func (processExecutor) Run(ctx context.Context, binary string, args, env []string, stdin []byte, onStdout func([]byte), stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Env = env
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		onStdout(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
