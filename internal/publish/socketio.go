package publish

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/benroywillis/Cyclebite-sub001/internal/config"
	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// connectTimeout bounds the wait for the first connect event.
const connectTimeout = 15 * time.Second

// SocketIO emits every report as one socket.io event.
type SocketIO struct {
	client *socket.Socket
	event  string
	logger *slog.Logger
}

// DialSocketIO connects to the endpoint described by cfg and waits until the
// connection is established.
func DialSocketIO(ctx context.Context, cfg *config.Publish) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("sink", "socketio", "url", cfg.URL)
	logger.Info("Connecting report stream...")

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("socket.io URL %q must be absolute", cfg.URL)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Report stream connected", "sid", io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		logger.Debug("Report stream failed to connect", "error", err)
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketIO{client: io, event: cfg.Event, logger: logger}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", connectTimeout)
	}
}

// Publish emits r on the configured event.
func (s *SocketIO) Publish(_ context.Context, r Report) error {
	if !s.client.Connected() {
		return fmt.Errorf("socket.io client is not connected")
	}
	data, err := reportData(r)
	if err != nil {
		return err
	}
	s.logger.Debug("Emitting report", "event", s.event, "task", r.Task)
	if err := s.client.Emit(s.event, data); err != nil {
		return fmt.Errorf("failed to emit report for task %d: %w", r.Task, err)
	}
	return nil
}

// Close disconnects the client.
func (s *SocketIO) Close() error {
	s.logger.Debug("Disconnecting report stream", "sid", s.client.Id())
	s.client.Disconnect()
	return nil
}

// reportData renders r as the generic map socket.io serialises.
func reportData(r Report) (map[string]any, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report for task %d: %w", r.Task, err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to encode report for task %d: %w", r.Task, err)
	}
	return data, nil
}
