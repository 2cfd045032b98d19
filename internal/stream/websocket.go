package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 30 * time.Second
	readTimeout       = 60 * time.Second
)

// WebSocketConfig configures the default live channel implementation.
type WebSocketConfig struct {
	// URL of the upstream live order endpoint.
	URL string
	// Token is the bearer credential; reconnects reuse it unchanged.
	Token string
	// RetryCeiling is the number of consecutive failed connection attempts
	// after which OnDegraded fires. Reconnection keeps going regardless.
	RetryCeiling int
	// InitialRetryDelay and MaxRetryDelay bound the reconnect backoff.
	// Zero values take the defaults.
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	// OnResync is called after every successful reconnect (not the first
	// connect) so the owner can re-fetch the snapshot.
	OnResync func()
	// OnDegraded is called once per outage when RetryCeiling is reached.
	OnDegraded func(err error)
}

// WebSocketSource subscribes to the platform's live order websocket.
// Disconnects are tolerated silently: the source backs off and redials with
// the same credential.
type WebSocketSource struct {
	config WebSocketConfig
	events chan models.OrderEvent
	logger *logrus.Logger
}

func NewWebSocketSource(config WebSocketConfig, logger *logrus.Logger) *WebSocketSource {
	if config.RetryCeiling <= 0 {
		config.RetryCeiling = 10
	}
	if config.InitialRetryDelay <= 0 {
		config.InitialRetryDelay = initialRetryDelay
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = maxRetryDelay
	}
	return &WebSocketSource{
		config: config,
		events: make(chan models.OrderEvent, 256),
		logger: logger,
	}
}

func (s *WebSocketSource) Events() <-chan models.OrderEvent {
	return s.events
}

// Run dials and reads until ctx is cancelled, reconnecting with exponential
// backoff on any failure. The events channel is closed on return.
func (s *WebSocketSource) Run(ctx context.Context) error {
	defer close(s.events)

	delay := s.config.InitialRetryDelay
	failures := 0
	connectedBefore := false
	degradedReported := false

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := s.dial(ctx)
		if err != nil {
			failures++
			s.logger.WithError(err).WithFields(logrus.Fields{
				"attempt": failures,
				"delay":   delay.String(),
			}).Warn("Live channel connect failed, retrying")

			if failures >= s.config.RetryCeiling && !degradedReported {
				degradedReported = true
				if s.config.OnDegraded != nil {
					s.config.OnDegraded(err)
				}
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.config.MaxRetryDelay {
				delay = s.config.MaxRetryDelay
			}
			continue
		}

		failures = 0
		delay = s.config.InitialRetryDelay
		degradedReported = false
		s.logger.Info("Live channel connected")

		if connectedBefore && s.config.OnResync != nil {
			s.config.OnResync()
		}
		connectedBefore = true

		s.readLoop(ctx, conn)
		conn.Close()
	}
}

func (s *WebSocketSource) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.config.Token)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.config.URL, header)
	return conn, err
}

func (s *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})

	// Unblock ReadMessage when the dashboard shuts down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WithError(err).Warn("Live channel read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var event models.OrderEvent
		if err := decodeEvent(data, &event); err != nil {
			s.logger.WithError(err).Error("Failed to decode live order event")
			continue
		}
		if event.Type != models.EventNewOrder {
			s.logger.WithField("type", event.Type).Debug("Ignoring live channel message")
			continue
		}

		select {
		case s.events <- event:
		case <-ctx.Done():
			return
		}
	}
}
