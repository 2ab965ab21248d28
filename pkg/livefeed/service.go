// Livefeed subscribes to a running core's /ws stream and hands every
// delivery to a callback, reconnecting with exponential backoff.
package livefeed

import (
	"context"
	"net/url"
	"time"

	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/logging"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	maxRetries     = 10
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 60 * time.Second

	// Deliveries arrive every 10 s per source.
	readTimeout  = 35 * time.Second
	pingInterval = 30 * time.Second
)

type Handler func(d types.Delivery)

type Listener struct {
	url        string
	log        *logrus.Entry
	newBackOff func() backoff.BackOff
}

// NewListener targets ws(s)://host/ws.
func NewListener(host string, tlsEnabled bool) *Listener {
	scheme := "ws"
	if tlsEnabled {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: host, Path: "/ws"}
	return &Listener{
		url:        u.String(),
		log:        logging.For("livefeed"),
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseRetryDelay
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, maxRetries)
}

func (l *Listener) URL() string {
	return l.url
}

// Run keeps a connection open until ctx ends. It gives up with an error
// after maxRetries failed attempts in a row.
func (l *Listener) Run(ctx context.Context, fn Handler) error {
	b := l.newBackOff()
	b.Reset()

	for {
		l.log.Infof("Connecting to %s", l.url)
		connected, err := l.session(ctx, fn)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			b.Reset()
			l.log.Info("Connection lost, will retry...")
		} else {
			l.log.Warnf("Connection failed: %v", err)
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			if err == nil {
				err = faults.New(faults.Network, "connection closed")
			}
			return faults.Wrapf(faults.Network, err, "giving up on "+l.url)
		}
		l.log.Infof("Retrying connection in %v...", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// session handles one connection. connected reports whether the dial
// succeeded.
func (l *Listener) session(ctx context.Context, fn Handler) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	c, _, err := dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return false, faults.ClassifyTransport(err)
	}
	defer c.Close()
	l.log.Info("Connected! Accepting live samples.")

	c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan error, 1)
	go func() {
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			c.SetReadDeadline(time.Now().Add(readTimeout))

			if messageType != websocket.TextMessage {
				continue
			}
			if d := types.DeliveryFromJsonBytes(message); d != nil {
				fn(*d)
			} else {
				l.log.Debugf("Failed to parse delivery: %s", string(message))
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return true, err
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return true, err
			}
		case <-ctx.Done():
			c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return true, nil
		}
	}
}
