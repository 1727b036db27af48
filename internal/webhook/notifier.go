// Package webhook posts a controller's final metadata to an HTTP endpoint
// when its run loop ends.
package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"poller/internal/config"
	"poller/internal/orchestrator"
	"poller/internal/template"
	"poller/pkg/logging"
)

const (
	// DeliveryHeader carries a unique id per notification.
	DeliveryHeader = "X-Poller-Delivery"

	defaultRetryInterval = time.Second
)

// Notifier delivers completion notifications for one webhook configuration.
type Notifier struct {
	cfg           config.WebhookConfig
	client        *http.Client
	engine        *template.Engine
	retryInterval time.Duration
}

// NewNotifier builds the HTTP client described by cfg. A missing url or an
// unreadable client certificate is a configuration error.
func NewNotifier(cfg config.WebhookConfig) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, config.NewConfigurationError("webhook url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, config.NewConfigurationError("invalid webhook url %q: %v", cfg.URL, err)
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.VerifySSL != nil && !*cfg.VerifySSL, //nolint:gosec // opt-in via verify-ssl: false
	}
	if cfg.Cert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Cert)
		if err != nil {
			return nil, config.NewConfigurationError("unable to load webhook certificate %s: %v", cfg.Cert, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultWebhookTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &Notifier{
		cfg:           cfg,
		client:        &http.Client{Timeout: config.Seconds(timeout), Transport: transport},
		engine:        template.New(),
		retryInterval: defaultRetryInterval,
	}, nil
}

// Payload returns the JSON body for md. It is nil when neither send-config
// nor a custom payload is configured.
func (n *Notifier) Payload(md orchestrator.Metadata) (map[string]interface{}, error) {
	data, err := toMap(md)
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if n.cfg.SendConfig {
		payload = data
	}
	if len(n.cfg.CustomPayload) > 0 {
		custom, err := n.engine.Render(n.cfg.CustomPayload, data)
		if err != nil {
			return nil, fmt.Errorf("rendering custom payload: %w", err)
		}
		if payload == nil {
			payload = make(map[string]interface{})
		}
		payload["custom"] = custom
	}
	return payload, nil
}

// Send posts the notification for md, retrying transport errors and 5xx
// responses up to the configured number of retries.
func (n *Notifier) Send(ctx context.Context, md orchestrator.Metadata) error {
	payload, err := n.Payload(md)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	target, err := n.target()
	if err != nil {
		return err
	}
	deliveryID := uuid.New().String()

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		n.decorate(req, deliveryID)

		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("webhook returned %s", resp.Status)
		case resp.StatusCode >= http.StatusBadRequest:
			return backoff.Permanent(fmt.Errorf("webhook returned %s", resp.Status))
		}
		return nil
	}

	retries := n.cfg.Retries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(n.retryInterval), uint64(retries)), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		return fmt.Errorf("webhook delivery %s to %s failed: %w", deliveryID, n.cfg.URL, err)
	}
	logging.Debug("Webhook", "delivered %s for controller %s to %s", deliveryID, md.Name, n.cfg.URL)
	return nil
}

func (n *Notifier) target() (string, error) {
	u, err := url.Parse(n.cfg.URL)
	if err != nil {
		return "", err
	}
	if len(n.cfg.Params) > 0 {
		q := u.Query()
		for k, v := range n.cfg.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (n *Notifier) decorate(req *http.Request, deliveryID string) {
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(DeliveryHeader, deliveryID)
	if n.cfg.Auth != nil {
		req.SetBasicAuth(n.cfg.Auth.Username, n.cfg.Auth.Password)
	}
}

// Hook returns a completion callback that sends the notification. It runs
// on the controller's run goroutine; delivery errors are logged.
func (n *Notifier) Hook(ctx context.Context) orchestrator.DoneFunc {
	return func(md orchestrator.Metadata) {
		if err := n.Send(ctx, md); err != nil {
			logging.Error("Webhook", err, "unable to notify completion of controller %s", md.Name)
		}
	}
}

func toMap(md orchestrator.Metadata) (map[string]interface{}, error) {
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encoding controller metadata: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding controller metadata: %w", err)
	}
	return out, nil
}
