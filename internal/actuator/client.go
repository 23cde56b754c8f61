// Package actuator drives the physical lockers: it speaks the ESP
// controllers' plain-HTTP protocol, runs the lock/LED actuation sequence
// as an explicit state machine, and reconciles LED state with recorded
// occupancy.
package actuator

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DeviceClient abstracts the HTTP calls to a locker controller so the
// orchestrator and sweep can be tested against fakes.
type DeviceClient interface {
	// PulseLock fires the lock actuator once: GET http://{ip}/{channel}.
	PulseLock(ctx context.Context, ip, channel string) error
	// SetLED drives the LED channel: GET http://{ip}/{channel}/{on|off}.
	SetLED(ctx context.Context, ip, channel string, on bool) error
}

// httpDeviceClient is the real controller client. Every call is bounded
// by the client timeout and never retried; a retried lock pulse could
// double-actuate a physical lock.
type httpDeviceClient struct {
	client *http.Client
}

// NewHTTPClient creates a device client with the given per-call timeout.
func NewHTTPClient(timeout time.Duration) DeviceClient {
	return &httpDeviceClient{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *httpDeviceClient) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create device request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("device unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("device returned status %d for %s", resp.StatusCode, url)
	}
	return nil
}

func (c *httpDeviceClient) PulseLock(ctx context.Context, ip, channel string) error {
	return c.get(ctx, fmt.Sprintf("http://%s/%s", ip, channel))
}

func (c *httpDeviceClient) SetLED(ctx context.Context, ip, channel string, on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	return c.get(ctx, fmt.Sprintf("http://%s/%s/%s", ip, channel, state))
}
