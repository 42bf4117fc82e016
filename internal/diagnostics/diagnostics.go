// Package diagnostics checks that a call can work before one is placed: the
// API credential, the microphone, a live session handshake and the
// scheduling webhook.
//
// The connectivity checks run in order and stop at the first failure, since
// each depends on the one before. The webhook check is independent and always
// runs. Every check is a [health.Checker], so the debug listener's /readyz
// probe can reuse them.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/frontdesk/internal/health"
	"github.com/MrWong99/frontdesk/internal/scheduling"
	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/s2s"
)

// Check names.
const (
	CheckAuth       = "auth"
	CheckMicrophone = "microphone"
	CheckSocket     = "socket"
	CheckWebhook    = "webhook"
)

// DefaultSocketHold is how long the socket check keeps the session open.
const DefaultSocketHold = 1500 * time.Millisecond

// socketInstructions is the system instruction of the probe session.
const socketInstructions = "Ping"

var (
	ErrNoCredential = errors.New("diagnostics: no API key found")

	// ErrRemoteClosed is returned by the socket check when the backend ends
	// the probe session before the hold time elapsed.
	ErrRemoteClosed = errors.New("diagnostics: session closed by remote")
)

// Pinger posts a request to one webhook URL. Implemented by
// [scheduling.Client].
type Pinger interface {
	Ping(ctx context.Context, url string, req scheduling.Request) (scheduling.Response, error)
}

var _ Pinger = (*scheduling.Client)(nil)

// AuthCheck passes when credential is set.
func AuthCheck(credential string) health.Checker {
	return health.Checker{
		Name: CheckAuth,
		Check: func(context.Context) error {
			if credential == "" {
				return ErrNoCredential
			}
			return nil
		},
	}
}

// MicrophoneCheck opens the capture device at rate and closes it again.
func MicrophoneCheck(dev audio.Device, rate int) health.Checker {
	return health.Checker{
		Name: CheckMicrophone,
		Check: func(ctx context.Context) error {
			mic, err := dev.OpenMicrophone(ctx, rate)
			if err != nil {
				return fmt.Errorf("diagnostics: open microphone: %w", err)
			}
			return mic.Close()
		},
	}
}

// SocketCheck opens a session with the instruction "Ping" and no tools,
// holds it for hold and closes it. It fails when the connect fails or the
// backend ends the session early.
func SocketCheck(tr s2s.Transport, base s2s.SessionConfig, hold time.Duration) health.Checker {
	if hold <= 0 {
		hold = DefaultSocketHold
	}
	return health.Checker{
		Name:    CheckSocket,
		Timeout: hold + 15*time.Second,
		Check: func(ctx context.Context) error {
			cfg := base
			cfg.Instructions = socketInstructions
			cfg.Tools = nil

			conn, err := tr.Connect(ctx, cfg)
			if err != nil {
				return fmt.Errorf("diagnostics: connect: %w", err)
			}
			defer conn.Close()

			timer := time.NewTimer(hold)
			defer timer.Stop()
			msgs := conn.Messages()
			for {
				select {
				case <-timer.C:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				case _, ok := <-msgs:
					if ok {
						continue
					}
					if err := conn.Err(); err != nil {
						return fmt.Errorf("diagnostics: session: %w", err)
					}
					return ErrRemoteClosed
				}
			}
		},
	}
}

// WebhookCheck posts req to url. When resp is non-nil it receives the
// endpoint's answer.
func WebhookCheck(p Pinger, url string, req scheduling.Request, resp *scheduling.Response) health.Checker {
	return health.Checker{
		Name:    CheckWebhook,
		Timeout: scheduling.DefaultTimeout + time.Second,
		Check: func(ctx context.Context) error {
			r, err := p.Ping(ctx, url, req)
			if err != nil {
				return err
			}
			if resp != nil {
				*resp = r
			}
			return nil
		},
	}
}

// TestRequest is the booking the webhook check submits, dated today.
func TestRequest(now time.Time) scheduling.Request {
	return scheduling.Request{
		Name:    "Alex Driver",
		Phone:   "555-0199",
		Email:   "alex.driver@example.com",
		Date:    now.Format(time.DateOnly),
		Time:    "14:00",
		Request: "System Check",
	}
}

// Runner holds what a diagnostics run needs.
type Runner struct {
	Credential string

	Device     audio.Device
	SampleRate int

	Transport s2s.Transport

	// Session is the setup for the socket probe; its instructions and tools
	// are replaced.
	Session s2s.SessionConfig

	// SocketHold defaults to DefaultSocketHold.
	SocketHold time.Duration

	Webhook    Pinger
	WebhookURL string

	// Now defaults to time.Now.
	Now func() time.Time

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Report is the outcome of [Runner.Run].
type Report struct {
	// Connectivity holds auth, microphone and socket in order.
	Connectivity []health.Result

	Webhook health.Result

	// WebhookRequest is the payload that was sent.
	WebhookRequest scheduling.Request

	// WebhookResponse is set when the webhook check passed.
	WebhookResponse scheduling.Response
}

// OK reports whether every check passed.
func (r Report) OK() bool {
	for _, c := range r.Connectivity {
		if !c.OK() {
			return false
		}
	}
	return r.Webhook.OK()
}

// Checkers returns the connectivity checks in run order.
func (r *Runner) Checkers() []health.Checker {
	cfg := r.Session
	if cfg.APIKey == "" {
		cfg.APIKey = r.Credential
	}
	return []health.Checker{
		AuthCheck(r.Credential),
		MicrophoneCheck(r.Device, r.SampleRate),
		SocketCheck(r.Transport, cfg, r.SocketHold),
	}
}

// Run performs the connectivity checks, stopping at the first failure, and
// then the webhook check.
func (r *Runner) Run(ctx context.Context) Report {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	var rep Report
	rep.Connectivity = health.RunUntilFailure(ctx, r.Checkers()...)
	for _, res := range rep.Connectivity {
		log.Info("diagnostics: check", "name", res.Name, "status", res.Status(), "latency", res.Latency)
	}

	rep.WebhookRequest = TestRequest(now())
	wh := health.Run(ctx, WebhookCheck(r.Webhook, r.WebhookURL, rep.WebhookRequest, &rep.WebhookResponse))
	rep.Webhook = wh[0]
	log.Info("diagnostics: check", "name", rep.Webhook.Name, "url", r.WebhookURL,
		"status", rep.Webhook.Status(), "latency", rep.Webhook.Latency)
	return rep
}
