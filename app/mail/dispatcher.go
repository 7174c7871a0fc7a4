package mail

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/gopinions/auth-service/app/observability/metrics"
)

// JobKind selects the message template for a notification job.
type JobKind string

const (
	JobVerification    JobKind = "verification"
	JobWelcome         JobKind = "welcome"
	JobPasswordReset   JobKind = "password_reset"
	JobPasswordChanged JobKind = "password_changed"
)

// Job is one queued notification. Token is empty for kinds that carry no
// link (welcome, password changed).
type Job struct {
	Kind  JobKind
	To    string
	Name  string
	Token string
}

// Dispatcher delivers notification jobs on a background worker. Enqueue
// never blocks the caller and delivery failures are terminal: they are
// logged and counted, never surfaced or retried.
type Dispatcher struct {
	logger  *slog.Logger
	sender  Sender
	baseURL string
	jobs    chan Job
	cancel  context.CancelFunc
	group   *errgroup.Group
}

func NewDispatcher(sender Sender, baseURL string, logger *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	d := &Dispatcher{
		logger:  logger,
		sender:  sender,
		baseURL: baseURL,
		jobs:    make(chan Job, 64),
		cancel:  cancel,
		group:   g,
	}
	g.Go(func() error {
		d.run(ctx)
		return nil
	})
	return d
}

// Enqueue hands a job to the worker without waiting for delivery. When the
// queue is full the job is dropped; the drop is observable only via logs,
// matching the fire-and-forget contract.
func (d *Dispatcher) Enqueue(job Job) {
	select {
	case d.jobs <- job:
	default:
		d.logger.Error("Notification queue full, dropping job",
			slog.String("kind", string(job.Kind)),
			slog.String("to", job.To))
		metrics.Get().NotificationsFailed.Add(context.Background(), 1)
	}
}

// Close stops the worker after draining queued jobs.
func (d *Dispatcher) Close() {
	close(d.jobs)
	d.cancel()
	_ = d.group.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	for job := range d.jobs {
		subject, body := d.render(job)
		if err := d.sender.Send(job.To, subject, body); err != nil {
			d.logger.Error("Notification delivery failed",
				slog.String("kind", string(job.Kind)),
				slog.String("to", job.To),
				slog.Any("error", err))
			metrics.Get().NotificationsFailed.Add(ctx, 1)
			continue
		}
		d.logger.Info("Notification delivered",
			slog.String("kind", string(job.Kind)),
			slog.String("to", job.To))
		metrics.Get().NotificationsDispatched.Add(ctx, 1)
	}
}

func (d *Dispatcher) render(job Job) (subject, body string) {
	switch job.Kind {
	case JobVerification:
		link := fmt.Sprintf("%s/api/v1/auth/verify-email/%s", d.baseURL, job.Token)
		return "Verify your email address",
			fmt.Sprintf(`<p>Hi %s,</p><p>Please confirm your account by clicking <a href=%q>this link</a>. The link expires in 24 hours.</p>`, job.Name, link)
	case JobWelcome:
		return "Welcome aboard",
			fmt.Sprintf(`<p>Hi %s,</p><p>Your email has been verified. You can now sign in.</p>`, job.Name)
	case JobPasswordReset:
		link := fmt.Sprintf("%s/reset-password?token=%s", d.baseURL, job.Token)
		return "Password reset requested",
			fmt.Sprintf(`<p>Hi %s,</p><p>Reset your password via <a href=%q>this link</a>. The link expires in 1 hour. If you did not request this, ignore this email.</p>`, job.Name, link)
	case JobPasswordChanged:
		return "Your password was changed",
			fmt.Sprintf(`<p>Hi %s,</p><p>Your password has just been changed. If this was not you, contact support immediately.</p>`, job.Name)
	default:
		return "Notification", fmt.Sprintf("<p>Hi %s,</p>", job.Name)
	}
}
