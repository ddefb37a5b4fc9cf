package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jamm-events/backend/internal/emaillogs"
	"github.com/jamm-events/backend/internal/events"
	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/internal/monitoring"
	"github.com/jamm-events/backend/internal/tickets"
	"github.com/jamm-events/backend/pkg/queue"
)

// EmailProcessor processes ticket email jobs: load the confirmed
// purchases, render the mail with their QR payloads, send, log.
type EmailProcessor struct {
	ticketRepo *tickets.Repository
	eventRepo  *events.Repository
	logRepo    *emaillogs.Repository
	mailer     *Mailer
	queue      *queue.Queue
	logger     *zap.Logger
}

// NewEmailProcessor creates a ticket email processor. mailer may be nil
// when SMTP is not configured; jobs are then logged and marked sent.
func NewEmailProcessor(ticketRepo *tickets.Repository, eventRepo *events.Repository,
	logRepo *emaillogs.Repository, mailer *Mailer, q *queue.Queue, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		ticketRepo: ticketRepo,
		eventRepo:  eventRepo,
		logRepo:    logRepo,
		mailer:     mailer,
		queue:      q,
		logger:     logger,
	}
}

// Process executes one ticket email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeTicketEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.TicketEmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	event, err := p.eventRepo.GetByID(ctx, payload.EventID)
	if err != nil {
		return fmt.Errorf("event not found: %s", payload.EventID)
	}

	purchases := make([]*models.PurchasedTicket, 0, len(payload.PurchaseIDs))
	for _, id := range payload.PurchaseIDs {
		pt, err := p.ticketRepo.GetPurchase(ctx, id)
		if err != nil {
			return fmt.Errorf("purchase %s: %w", id, err)
		}
		if pt.PaymentStatus != models.PaymentConfirmed {
			p.logger.Warn("skipping unconfirmed purchase in email job",
				zap.String("purchase_id", id.String()),
				zap.String("status", string(pt.PaymentStatus)))
			continue
		}
		purchases = append(purchases, pt)
	}
	if len(purchases) == 0 {
		p.logger.Warn("email job with no confirmed purchases", zap.String("job_id", job.ID))
		return nil
	}

	entry := &models.EmailLog{
		EventID:    event.ID,
		PurchaseID: &purchases[0].ID,
		EmailType:  payload.EmailType,
		Recipient:  payload.Recipient,
		Subject:    Subject(payload.EmailType, event.Name),
		Status:     models.EmailStatusQueued,
	}
	if err := p.logRepo.Create(ctx, entry); err != nil {
		p.logger.Error("create email log", zap.Error(err))
	}

	if p.mailer == nil {
		p.logger.Info("smtp not configured, skipping send",
			zap.String("recipient", payload.Recipient),
			zap.String("event_id", event.ID.String()))
		p.markSent(ctx, entry)
		monitoring.ObserveEmailJob("skipped")
		return nil
	}

	if err := p.mailer.SendTickets(payload.Recipient, payload.EmailType, event, purchases); err != nil {
		if entry.ID != uuid.Nil {
			if lerr := p.logRepo.MarkFailed(ctx, entry.ID, err.Error()); lerr != nil {
				p.logger.Error("mark email failed", zap.Error(lerr))
			}
		}
		monitoring.ObserveEmailJob("error")
		return fmt.Errorf("send tickets: %w", err)
	}

	p.markSent(ctx, entry)
	monitoring.ObserveEmailJob("ok")
	p.logger.Info("ticket email sent",
		zap.String("recipient", payload.Recipient),
		zap.String("event_id", event.ID.String()),
		zap.Int("purchases", len(purchases)))
	return nil
}

func (p *EmailProcessor) markSent(ctx context.Context, entry *models.EmailLog) {
	if entry.ID == uuid.Nil {
		return
	}
	if err := p.logRepo.MarkSent(ctx, entry.ID); err != nil {
		p.logger.Error("mark email sent", zap.Error(err))
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
