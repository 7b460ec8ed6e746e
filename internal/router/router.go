package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"alertgateway/internal/domain"
	"alertgateway/internal/metrics"
	"alertgateway/internal/notify"
)

// ZoomSender delivers to Zoom webhooks.
type ZoomSender interface {
	Send(ctx context.Context, recipient, authorization string, alert domain.AlertEvent) (notify.Result, error)
}

// TeamsSender delivers to Microsoft Teams webhooks.
type TeamsSender interface {
	Send(ctx context.Context, recipient string, alert domain.AlertEvent) (notify.Result, error)
}

// EmailSender delivers email; it reports failures in Result only.
type EmailSender interface {
	Send(ctx context.Context, recipient string, alert domain.AlertEvent) notify.Result
}

// Senders groups channel implementations used by Router.
type Senders struct {
	Zoom  ZoomSender
	Teams TeamsSender
	Email EmailSender
}

// Router resolves destination services for a queue message and invokes matching senders.
// Params: immutable service table, senders, logger, and metrics.
// Returns: message handler for the queue consumer.
type Router struct {
	services map[int]domain.ServiceRecord
	senders  Senders
	logger   *slog.Logger
	metrics  *metrics.Registry
}

// New builds router over a static service table.
// Params: service records, senders, logger, and optional metrics registry.
// Returns: router ready for concurrent Route calls.
func New(services []domain.ServiceRecord, senders Senders, logger *slog.Logger, registry *metrics.Registry) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	table := make(map[int]domain.ServiceRecord, len(services))
	for _, service := range services {
		table[service.ID] = service
	}
	return &Router{services: table, senders: senders, logger: logger, metrics: registry}
}

// Route decodes one message body and delivers it to every listed service.
// Every service id is attempted even when an earlier one fails.
// Params: ctx, raw body, and service ids from message envelope.
// Returns: nil, failure.DecodeError, or joined delivery failures (caller requeues on any error).
func (r *Router) Route(ctx context.Context, body []byte, serviceIDs []int) error {
	alert, err := domain.DecodeAlert(body)
	if err != nil {
		return err
	}

	var errs []error
	for _, serviceID := range serviceIDs {
		service, ok := r.services[serviceID]
		if !ok {
			r.metrics.LookupMiss()
			r.logger.Warn("service not found", "service_id", serviceID)
			continue
		}
		r.logger.Info("selected service", "service_id", service.ID, "type", service.Type())
		if err := r.dispatch(ctx, service, alert); err != nil {
			r.logger.Error("delivery failed", "service_id", service.ID, "type", service.Type(), "error", err)
			errs = append(errs, fmt.Errorf("service %d: %w", service.ID, err))
		}
	}
	return errors.Join(errs...)
}

// dispatch sends alert to one service by kind.
// Params: ctx, resolved service, and alert.
// Returns: delivery error for webhook kinds; email never fails the message.
func (r *Router) dispatch(ctx context.Context, service domain.ServiceRecord, alert domain.AlertEvent) error {
	switch kind := service.Kind.(type) {
	case domain.ZoomKind:
		_, err := r.senders.Zoom.Send(ctx, service.Recipient, kind.Authorization, alert)
		r.observe(notify.ChannelZoom, err == nil)
		return err
	case domain.MSTeamsKind:
		_, err := r.senders.Teams.Send(ctx, service.Recipient, alert)
		r.observe(notify.ChannelMSTeams, err == nil)
		return err
	case domain.SMTPKind:
		result := r.senders.Email.Send(ctx, service.Recipient, alert)
		r.observe(notify.ChannelEmail, result.Status == notify.StatusSuccess)
		return nil
	default:
		r.metrics.UnknownKind()
		r.logger.Warn("unsupported service type", "service_id", service.ID, "type", service.Type())
		return nil
	}
}

func (r *Router) observe(channel string, ok bool) {
	if ok {
		r.metrics.Delivery(channel, metrics.OutcomeSuccess)
		return
	}
	r.metrics.Delivery(channel, metrics.OutcomeError)
}
