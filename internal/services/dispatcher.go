package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/observability"
	"github.com/tbourn/smsbridge-chat/internal/repo"
	"github.com/tbourn/smsbridge-chat/internal/sms"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Prefixes recording the SMS leg's outcome on the saved message.
const (
	SMSSentPrefix   = "[SMS] "
	SMSFailedPrefix = "[SMS Failed] "
)

// Dispatcher routes outbound messages: internal only, or internal plus an
// SMS through the gateway.
type Dispatcher struct {
	Messages   *MessageService
	Gateway    sms.Gateway
	Suppressor *Suppressor
	WebsiteURL string
}

// SMSOutcome reports both legs of SendWithSMSFallback.
type SMSOutcome struct {
	Message      *domain.Message `json:"message"`
	Delivered    bool            `json:"delivered"`
	SMSAttempted bool            `json:"sms_attempted"`
	SMSError     string          `json:"sms_error,omitempty"`
	GatewayID    string          `json:"gateway_message_id,omitempty"`
}

// SendInternal stores content as the session's role. Users always write to
// their own conversation; the admin must name one.
func (d *Dispatcher) SendInternal(ctx context.Context, sess domain.Session, profileID, content string) (*domain.Message, error) {
	target, err := d.target("SendInternal", sess, profileID)
	if err != nil {
		return nil, err
	}
	return d.Messages.Append(ctx, target, sess.Role(), content)
}

// SendWithSMSFallback texts content to the user and always saves the
// message, prefixed with the SMS outcome. A gateway failure is reported in
// the outcome, not as an error. A suppressed repeat saves nothing and
// returns ErrDuplicateSuppressed.
func (d *Dispatcher) SendWithSMSFallback(ctx context.Context, sess domain.Session, profileID, content string) (*SMSOutcome, error) {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "SendWithSMSFallback",
		trace.WithAttributes(attribute.String("profile.id", profileID)),
	)
	defer span.End()

	const op = "SendWithSMSFallback"
	if !sess.IsAdmin {
		return nil, forbiddenErr(op, "only the admin can send SMS")
	}
	target, err := d.target(op, sess, profileID)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationErr(op, "message content is empty")
	}
	p, err := repo.GetProfile(ctx, d.Messages.DB, target)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFoundErr(op, "profile %s not found", target)
	}
	if err != nil {
		return nil, err
	}

	if d.Suppressor != nil {
		if err := d.Suppressor.Check(ctx, SendKey{Destination: p.PhoneNumber, Content: content, SessionID: sess.ID}); err != nil {
			if errors.Is(err, ErrDuplicateSuppressed) {
				observability.SMSDispatched(observability.SMSSuppressed)
				span.SetAttributes(attribute.Bool("suppressed", true))
				log.Info().Str("profile_id", target).Msg("duplicate sms suppressed")
			}
			return nil, err
		}
	}

	out := &SMSOutcome{SMSAttempted: true}
	res := d.Gateway.Send(ctx, p.PhoneNumber, sms.FormatMessage(content, d.WebsiteURL))
	stored := SMSSentPrefix + content
	if res.Success {
		out.Delivered = true
		out.GatewayID = res.MessageID
		observability.SMSDispatched(observability.SMSDelivered)
	} else {
		gwErr := &Error{Kind: ErrGateway, Op: op, Reason: "SMS not sent: " + res.Error}
		out.SMSError = gwErr.Reason
		stored = SMSFailedPrefix + content
		observability.SMSDispatched(observability.SMSFailed)
		span.SetStatus(codes.Error, gwErr.Error())
		log.Warn().Str("profile_id", target).Str("reason", res.Error).Msg("sms gateway rejected send")
	}

	m, err := d.Messages.Append(ctx, target, domain.RoleAdmin, stored)
	if err != nil {
		return out, err
	}
	out.Message = m
	return out, nil
}

func (d *Dispatcher) target(op string, sess domain.Session, profileID string) (string, error) {
	profileID = strings.TrimSpace(profileID)
	if !sess.IsAdmin {
		if profileID != "" && profileID != sess.ProfileID {
			return "", forbiddenErr(op, "users can only write to their own conversation")
		}
		return sess.ProfileID, nil
	}
	switch profileID {
	case "":
		return "", validationErr(op, "profile_id is required")
	case sess.ProfileID:
		return "", validationErr(op, "the admin has no conversation with itself")
	}
	return profileID, nil
}
