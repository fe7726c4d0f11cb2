package email

import (
	"context"

	"github.com/google/uuid"
	gateway "github.com/nimasrn/studio-gateway/internal/gateways"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/pkg/errors"
)

// EmailGateway is the HTTP email API client.
type EmailGateway interface {
	SendEmail(ctx context.Context, req *gateway.SendEmailRequest) (*gateway.SendEmailResponse, error)
}

// APISender delivers through a transactional email HTTP API.
type APISender struct {
	gw   EmailGateway
	from string
}

func NewAPISender(gw EmailGateway, from string) *APISender {
	return &APISender{gw: gw, from: from}
}

func (s *APISender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	req := &gateway.SendEmailRequest{
		ID:      uuid.NewString(),
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		Tag:     msg.Template,
	}
	resp, err := s.gw.SendEmail(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "email api send %s", req.ID)
	}
	logger.Debug("email accepted", "id", resp.ID, "provider", resp.Provider, "status", resp.Status, "template", msg.Template)
	return nil
}
