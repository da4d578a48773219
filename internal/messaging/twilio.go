package messaging

import (
	"context"
	"encoding/json"

	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/config"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// messageCreator is the slice of the Twilio REST API used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Twilio sends messages through the Twilio Messages API.
type Twilio struct {
	cfg    config.TwilioConfig
	api    messageCreator
	logger *zap.Logger
}

// NewTwilio builds the adapter. Missing credentials are reported on Send, so the
// application can start without messaging configured.
func NewTwilio(cfg config.TwilioConfig, logger *zap.Logger) *Twilio {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Twilio{cfg: cfg, logger: logger.Named("twilio")}
	if cfg.AccountSID != "" && cfg.AuthToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		t.api = client.Api
	}
	return t
}

// Configured reports whether credentials and a sender are set.
func (t *Twilio) Configured() bool {
	return t.api != nil && t.cfg.WhatsAppFrom != ""
}

// Send delivers msg. The context is checked before the call; the Twilio client
// itself does not accept one.
func (t *Twilio) Send(ctx context.Context, msg Message) (Receipt, error) {
	const op = "twilio.Send"
	if t.api == nil {
		return Receipt{}, apperr.Config(op, "Twilio credentials are not configured. Set TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN in the environment.")
	}
	if t.cfg.WhatsAppFrom == "" {
		return Receipt{}, apperr.Config(op, "Twilio WhatsApp sender is not configured. Set TWILIO_WHATSAPP_FROM in the environment.")
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, apperr.TransportErr(op, err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(senderAddress(t.cfg.WhatsAppFrom))
	params.SetTo(msg.To)
	if t.cfg.ContentSID != "" {
		vars, err := json.Marshal(msg.Variables)
		if err != nil {
			return Receipt{}, apperr.TransportErr(op, err)
		}
		params.SetContentSid(t.cfg.ContentSID)
		params.SetContentVariables(string(vars))
	} else {
		params.SetBody(msg.Body)
	}
	if t.cfg.StatusCallbackURL != "" {
		params.SetStatusCallback(t.cfg.StatusCallbackURL)
	}

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		t.logger.Warn("send failed", zap.String("to", msg.To), zap.Error(err))
		return Receipt{}, apperr.TransportErr(op, err)
	}
	r := Receipt{Status: "sent"}
	if resp != nil && resp.Sid != nil {
		r.SID = *resp.Sid
	}
	if resp != nil && resp.Status != nil && *resp.Status != "" {
		r.Status = *resp.Status
	}
	t.logger.Info("message accepted", zap.String("sid", r.SID), zap.String("status", r.Status))
	return r, nil
}

// QueuesStatus reports whether delivery is confirmed later through the status callback.
func (t *Twilio) QueuesStatus() bool {
	return t.cfg.StatusCallbackURL != ""
}
