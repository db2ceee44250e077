package dispatch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	apperrors "kennel-notifications/internal/common/errors"
	httpclient "kennel-notifications/internal/common/http"
	"kennel-notifications/internal/models"
)

const providerWhatsApp = "whatsapp"

// Graph API error codes, see
// https://developers.facebook.com/docs/whatsapp/cloud-api/support/error-codes
var (
	whatsAppAuthCodes      = map[int]bool{0: true, 190: true, 10: true, 200: true}
	whatsAppRateLimitCodes = map[int]bool{4: true, 80007: true, 130429: true, 131048: true, 131056: true}
)

type WhatsAppConfig struct {
	BaseURL         string
	PhoneNumberID   string
	AccessToken     string
	DefaultLanguage string
	Timeout         time.Duration
}

// WhatsAppClient sends template messages through the WhatsApp Cloud API.
type WhatsAppClient struct {
	config WhatsAppConfig
	http   *httpclient.Client
}

func NewWhatsAppClient(cfg WhatsAppConfig) *WhatsAppClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &WhatsAppClient{
		config: cfg,
		http:   httpclient.NewClient(cfg.Timeout),
	}
}

func (c *WhatsAppClient) Provider() string { return providerWhatsApp }

type waRequest struct {
	MessagingProduct      string     `json:"messaging_product"`
	To                    string     `json:"to"`
	Type                  string     `json:"type"`
	Template              waTemplate `json:"template"`
	BizOpaqueCallbackData string     `json:"biz_opaque_callback_data,omitempty"`
}

type waTemplate struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []waComponent `json:"components,omitempty"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *waError `json:"error"`
}

type waError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	FBTraceID    string `json:"fbtrace_id"`
}

func (c *WhatsAppClient) Send(ctx context.Context, msg Message) (models.DispatchResult, error) {
	lang := msg.Language
	if lang == "" {
		lang = c.config.DefaultLanguage
	}

	req := waRequest{
		MessagingProduct:      "whatsapp",
		To:                    msg.To,
		Type:                  "template",
		Template:              waTemplate{Name: msg.TemplateName, Language: waLanguage{Code: lang}},
		BizOpaqueCallbackData: msg.IdempotencyKey,
	}
	if len(msg.ParameterOrder) > 0 {
		params := make([]waParameter, len(msg.ParameterOrder))
		for i, key := range msg.ParameterOrder {
			params[i] = waParameter{Type: "text", Text: msg.Variables[key]}
		}
		req.Template.Components = []waComponent{{Type: "body", Parameters: params}}
	}

	url := fmt.Sprintf("%s/%s/messages", c.config.BaseURL, c.config.PhoneNumberID)
	resp, err := c.http.PostJSON(ctx, url, c.config.AccessToken, req)
	if err != nil {
		err = classifyTransportError(providerWhatsApp, err)
		return failure(err), err
	}

	var body waResponse
	decodeErr := json.Unmarshal(resp.Body, &body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(body.Messages) == 0 || body.Messages[0].ID == "" {
			err := apperrors.NewProviderRejectedError(providerWhatsApp, "response carried no message id")
			return failure(err), err
		}
		return success(body.Messages[0].ID), nil
	}

	var raw []byte
	if decodeErr != nil {
		raw = resp.Body
	}
	err = classifyWhatsAppError(resp.StatusCode, body.Error, raw)
	return failure(err), err
}

// maxRawBodyDetail caps how much of an undecodable error body is kept.
const maxRawBodyDetail = 512

func classifyWhatsAppError(status int, e *waError, raw []byte) error {
	details := fmt.Sprintf("status %d", status)
	code := -1
	if len(raw) > 0 {
		if len(raw) > maxRawBodyDetail {
			raw = raw[:maxRawBodyDetail]
		}
		details = fmt.Sprintf("status %d, body: %s", status, strings.TrimSpace(string(raw)))
	}
	if e != nil {
		code = e.Code
		details = fmt.Sprintf("status %d, code %d: %s", status, e.Code, e.Message)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || whatsAppAuthCodes[code]:
		return apperrors.NewProviderAuthFailedError(providerWhatsApp, stderrors.New(details))
	case status == http.StatusTooManyRequests || whatsAppRateLimitCodes[code]:
		return apperrors.NewProviderRateLimitedError(providerWhatsApp, details)
	case status >= 500:
		return apperrors.NewProviderUnavailableError(providerWhatsApp, stderrors.New(details))
	default:
		return apperrors.NewProviderRejectedError(providerWhatsApp, details)
	}
}

// classifyTransportError maps errors raised before a provider answered.
func classifyTransportError(provider string, err error) error {
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewDispatchTimeoutError(provider, err)
	}
	return apperrors.NewProviderUnavailableError(provider, err)
}
