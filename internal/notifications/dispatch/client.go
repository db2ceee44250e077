// Package dispatch sends rendered notifications through external messaging providers.
package dispatch

import (
	"context"
	"sort"

	apperrors "kennel-notifications/internal/common/errors"
	"kennel-notifications/internal/models"
)

// Message is one outbound send. To is already in the channel's wire format.
// WhatsApp renders provider-side from TemplateName and Variables taken in
// ParameterOrder; SMS and email send the locally rendered Subject and Body.
type Message struct {
	Channel        models.Channel
	To             string
	TemplateName   string
	Language       string
	Variables      map[string]string
	ParameterOrder []string
	Subject        string
	Body           string
	IdempotencyKey string
}

// Client performs exactly one provider call per Send and never retries.
type Client interface {
	Send(ctx context.Context, msg Message) (models.DispatchResult, error)
}

// ChannelClient is a Client bound to one provider.
type ChannelClient interface {
	Client
	Provider() string
}

// Router picks the ChannelClient registered for msg.Channel.
type Router struct {
	clients map[models.Channel]ChannelClient
}

func NewRouter() *Router {
	return &Router{clients: map[models.Channel]ChannelClient{}}
}

func (r *Router) Register(channel models.Channel, c ChannelClient) *Router {
	r.clients[channel] = c
	return r
}

// Channels lists registered channels in a stable order.
func (r *Router) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(r.clients))
	for ch := range r.clients {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Router) Send(ctx context.Context, msg Message) (models.DispatchResult, error) {
	c, ok := r.clients[msg.Channel]
	if !ok {
		err := apperrors.NewChannelNotConfiguredError(string(msg.Channel))
		return failure(err), err
	}
	return c.Send(ctx, msg)
}

func success(providerMessageID string) models.DispatchResult {
	return models.DispatchResult{Success: true, ProviderMessageID: providerMessageID}
}

func failure(err error) models.DispatchResult {
	return models.DispatchResult{Success: false, Error: err.Error()}
}
