package slack

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/slack-go/slack"
)

const (
	// DefaultAPITimeout bounds every Slack API call
	DefaultAPITimeout = 10 * time.Second

	// dispatchEventType tags outbound messages so consumers can identify
	// and deduplicate engine dispatches by their metadata.
	dispatchEventType = "orthrus_dispatch"
)

// client implements Service interface
type client struct {
	api *slack.Client
}

// Option is a functional option for client configuration
type Option func(*options)

type options struct {
	timeout time.Duration
}

// WithAPITimeout sets the timeout applied to every Slack API call
func WithAPITimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// New creates a new Slack service with the provided bot token
func New(token string, opts ...Option) (Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	o := &options{
		timeout: DefaultAPITimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &client{
		api: slack.New(token, slack.OptionHTTPClient(&http.Client{Timeout: o.timeout})),
	}, nil
}

// post sends one message tagged with the dispatch identity
func (c *client) post(ctx context.Context, channelID, text, dispatchID string) error {
	_, _, err := c.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionMetadata(slack.SlackMetadata{
			EventType: dispatchEventType,
			EventPayload: map[string]interface{}{
				"dispatch_id": dispatchID,
			},
		}),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to post message",
			goerr.V("channel_id", channelID), goerr.V("dispatch_id", dispatchID))
	}
	return nil
}

func (c *client) NotifyTransition(ctx context.Context, outcome *interfaces.TransitionOutcome) error {
	if outcome.Conversation == nil || outcome.Record == nil {
		return goerr.New("transition outcome is not dispatchable",
			goerr.V("result", outcome.Result))
	}

	return c.post(ctx,
		string(outcome.Conversation.ID),
		transitionText(outcome),
		transitionDispatchID(outcome.Record))
}

func (c *client) NotifyCommunication(ctx context.Context, conv *model.Conversation, body string, eventTime time.Time) error {
	return c.post(ctx,
		string(conv.ID),
		communicationText(conv, body),
		communicationDispatchID(conv, eventTime))
}

func (c *client) Warn(ctx context.Context, conv *model.Conversation, archiveAt time.Time) error {
	return c.post(ctx,
		string(conv.ID),
		warnText(conv, archiveAt),
		warnDispatchID(conv))
}

func (c *client) Archive(ctx context.Context, conv *model.Conversation) error {
	if err := c.post(ctx, string(conv.ID), archiveText(conv), archiveDispatchID(conv)); err != nil {
		return err
	}

	if err := c.api.ArchiveConversationContext(ctx, string(conv.ID)); err != nil {
		// A retried archive after a partial failure finds the channel
		// already gone.
		if strings.Contains(err.Error(), "already_archived") {
			return nil
		}
		return goerr.Wrap(err, "failed to archive channel",
			goerr.V("conversation_id", conv.ID), goerr.V("case_id", conv.CaseID))
	}
	return nil
}
