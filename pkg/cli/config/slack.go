package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/service/slack"
	"github.com/urfave/cli/v3"
)

// Slack holds CLI flags for the chat transport
type Slack struct {
	botToken      string
	signingSecret string
}

// Flags returns CLI flags for Slack configuration
func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token (for posting and archiving)",
			Category:    "Slack",
			Sources:     cli.EnvVars("ORTHRUS_SLACK_BOT_TOKEN"),
			Destination: &x.botToken,
		},
		&cli.StringFlag{
			Name:        "slack-signing-secret",
			Usage:       "Signing secret for inbound event verification",
			Category:    "Slack",
			Sources:     cli.EnvVars("ORTHRUS_SLACK_SIGNING_SECRET"),
			Destination: &x.signingSecret,
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.Int("signing-secret.len", len(x.signingSecret)),
	)
}

// BotToken returns the Slack bot token
func (x *Slack) BotToken() string {
	return x.botToken
}

// SigningSecret returns the inbound event signing secret
func (x *Slack) SigningSecret() string {
	return x.signingSecret
}

// IsWebhookConfigured checks if the signed event ingest can be enabled
func (x *Slack) IsWebhookConfigured() bool {
	return x.signingSecret != ""
}

// Configure builds the Slack notifier. It returns nil when no bot token is
// set so the caller can run without outbound notifications.
func (x *Slack) Configure() (slack.Service, error) {
	if x.botToken == "" {
		return nil, nil
	}

	svc, err := slack.New(x.botToken)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize slack service")
	}

	return svc, nil
}
