package slack

import (
	"fmt"
	"time"

	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
)

// Dispatch identities. Transitions are identified by their record ID;
// scheduler actions by the conversation, since each fires at most once per
// conversation lifetime; communications by their event time bucket.

func transitionDispatchID(record *model.Transition) string {
	return string(record.ID)
}

func communicationDispatchID(conv *model.Conversation, eventTime time.Time) string {
	return fmt.Sprintf("comm:%s:%d", conv.ID, eventTime.Unix())
}

func warnDispatchID(conv *model.Conversation) string {
	return "warn:" + string(conv.ID)
}

func archiveDispatchID(conv *model.Conversation) string {
	return "archive:" + string(conv.ID)
}

// Message bodies are deliberately plain status lines. Card rendering and
// localization belong to the chat-side presentation layer, not here.

func transitionText(outcome *interfaces.TransitionOutcome) string {
	return fmt.Sprintf("Case %s is now %s (was %s).",
		outcome.Conversation.CaseID, outcome.After, outcome.Before)
}

func communicationText(conv *model.Conversation, body string) string {
	return fmt.Sprintf("New message on case %s:\n%s", conv.CaseID, body)
}

func warnText(conv *model.Conversation, archiveAt time.Time) string {
	return fmt.Sprintf("Case %s has been resolved. This conversation will be archived at %s unless the case is reopened.",
		conv.CaseID, archiveAt.UTC().Format(time.RFC3339))
}

func archiveText(conv *model.Conversation) string {
	return fmt.Sprintf("Case %s stayed resolved through the grace period. Archiving this conversation.",
		conv.CaseID)
}
