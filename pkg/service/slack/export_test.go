package slack

// Export internal functions for testing
var (
	TransitionText          = transitionText
	WarnText                = warnText
	ArchiveText             = archiveText
	CommunicationText       = communicationText
	TransitionDispatchID    = transitionDispatchID
	CommunicationDispatchID = communicationDispatchID
	WarnDispatchID          = warnDispatchID
	ArchiveDispatchID       = archiveDispatchID
)
