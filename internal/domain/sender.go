package domain

import "context"

// ChannelSender delivers one notification over one concrete channel. Sender
// failures are caught per channel by the dispatcher and never abort the other
// channel's attempt.
type ChannelSender interface {
	Channel() Channel
	Send(ctx context.Context, app *Application) error
}
