// Package notify contains the Telegram bot integration: admin notifications
// about marketplace events and the channel-subscription gate.
package notify

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/cubamarket/go-classifieds-backend/internal/domain"
)

// Notifier delivers out-of-band event notifications to the marketplace
// admin. Implementations must be safe for concurrent use; delivery is
// best-effort and failures never block the request that triggered them.
type Notifier interface {
	// NewUser announces a first-time seller.
	NewUser(ctx context.Context, u *domain.User)
	// ListingDeletedByAdmin records a moderation delete for the audit trail.
	ListingDeletedByAdmin(ctx context.Context, l *domain.Listing, adminTelegramID int64)
}

// SubscriptionChecker verifies that a Telegram account follows the
// marketplace channel.
type SubscriptionChecker interface {
	IsSubscribed(ctx context.Context, telegramID int64) (bool, error)
}

// TelegramClient is the slice of the bot API used here. *tgbot.Bot
// implements it; tests substitute a fake.
type TelegramClient interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
	GetChatMember(ctx context.Context, params *tgbot.GetChatMemberParams) (*models.ChatMember, error)
}

// NewBot creates the underlying Telegram bot client. The default update
// handler is a no-op; this service only sends messages and queries
// membership, it does not consume updates.
func NewBot(token string) (*tgbot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	b, err := tgbot.New(token, tgbot.WithDefaultHandler(func(context.Context, *tgbot.Bot, *models.Update) {}))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return b, nil
}

// TelegramNotifier sends admin notifications through the bot API.
type TelegramNotifier struct {
	client      TelegramClient
	adminChatID int64
	log         zerolog.Logger
}

// NewTelegramNotifier wires a notifier to the primary admin's chat.
func NewTelegramNotifier(client TelegramClient, adminChatID int64, log zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{client: client, adminChatID: adminChatID, log: log}
}

// NewUser implements Notifier.
func (n *TelegramNotifier) NewUser(ctx context.Context, u *domain.User) {
	if n.adminChatID == 0 {
		return
	}
	name := "(sin nombre)"
	if u.FirstName != nil && *u.FirstName != "" {
		name = *u.FirstName
	}
	uname := ""
	if u.Username != nil && *u.Username != "" {
		uname = " @" + *u.Username
	}
	text := fmt.Sprintf("👤 Nuevo usuario: %s%s (id %d)", name, uname, u.TelegramID)
	if _, err := n.client.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: n.adminChatID, Text: text}); err != nil {
		n.log.Warn().Err(err).Int64("telegram_id", u.TelegramID).Msg("new-user notification failed")
	}
}

// ListingDeletedByAdmin implements Notifier.
func (n *TelegramNotifier) ListingDeletedByAdmin(ctx context.Context, l *domain.Listing, adminTelegramID int64) {
	if n.adminChatID == 0 {
		return
	}
	text := fmt.Sprintf("🗑 Anuncio #%d (%q) eliminado por el administrador %d", l.ID, l.Title, adminTelegramID)
	if _, err := n.client.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: n.adminChatID, Text: text}); err != nil {
		n.log.Warn().Err(err).Int64("listing_id", l.ID).Msg("admin-delete notification failed")
	}
}

// NoopNotifier drops all notifications. Used when no bot token is
// configured, keeping the service layer free of nil checks.
type NoopNotifier struct{}

// NewUser implements Notifier.
func (NoopNotifier) NewUser(context.Context, *domain.User) {}

// ListingDeletedByAdmin implements Notifier.
func (NoopNotifier) ListingDeletedByAdmin(context.Context, *domain.Listing, int64) {}

// ChannelChecker gates publishing on membership in the marketplace channel.
type ChannelChecker struct {
	client  TelegramClient
	channel string // e.g. "@CubaClasificados"
}

// NewChannelChecker builds a SubscriptionChecker for the given channel.
func NewChannelChecker(client TelegramClient, channel string) *ChannelChecker {
	return &ChannelChecker{client: client, channel: channel}
}

// IsSubscribed reports whether telegramID is a member, administrator, or
// owner of the channel. Left, banned, and restricted members do not count.
func (c *ChannelChecker) IsSubscribed(ctx context.Context, telegramID int64) (bool, error) {
	m, err := c.client.GetChatMember(ctx, &tgbot.GetChatMemberParams{
		ChatID: c.channel,
		UserID: telegramID,
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	switch m.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true, nil
	}
	return false, nil
}

// AlwaysSubscribed reports every account as subscribed. Used when no bot
// token or channel is configured.
type AlwaysSubscribed struct{}

// IsSubscribed implements SubscriptionChecker.
func (AlwaysSubscribed) IsSubscribed(context.Context, int64) (bool, error) { return true, nil }
