// Package services – AuthPolicy
//
// Owner-or-admin authorization for listing mutations. Administrators are a
// fixed allow-list of Telegram account ids supplied by configuration.
package services

// AuthPolicy answers "may this Telegram account manage that listing?".
type AuthPolicy struct {
	adminIDs map[int64]struct{}
}

// NewAuthPolicy builds a policy from the configured admin id allow-list.
func NewAuthPolicy(adminIDs []int64) *AuthPolicy {
	m := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		m[id] = struct{}{}
	}
	return &AuthPolicy{adminIDs: m}
}

// IsAdmin reports whether telegramID belongs to the admin allow-list.
func (p *AuthPolicy) IsAdmin(telegramID int64) bool {
	_, ok := p.adminIDs[telegramID]
	return ok
}

// CanManage reports whether telegramID may mutate a listing owned by
// ownerTelegramID. Owners manage their own listings; admins manage any.
func (p *AuthPolicy) CanManage(telegramID, ownerTelegramID int64) bool {
	return telegramID == ownerTelegramID || p.IsAdmin(telegramID)
}
