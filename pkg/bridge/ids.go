// Copyright 2024-2026 Aiku AI

package bridge

import "strings"

// ProviderID identifies a chat or a user within one network. Two values are
// equal iff both the network name and the native identifier match.
type ProviderID struct {
	Provider string `json:"provider"`
	Native   string `json:"native"`
}

// NewProviderID creates a ProviderID from a network name and a network-native ID.
func NewProviderID(provider, native string) ProviderID {
	return ProviderID{Provider: provider, Native: native}
}

// String renders the ID as provider:native.
func (id ProviderID) String() string {
	return id.Provider + ":" + id.Native
}

// IsZero reports whether either half of the ID is missing.
func (id ProviderID) IsZero() bool {
	return id.Provider == "" || id.Native == ""
}

// ParseProviderID is the inverse of ProviderID.String. The native part may
// itself contain colons.
func ParseProviderID(s string) (ProviderID, bool) {
	provider, native, ok := strings.Cut(s, ":")
	if !ok || provider == "" || native == "" {
		return ProviderID{}, false
	}
	return ProviderID{Provider: provider, Native: native}, true
}

// Person is the persisted profile of a sender that was promoted with /auth.
// Ordinary senders are never stored.
type Person struct {
	ID          ProviderID `json:"id"`
	DisplayName string     `json:"display_name"`
	ProfileURL  string     `json:"profile_url"`
	IsAdmin     bool       `json:"is_admin"`
}

// Conversation is one chat room on one network. The send capability for a
// conversation is looked up in the Registry by ID.Provider.
type Conversation struct {
	ID    ProviderID `json:"id"`
	Title string     `json:"title"`
}

// DisplayTitle returns the title, or the native ID when the network gave none.
func (c *Conversation) DisplayTitle() string {
	if c == nil {
		return ""
	}
	if c.Title != "" {
		return c.Title
	}
	return c.ID.Native
}
