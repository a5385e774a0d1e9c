package config

import "fmt"

// Session slot names. Each slot is persisted independently.
const (
	SlotAccessToken  = "access_token"
	SlotRefreshToken = "refresh_token"
	SlotCurrentUser  = "current_user"
)

// Slots lists every session slot.
var Slots = []string{SlotAccessToken, SlotRefreshToken, SlotCurrentUser}

type SlotKeyStruct struct {
	prefix string
}

func NewSlotKeyStruct(prefix string) *SlotKeyStruct {
	return &SlotKeyStruct{prefix: prefix}
}

// Key returns the storage key of a session slot.
func (k *SlotKeyStruct) Key(slot string) string {
	if k.prefix == "" {
		return slot
	}
	return fmt.Sprintf("%s:%s", k.prefix, slot)
}

// AccessTokenKey returns the key of the access token slot.
func (k *SlotKeyStruct) AccessTokenKey() string {
	return k.Key(SlotAccessToken)
}

// RefreshTokenKey returns the key of the refresh token slot.
func (k *SlotKeyStruct) RefreshTokenKey() string {
	return k.Key(SlotRefreshToken)
}

// CurrentUserKey returns the key of the serialized identity slot.
func (k *SlotKeyStruct) CurrentUserKey() string {
	return k.Key(SlotCurrentUser)
}
