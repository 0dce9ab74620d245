// Package secrets resolves the Telegram bot token.
package secrets

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups the tool's entries in the OS keychain.
const KeyringService = "albowatch"

// Source tells where a token came from. It is safe to log.
type Source string

const (
	SourceNone    Source = ""
	SourceConfig  Source = "config" // config file or TELEGRAM_TOKEN
	SourceKeyring Source = "keyring"
)

var ErrNotFound = errors.New("telegram token not found (set TELEGRAM_TOKEN or store it in the keychain)")

// TelegramToken returns configured when set, else the keyring entry for
// keyringAccount. Keyring failures other than "not found" are returned so the
// caller can log them; the run continues with sending disabled.
func TelegramToken(configured, keyringAccount string) (string, Source, error) {
	if tok := strings.TrimSpace(configured); tok != "" {
		return tok, SourceConfig, nil
	}
	account := strings.TrimSpace(keyringAccount)
	if account == "" {
		return "", SourceNone, ErrNotFound
	}
	tok, err := keyring.Get(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", SourceNone, ErrNotFound
	}
	if err != nil {
		return "", SourceNone, err
	}
	if strings.TrimSpace(tok) == "" {
		return "", SourceNone, ErrNotFound
	}
	return strings.TrimSpace(tok), SourceKeyring, nil
}

// SetTelegramToken stores token in the OS keychain under keyringAccount.
func SetTelegramToken(keyringAccount, token string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(token) == "" {
		return errors.New("token is empty")
	}
	return keyring.Set(KeyringService, strings.TrimSpace(keyringAccount), strings.TrimSpace(token))
}

func DeleteTelegramToken(keyringAccount string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, strings.TrimSpace(keyringAccount))
}
