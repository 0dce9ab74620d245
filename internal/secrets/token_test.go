package secrets

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestTelegramToken(t *testing.T) {
	keyring.MockInit()

	if tok, src, err := TelegramToken(" abc ", "bot"); err != nil || tok != "abc" || src != SourceConfig {
		t.Fatalf("configured: %q %q %v", tok, src, err)
	}

	if _, _, err := TelegramToken("", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no account: err = %v", err)
	}
	if _, _, err := TelegramToken("", "bot"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing entry: err = %v", err)
	}

	if err := SetTelegramToken("bot", "123:xyz"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tok, src, err := TelegramToken("", "bot")
	if err != nil || tok != "123:xyz" || src != SourceKeyring {
		t.Fatalf("keyring: %q %q %v", tok, src, err)
	}

	// config wins over keyring
	if tok, _, _ := TelegramToken("from-env", "bot"); tok != "from-env" {
		t.Fatalf("precedence: %q", tok)
	}

	if err := DeleteTelegramToken("bot"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := TelegramToken("", "bot"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: err = %v", err)
	}
}

func TestSetTelegramToken_Validation(t *testing.T) {
	keyring.MockInit()
	if err := SetTelegramToken("", "x"); err == nil {
		t.Fatal("expected error for empty account")
	}
	if err := SetTelegramToken("bot", " "); err == nil {
		t.Fatal("expected error for empty token")
	}
}
