package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func useMemoryKeyring(t *testing.T) *keyring.ArrayKeyring {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	prev := openKeyring
	openKeyring = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { openKeyring = prev })
	return ring
}

func TestMailboxPasswordPrefersConfigured(t *testing.T) {
	useMemoryKeyring(t)
	if err := SaveMailboxPassword("exchange@example.com", "from-keyring"); err != nil {
		t.Fatalf("SaveMailboxPassword: %v", err)
	}

	got, err := MailboxPassword("from-env", "exchange@example.com")
	if err != nil {
		t.Fatalf("MailboxPassword: %v", err)
	}
	if got != "from-env" {
		t.Errorf("MailboxPassword = %q, want the configured value", got)
	}
}

func TestSaveAndForgetMailboxPassword(t *testing.T) {
	ring := useMemoryKeyring(t)

	if err := SaveMailboxPassword("exchange@example.com", "s3cret"); err != nil {
		t.Fatalf("SaveMailboxPassword: %v", err)
	}
	item, err := ring.Get("mailbox:exchange@example.com")
	if err != nil {
		t.Fatalf("password not stored under the account key: %v", err)
	}
	if string(item.Data) != "s3cret" {
		t.Errorf("stored %q", item.Data)
	}

	got, err := MailboxPassword("", "exchange@example.com")
	if err != nil || got != "s3cret" {
		t.Fatalf("MailboxPassword = %q, %v", got, err)
	}

	if err := ForgetMailboxPassword("exchange@example.com"); err != nil {
		t.Fatalf("ForgetMailboxPassword: %v", err)
	}
	if _, err := MailboxPassword("", "exchange@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after forgetting, got %v", err)
	}
}

func TestMailboxPasswordMissing(t *testing.T) {
	useMemoryKeyring(t)

	_, err := MailboxPassword("", "nobody@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
