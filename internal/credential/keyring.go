// Package credential keeps the mailbox password in the system keyring so it
// never has to live in the configuration file.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "autobiographer"

// ErrNotFound is returned when no password is stored for an account.
var ErrNotFound = errors.New("mailbox password not found")

// openKeyring is replaced in tests with an in-memory keyring.
var openKeyring = openSystemKeyring

func openSystemKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/autobiographer/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("autobiographer-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

func mailboxKey(username string) string {
	return "mailbox:" + username
}

// MailboxPassword returns the configured password when set, otherwise the
// one stored for username in the keyring.
func MailboxPassword(configured, username string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	ring, err := openKeyring()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(mailboxKey(username))
	switch {
	case errors.Is(err, keyring.ErrKeyNotFound):
		return "", fmt.Errorf("%w for %s", ErrNotFound, username)
	case err != nil:
		return "", fmt.Errorf("reading mailbox password for %s: %w", username, err)
	}
	return string(item.Data), nil
}

// SaveMailboxPassword stores the password for username, replacing any
// previous one.
func SaveMailboxPassword(username, password string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	err = ring.Set(keyring.Item{
		Key:   mailboxKey(username),
		Data:  []byte(password),
		Label: "autobiographer mailbox " + username,
	})
	if err != nil {
		return fmt.Errorf("storing mailbox password for %s: %w", username, err)
	}
	return nil
}

// ForgetMailboxPassword removes the stored password for username.
func ForgetMailboxPassword(username string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	if err := ring.Remove(mailboxKey(username)); err != nil {
		return fmt.Errorf("removing mailbox password for %s: %w", username, err)
	}
	return nil
}
