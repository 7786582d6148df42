package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
)

// HashPassword is the password transform: hex SHA3-256 of the input. The
// empty string passes through so the required check can reject it.
// Hashing is deterministic, so a query on the plain password matches the
// stored hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	sum := sha3.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// NormalizeName trims a user name and puts it in Unicode NFC so visually
// identical names collide on the unique index.
func NormalizeName(name string) (string, error) {
	return norm.NFC.String(strings.TrimSpace(name)), nil
}

var emailFolder = cases.Fold()

// NormalizeEmail case-folds an address.
func NormalizeEmail(email string) (string, error) {
	return emailFolder.String(strings.TrimSpace(email)), nil
}

func nonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("must not be empty")
	}
	return nil
}

func validEmail(s string) error {
	if err := nonEmpty(s); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return errors.New("must be a valid e-mail address")
	}
	return nil
}

func absoluteURL(s string) error {
	u, err := url.ParseRequestURI(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("must be an absolute http(s) URL")
	}
	return nil
}

func optionalURL(s string) error {
	if s == "" {
		return nil
	}
	return absoluteURL(s)
}

func nonNegative(v float64) error {
	if v < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

func positive(v float64) error {
	if v <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func tagList(tags []string) error {
	for i, t := range tags {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("tag %d must not be empty", i)
		}
	}
	return nil
}

func now() time.Time {
	return entity.Clock().UTC()
}
