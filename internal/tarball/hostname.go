package tarball

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

const (
	maxHostnameLength = 253
	maxLabelLength    = 63
)

// NormalizeHostname maps name to its lower-case ASCII form, converting
// internationalized labels to punycode, then validates it as an RFC 1123
// host name.
func NormalizeHostname(name string) (string, error) {
	host := strings.TrimSuffix(strings.TrimSpace(name), ".")
	if host == "" {
		return "", errors.New("empty host name")
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("host name %q: %w", host, err)
	}
	host = ascii
	if len(host) > maxHostnameLength {
		return "", fmt.Errorf("host name %q exceeds %d characters", host, maxHostnameLength)
	}
	for _, label := range strings.Split(host, ".") {
		if err := validateLabel(label); err != nil {
			return "", fmt.Errorf("host name %q: %w", host, err)
		}
	}
	return host, nil
}

func validateLabel(label string) error {
	if label == "" {
		return errors.New("empty label")
	}
	if len(label) > maxLabelLength {
		return fmt.Errorf("label %q exceeds %d characters", label, maxLabelLength)
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return fmt.Errorf("label %q starts or ends with a hyphen", label)
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		default:
			return fmt.Errorf("label %q contains %q", label, r)
		}
	}
	return nil
}
