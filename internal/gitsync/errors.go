package gitsync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/repodock/repodock/internal/api"
)

// Sentinel sync failures, distinguished so callers can report actionable
// detail instead of a generic "pull failed".
var (
	ErrAuthenticationFailed = errors.New("repository authentication failed")
	ErrNetworkUnreachable   = errors.New("repository network unreachable")
	ErrRepositoryNotFound   = errors.New("remote repository not found")
	ErrSyncTimeout          = errors.New("repository sync timed out")
)

// Classify wraps a raw go-git error in the matching sentinel. Errors that fit
// no category are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return fmt.Errorf("%w: %v", ErrRepositoryNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrSyncTimeout, err)
	}

	// A rejected deploy key never reaches the transport sentinels: the SSH
	// layer reports it as a raw handshake error. Host key verification
	// failures land here too.
	var hostKeyErr *knownhosts.KeyError
	if errors.As(err, &hostKeyErr) {
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if msg := err.Error(); strings.Contains(msg, "ssh: unable to authenticate") ||
		strings.Contains(msg, "ssh: handshake failed") ||
		strings.Contains(msg, "knownhosts: key mismatch") {
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrSyncTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}

	return err
}

// ErrorKind maps a classified error to its wire-level kind string.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthenticationFailed):
		return api.ErrorKindAuthenticationFailed
	case errors.Is(err, ErrNetworkUnreachable):
		return api.ErrorKindNetworkUnreachable
	case errors.Is(err, ErrRepositoryNotFound):
		return api.ErrorKindRepositoryNotFound
	case errors.Is(err, ErrSyncTimeout):
		return api.ErrorKindSyncTimeout
	default:
		return api.ErrorKindSyncFailed
	}
}
