package profile

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidName is wrapped by every ValidateName failure.
var ErrInvalidName = errors.New("invalid profile name")

// maxSocketPath is the smallest sun_path limit among supported platforms
// (104 on darwin, minus the terminating NUL).
const maxSocketPath = 103

var profileName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateName reports whether name can be used as a profile: it becomes a
// directory under BaseDir, and the daemon socket inside it must still fit
// in a unix socket address. A leading '-' or '_' is rejected so the name is
// never mistaken for a flag.
func ValidateName(name string) error {
	if !profileName.MatchString(name) {
		return fmt.Errorf("%w %q: use 1-64 of [a-z0-9_-], starting with a letter or digit", ErrInvalidName, name)
	}
	if p := SocketPath(name); len(p) > maxSocketPath {
		return fmt.Errorf("%w %q: socket path %s is longer than %d bytes", ErrInvalidName, name, p, maxSocketPath)
	}
	return nil
}
