//go:build !windows

package condition

import (
	"errors"

	"github.com/hashicorp/go-version"
)

func resourceVersion(string) (*version.Version, error) {
	return nil, errors.New("no version resources on this platform")
}
