//go:build windows

package condition

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/hashicorp/go-version"
	"golang.org/x/sys/windows"
)

// resourceVersion reads the fixed file version from the VERSIONINFO resource.
func resourceVersion(path string) (*version.Version, error) {
	size, err := windows.GetFileVersionInfoSize(path, nil)
	if err != nil {
		return nil, fmt.Errorf("version info size: %w", err)
	}
	if size == 0 {
		return nil, errors.New("no version resource")
	}
	buf := make([]byte, size)
	if err := windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&buf[0])); err != nil {
		return nil, fmt.Errorf("version info: %w", err)
	}

	var fixed *windows.VS_FIXEDFILEINFO
	var n uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&buf[0]), `\`, unsafe.Pointer(&fixed), &n); err != nil {
		return nil, fmt.Errorf("query version: %w", err)
	}
	if fixed == nil || n == 0 {
		return nil, errors.New("empty version resource")
	}
	return version.NewVersion(fmt.Sprintf("%d.%d.%d.%d",
		fixed.FileVersionMS>>16, fixed.FileVersionMS&0xffff,
		fixed.FileVersionLS>>16, fixed.FileVersionLS&0xffff))
}
