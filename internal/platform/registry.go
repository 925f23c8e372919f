package platform

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRegistryUnsupported is returned by the registry store on platforms
// without a Windows registry.
var ErrRegistryUnsupported = errors.New("registry is not available on this platform")

// ValueKind names the type of a registry value.
type ValueKind string

const (
	KindString       ValueKind = "String"
	KindExpandString ValueKind = "ExpandString"
	KindDWord        ValueKind = "DWord"
	KindQWord        ValueKind = "QWord"
	KindBinary       ValueKind = "Binary"
	KindMultiString  ValueKind = "MultiString"
)

// RegistryValue is a typed registry value. Exactly one of the payload fields
// is meaningful, selected by Kind.
type RegistryValue struct {
	Kind    ValueKind `json:"kind"`
	String  string    `json:"string,omitempty"`
	Integer uint64    `json:"integer,omitempty"`
	Binary  []byte    `json:"binary,omitempty"`
	Strings []string  `json:"strings,omitempty"`
}

// RegistryStore reads and writes registry values addressed by a full key path
// such as `HKEY_LOCAL_MACHINE\Software\Vendor` and a value name.
type RegistryStore interface {
	Get(keyPath, name string) (RegistryValue, bool, error)
	Set(keyPath, name string, value RegistryValue) error
	Delete(keyPath, name string) error
}

// SplitRegistryPath splits a key path into its root hive and sub key.
func SplitRegistryPath(keyPath string) (string, string, error) {
	keyPath = strings.Trim(strings.ReplaceAll(keyPath, "/", `\`), `\`)
	root, sub, _ := strings.Cut(keyPath, `\`)
	switch strings.ToUpper(root) {
	case "HKEY_LOCAL_MACHINE", "HKLM":
		return "HKEY_LOCAL_MACHINE", sub, nil
	case "HKEY_CURRENT_USER", "HKCU":
		return "HKEY_CURRENT_USER", sub, nil
	case "HKEY_CLASSES_ROOT", "HKCR":
		return "HKEY_CLASSES_ROOT", sub, nil
	case "HKEY_USERS", "HKU":
		return "HKEY_USERS", sub, nil
	case "HKEY_CURRENT_CONFIG", "HKCC":
		return "HKEY_CURRENT_CONFIG", sub, nil
	default:
		return "", "", fmt.Errorf("unknown registry root %q", root)
	}
}

// IsMachineKey reports whether writing under keyPath needs administrative rights.
func IsMachineKey(keyPath string) bool {
	root, _, err := SplitRegistryPath(keyPath)
	if err != nil {
		return false
	}
	return root == "HKEY_LOCAL_MACHINE" || root == "HKEY_CLASSES_ROOT"
}
