//go:build windows

package platform

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

type windowsRegistry struct{}

// NewRegistryStore returns the native registry store.
func NewRegistryStore() RegistryStore {
	return windowsRegistry{}
}

func rootKey(name string) registry.Key {
	switch name {
	case "HKEY_LOCAL_MACHINE":
		return registry.LOCAL_MACHINE
	case "HKEY_CLASSES_ROOT":
		return registry.CLASSES_ROOT
	case "HKEY_USERS":
		return registry.USERS
	case "HKEY_CURRENT_CONFIG":
		return registry.CURRENT_CONFIG
	default:
		return registry.CURRENT_USER
	}
}

func (windowsRegistry) Get(keyPath, name string) (RegistryValue, bool, error) {
	root, sub, err := SplitRegistryPath(keyPath)
	if err != nil {
		return RegistryValue{}, false, err
	}
	k, err := registry.OpenKey(rootKey(root), sub, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return RegistryValue{}, false, nil
		}
		return RegistryValue{}, false, fmt.Errorf("open key %s: %w", keyPath, err)
	}
	defer k.Close()

	_, valType, err := k.GetValue(name, nil)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return RegistryValue{}, false, nil
		}
		return RegistryValue{}, false, fmt.Errorf("query value %s: %w", name, err)
	}

	switch valType {
	case registry.SZ, registry.EXPAND_SZ:
		s, _, err := k.GetStringValue(name)
		kind := KindString
		if valType == registry.EXPAND_SZ {
			kind = KindExpandString
		}
		return RegistryValue{Kind: kind, String: s}, true, err
	case registry.DWORD, registry.QWORD:
		n, _, err := k.GetIntegerValue(name)
		kind := KindDWord
		if valType == registry.QWORD {
			kind = KindQWord
		}
		return RegistryValue{Kind: kind, Integer: n}, true, err
	case registry.MULTI_SZ:
		ss, _, err := k.GetStringsValue(name)
		return RegistryValue{Kind: KindMultiString, Strings: ss}, true, err
	default:
		b, _, err := k.GetBinaryValue(name)
		return RegistryValue{Kind: KindBinary, Binary: b}, true, err
	}
}

func (windowsRegistry) Set(keyPath, name string, value RegistryValue) error {
	root, sub, err := SplitRegistryPath(keyPath)
	if err != nil {
		return err
	}
	k, _, err := registry.CreateKey(rootKey(root), sub, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("create key %s: %w", keyPath, err)
	}
	defer k.Close()

	switch value.Kind {
	case KindExpandString:
		return k.SetExpandStringValue(name, value.String)
	case KindDWord:
		return k.SetDWordValue(name, uint32(value.Integer))
	case KindQWord:
		return k.SetQWordValue(name, value.Integer)
	case KindBinary:
		return k.SetBinaryValue(name, value.Binary)
	case KindMultiString:
		return k.SetStringsValue(name, value.Strings)
	default:
		return k.SetStringValue(name, value.String)
	}
}

func (windowsRegistry) Delete(keyPath, name string) error {
	root, sub, err := SplitRegistryPath(keyPath)
	if err != nil {
		return err
	}
	k, err := registry.OpenKey(rootKey(root), sub, registry.SET_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open key %s: %w", keyPath, err)
	}
	defer k.Close()

	if err := k.DeleteValue(name); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("delete value %s: %w", name, err)
	}
	return nil
}
