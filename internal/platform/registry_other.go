//go:build !windows

package platform

type unsupportedRegistry struct{}

// NewRegistryStore returns the native registry store. Outside Windows every
// call fails with ErrRegistryUnsupported.
func NewRegistryStore() RegistryStore {
	return unsupportedRegistry{}
}

func (unsupportedRegistry) Get(string, string) (RegistryValue, bool, error) {
	return RegistryValue{}, false, ErrRegistryUnsupported
}

func (unsupportedRegistry) Set(string, string, RegistryValue) error {
	return ErrRegistryUnsupported
}

func (unsupportedRegistry) Delete(string, string) error {
	return ErrRegistryUnsupported
}
