package core

import (
	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// Validate checks that d can be registered. It does not check the factory,
// which is verified when an instance is created.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return memerrors.New(memerrors.ErrorTypeValidation, "connector name is empty")
	}
	if d.ABIVersion != ABIVersion {
		return memerrors.Newf(memerrors.ErrorTypePluginLoadFailed,
			"connector %s has ABI version %d, want %d", d.Name, d.ABIVersion, ABIVersion).
			WithDetail("connector", d.Name).
			WithDetail("abi_version", d.ABIVersion)
	}
	return nil
}
