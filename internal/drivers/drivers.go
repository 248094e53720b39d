// Package drivers registers the drivers built into feditest.
package drivers

import (
	"fmt"

	"feditest/internal/driver"
	"feditest/internal/drivers/sandbox"
	"feditest/internal/drivers/webclient"
)

// RegisterBuiltin adds every built-in driver to reg. version ends up in
// the User-Agent of HTTP based drivers.
func RegisterBuiltin(reg *driver.Registry, version string) error {
	if err := sandbox.Register(reg); err != nil {
		return fmt.Errorf("failed to register sandbox drivers: %w", err)
	}
	if err := webclient.Register(reg, webclient.Options{UserAgent: "feditest/" + version}); err != nil {
		return fmt.Errorf("failed to register webclient driver: %w", err)
	}
	return nil
}
