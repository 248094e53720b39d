package drivers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feditest/internal/driver"
	"feditest/internal/drivers/sandbox"
	"feditest/internal/drivers/webclient"
)

func TestRegisterBuiltin(t *testing.T) {
	reg := driver.NewRegistry()
	require.NoError(t, RegisterBuiltin(reg, "test"))

	assert.ElementsMatch(t, []string{
		sandbox.ClientDriver,
		sandbox.ServerDriver,
		sandbox.LoopServerDriver,
		sandbox.FaultyServerDriver,
		webclient.DriverName,
	}, reg.Names())

	entry, err := reg.Lookup(webclient.DriverName)
	require.NoError(t, err)
	assert.True(t, entry.Capabilities.Has(driver.CapActivityDeliver))
	assert.Contains(t, entry.VolatileFields, "request.body.id")

	assert.Error(t, RegisterBuiltin(reg, "test"), "registering twice must fail")
}
