package events

import (
	"testing"

	"landsim/testutil"
)

// Models see the population through the simulation context only; snapshot
// and transport backends are wired by the command.
func TestModelsReachNoBackend(t *testing.T) {
	for _, pattern := range []string{".", "../jobmarket", "../pricing", "../guard"} {
		testutil.AssertNoTransitiveDependency(t, pattern, testutil.BackendImportForbidden, "models run on in-memory registries")
	}
}
