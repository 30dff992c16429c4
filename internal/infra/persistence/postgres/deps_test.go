package postgres

import (
	"go/build"
	"strings"
	"testing"
)

// Snapshot backends may depend on the domain package and third-party
// drivers only; engine packages reach them through internal/snapshot.
func TestImportsAreDomainOrThirdParty(t *testing.T) {
	pkg, err := build.Default.ImportDir(".", 0)
	if err != nil {
		t.Fatalf("import dir: %v", err)
	}
	for _, imp := range pkg.Imports {
		if !strings.HasPrefix(imp, "landsim/") {
			continue
		}
		if imp == "landsim/pkg/domain" {
			continue
		}
		t.Fatalf("unexpected dependency: %s", imp)
	}
}
