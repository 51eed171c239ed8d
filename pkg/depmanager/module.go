// SPDX-License-Identifier: MPL-2.0

package depmanager

import (
	"slices"

	"github.com/depforge/depforge/pkg/depcache"
	"github.com/depforge/depforge/pkg/scope"
)

type (
	// Module is one unit of Collect work: a module path and its declared
	// configurations with their resolved artifacts.
	Module struct {
		Path           string
		Configurations []depcache.Configuration
	}

	// ModuleScopes are the derived scopes of one module, by purpose.
	ModuleScopes struct {
		Module string
		Scopes map[scope.Purpose]*scope.Scope
	}
)

// Configuration implements scope.Source.
func (m Module) Configuration(name string) (depcache.Configuration, bool) {
	i := slices.IndexFunc(m.Configurations, func(c depcache.Configuration) bool { return c.Name == name })
	if i < 0 {
		return depcache.Configuration{}, false
	}
	return m.Configurations[i], true
}

// ConfigurationNames returns the declared configuration names in declaration order.
func (m Module) ConfigurationNames() []string {
	names := make([]string, len(m.Configurations))
	for i, c := range m.Configurations {
		names[i] = c.Name
	}
	return names
}
