// Package account holds the read-only registry of provider accounts keyed by
// logical region. Configuration changes require an explicit Reload; the
// pipeline never mutates accounts at runtime.
package account

import (
	"sort"
	"sync"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// Registry maps regions to provider account configurations. The region set is
// open: any tenant region present in configuration is served.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]models.AccountConfig
}

// NewRegistry creates a registry from a configuration snapshot.
func NewRegistry(accounts []models.AccountConfig) *Registry {
	r := &Registry{}
	r.Reload(accounts)
	return r
}

// Reload replaces the account snapshot atomically.
func (r *Registry) Reload(accounts []models.AccountConfig) {
	next := make(map[string]models.AccountConfig, len(accounts))
	for _, acc := range accounts {
		next[acc.Region] = acc
	}

	r.mu.Lock()
	r.accounts = next
	r.mu.Unlock()
}

// Get returns the account configuration for a region.
func (r *Registry) Get(region string) (models.AccountConfig, error) {
	r.mu.RLock()
	acc, ok := r.accounts[region]
	r.mu.RUnlock()

	if !ok {
		return models.AccountConfig{}, utils.NewAppError(utils.ErrCodeConfiguration,
			"No account configured for region", region)
	}
	return acc, nil
}

// Usable reports whether the region has an active, fully-credentialed account.
func (r *Registry) Usable(region string) bool {
	r.mu.RLock()
	acc, ok := r.accounts[region]
	r.mu.RUnlock()

	return ok && acc.Usable()
}

// Regions returns all configured regions in stable order.
func (r *Registry) Regions() []string {
	r.mu.RLock()
	regions := make([]string, 0, len(r.accounts))
	for region := range r.accounts {
		regions = append(regions, region)
	}
	r.mu.RUnlock()

	sort.Strings(regions)
	return regions
}
