// Package route decides which provider account region carries an outbound
// message. Business routing (sender role, category, recipient prefix) picks a
// preferred region; a technical fallback walk substitutes a usable one when
// the preferred account is inactive or unconfigured.
package route

import (
	"github.com/sirupsen/logrus"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/account"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/config"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/phone"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// Router resolves regions for outbound messages.
type Router struct {
	cfg      config.RoutingConfig
	registry *account.Registry
	phones   *phone.Normalizer
	logger   *logrus.Logger
}

// NewRouter creates a region router.
func NewRouter(cfg config.RoutingConfig, registry *account.Registry, phones *phone.Normalizer) *Router {
	return &Router{
		cfg:      cfg,
		registry: registry,
		phones:   phones,
		logger:   utils.GetLogger(),
	}
}

// Route returns the preferred region for a message. Deterministic: the same
// inputs always yield the same region. First matching rule wins:
// system-class category, sender role binding, category override, recipient
// phone prefix, configured default.
func (r *Router) Route(senderRole, recipientPhone string, category models.Category) string {
	if category.IsSystemClass() {
		return r.cfg.SystemRegion
	}

	if region, ok := r.cfg.SenderRegions[senderRole]; ok && region != "" {
		return region
	}

	if region, ok := r.cfg.CategoryOverrides[string(category)]; ok && region != "" {
		return region
	}

	if recipientPhone != "" {
		code := r.phones.CountryCode(r.phones.Normalize(recipientPhone))
		if region, ok := r.cfg.PrefixRegions[code]; ok && region != "" {
			return region
		}
	}

	return r.cfg.DefaultRegion
}

// ResolveUsable returns a usable region for sending, starting from the
// preferred one. When the preferred account is inactive or unconfigured it
// walks the fallback precedence list, skipping the preferred region, the
// excluded regions and anything unusable. When nothing qualifies the
// preferred region is returned unchanged so the caller surfaces an explicit
// configuration error instead of a silent misroute.
func (r *Router) ResolveUsable(preferred string, exclude ...string) string {
	if r.registry.Usable(preferred) && !contains(exclude, preferred) {
		return preferred
	}

	for _, candidate := range r.cfg.FallbackOrder {
		if candidate == preferred || contains(exclude, candidate) {
			continue
		}
		if r.registry.Usable(candidate) {
			r.logger.WithFields(logrus.Fields{
				"component": "router",
				"original":  preferred,
				"final":     candidate,
			}).Warn("Region fallback applied")
			return candidate
		}
	}

	return preferred
}

// RouteUsable combines Route and ResolveUsable, returning both the final
// region and the original business decision for auditing.
func (r *Router) RouteUsable(senderRole, recipientPhone string, category models.Category) (final, original string) {
	original = r.Route(senderRole, recipientPhone, category)
	final = r.ResolveUsable(original)
	return final, original
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
