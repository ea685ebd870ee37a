package models

// APIGeneration selects which provider API generation an account speaks.
type APIGeneration string

const (
	// GenerationLegacy is the older instance-id/access-token form API.
	GenerationLegacy APIGeneration = "legacy"
	// GenerationV2 is the newer account-id/bearer-secret JSON API.
	GenerationV2 APIGeneration = "v2"
)

// AccountConfig holds the provider credentials for one logical region.
// Read-only to the pipeline; owned by the external configuration surface.
type AccountConfig struct {
	Region      string        `json:"region" mapstructure:"region"`
	Generation  APIGeneration `json:"generation" mapstructure:"generation"`
	InstanceID  string        `json:"instance_id" mapstructure:"instance_id"`
	AccessToken string        `json:"access_token" mapstructure:"access_token"`
	AccountID   string        `json:"account_id" mapstructure:"account_id"`
	Secret      string        `json:"secret" mapstructure:"secret"`
	BaseURL     string        `json:"base_url" mapstructure:"base_url"`
	Active      bool          `json:"active" mapstructure:"active"`
}

// Usable reports whether the account may be selected as a send target. An
// inactive region or one with missing credentials must never carry traffic.
func (a *AccountConfig) Usable() bool {
	if a == nil || !a.Active {
		return false
	}
	switch a.Generation {
	case GenerationV2:
		return a.AccountID != "" && a.Secret != ""
	default:
		return a.InstanceID != "" && a.AccessToken != ""
	}
}
