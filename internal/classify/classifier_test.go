package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPermanentKinds(t *testing.T) {
	for _, kind := range []string{KindConfig, KindAuth, KindBadRequest, KindNotFound, KindInstanceInactive, KindMissingContact} {
		c := Classify(kind, "", 0)
		assert.False(t, c.Temporary, "kind %s must be permanent", kind)
		assert.False(t, c.ShouldRetry, "kind %s must not retry", kind)
		assert.True(t, c.AlertAdmin, "permanent failures alert the admin")
	}
}

func TestClassifyTemporaryKinds(t *testing.T) {
	for _, kind := range []string{KindTimeout, KindConnection, KindSSL, KindCircuitOpen} {
		c := Classify(kind, "", 0)
		assert.True(t, c.Temporary, "kind %s must be temporary", kind)
		assert.True(t, c.ShouldRetry, "kind %s must retry", kind)
	}
}

func TestClassifyHTTPStatuses(t *testing.T) {
	// Permanent statuses, passed as kind string and as explicit status.
	for _, status := range []int{400, 401, 403, 404, 405, 410} {
		c := Classify(HTTPKind(status), "", 0)
		assert.False(t, c.Temporary, "http %d must be permanent", status)

		c = Classify(KindProvider, "", status)
		assert.False(t, c.Temporary, "status %d must be permanent", status)
	}

	for _, status := range []int{408, 429, 500, 502, 503, 504} {
		c := Classify(HTTPKind(status), "", 0)
		assert.True(t, c.Temporary, "http %d must be temporary", status)
	}
}

func TestClassifyKeywordScan(t *testing.T) {
	c := Classify(KindProvider, "Invalid phone number provided", 0)
	assert.False(t, c.Temporary)

	c = Classify(KindProvider, "recipient is SUSPENDED", 0)
	assert.False(t, c.Temporary)
	assert.True(t, c.AlertAdmin)

	// Unknown errors default to temporary.
	c = Classify(KindProvider, "something odd happened", 0)
	assert.True(t, c.Temporary)
	assert.False(t, c.AlertAdmin)
}

func TestClassifyOperatorScanIndependentOfRetry(t *testing.T) {
	// 503 with a subscription message is temporary yet must alert the admin.
	c := Classify(HTTPKind(503), "subscription quota exceeded", 0)
	assert.True(t, c.Temporary)
	assert.True(t, c.ShouldRetry)
	assert.True(t, c.AlertAdmin)
}
