package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	require.Error(t, InitLogger("shouty", "text", "stdout", ""))
}

func TestComponentLoggerTagsEntries(t *testing.T) {
	require.NoError(t, InitLogger("info", "json", "stdout", ""))

	entry := ComponentLogger("orchestrator")
	assert.Equal(t, "orchestrator", entry.Data["component"])
}
