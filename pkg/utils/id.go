package utils

import (
	"github.com/google/uuid"
)

// GenerateID generates a unique record identifier
func GenerateID() string {
	return uuid.NewString()
}
