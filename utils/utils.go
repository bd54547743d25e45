// utils/utils.go

package utils

import (
	"github.com/google/uuid"
)

// GenerateToken returns an unguessable token identifying one session.
func GenerateToken() string {
	id := uuid.New()
	return id.String()
}
