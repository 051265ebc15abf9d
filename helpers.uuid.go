package main

import (
	"regexp"
	"strings"

	"github.com/gofrs/uuid"
)

var _ UIDHandler = (*IDsHandler)(nil) // ensure IDsHandler implements UIDHandler.

// catalogCodeRegexp matches human-facing catalog codes like `LIB-001`.
var catalogCodeRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// UIDHandler is an interface for generating and checking ids.
type UIDHandler interface {
	Generate(prefix string) string
	IsValid(id, prefix string) bool
}

// IDsHandler implements the UIDHandler interface.
type IDsHandler struct{}

// NewIDsHandler returns a ready to use IDsHandler.
func NewIDsHandler() *IDsHandler {
	return &IDsHandler{}
}

// Generate provides a random unique identifier.
func (idh *IDsHandler) Generate(prefix string) string {
	id, _ := uuid.NewV4()
	return prefix + ":" + id.String()
}

// IsValid checks if a given string is a valid uuid after removal of custom prefix.
// Catalog codes are accepted as well since book ids can be chosen by librarians.
func (idh *IDsHandler) IsValid(id, prefix string) bool {
	if strings.HasPrefix(id, prefix+":") {
		return uuid.FromStringOrNil(strings.TrimPrefix(id, prefix+":")) != uuid.Nil
	}
	return IsCatalogCode(id)
}

// IsCatalogCode tells if id is a human-facing catalog code.
func IsCatalogCode(id string) bool {
	return catalogCodeRegexp.MatchString(id)
}
