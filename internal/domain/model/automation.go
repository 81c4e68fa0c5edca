package model

import (
	"strings"

	"billz/internal/domain"
)

// Automation is one entry of the static price catalog.
type Automation struct {
	ID               string
	Name             string
	PriceAtomicUnits int64
	Description      string
}

// Catalog maps automation ids to their pricing.
type Catalog map[string]Automation

// Lookup returns the automation or domain.ErrUnknownAutomation.
func (c Catalog) Lookup(id string) (Automation, error) {
	a, ok := c[strings.TrimSpace(id)]
	if !ok || id == "" {
		return Automation{}, domain.ErrUnknownAutomation
	}
	return a, nil
}
