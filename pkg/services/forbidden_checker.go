package services

import (
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

// CheckForbidden reports checked values present in the blacklist. Empty values
// never match. FoundValues is capped at maxShown while Count is the distinct total.
// Returns nil when no blacklisted value is found.
func CheckForbidden(checked ColumnRef, checkedValues []string, blacklist ColumnRef, blacklistValues ValueSet, maxShown int) *models.ForbiddenError {
	found := make([]string, 0)
	for _, v := range distinctNonEmpty(checkedValues) {
		if blacklistValues.Has(v) {
			found = append(found, v)
		}
	}
	if len(found) == 0 {
		return nil
	}

	shown, _ := capShown(found, maxShown)
	return &models.ForbiddenError{
		TargetTable:     checked.Table,
		Column:          checked.Column,
		ForbiddenTable:  blacklist.Table,
		ForbiddenColumn: blacklist.Column,
		FoundValues:     shown,
		Count:           len(found),
	}
}
