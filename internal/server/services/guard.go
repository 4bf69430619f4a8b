package services

import (
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// Guard rejects an account that may not take part in any flow: a missing
// one is NotFound, an INACTIVE or soft-deleted one is Forbidden (inactive).
// Every flow runs it right after fetching and before touching secrets.
func Guard(a *models.Account) error {
	if a == nil {
		return newError(ReasonNotFound)
	}
	if a.Status == models.StatusInactive || a.DeletedAt != nil {
		return newError(ReasonInactive)
	}
	return nil
}
