package checkout

import (
	"strings"

	"github.com/fjod/storefront/internal/domain"
)

func (w *Workflow) validate(a *Attempt, req Request) error {
	if err := a.transition(domain.SubmissionValidatingShipping); err != nil {
		return err
	}

	var missing []string
	if strings.TrimSpace(req.Shipping.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(req.Shipping.Address) == "" {
		missing = append(missing, "address")
	}
	if strings.TrimSpace(req.Shipping.City) == "" {
		missing = append(missing, "city")
	}
	if len(a.Lines) == 0 {
		missing = append(missing, "cart")
	}
	if strings.TrimSpace(req.UserID) == "" {
		missing = append(missing, "userId")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}

	if !req.Method.Valid() {
		return &ValidationError{Missing: []string{"paymentMethod"}}
	}
	return nil
}
