// Package provision orchestrates identity creation, reconciliation and the
// mailbox lifecycle on top of the directory store.
package provision

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/idforge/idforge/internal/directory"
	"github.com/idforge/idforge/internal/names"
)

// Account state values accepted in an update request. Any other non-empty
// value is ignored.
const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

const accountDisabledFlag = 0x0002

// UpdateRequest carries the fields an update may change. An empty field
// means "leave unchanged"; there is no way to clear an attribute through
// this surface.
type UpdateRequest struct {
	GivenName   string `json:"givenName,omitempty"`
	Surname     string `json:"surname,omitempty"`
	Office      string `json:"office,omitempty"`
	Company     string `json:"company,omitempty"`
	Division    string `json:"division,omitempty"`
	Department  string `json:"department,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// ManagerEmployeeID is resolved to the manager's DN. Resolution
	// failures are logged and skipped, never fatal.
	ManagerEmployeeID string `json:"managerEmployeeID,omitempty"`

	// Status is "enabled" or "disabled"; other values are ignored.
	Status string `json:"status,omitempty"`
}

// updatePlan is the staged outcome of a reconciliation pass: the attribute
// writes to issue, the rename to perform after they commit, and the audit
// trail of what differed.
type updatePlan struct {
	Changes []directory.Change

	// Attrs maps directory attribute names to their staged values.
	Attrs map[string][]string

	// NewCommonName is non-empty when the entry must be renamed. The
	// rename runs after all attribute writes so a rename failure cannot
	// leave them uncommitted.
	NewCommonName string
}

func (p *updatePlan) empty() bool {
	return len(p.Changes) == 0
}

// stage records one changed field and its attribute write. An empty attr
// name records the change without a directory write (used for the rename,
// which is not an attribute replace).
func (p *updatePlan) stage(field, attr, oldValue, newValue string) {
	p.Changes = append(p.Changes, directory.Change{Field: field, Old: oldValue, New: newValue})
	if attr != "" {
		p.Attrs[attr] = []string{newValue}
	}
}

// managerLookup resolves a business key to the manager's DN.
type managerLookup func(ctx context.Context, employeeID string) (string, error)

// buildPlan computes the minimal difference between the stored record and
// the request. Fields are evaluated in a fixed order so change lists are
// stable across runs. It performs no writes.
func buildPlan(ctx context.Context, existing *directory.Record, req UpdateRequest, allowNameEdits bool, resolveManager managerLookup, logger *slog.Logger) *updatePlan {
	plan := &updatePlan{Attrs: make(map[string][]string)}

	nameChanged := false
	newGiven, newSurname := existing.GivenName, existing.Surname

	if allowNameEdits {
		if req.GivenName != "" && req.GivenName != existing.GivenName {
			plan.stage("givenName", "givenName", existing.GivenName, req.GivenName)
			newGiven = req.GivenName
			nameChanged = true
		}
		if req.Surname != "" && req.Surname != existing.Surname {
			plan.stage("surname", "sn", existing.Surname, req.Surname)
			newSurname = req.Surname
			nameChanged = true
		}
		if nameChanged {
			display := strings.TrimSpace(
				names.Normalize(newGiven, names.ModeDisplay) + " " + names.Normalize(newSurname, names.ModeDisplay))
			if display != existing.DisplayName {
				plan.stage("displayName", "displayName", existing.DisplayName, display)
			}
			// The disambiguation suffix assigned at creation survives
			// renames, so the new common name reuses whatever trails
			// the current display name.
			suffix := strings.TrimPrefix(existing.CommonName, existing.DisplayName)
			newCommonName := display + suffix
			if newCommonName != existing.CommonName {
				plan.stage("commonName", "", existing.CommonName, newCommonName)
				plan.NewCommonName = newCommonName
			}
		}
	} else if req.GivenName != "" || req.Surname != "" {
		logger.Warn("name edits are disabled by policy, name fields ignored",
			"employee_id", existing.EmployeeID)
	}

	orgFields := []struct {
		field, attr, current, requested string
	}{
		{"office", "physicalDeliveryOfficeName", existing.Office, req.Office},
		{"company", "company", existing.Company, req.Company},
		{"division", "division", existing.Division, req.Division},
		{"department", "department", existing.Department, req.Department},
		{"title", "title", existing.Title, req.Title},
		{"description", "description", existing.Description, req.Description},
	}
	for _, f := range orgFields {
		if f.requested != "" && f.requested != f.current {
			plan.stage(f.field, f.attr, f.current, f.requested)
		}
	}

	if req.ManagerEmployeeID != "" {
		managerDN, err := resolveManager(ctx, req.ManagerEmployeeID)
		if err != nil {
			logger.Warn("manager resolution failed, field left unchanged",
				"employee_id", existing.EmployeeID,
				"manager_employee_id", req.ManagerEmployeeID,
				"error", err)
		} else if managerDN != existing.ManagerDN {
			plan.stage("manager", "manager", existing.ManagerDN, managerDN)
		}
	}

	if newUAC, transition := stageAccountState(existing, req.Status); transition {
		oldState, newState := StatusDisabled, StatusDisabled
		if existing.Enabled {
			oldState = StatusEnabled
		}
		if newUAC&accountDisabledFlag == 0 {
			newState = StatusEnabled
		}
		plan.Changes = append(plan.Changes, directory.Change{Field: "enabled", Old: oldState, New: newState})
		plan.Attrs["userAccountControl"] = []string{strconv.FormatInt(int64(newUAC), 10)}
	}

	return plan
}

// stageAccountState returns the new userAccountControl value when the
// requested status is recognized and differs from the current state.
func stageAccountState(existing *directory.Record, status string) (int32, bool) {
	switch status {
	case StatusEnabled:
		if !existing.Enabled {
			return existing.UserAccountControl &^ accountDisabledFlag, true
		}
	case StatusDisabled:
		if existing.Enabled {
			return existing.UserAccountControl | accountDisabledFlag, true
		}
	}
	return 0, false
}
