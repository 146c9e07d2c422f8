// Package access answers "may this actor decide requests for this department".
package access

import (
	"context"

	"lablink/models"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type AssignmentLookup interface {
	StaffAssignments(ctx context.Context, userID string) ([]models.StaffAssignment, error)
}

// Policy grants approval rights to configured admins, to global admin
// assignments, and to staff or admins assigned to the department.
type Policy struct {
	lookup AssignmentLookup
	admins map[string]bool
}

func NewPolicy(lookup AssignmentLookup, adminUserIDs []string) *Policy {
	admins := make(map[string]bool, len(adminUserIDs))
	for _, id := range adminUserIDs {
		if id != "" {
			admins[id] = true
		}
	}
	return &Policy{lookup: lookup, admins: admins}
}

func (p *Policy) CanApprove(ctx context.Context, actorID, departmentID string) (bool, error) {
	if actorID == "" {
		return false, nil
	}
	if p.admins[actorID] {
		return true, nil
	}
	as, err := p.lookup.StaffAssignments(ctx, actorID)
	if err != nil {
		return false, err
	}
	for _, a := range as {
		switch {
		case a.Role == RoleAdmin && a.DepartmentID == "":
			return true, nil
		case (a.Role == RoleAdmin || a.Role == RoleStaff) && a.DepartmentID == departmentID:
			return true, nil
		}
	}
	return false, nil
}

// IsAdmin reports global admin rights only.
func (p *Policy) IsAdmin(ctx context.Context, actorID string) (bool, error) {
	if p.admins[actorID] {
		return true, nil
	}
	as, err := p.lookup.StaffAssignments(ctx, actorID)
	if err != nil {
		return false, err
	}
	for _, a := range as {
		if a.Role == RoleAdmin && a.DepartmentID == "" {
			return true, nil
		}
	}
	return false, nil
}

// Departments lists the departments actorID may act on; all=true for global admins.
func (p *Policy) Departments(ctx context.Context, actorID string) (depts []string, all bool, err error) {
	if p.admins[actorID] {
		return nil, true, nil
	}
	as, err := p.lookup.StaffAssignments(ctx, actorID)
	if err != nil {
		return nil, false, err
	}
	depts = []string{}
	for _, a := range as {
		if a.Role == RoleAdmin && a.DepartmentID == "" {
			return nil, true, nil
		}
		if a.Role == RoleAdmin || a.Role == RoleStaff {
			depts = append(depts, a.DepartmentID)
		}
	}
	return depts, false, nil
}
