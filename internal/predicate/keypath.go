// internal/predicate/keypath.go
package predicate

/*
 * Key paths of the predicate object.
 *
 * Subject keys are flat dotted strings ("role.name"), not nested objects.
 * The builder only emits the five canonical paths; the reverse parser also
 * accepts "attributes.department" as a legacy spelling of department.name.
 *
 * Only role.level carries numbers. A number-classified operator on a text
 * key still yields text, since the key has no numeric representation.
 */

import (
	"fmt"
	"strings"
)

// KeyPath is a dotted predicate key.
type KeyPath string

const (
	KeyRoleName             KeyPath = "role.name"
	KeyRoleLevel            KeyPath = "role.level"
	KeyDepartmentName       KeyPath = "department.name"
	KeyDepartmentCode       KeyPath = "department.code"
	KeyAttributesDepartment KeyPath = "attributes.department"
	KeyResourceType         KeyPath = "resource.type"
)

// Segments splits the path on dots.
func (k KeyPath) Segments() []string {
	return strings.Split(string(k), ".")
}

// Numeric reports whether values under this key are numbers.
func (k KeyPath) Numeric() bool {
	return k == KeyRoleLevel
}

// Dimension is a subject matcher.
type Dimension string

const (
	DimensionRole       Dimension = "role"
	DimensionDepartment Dimension = "department"
)

// subjectKey maps a dimension and match attribute to the predicate key.
// An empty MatchBy means name.
func subjectKey(dim Dimension, by MatchBy) (KeyPath, error) {
	if by == "" {
		by = MatchByName
	}
	switch dim {
	case DimensionRole:
		switch by {
		case MatchByName:
			return KeyRoleName, nil
		case MatchByLevel:
			return KeyRoleLevel, nil
		}
	case DimensionDepartment:
		switch by {
		case MatchByName:
			return KeyDepartmentName, nil
		case MatchByCode:
			return KeyDepartmentCode, nil
		}
	}
	return "", fmt.Errorf("%s cannot be matched by %q", dim, by)
}

// keyBinding ties a predicate key to the match attribute it restores.
type keyBinding struct {
	Key KeyPath
	By  MatchBy
}

// Keys read by the reverse parser per dimension, in application order.
// Later keys override earlier ones.
var (
	roleBindings = []keyBinding{
		{KeyRoleName, MatchByName},
		{KeyRoleLevel, MatchByLevel},
	}
	departmentBindings = []keyBinding{
		{KeyAttributesDepartment, MatchByName},
		{KeyDepartmentName, MatchByName},
		{KeyDepartmentCode, MatchByCode},
	}
)
