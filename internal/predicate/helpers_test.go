package predicate

import (
	"time"

	"github.com/solatis/policykit/internal/catalog"
	"github.com/solatis/policykit/internal/session"
	"github.com/solatis/policykit/internal/types"
)

// testSnapshot mirrors a typical backend operator and condition catalog.
func testSnapshot() catalog.Snapshot {
	return catalog.Snapshot{
		Operators: []types.Operator{
			{Name: "$eq", AppliesTo: []string{types.AppliesString, types.AppliesNumber}},
			{Name: "$ne", AppliesTo: []string{types.AppliesString, types.AppliesNumber}},
			{Name: "$gt", AppliesTo: []string{types.AppliesNumber}},
			{Name: "$contains", AppliesTo: []string{types.AppliesString}},
			{Name: "$in", AppliesTo: []string{types.AppliesArrayString, types.AppliesArrayNumber}},
			{Name: "$nin", AppliesTo: []string{types.AppliesArrayString}},
		},
		ResourceTypes: []types.ResourceType{
			{Name: "device"},
			{Name: "contract"},
		},
		Conditions: []types.ConditionDef{
			{Name: "ip_address", DataType: types.DataTypeString, Format: types.FormatIP},
			{Name: "request_count", DataType: types.DataTypeNumber},
			{Name: "valid_from", DataType: types.DataTypeDatetime},
			{Name: "location", DataType: types.DataTypeString},
		},
		Roles: []types.Role{
			{Name: "admin", Level: 10},
			{Name: "operator", Level: 5},
		},
		Departments: []types.Department{
			{Name: "Finance", Code: "FIN"},
		},
	}
}

func testSession() *session.Session {
	return session.New(testSnapshot(), session.Options{
		Now: func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
}
