package models

import "testing"

func TestCanCloseMonthIsAdminOnly(t *testing.T) {
	cases := []struct {
		role UserRole
		want bool
	}{
		{UserRoleAdmin, true},
		{UserRoleOperator, false},
		{UserRoleClient, false},
	}
	for _, tc := range cases {
		u := &User{Role: tc.role}
		if got := u.CanCloseMonth(); got != tc.want {
			t.Errorf("role %s: CanCloseMonth() = %v, want %v", tc.role, got, tc.want)
		}
	}
}
