package user

import "testing"

func TestRolePriorities(t *testing.T) {
	if MaxRolePriority([]string{RoleStudent, RoleFaculty}) != RolePriority(RoleFaculty) {
		t.Error("faculty should outrank student")
	}
	if MaxRolePriority([]string{RoleAdminRegistrar}) <= RolePriority(RoleAdminLibrarian) {
		t.Error("registrar should outrank librarian")
	}
	if MaxRolePriority(nil) != 0 {
		t.Error("no roles should have zero priority")
	}
}

func TestUserRoleHelpers(t *testing.T) {
	tests := []struct {
		name      string
		roles     []string
		student   bool
		faculty   bool
		admin     bool
		librarian bool
	}{
		{name: "student", roles: []string{RoleStudent}, student: true},
		{name: "faculty", roles: []string{RoleFaculty}, faculty: true},
		{name: "plain admin", roles: []string{RoleAdmin}, admin: true},
		{name: "librarian", roles: []string{RoleAdminLibrarian}, admin: true, librarian: true},
		{name: "registrar", roles: []string{RoleAdminRegistrar}, admin: true},
		{name: "none", roles: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr := User{Roles: tt.roles}
			if usr.IsStudent() != tt.student {
				t.Errorf("IsStudent() = %v, want %v", usr.IsStudent(), tt.student)
			}
			if usr.IsFaculty() != tt.faculty {
				t.Errorf("IsFaculty() = %v, want %v", usr.IsFaculty(), tt.faculty)
			}
			if usr.IsAdmin() != tt.admin {
				t.Errorf("IsAdmin() = %v, want %v", usr.IsAdmin(), tt.admin)
			}
			if usr.IsLibrarian() != tt.librarian {
				t.Errorf("IsLibrarian() = %v, want %v", usr.IsLibrarian(), tt.librarian)
			}
		})
	}
}
