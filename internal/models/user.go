package models

import "strings"

type Role string

const (
	RoleBK        Role = "BK" // guru bimbingan konseling — согласующий
	RoleWaliKelas Role = "WALIKELAS"
	RoleGuruMapel Role = "GURUMAPEL"
	RoleAdmin     Role = "ADMIN"
	RoleStudent   Role = "SISWA"
	RoleSystem    Role = "SYSTEM"
)

// Actor — аутентифицированный пользователь, от имени которого выполняется операция.
// Кто он и какие у него роли, определяет внешний сервис авторизации.
type Actor struct {
	ID    string
	Name  string
	Roles []Role
}

// PrimaryRole — первая роль; её пишем в журнал согласования.
func (a Actor) PrimaryRole() Role {
	if len(a.Roles) == 0 {
		return ""
	}
	return a.Roles[0]
}

// HasAnyRole — есть ли у пользователя хотя бы одна из ролей (регистр не важен).
func (a Actor) HasAnyRole(roles ...Role) bool {
	for _, have := range a.Roles {
		for _, want := range roles {
			if strings.EqualFold(string(have), string(want)) {
				return true
			}
		}
	}
	return false
}

// Student / Category — данные внешнего справочника.
type Student struct {
	ID        string
	NISN      string
	Name      string
	ClassName string
}

type Category struct {
	ID         string
	Code       string
	Name       string
	Type       CategoryType
	BasePoints int
}
