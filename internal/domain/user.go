package domain

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type User struct {
	ID    string
	Email string
	Role  string
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
