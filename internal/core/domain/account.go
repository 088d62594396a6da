package domain

// Role is the privilege level an account holds. Role checks themselves belong to the
// authorization layer; the core only distinguishes elevated roles.
type Role string

const (
	RoleRegular   Role = "regular"
	RoleCashier   Role = "cashier"
	RoleManager   Role = "manager"
	RoleSuperuser Role = "superuser"
)

var roleRank = map[Role]int{
	RoleRegular:   0,
	RoleCashier:   1,
	RoleManager:   2,
	RoleSuperuser: 3,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r clears the min role. Unknown roles clear nothing.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	return ok && rank >= roleRank[min]
}

// Elevated reports whether the role may perform privileged corrections.
func (r Role) Elevated() bool {
	return r.AtLeast(RoleManager)
}

// Account holds a point balance and the two flags the ledger depends on.
type Account struct {
	ID         int64
	UTORid     string
	Name       string
	Role       Role
	Points     int64
	Verified   bool
	Suspicious bool
}

// Actor is the already-authenticated caller of a ledger operation.
type Actor struct {
	AccountID int64
	Role      Role
}
