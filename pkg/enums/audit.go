package enums

// AuditAction names a mutating action recorded in the audit log.
type AuditAction string

const (
	AuditActionCreate         AuditAction = "CREATE"
	AuditActionDelete         AuditAction = "DELETE"
	AuditActionAdjustStock    AuditAction = "ADJUST_STOCK"
	AuditActionRenew          AuditAction = "RENEW"
	AuditActionReturnItem     AuditAction = "RETURN_ITEM"
	AuditActionReturnAll      AuditAction = "RETURN_ALL"
	AuditActionLogin          AuditAction = "LOGIN"
	AuditActionChangePassword AuditAction = "CHANGE_PASSWORD"
	AuditActionResetPassword  AuditAction = "RESET_PASSWORD"
	AuditActionSetRole        AuditAction = "SET_ROLE"
)

// AuditEntity names the aggregate an audit entry refers to.
type AuditEntity string

const (
	AuditEntityAuth   AuditEntity = "auth"
	AuditEntityUsers  AuditEntity = "users"
	AuditEntityPeople AuditEntity = "people"
	AuditEntityBooks  AuditEntity = "books"
	AuditEntityLoans  AuditEntity = "loans"
)

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}

// String implements fmt.Stringer.
func (a AuditEntity) String() string {
	return string(a)
}
