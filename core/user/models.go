package user

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/academia/core"
)

// Roles
const (
	// Admin
	RoleAdmin      = "admin:"
	RoleAdminOwner = "admin:owner"

	// Company
	RoleCompany = "company:"

	// Learner
	RoleUser = "user:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner}
	CompanyRoles = []string{RoleCompany}
	UserRoles    = []string{RoleUser}
	AllRoles     = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminOwner: 30,
		RoleAdmin:      21,

		// Companies: 20 - 11
		RoleCompany: 11,

		// Users: 10 - 1
		RoleUser: 1,
	}

	Roles = []Role{
		{Name: "User", Value: RoleUser},
		{Name: "Company", Value: RoleCompany},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 4)
	all = append(all, AdminRoles...)
	all = append(all, CompanyRoles...)
	all = append(all, UserRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// UserType is the kind of account, chosen at signup.
type UserType string

const (
	TypeEmployee  UserType = "EMPLOYEE"
	TypeJobSeeker UserType = "JOB_SEEKER"
	TypeCompany   UserType = "COMPANY"
	TypeAdmin     UserType = "ADMIN"
)

var UserTypes = []UserType{TypeEmployee, TypeJobSeeker, TypeCompany, TypeAdmin}

// defaultRoles returns the roles granted to a new account of type t.
func (t UserType) defaultRoles() []string {
	switch t {
	case TypeAdmin:
		return []string{RoleUser, RoleAdmin}
	case TypeCompany:
		return []string{RoleUser, RoleCompany}
	default:
		return []string{RoleUser}
	}
}

// Status is the account approval status. Only ACTIVE accounts may sign in.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusRejected  Status = "REJECTED"
	StatusSuspended Status = "SUSPENDED"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PhoneNumber  string    `json:"phone_number"`
	CompanyName  string    `json:"company_name"`
	Type         UserType  `json:"user_type"`
	Status       Status    `json:"status"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsCompany() bool {
	return u.RoleStartsWith(RoleCompany)
}

func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string   `json:"email" validate:"required,email"`
	PhoneNumber     string   `json:"phone_number" validate:"omitempty,max=32"`
	Type            UserType `json:"user_type" validate:"omitempty,usertype"`
	CompanyName     string   `json:"company_name" validate:"required_if=Type COMPANY"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.PhoneNumber = core.CleanString(nu.PhoneNumber)
	nu.CompanyName = core.CleanString(nu.CompanyName)
	if nu.Type == "" {
		nu.Type = TypeEmployee
	}

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	PhoneNumber     string   `json:"phone_number" validate:"omitempty,max=32"`
	CompanyName     string   `json:"company_name"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, svc Service) error {
	keep := func(val, orig string) string {
		if val != "" {
			return val
		}
		return orig
	}
	uu.Name = keep(core.CleanString(uu.Name), origUsr.Name)
	uu.Username = keep(core.CleanString(uu.Username, true /* lower */), origUsr.Username)
	uu.Email = keep(core.CleanString(uu.Email, true /* lower */), origUsr.Email)
	uu.PhoneNumber = keep(core.CleanString(uu.PhoneNumber), origUsr.PhoneNumber)
	uu.CompanyName = keep(core.CleanString(uu.CompanyName), origUsr.CompanyName)

	if err := core.Validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate() error { return core.Validate.Struct(rp) }

// GetFilter selects a single User. The first non-empty field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail []string
}

type QueryFilter struct {
	Search      string
	Roles       []string
	Statuses    []Status
	Types       []UserType
	CreatedFrom time.Time
	CreatedTo   time.Time
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.Statuses == nil && qf.Types == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Stats is the admin dashboard summary.
type Stats struct {
	TotalUsers   int `json:"total_users"`
	ActiveUsers  int `json:"active_users"`
	PendingUsers int `json:"pending_users"`
	CompanyUsers int `json:"company_users"`
}

// OrderingFields lists the columns users may be ordered by.
var OrderingFields = []string{"name", "username", "email", "status", "user_type", "created_at", "updated_at", "last_login"}
