package model

import "strings"

// User is a principal. Roles, direct privileges and revoked privileges are
// junction links maintained by the store, not fields of the record.
type User struct {
	Base
	Email string `json:"email"`

	// PasswordHash is a bcrypt hash. There is no plaintext credential field.
	PasswordHash string `json:"-"`
}

func (*User) Kind() Kind { return KindUser }

func (*User) Refs() []Ref { return nil }

func (u *User) Columns() []Field {
	return []Field{
		{Column: "email", Value: &u.Email},
		{Column: "password", Value: &u.PasswordHash},
	}
}

func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return NewValidationError(ReasonRequired, KindUser, u.ID, "email", "email is required")
	}
	if !strings.Contains(u.Email, "@") {
		return NewValidationError(ReasonInvalidValue, KindUser, u.ID, "email", "email must contain @")
	}
	return nil
}

// Role is a named bundle of privileges.
type Role struct {
	Base
}

func (*Role) Kind() Kind { return KindRole }

func (*Role) Refs() []Ref { return nil }

// Privilege holds exactly one right from the closed enumeration.
type Privilege struct {
	Base
	Right Right `json:"right"`
}

func (*Privilege) Kind() Kind { return KindPrivilege }

func (*Privilege) Refs() []Ref { return nil }

func (p *Privilege) Columns() []Field {
	return []Field{{Column: "right", Value: (*string)(&p.Right)}}
}

func (p *Privilege) Validate() error {
	if !p.Right.Valid() {
		return invalidEnum(KindPrivilege, "right", p.Right)
	}
	return nil
}

// Password is a hashed secret protecting a processor.
type Password struct {
	Base
	Hash string `json:"-"`
}

func (*Password) Kind() Kind { return KindPassword }

func (*Password) Refs() []Ref { return nil }

func (p *Password) Columns() []Field {
	return []Field{{Column: "password", Value: &p.Hash}}
}

func (p *Password) Validate() error {
	if p.Hash == "" {
		return NewValidationError(ReasonRequired, KindPassword, p.ID, "password", "password hash is required")
	}
	return nil
}
