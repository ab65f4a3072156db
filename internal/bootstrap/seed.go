// Package bootstrap seeds an empty lattice database with its privileges,
// roles and first users.
package bootstrap

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lattice/internal/model"
)

// Seed is the first-run content of a database.
type Seed struct {
	Roles []RoleSeed `yaml:"roles"`
	Users []UserSeed `yaml:"users"`
}

// RoleSeed is a role and the rights it bundles.
type RoleSeed struct {
	Name       string   `yaml:"name"`
	Privileges []string `yaml:"privileges,omitempty"`
}

// UserSeed is one user. Password is hashed before it is stored and is
// never persisted as given.
type UserSeed struct {
	Name       string   `yaml:"name"`
	Email      string   `yaml:"email"`
	Password   string   `yaml:"password"`
	Roles      []string `yaml:"roles,omitempty"`
	Privileges []string `yaml:"privileges,omitempty"`
	Revoked    []string `yaml:"revoked,omitempty"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses seed YAML. Unknown fields are rejected.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	return &s, nil
}

// Validate checks names, rights and role references. The first user
// becomes the owner of everything the seed creates.
func (s *Seed) Validate() error {
	roles := make(map[string]bool, len(s.Roles))
	for i, r := range s.Roles {
		name := model.NormalizeName(r.Name)
		if name == "" {
			return fmt.Errorf("roles[%d]: name is required", i)
		}
		if roles[name] {
			return fmt.Errorf("roles[%d]: duplicate role %q", i, name)
		}
		roles[name] = true
		if err := checkRights(r.Privileges); err != nil {
			return fmt.Errorf("roles[%d]: %w", i, err)
		}
	}

	if len(s.Users) == 0 {
		return fmt.Errorf("at least one user is required")
	}
	names := make(map[string]bool, len(s.Users))
	emails := make(map[string]bool, len(s.Users))
	for i, u := range s.Users {
		name := model.NormalizeName(u.Name)
		if name == "" {
			return fmt.Errorf("users[%d]: name is required", i)
		}
		if names[name] {
			return fmt.Errorf("users[%d]: duplicate user %q", i, name)
		}
		names[name] = true

		email := strings.TrimSpace(u.Email)
		if !strings.Contains(email, "@") {
			return fmt.Errorf("users[%d]: email %q must contain @", i, u.Email)
		}
		if emails[email] {
			return fmt.Errorf("users[%d]: duplicate email %q", i, email)
		}
		emails[email] = true

		if u.Password == "" {
			return fmt.Errorf("users[%d]: password is required", i)
		}
		for _, role := range u.Roles {
			if !roles[model.NormalizeName(role)] {
				return fmt.Errorf("users[%d]: unknown role %q", i, role)
			}
		}
		if err := checkRights(u.Privileges); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
		if err := checkRights(u.Revoked); err != nil {
			return fmt.Errorf("users[%d]: revoked: %w", i, err)
		}
	}
	return nil
}

func checkRights(names []string) error {
	for _, n := range names {
		if _, err := model.ParseRight(n); err != nil {
			return err
		}
	}
	return nil
}
