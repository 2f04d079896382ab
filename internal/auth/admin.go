package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Admin is the single management account, configured at startup.
type Admin struct {
	user     string
	passHash []byte
}

func NewAdmin(user, password string) (*Admin, error) {
	if user == "" || password == "" {
		return nil, fmt.Errorf("admin user and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &Admin{user: user, passHash: hash}, nil
}

// Verify reports whether user and password match. The password hash is
// compared even for an unknown user.
func (a *Admin) Verify(user, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.passHash, []byte(password)) == nil
	return userOK && passOK
}

func (a *Admin) User() string {
	return a.user
}
