package auth

import "golang.org/x/crypto/bcrypt"

// AdminCredentials is the single configured administrator account. The
// password is stored as a bcrypt hash; `driftfs init` generates one.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// Verify checks a presented username/password pair against the credentials.
func (c AdminCredentials) Verify(username, password string) bool {
	if username == "" || username != c.Username {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
}
