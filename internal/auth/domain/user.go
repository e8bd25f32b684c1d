package domain

// Identity is who a verified token or a successful login says the caller is.
type Identity struct {
	Username string
	Role     string
}

// Credential is a seeded username/secret pair. Secrets live in memory for
// the life of the process and are never persisted.
type Credential struct {
	Username string
	Secret   string
	Role     string
}

// Identity drops the secret.
func (c Credential) Identity() Identity {
	return Identity{Username: c.Username, Role: c.Role}
}
