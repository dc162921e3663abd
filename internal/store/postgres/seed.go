package postgres

import (
	"context"
	"fmt"
)

// SeedPassword is the password every seeded account starts with.
const SeedPassword = "Test123!"

// SeedTenantID is the faculty every seeded account belongs to.
const SeedTenantID = "11111111-1111-1111-1111-111111111111"

// SeedUser is one development account.
type SeedUser struct {
	ID          string
	Email       string
	Username    string
	Role        string
	FirstName   string
	LastName    string
	IndexNumber string
}

// DefaultSeedUsers are the accounts created for local development.
var DefaultSeedUsers = []SeedUser{
	{ID: "0b5c3f0e-6a0f-4c52-9d8e-4f3c2a1b0001", Email: "superadmin@unsa.ba", Username: "superadmin", Role: "Superadmin", FirstName: "System", LastName: "Admin"},
	{ID: "0b5c3f0e-6a0f-4c52-9d8e-4f3c2a1b0002", Email: "admin@unsa.ba", Username: "admin", Role: "Admin", FirstName: "System", LastName: "Admin"},
	{ID: "0b5c3f0e-6a0f-4c52-9d8e-4f3c2a1b0003", Email: "emir.buza@unsa.ba", Username: "teacher", Role: "Teacher", FirstName: "Emir", LastName: "Buza"},
	{ID: "0b5c3f0e-6a0f-4c52-9d8e-4f3c2a1b0004", Email: "niko.nikic@unsa.ba", Username: "student", Role: "Student", FirstName: "Niko", LastName: "Nikic", IndexNumber: "IB20001"},
}

const insertSeedUserSQL = `
	INSERT INTO users (id, email, username, password_hash, role, tenant_id, first_name, last_name, index_number)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	ON CONFLICT (id) DO NOTHING`

// Hasher produces a stored password hash.
type Hasher interface {
	Hash(password string) (string, error)
}

// Seed inserts users that do not exist yet and returns how many rows were added.
// Existing rows are left untouched.
func Seed(ctx context.Context, db DB, hasher Hasher, users []SeedUser) (int, error) {
	added := 0
	for _, u := range users {
		hash, err := hasher.Hash(SeedPassword)
		if err != nil {
			return added, fmt.Errorf("postgres: hash seed password: %w", err)
		}
		tag, err := db.Exec(ctx, insertSeedUserSQL,
			u.ID, u.Email, u.Username, hash, u.Role, SeedTenantID, u.FirstName, u.LastName, u.IndexNumber)
		if err != nil {
			return added, fmt.Errorf("postgres: seed %s: %w", u.Email, err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}
