package hash

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher wraps bcrypt for passwords and reset tokens. The same primitive
// covers both: reset tokens are stored hashed so a leaked at-rest record
// cannot be replayed, and bcrypt's compare is constant-time.
type Hasher struct {
	cost int
}

// New returns a Hasher with the given bcrypt cost. Costs below bcrypt's
// minimum fall back to the library default (10).
func New(cost int) Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

func (h Hasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(b), nil
}

func (h Hasher) Verify(secret, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret)) == nil
}
