// Package friends implements the pairwise relationship lifecycle: canonical
// pair addressing, the friendship state machine, and the merged live view
// over the two role-indexed friendship queries.
package friends

import (
	"strings"

	"socialkit/models"
)

// pairSeparator joins the ordered pair into the canonical key. Identities
// containing it are rejected so the key stays unambiguous.
const pairSeparator = "_"

// PairKey returns the canonical key for the unordered pair {a, b}. Both
// orderings of the inputs yield the same key, so the pair has exactly one
// friendship record no matter which party writes first.
func PairKey(a, b string) (string, error) {
	if err := validateIdentity(a); err != nil {
		return "", err
	}
	if err := validateIdentity(b); err != nil {
		return "", err
	}
	if a == b {
		return "", models.NewInvalidInputError("cannot pair an identity with itself")
	}
	low, high := OrderPair(a, b)
	return low + pairSeparator + high, nil
}

// OrderPair returns the pair in canonical (lexicographic) order.
func OrderPair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

func validateIdentity(id string) error {
	if id == "" {
		return models.NewInvalidInputError("identity must not be empty")
	}
	if strings.Contains(id, pairSeparator) {
		return models.NewInvalidInputError("identity must not contain " + pairSeparator)
	}
	return nil
}
