package services

import "strings"

// NormalizePair bildet zwei Entity-IDs auf ihr kanonisches Paar ab
// (low <= high, lexikografisch). Beide Argument-Reihenfolgen liefern
// dasselbe Paar; Selbst-Paare werden abgelehnt. Rein, kein I/O.
func NormalizePair(idA, idB string) (low, high string, err error) {
	idA = strings.TrimSpace(idA)
	idB = strings.TrimSpace(idB)
	if idA == "" || idB == "" {
		return "", "", Errf(CodeValidation, "both entity ids are required")
	}
	if idA == idB {
		return "", "", Errf(CodeSelfPair, "cannot relate an entity to itself: %s", idA)
	}
	if idA < idB {
		return idA, idB, nil
	}
	return idB, idA, nil
}
