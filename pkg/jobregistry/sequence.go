package jobregistry

import (
	"fmt"
	"strings"
)

// AminoAcids are the 20 standard amino acid one-letter codes.
const AminoAcids = "ARNDCQEGHILKMFPSTWYV"

// ValidateSequence normalizes a protein sequence to upper case and checks
// that every character is a standard amino acid letter. Anything else,
// including whitespace anywhere and the ambiguity codes B, J, O, U, X and Z,
// is rejected.
func ValidateSequence(seq string) (string, error) {
	if seq == "" {
		return "", fmt.Errorf("%w: sequence is empty", ErrInvalidSequence)
	}

	var b strings.Builder
	b.Grow(len(seq))
	for i, r := range seq {
		// ASCII only: unicode case mapping would turn letters like 'ı' into 'I'.
		if 'a' <= r && r <= 'z' {
			r -= 'a' - 'A'
		}
		if r > 'Z' || !strings.ContainsRune(AminoAcids, r) {
			return "", fmt.Errorf("%w: unexpected %q at position %d", ErrInvalidSequence, r, i)
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}
