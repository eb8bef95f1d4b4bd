package codegen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	minCode   = 100000
	codeRange = 900000
)

// CoupleCode draws a uniformly random 6-digit code in [100000, 999999].
func CoupleCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", fmt.Errorf("generate couple code: %w", err)
	}
	return fmt.Sprintf("%06d", minCode+n.Int64()), nil
}
