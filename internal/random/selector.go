// Package random picks uniformly distributed indexes over a finite
// candidate set. Box and item assignment decides a real inventory
// outcome, so the source must not be predictable by a client.
package random

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

var ErrInvalidRange = errors.New("candidate set size must be a positive integer")

// Selector draws crypto-sourced indexes. It carries no state between
// calls.
type Selector struct{}

func NewSelector() *Selector {
	return &Selector{}
}

// Pick returns an index in [0, n), each equally likely.
func (s *Selector) Pick(n int) (int, error) {
	if n <= 0 {
		return 0, ErrInvalidRange
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("random source failed: %w", err)
	}
	return int(v.Int64()), nil
}
