// Package amount derives per-order payment amounts that differ slightly from the catalog price so
// that concurrently pending orders of the same price can be told apart by amount alone.
package amount

import (
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	minOffset = 1
	maxOffset = 99
)

var (
	ErrNonPositive = errors.New("base amount must be positive")
	ErrPrecision   = errors.New("base amount must have at most two decimals")
)

// Source yields uniform integers in [0, n).
type Source interface {
	Intn(n int) int
}

// CryptoSource draws from crypto/rand. It is safe for concurrent use.
type CryptoSource struct{}

func (CryptoSource) Intn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("amount: crypto/rand unavailable: " + err.Error())
	}
	return int(v.Int64())
}

// Disambiguator adds a random 1..99 minor-unit offset to a base amount.
type Disambiguator struct {
	src Source
}

// NewDisambiguator returns a Disambiguator reading from src; nil selects CryptoSource.
func NewDisambiguator(src Source) *Disambiguator {
	if src == nil {
		src = CryptoSource{}
	}
	return &Disambiguator{src: src}
}

// Unique returns base plus a fresh offset, so base < unique <= base + 0.99.
func (d *Disambiguator) Unique(base Money) (Money, error) {
	if !base.IsPositive() {
		return Zero, ErrNonPositive
	}
	if !base.HasMinorPrecision() {
		return Zero, ErrPrecision
	}
	offset := minOffset + d.src.Intn(maxOffset-minOffset+1)
	return Money{base.Add(decimal.New(int64(offset), -2)).Round(2)}, nil
}

// UniqueAvoiding re-rolls up to attempts times while taken reports a collision.
// When every roll collides the last one is returned; collisions stay possible.
func (d *Disambiguator) UniqueAvoiding(base Money, taken func(Money) bool, attempts int) (Money, error) {
	if attempts < 1 {
		attempts = 1
	}
	var u Money
	var err error
	for i := 0; i < attempts; i++ {
		u, err = d.Unique(base)
		if err != nil {
			return Zero, err
		}
		if taken == nil || !taken(u) {
			return u, nil
		}
	}
	return u, nil
}
