package verification

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"strconv"
)

const (
	GeneratorNumeric = "numeric"
	GeneratorRounded = "rounded"

	DefaultCodeLength = 6
)

var ErrUnknownGenerator = errors.New("unknown code generator")

type CodeGenerator interface {
	Generate() (string, error)
}

func NewGenerator(kind string, length int) (CodeGenerator, error) {
	switch kind {
	case "", GeneratorNumeric:
		if length <= 0 {
			length = DefaultCodeLength
		}
		return NumericGenerator{Length: length}, nil
	case GeneratorRounded:
		return RoundedGenerator{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, kind)
}

// NumericGenerator draws Length uniform digits from crypto/rand.
type NumericGenerator struct {
	Length int
}

func (g NumericGenerator) Generate() (string, error) {
	const op = "verification.NumericGenerator.Generate"

	buf := make([]byte, g.Length)
	ten := big.NewInt(10)

	for i := range buf {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		buf[i] = byte('0' + n.Int64())
	}

	return string(buf), nil
}

// RoundedGenerator produces the legacy two digit "rounded" code: the first
// digit is 1-9, the second is 0, 5 or a repeat of the first. That is at most
// 27 distinct codes, so it is only safe behind strict rate limits.
type RoundedGenerator struct {
	// IntN defaults to math/rand/v2.IntN.
	IntN func(n int) int
}

func (g RoundedGenerator) Generate() (string, error) {
	intN := g.IntN
	if intN == nil {
		intN = mrand.IntN
	}

	var code string
	for code == "" {
		d1 := 1 + intN(9)
		second := [3]int{0, 5, d1}
		d2 := second[intN(len(second))]
		code = strconv.Itoa(d1) + strconv.Itoa(d2)
	}

	return code, nil
}
