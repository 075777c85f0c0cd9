package sim

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
	"gonum.org/v1/gonum/mat"
)

// fixed-point scale of encoded values: 20 fractional bits
const fractionalBits = 20

var fixedPointScale = math.Ldexp(1, fractionalBits)

// sharedMatrix is a matrix split into additive shares over the uint64 ring,
// one share per party. No single share carries information about the values.
type sharedMatrix struct {
	rows, cols int
	shares     map[string][]uint64
}

func encodeFixedPoint(v float64) uint64 {
	return uint64(int64(math.Round(v * fixedPointScale)))
}

func decodeFixedPoint(v uint64) float64 {
	return float64(int64(v)) / fixedPointScale
}

// maskStream derives the pseudo-random mask of one party for one object.
func maskStream(masterKey []byte, party, objectID string, n int) ([]uint64, error) {
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte(party+"/"+objectID))
	key := make([]byte, chacha20.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving share key: %w", err)
	}

	cipher, err := chacha20.NewUnauthenticatedCipher(key, make([]byte, chacha20.NonceSize))
	if err != nil {
		return nil, fmt.Errorf("creating share stream: %w", err)
	}

	buf := make([]byte, 8*n)
	cipher.XORKeyStream(buf, buf)

	mask := make([]uint64, n)
	for i := range mask {
		mask[i] = binary.LittleEndian.Uint64(buf[8*i:])
	}
	return mask, nil
}

// shareMatrix splits m into len(parties) additive shares. Every party but the
// last receives its mask; the last one receives the value minus all masks.
func shareMatrix(masterKey []byte, parties []string, objectID string, m *mat.Dense) (*sharedMatrix, error) {
	if len(parties) == 0 {
		return nil, fmt.Errorf("no parties to share object %s with", objectID)
	}

	rows, cols := m.Dims()
	n := rows * cols
	if n == 0 {
		return nil, fmt.Errorf("object %s is empty", objectID)
	}
	last := make([]uint64, n)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			last[i*cols+j] = encodeFixedPoint(m.At(i, j))
		}
	}

	shared := &sharedMatrix{rows: rows, cols: cols, shares: make(map[string][]uint64, len(parties))}
	for _, party := range parties[:len(parties)-1] {
		mask, err := maskStream(masterKey, party, objectID, n)
		if err != nil {
			return nil, err
		}
		for k := range last {
			last[k] -= mask[k]
		}
		shared.shares[party] = mask
	}
	shared.shares[parties[len(parties)-1]] = last

	return shared, nil
}

// reconstruct adds all shares back together.
func (s *sharedMatrix) reconstruct() *mat.Dense {
	sum := make([]uint64, s.rows*s.cols)
	for _, share := range s.shares {
		for k, v := range share {
			sum[k] += v
		}
	}

	data := make([]float64, len(sum))
	for k, v := range sum {
		data[k] = decodeFixedPoint(v)
	}
	return mat.NewDense(s.rows, s.cols, data)
}
