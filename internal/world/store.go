package world

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrData marks a malformed or incomplete baseline dataset.
var ErrData = errors.New("data error")

// ErrInvalidBoost is returned when an operator boost is negative.
var ErrInvalidBoost = errors.New("resource boost must be non-negative")

// Baseline is the immutable dataset every run starts from.
// Nothing outside this package can reach its pairs except through copies.
type Baseline struct {
	pairs []Pair
}

// NewBaseline validates pairs and takes a private copy of them.
func NewBaseline(pairs []Pair) (*Baseline, error) {
	for i, p := range pairs {
		if err := p.validate(i); err != nil {
			return nil, err
		}
	}
	own := make([]Pair, len(pairs))
	copy(own, pairs)
	return &Baseline{pairs: own}, nil
}

// Len returns the number of zone/hub pairs.
func (b *Baseline) Len() int {
	return len(b.pairs)
}

// Pairs returns a copy of the baseline records in dataset order.
func (b *Baseline) Pairs() []Pair {
	out := make([]Pair, len(b.pairs))
	copy(out, b.pairs)
	return out
}

// TotalPopulation sums population across all zones.
func (b *Baseline) TotalPopulation() float64 {
	return sumPopulation(b.pairs)
}

// Clone produces a working copy with no storage shared with the baseline
// or with any other clone. Pair holds only value fields, so a slice copy is deep.
func (b *Baseline) Clone() *WorkingCopy {
	return &WorkingCopy{Pairs: b.Pairs()}
}

// WorkingCopy is the mutable state of a single simulation run.
type WorkingCopy struct {
	Pairs []Pair
}

// TotalPopulation sums the remaining population across all zones.
func (wc *WorkingCopy) TotalPopulation() float64 {
	return sumPopulation(wc.Pairs)
}

// ApplyResourceBoost adds extra ambulances and shelters to every hub.
// It is applied once, before any tick runs.
func ApplyResourceBoost(wc *WorkingCopy, extraAmbulances, extraShelters int) error {
	if extraAmbulances < 0 || extraShelters < 0 {
		return fmt.Errorf("%w: ambulances=%d shelters=%d", ErrInvalidBoost, extraAmbulances, extraShelters)
	}
	if extraAmbulances == 0 && extraShelters == 0 {
		return nil
	}
	for _, p := range wc.Pairs {
		if p.Hub.A > math.MaxInt-extraAmbulances || p.Hub.S > math.MaxInt-extraShelters {
			return fmt.Errorf("%w: hub %s would overflow (ambulances=%d shelters=%d)", ErrInvalidBoost, p.Hub.Hub, extraAmbulances, extraShelters)
		}
	}
	for i := range wc.Pairs {
		wc.Pairs[i].Hub.A += extraAmbulances
		wc.Pairs[i].Hub.S += extraShelters
	}
	return nil
}

func sumPopulation(pairs []Pair) float64 {
	total := 0.0
	for _, p := range pairs {
		total += p.Zone.Population
	}
	return total
}

// Load reads a baseline dataset from a JSON file. Files ending in .zst are
// decompressed first.
func Load(path string) (*Baseline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrData, err)
		}
		defer dec.Close()
		return Parse(dec)
	}
	return Parse(f)
}

// Parse decodes and validates a baseline dataset.
func Parse(r io.Reader) (*Baseline, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrData, err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var pairs []Pair
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrData, err)
	}
	return NewBaseline(pairs)
}

// Save writes the baseline as JSON, zstd-compressed when path ends in .zst.
func Save(path string, b *Baseline) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".zst") {
		return encodePairs(f, b.pairs)
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := encodePairs(zw, b.pairs); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func encodePairs(w io.Writer, pairs []Pair) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pairs); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return nil
}
