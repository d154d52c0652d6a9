// Package checkpoint persists per-file batch progress so interrupted runs can
// resume after the last committed batch.
package checkpoint

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// batchKeyPrefix prefixes batch sequence numbers in the wire format.
const batchKeyPrefix = "batch_"

// Sentinel errors for checkpoint records.
var (
	ErrCorrupt    = errors.New("corrupt checkpoint")
	ErrInvalidSeq = errors.New("batch sequence must be positive")
	ErrOutOfOrder = errors.New("batch sequence out of order")
	ErrCompleted  = errors.New("checkpoint already completed")
	ErrInvalidID  = errors.New("invalid file id")
)

//go:embed record.schema.json
var recordSchema []byte

var recordSchemaLoader = gojsonschema.NewBytesLoader(recordSchema)

// Counts maps a detection label to the number of occurrences.
type Counts map[string]int

// Add accumulates other into c.
func (c Counts) Add(other Counts) {
	for label, n := range other {
		c[label] += n
	}
}

// Total returns the sum of all counts.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}

	return total
}

// Labels returns the labels in lexical order.
func (c Counts) Labels() []string {
	return slices.Sorted(maps.Keys(c))
}

// Record is the persisted progress of one input file.
type Record struct {
	// Batches holds the result of every committed batch by sequence number.
	Batches map[int]Counts
	// LastCommitted is the highest committed sequence number, 0 if none.
	LastCommitted int
	// Completed is set once the file has been fully processed.
	Completed bool
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{Batches: make(map[int]Counts)}
}

// Commit stores counts under seq and advances LastCommitted. seq must be the
// next sequence number or LastCommitted itself, which overwrites that batch.
func (r *Record) Commit(seq int, counts Counts) error {
	switch {
	case seq <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidSeq, seq)
	case r.Completed:
		return ErrCompleted
	case seq < r.LastCommitted:
		return fmt.Errorf("%w: %d < %d", ErrOutOfOrder, seq, r.LastCommitted)
	case seq > r.LastCommitted+1:
		return fmt.Errorf("%w: %d after %d leaves a gap", ErrOutOfOrder, seq, r.LastCommitted)
	}

	if counts == nil {
		counts = Counts{}
	}

	if r.Batches == nil {
		r.Batches = make(map[int]Counts)
	}

	r.Batches[seq] = counts
	r.LastCommitted = seq

	return nil
}

// Totals sums the counts of every committed batch.
func (r *Record) Totals() Counts {
	totals := Counts{}
	for _, counts := range r.Batches {
		totals.Add(counts)
	}

	return totals
}

// Validate checks that the committed batches form the gap-free prefix
// 1..LastCommitted.
func (r *Record) Validate() error {
	if len(r.Batches) != r.LastCommitted {
		return fmt.Errorf("%w: %d batches recorded, batch_cnt %d", ErrCorrupt, len(r.Batches), r.LastCommitted)
	}

	for seq := 1; seq <= r.LastCommitted; seq++ {
		if _, ok := r.Batches[seq]; !ok {
			return fmt.Errorf("%w: batch %d missing", ErrCorrupt, seq)
		}
	}

	return nil
}

// recordWire is the stable on-disk layout.
type recordWire struct {
	Batches   map[string]Counts `json:"batches"`
	BatchCnt  int               `json:"batch_cnt"`
	Completed bool              `json:"completed"`
}

// MarshalJSON encodes the record in the stable checkpoint layout.
func (r Record) MarshalJSON() ([]byte, error) {
	wire := recordWire{
		Batches:   make(map[string]Counts, len(r.Batches)),
		BatchCnt:  r.LastCommitted,
		Completed: r.Completed,
	}

	for seq, counts := range r.Batches {
		if counts == nil {
			counts = Counts{}
		}

		wire.Batches[batchKey(seq)] = counts
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}

	return data, nil
}

// UnmarshalJSON validates data against the checkpoint schema and the prefix
// invariant before decoding. Any mismatch yields an error wrapping ErrCorrupt.
func (r *Record) UnmarshalJSON(data []byte) error {
	result, err := gojsonschema.Validate(recordSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if !result.Valid() {
		return fmt.Errorf("%w: %s", ErrCorrupt, describeSchemaErrors(result.Errors()))
	}

	var wire recordWire

	err = json.Unmarshal(data, &wire)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	decoded := Record{
		Batches:       make(map[int]Counts, len(wire.Batches)),
		LastCommitted: wire.BatchCnt,
		Completed:     wire.Completed,
	}

	for key, counts := range wire.Batches {
		seq, parseErr := parseBatchKey(key)
		if parseErr != nil {
			return parseErr
		}

		if counts == nil {
			counts = Counts{}
		}

		decoded.Batches[seq] = counts
	}

	err = decoded.Validate()
	if err != nil {
		return err
	}

	*r = decoded

	return nil
}

func batchKey(seq int) string {
	return batchKeyPrefix + strconv.Itoa(seq)
}

func parseBatchKey(key string) (int, error) {
	seq, err := strconv.Atoi(strings.TrimPrefix(key, batchKeyPrefix))
	if err != nil || !strings.HasPrefix(key, batchKeyPrefix) || seq <= 0 {
		return 0, fmt.Errorf("%w: bad batch key %q", ErrCorrupt, key)
	}

	return seq, nil
}

func describeSchemaErrors(errs []gojsonschema.ResultError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}

	return strings.Join(parts, "; ")
}
