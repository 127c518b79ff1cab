// Package broadcast encodes position batches and sends them over UDP.
package broadcast

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/ayusman/arucoloc/internal/taglog"
)

// Fields is the number of values carried per platform.
const Fields = 8

// Entry is one platform's latest state:
// epoch, elapsed, x, y, z, roll, pitch, yaw.
type Entry [Fields]float64

// EntryFromRow converts a log row into a broadcast entry.
func EntryFromRow(row taglog.Row) Entry {
	return Entry{
		row.Epoch,
		row.Elapsed,
		row.Position.X,
		row.Position.Y,
		row.Position.Z,
		row.Rotation.Roll,
		row.Rotation.Pitch,
		row.Rotation.Yaw,
	}
}

// Batch maps a platform id, as a decimal string, to its latest entry.
type Batch map[string]Entry

// NewBatch returns an empty batch.
func NewBatch() Batch {
	return make(Batch)
}

// Put stages the entry for platform id, replacing any earlier one.
func (b Batch) Put(id int, e Entry) {
	b[strconv.Itoa(id)] = e
}

// Get returns the entry for platform id.
func (b Batch) Get(id int) (Entry, bool) {
	e, ok := b[strconv.Itoa(id)]
	return e, ok
}

// IDs returns the numeric platform ids in the batch, ascending.
// Keys that are not integers are skipped.
func (b Batch) IDs() []int {
	ids := make([]int, 0, len(b))
	for k := range b {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Clone returns a copy safe to hand to another goroutine.
func (b Batch) Clone() Batch {
	out := make(Batch, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Encode renders the batch as indented JSON, one datagram payload.
func Encode(b Batch) ([]byte, error) {
	if b == nil {
		b = Batch{}
	}
	data, err := json.MarshalIndent(b, "", "   ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	return data, nil
}

// Decode parses a datagram payload into a batch.
func Decode(data []byte) (Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	if b == nil {
		b = Batch{}
	}
	return b, nil
}
