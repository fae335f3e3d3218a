// Package wire turns a reencoded payload into the offset/value patch
// list the downstream fuzzing harness applies to a live frame.
package wire

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
)

// Edit is one single-byte replacement at an absolute payload offset.
type Edit struct {
	Offset int64 `json:"offset"`
	Value  byte  `json:"value"`
}

// Diff compares the original and mutated payloads byte-wise and returns
// the minimal edit list that transforms one into the other. The frames
// must be the same length; the harness patches in place and cannot grow
// or shrink a live frame.
func Diff(original, mutated []byte) ([]Edit, error) {
	if len(original) != len(mutated) {
		return nil, fmt.Errorf("payload length changed: %d -> %d bytes", len(original), len(mutated))
	}
	var edits []Edit
	for i := range original {
		if original[i] != mutated[i] {
			edits = append(edits, Edit{Offset: int64(i), Value: mutated[i]})
		}
	}
	return edits, nil
}

// DecodeHex parses a hex payload dump, tolerating whitespace, newlines
// and an optional 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ',':
		default:
			b.WriteRune(r)
		}
	}
	clean := strings.TrimPrefix(b.String(), "0x")
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("decode hex payload: %w", err)
	}
	return data, nil
}

// FormatEdits renders the edit list in the line format the harness
// consumes.
func FormatEdits(edits []Edit) string {
	var b strings.Builder
	for _, e := range edits {
		fmt.Fprintf(&b, "Offset: %d, New Value: %02x\n", e.Offset, e.Value)
	}
	return b.String()
}

// WritePatchList writes the edit list to path atomically.
func WritePatchList(path string, edits []Edit) error {
	return atomic.WriteFile(path, strings.NewReader(FormatEdits(edits)))
}

// ParsePatchList reads a patch list back into edits. Blank lines and
// lines starting with # are skipped.
func ParsePatchList(r io.Reader) ([]Edit, error) {
	var edits []Edit
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var (
			offset int64
			value  byte
		)
		if _, err := fmt.Sscanf(text, "Offset: %d, New Value: %02x", &offset, &value); err != nil {
			return nil, fmt.Errorf("patch list line %d: %q: %w", line, text, err)
		}
		if offset < 0 {
			return nil, fmt.Errorf("patch list line %d: negative offset %d", line, offset)
		}
		edits = append(edits, Edit{Offset: offset, Value: value})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return edits, nil
}

// ReadPatchList opens and parses the patch list at path.
func ReadPatchList(path string) ([]Edit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParsePatchList(f)
}

// Apply patches the payload in memory. Every edit must stay within
// bounds; the payload length never changes.
func Apply(payload []byte, edits []Edit) error {
	for _, e := range edits {
		if e.Offset < 0 || e.Offset >= int64(len(payload)) {
			return fmt.Errorf("edit at offset %d exceeds payload size %d", e.Offset, len(payload))
		}
		payload[e.Offset] = e.Value
	}
	return nil
}

// ApplyFile applies the edits to the file at path in place. Edits are
// ordered by offset before writing; the file length never changes.
func ApplyFile(path string, edits []Edit) error {
	if len(edits) == 0 {
		return nil
	}
	ordered := append([]Edit(nil), edits...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Offset < ordered[j].Offset
	})

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	for _, e := range ordered {
		if e.Offset < 0 || e.Offset >= size {
			return fmt.Errorf("edit at offset %d exceeds file size %d", e.Offset, size)
		}
		if _, err := f.WriteAt([]byte{e.Value}, e.Offset); err != nil {
			return err
		}
	}
	return f.Sync()
}

// BitOffsets reports the differing bit positions between two payloads
// of equal length, most significant bit first within each byte.
func BitOffsets(original, mutated []byte) ([]int64, error) {
	if len(original) != len(mutated) {
		return nil, fmt.Errorf("payload length changed: %d -> %d bytes", len(original), len(mutated))
	}
	var bits []int64
	for i := range original {
		x := original[i] ^ mutated[i]
		if x == 0 {
			continue
		}
		for b := 0; b < 8; b++ {
			if x&(0x80>>b) != 0 {
				bits = append(bits, int64(i)*8+int64(b))
			}
		}
	}
	return bits, nil
}

// Equal reports whether two payloads carry identical bytes.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}
