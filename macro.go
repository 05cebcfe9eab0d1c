package mimewatch

import (
	"strings"

	"github.com/aknrt/mimewatch/internal/wire"
)

// PhaseHeaderBlock is the macro batch phase that announces the start of
// the header block.
const PhaseHeaderBlock = 'T'

// Macro is one name/value pair from a DATA macro batch.
type Macro struct {
	Name  string
	Value string
}

// MacroBatch is a decoded DATA payload: the phase identifier and the
// macros delivered for it.
type MacroBatch struct {
	Phase  byte
	Macros []Macro
}

// DecodeMacroBatch decodes the NUL-separated DATA payload. The first
// non-empty record carries the phase byte followed by the first macro
// name; values and further names alternate record by record. An odd
// leftover record at the tail is dropped without comment.
func DecodeMacroBatch(data []byte) MacroBatch {
	records := wire.SplitRecords(data)
	first := 0
	for first < len(records) && records[first] == "" {
		first++
	}
	if first >= len(records) {
		return MacroBatch{}
	}

	batch := MacroBatch{Phase: records[first][0]}
	pairs := append([]string{records[first][1:]}, records[first+1:]...)
	for i := 0; i+1 < len(pairs); i += 2 {
		batch.Macros = append(batch.Macros, Macro{
			Name:  macroName(pairs[i]),
			Value: pairs[i+1],
		})
	}
	return batch
}

// macroName interprets a raw name record. A record starting with '{' is a
// vendor macro: the name runs through the closing brace and trailing
// bytes are ignored. Anything else is taken verbatim.
func macroName(record string) string {
	if strings.HasPrefix(record, "{") {
		if end := strings.IndexByte(record, '}'); end >= 0 {
			return record[:end+1]
		}
	}
	return record
}
