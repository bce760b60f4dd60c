package transport

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/types"
)

// MaxRecordLen bounds a single wire record, terminator excluded.
const MaxRecordLen = 256

// AppendRecord appends s as "<force>,<displacement>\n" to dst.
func AppendRecord(dst []byte, s types.Sample) []byte {
	dst = strconv.AppendFloat(dst, s.Force, 'f', -1, 64)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, s.Displacement, 'f', -1, 64)
	return append(dst, '\n')
}

// FormatRecord renders s as one wire record.
func FormatRecord(s types.Sample) []byte {
	return AppendRecord(make([]byte, 0, 32), s)
}

// ParseRecord parses one record without its newline. Surrounding whitespace
// and a trailing carriage return are accepted.
func ParseRecord(line string) (types.Sample, error) {
	line = strings.TrimRight(line, "\r")
	fields := strings.Split(line, ",")
	if len(fields) != 2 {
		return types.Sample{}, &errors.ParseError{
			Record: line,
			Reason: "expected 2 fields, got " + strconv.Itoa(len(fields)),
		}
	}

	force, err := parseField(line, "force", fields[0])
	if err != nil {
		return types.Sample{}, err
	}
	disp, err := parseField(line, "displacement", fields[1])
	if err != nil {
		return types.Sample{}, err
	}
	return types.Sample{Force: force, Displacement: disp}, nil
}

func parseField(line, name, field string) (float64, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0, &errors.ParseError{Record: line, Reason: name + " is empty"}
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, &errors.ParseError{Record: line, Reason: name + " is not a number"}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &errors.ParseError{Record: line, Reason: name + " is not finite"}
	}
	return v, nil
}

// Assembler rebuilds newline-delimited records from arbitrary chunks.
type Assembler struct {
	partial []byte
}

// Feed appends chunk and calls fn for every completed line. Lines that are
// empty after trimming whitespace are skipped. A line longer than
// MaxRecordLen is reported as a parse error. The first error from fn stops
// the feed.
func (a *Assembler) Feed(chunk []byte, fn func(line string) error) error {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			a.partial = append(a.partial, chunk...)
			return a.checkLen()
		}
		a.partial = append(a.partial, chunk[:i]...)
		chunk = chunk[i+1:]

		if err := a.checkLen(); err != nil {
			return err
		}
		line := string(a.partial)
		a.partial = a.partial[:0]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return nil
}

// Flush hands an unterminated trailing record to fn, if there is one.
func (a *Assembler) Flush(fn func(line string) error) error {
	if len(bytes.TrimSpace(a.partial)) == 0 {
		a.partial = a.partial[:0]
		return nil
	}
	line := string(a.partial)
	a.partial = a.partial[:0]
	return fn(line)
}

// Pending reports the number of buffered bytes of an incomplete record.
func (a *Assembler) Pending() int {
	return len(a.partial)
}

func (a *Assembler) checkLen() error {
	if len(a.partial) <= MaxRecordLen {
		return nil
	}
	head := string(a.partial[:32])
	a.partial = a.partial[:0]
	return &errors.ParseError{Record: head + "...", Reason: "record too long"}
}
