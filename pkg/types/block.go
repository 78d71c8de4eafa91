package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// TextBlock is merged source text covering a line range of one file
type TextBlock struct {
	File      string
	LineBegin int
	LineEnd   int
	Text      string
}

var textBlockID = regexp.MustCompile(`^([^:]+):(\d+)-(\d+)$`)

// ID formats the block as file:begin-end
func (b TextBlock) ID() string {
	return fmt.Sprintf("%s:%d-%d", b.File, b.LineBegin, b.LineEnd)
}

// Range returns the block's whole-line range
func (b TextBlock) Range() Range {
	return LineRange(b.LineBegin, b.LineEnd)
}

// Validate checks that the block has content and a sane line range
func (b TextBlock) Validate() error {
	if b.File == "" {
		return errors.New("text block file is required")
	}
	if b.LineBegin <= 0 || b.LineEnd <= 0 {
		return errors.New("line numbers must be positive")
	}
	if b.LineBegin > b.LineEnd {
		return errors.New("begin line must be before or equal to end line")
	}
	return nil
}

// ParseTextBlockID parses the file:begin-end form produced by ID
func ParseTextBlockID(id string) (TextBlock, error) {
	m := textBlockID.FindStringSubmatch(id)
	if m == nil {
		return TextBlock{}, fmt.Errorf("%w: %q", ErrInvalidTextBlock, id)
	}
	begin, _ := strconv.Atoi(m[2])
	end, _ := strconv.Atoi(m[3])
	return TextBlock{File: m[1], LineBegin: begin, LineEnd: end}, nil
}
