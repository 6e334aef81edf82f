package session

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Slide upload errors.
var (
	ErrPowerPointSlides  = errors.New("powerpoint slides are not supported, export as PDF and upload again")
	ErrUnsupportedSlides = errors.New("unsupported slides format")
	ErrUnknownPageCount  = errors.New("could not determine the page count of the slides")
)

// SlidesContentType is the content type slides are uploaded with.
const SlidesContentType = "application/pdf"

// SlideDeck is an attached PDF presentation.
type SlideDeck struct {
	Name  string
	Data  []byte
	Pages int
}

// NewSlideDeck validates an uploaded file. When pages is zero the count is
// read from the document.
func NewSlideDeck(name string, data []byte, pages int) (SlideDeck, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "pdf":
	case "ppt", "pptx":
		return SlideDeck{}, ErrPowerPointSlides
	default:
		return SlideDeck{}, fmt.Errorf("%w: %s", ErrUnsupportedSlides, name)
	}
	if len(data) == 0 {
		return SlideDeck{}, fmt.Errorf("%w: %s is empty", ErrUnsupportedSlides, name)
	}

	if pages <= 0 {
		pages = CountPDFPages(data)
	}
	if pages <= 0 {
		return SlideDeck{}, ErrUnknownPageCount
	}
	return SlideDeck{Name: filepath.Base(name), Data: data, Pages: pages}, nil
}

// CountPDFPages returns the page count from the document's page tree, or 0
// when the document cannot be parsed.
func CountPDFPages(data []byte) (pages int) {
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	if n := r.NumPage(); n > 0 {
		return n
	}
	return 0
}
