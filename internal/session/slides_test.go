package session

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageTree(pages int) []string {
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages),
	}
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	return objs
}

// classicPDF writes a document with a plain xref table.
func classicPDF(pages int) []byte {
	objs := pageTree(pages)
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// compressedPDF keeps the catalog and page tree in a compressed object stream
// indexed by an xref stream, the layout most exporters produce.
func compressedPDF(t *testing.T, pages int) []byte {
	t.Helper()
	objs := pageTree(pages)[:2]

	var header, body strings.Builder
	for i, obj := range objs {
		fmt.Fprintf(&header, "%d %d ", i+1, body.Len())
		body.WriteString(obj + " ")
	}
	objStm := deflate(t, []byte(header.String()+body.String()))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n%\xe2\xe3\xcf\xd3\n")
	stmOffset := buf.Len()
	fmt.Fprintf(&buf, "3 0 obj\n<< /Type /ObjStm /N %d /First %d /Filter /FlateDecode /Length %d >>\nstream\n",
		len(objs), header.Len(), len(objStm))
	buf.Write(objStm)
	buf.WriteString("\nendstream\nendobj\n")

	xrefOffset := buf.Len()
	var rows bytes.Buffer
	row := func(kind byte, field uint32, index uint16) {
		rows.WriteByte(kind)
		_ = binary.Write(&rows, binary.BigEndian, field)
		_ = binary.Write(&rows, binary.BigEndian, index)
	}
	row(0, 0, 0xffff)
	row(2, 3, 0)
	row(2, 3, 1)
	row(1, uint32(stmOffset), 0)
	row(1, uint32(xrefOffset), 0)
	table := deflate(t, rows.Bytes())

	fmt.Fprintf(&buf, "4 0 obj\n<< /Type /XRef /Size 5 /W [1 4 2] /Root 1 0 R /Filter /FlateDecode /Length %d >>\nstream\n",
		len(table))
	buf.Write(table)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestCountPDFPages(t *testing.T) {
	assert.Equal(t, 3, CountPDFPages(classicPDF(3)))
	assert.Equal(t, 12, CountPDFPages(compressedPDF(t, 12)))

	doc := classicPDF(5)
	assert.Zero(t, CountPDFPages(doc[:len(doc)/2]), "truncated document")
	assert.Zero(t, CountPDFPages([]byte("%PDF-1.7 compressed")))
	assert.Zero(t, CountPDFPages([]byte("<< /Type /Pages /Count 9 >>")))
	assert.Zero(t, CountPDFPages(nil))
}

func TestNewSlideDeck_PageCount(t *testing.T) {
	deck, err := NewSlideDeck("talk.pdf", compressedPDF(t, 8), 0)
	require.NoError(t, err)
	assert.Equal(t, 8, deck.Pages)

	deck, err = NewSlideDeck("talk.pdf", compressedPDF(t, 8), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, deck.Pages, "explicit page count wins")

	_, err = NewSlideDeck("talk.pdf", []byte("%PDF-1.4 not really"), 0)
	assert.ErrorIs(t, err, ErrUnknownPageCount)
}
