package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		declared string
		filename string
		want     string
	}{
		{"text/plain; charset=utf-8", "a.txt", MimeText},
		{"Application/PDF", "a.pdf", MimePDF},
		{"application/octet-stream", "sheet.xlsx", MimeXLSX},
		{"", "notes.md", MimeMarkdown},
		{"image/png", "photo.png", "image/png"},
		{"image/png", "photo.csv", "image/png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.declared, tt.filename), "%s %s", tt.declared, tt.filename)
	}
}

func TestSupportedAndDocType(t *testing.T) {
	assert.True(t, Supported(MimeDOCX))
	assert.True(t, Supported(MimeXLS))
	assert.False(t, Supported("image/png"))
	assert.Equal(t, "csv", DocType(MimeCSV))
	assert.True(t, IsTabular(MimeXLSX))
	assert.False(t, IsTabular(MimePDF))
}

func TestText_Plain(t *testing.T) {
	text, err := Text([]byte("hello\nworld"), MimeText)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", text)

	_, err = Text([]byte("a,b"), MimeCSV)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestText_DOCX(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Quarterly </w:t></w:r><w:r><w:t>report</w:t></w:r></w:p>
    <w:p><w:r><w:t>Revenue grew.</w:t></w:r></w:p>
  </w:body>
</w:document>`

	text, err := Text(buildDocx(t, body), MimeDOCX)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report\nRevenue grew.", text)
}

func TestText_DOCXInvalid(t *testing.T) {
	_, err := Text([]byte("not a zip"), MimeDOCX)
	assert.Error(t, err)
}

func TestText_PDFInvalid(t *testing.T) {
	_, err := Text([]byte("%PDF-garbage"), MimePDF)
	assert.Error(t, err)
}

func TestRows_CSV(t *testing.T) {
	data := []byte("\xef\xbb\xbfname,team,\nAda,core,x\n,,\nLin,,y\n")

	rows, err := Rows(data, MimeCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"name: Ada, team: core, column_3: x",
		"name: Lin, column_3: y",
	}, rows)
}

func TestRows_XLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"sku", "qty"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"A-1", 4}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"B-2", 9}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rows, err := Rows(buf.Bytes(), MimeXLSX)
	require.NoError(t, err)
	assert.Equal(t, []string{"sku: A-1, qty: 4", "sku: B-2, qty: 9"}, rows)
}

func TestGroupRows(t *testing.T) {
	rows := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, []string{"a\nb", "c\nd", "e"}, GroupRows(rows, 2))
	assert.Equal(t, []string{"a\nb\nc\nd\ne"}, GroupRows(rows, 50))
	assert.Empty(t, GroupRows(nil, 50))
}

func TestText_DOCXInflationCapped(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	block := bytes.Repeat([]byte("a"), 1<<20)
	for written := int64(0); written <= maxUncompressedBytes; written += int64(len(block)) {
		_, err = w.Write(block)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.Less(t, buf.Len(), 1<<20)

	_, err = Text(buf.Bytes(), MimeDOCX)
	assert.ErrorIs(t, err, ErrContentTooLarge)
}

func TestRows_XLSXInflationCapped(t *testing.T) {
	f := excelize.NewFile()
	for i := 1; i <= 200; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &[]interface{}{"row", i, "padding padding padding"}))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	orig := maxUncompressedBytes
	maxUncompressedBytes = 4 << 10
	t.Cleanup(func() { maxUncompressedBytes = orig })

	_, err = Rows(buf.Bytes(), MimeXLSX)
	assert.Error(t, err)
}
