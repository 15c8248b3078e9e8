package loader

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"docseek/internal/domain"
)

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Quarterly report</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Sales grew </w:t></w:r><w:r><w:rPr><w:b/></w:rPr><w:t>12%</w:t></w:r></w:p>
<w:p></w:p>
<w:tbl>
<w:tblPr><w:tblW w:w="0" w:type="auto"/></w:tblPr>
<w:tr><w:tc><w:p><w:r><w:t>이름</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Team</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>김철수</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>R&amp;D</w:t></w:r></w:p><w:p><w:r><w:t>Seoul</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>Lee</w:t><w:br/><w:t>Young</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>&lt;Ops&gt;</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
<w:p><w:r><w:t>Closing note</w:t></w:r></w:p>
<w:sectPr/>
</w:body>
</w:document>`

func writeDocx(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "report.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestLoadDocxKeepsBodyOrder(t *testing.T) {
	path := writeDocx(t, t.TempDir(), docxBody)

	docs, err := LoadDocx(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "Quarterly report\n\nSales grew 12%", docs[0].Content)
	assert.Equal(t, TypeText, docs[0].Metadata[domain.MetaType])
	assert.Equal(t, path, docs[0].Source())

	assert.Equal(t,
		`[{"이름": "김철수", "Team": "R&D Seoul"}, {"이름": "Lee Young", "Team": "<Ops>"}]`,
		docs[1].Content)
	assert.Equal(t, TypeTable, docs[1].Metadata[domain.MetaType])

	assert.Equal(t, "Closing note", docs[2].Content)
}

func TestTableJSONTruncatesToHeader(t *testing.T) {
	out, err := tableJSON([][]string{{"a", "b"}, {"1"}, {"1", "2", "3"}})
	require.NoError(t, err)
	assert.Equal(t, `[{"a": "1"}, {"a": "1", "b": "2"}]`, out)
}

func TestLoadDocxRejectsNonZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	require.NoError(t, os.WriteFile(path, []byte("plain"), 0o644))
	_, err := LoadDocx(context.Background(), path)
	assert.Error(t, err)
}

func TestRegistryDispatchesByExtension(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "Notes.TXT")
	require.NoError(t, os.WriteFile(txt, []byte("meeting at noon"), 0o644))

	r := Default(nil)
	assert.True(t, r.Supports(txt))
	assert.False(t, r.Supports("photo.png"))

	docs, err := r.Load(context.Background(), txt)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "meeting at noon", docs[0].Content)
	assert.Equal(t, txt, docs[0].Metadata[domain.MetaSource])

	_, err = r.Load(context.Background(), filepath.Join(dir, "archive.7z"))
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Contains(t, strings.Join(r.Extensions(), ","), ".docx")
}

func TestLoadPDFReportsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadPDF(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("%PDF-1.4 nothing else"), 0o644))
	_, err = LoadPDF(context.Background(), bad)
	assert.Error(t, err)
}

type fakeCaptioner struct {
	caption string
	err     error
}

func (f fakeCaptioner) CaptionFile(context.Context, string) (string, error) { return f.caption, f.err }

type fakeRecognizer struct {
	text string
	err  error
}

func (f fakeRecognizer) Recognize(context.Context, string) (string, error) { return f.text, f.err }

func TestImageLoader(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	l := NewImageLoader(fakeCaptioner{caption: "a dog on a beach"}, fakeRecognizer{text: "BEACH CLOSED"}, logger)
	docs, err := l.Load(ctx, "/pics/dog.png")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a dog on a beach", docs[0].Content)
	assert.Equal(t, TypeCaption, docs[0].Metadata[domain.MetaType])
	assert.Equal(t, "/pics/dog.png", docs[0].Metadata[domain.MetaImagePath])
	assert.Equal(t, TypeOCR, docs[1].Metadata[domain.MetaType])

	l = NewImageLoader(fakeCaptioner{caption: "a cat"}, fakeRecognizer{}, logger)
	docs, err = l.Load(ctx, "/pics/cat.png")
	require.NoError(t, err)
	assert.Len(t, docs, 1, "empty ocr text adds no document")

	l = NewImageLoader(fakeCaptioner{caption: "a cat"}, fakeRecognizer{err: errors.New("no tesseract")}, logger)
	docs, err = l.Load(ctx, "/pics/cat.png")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	l = NewImageLoader(fakeCaptioner{err: errors.New("decoder failed")}, nil, logger)
	_, err = l.Load(ctx, "/pics/cat.png")
	assert.ErrorContains(t, err, "decoder failed")
}
