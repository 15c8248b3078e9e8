package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"docseek/internal/domain"
)

// Content types attached to docx documents under domain.MetaType.
const (
	TypeText  = "text"
	TypeTable = "table"
)

type docxBlock struct {
	paragraphs []string
	table      [][]string
}

// LoadDocx reads the body of a Word document in order. Consecutive
// paragraphs become one document joined by blank lines; every table becomes
// a JSON array of row objects keyed by the header row.
func LoadDocx(_ context.Context, path string) ([]domain.Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var body io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body, err = f.Open()
			if err != nil {
				return nil, err
			}
			break
		}
	}
	if body == nil {
		return nil, errors.New("word/document.xml not found")
	}
	defer body.Close()

	blocks, err := parseDocxBody(xml.NewDecoder(body))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	var docs []domain.Document
	for _, b := range blocks {
		if b.table != nil {
			content, err := tableJSON(b.table)
			if err != nil {
				return nil, err
			}
			docs = append(docs, docxDocument(path, content, TypeTable))
			continue
		}
		docs = append(docs, docxDocument(path, strings.Join(b.paragraphs, "\n\n"), TypeText))
	}
	return docs, nil
}

func docxDocument(path, content, kind string) domain.Document {
	return domain.Document{
		Content:  content,
		Metadata: map[string]any{domain.MetaSource: path, domain.MetaType: kind},
	}
}

func parseDocxBody(dec *xml.Decoder) ([]docxBlock, error) {
	var blocks []docxBlock
	var run []string
	flush := func() {
		if len(run) > 0 {
			blocks = append(blocks, docxBlock{paragraphs: run})
			run = nil
		}
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			flush()
			return blocks, nil
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "p":
			text, err := readParagraph(dec)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(text) != "" {
				run = append(run, text)
			}
		case "tbl":
			flush()
			rows, err := readTable(dec)
			if err != nil {
				return nil, err
			}
			if len(rows) > 0 {
				blocks = append(blocks, docxBlock{table: rows})
			}
		}
	}
}

// readParagraph consumes tokens up to the end of the current w:p.
func readParagraph(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					return "", err
				}
				sb.WriteString(s)
				continue
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
			depth++
		case xml.EndElement:
			if depth == 0 {
				return sb.String(), nil
			}
			depth--
		}
	}
}

// readTable consumes tokens up to the end of the current w:tbl. Each cell is
// its paragraphs joined by a space with line breaks flattened; nested tables
// contribute their cell text.
func readTable(dec *xml.Decoder) ([][]string, error) {
	var rows [][]string
	var row []string
	var cell []string
	inCell := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tr":
				row = []string{}
			case "tc":
				cell, inCell = nil, true
			case "p":
				text, err := readParagraph(dec)
				if err != nil {
					return nil, err
				}
				if inCell {
					cell = append(cell, strings.ReplaceAll(text, "\n", " "))
				}
			case "tbl":
				nested, err := readTable(dec)
				if err != nil {
					return nil, err
				}
				for _, r := range nested {
					cell = append(cell, strings.Join(r, " "))
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tc":
				row = append(row, strings.Join(cell, " "))
				inCell = false
			case "tr":
				rows = append(rows, row)
			case "tbl":
				return rows, nil
			}
		}
	}
}

// tableJSON renders rows after the header as objects whose keys follow the
// header order. Extra cells beyond the header are dropped and a repeated
// header name keeps its first position with the last value.
func tableJSON(rows [][]string) (string, error) {
	header := rows[0]
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range rows[1:] {
		if i > 0 {
			buf.WriteString(", ")
		}
		n := min(len(header), len(row))
		keys := make([]string, 0, n)
		values := make(map[string]string, n)
		for j := 0; j < n; j++ {
			if _, seen := values[header[j]]; !seen {
				keys = append(keys, header[j])
			}
			values[header[j]] = row[j]
		}
		buf.WriteByte('{')
		for j, k := range keys {
			if j > 0 {
				buf.WriteString(", ")
			}
			if err := writeJSONString(&buf, k); err != nil {
				return "", err
			}
			buf.WriteString(": ")
			if err := writeJSONString(&buf, values[k]); err != nil {
				return "", err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
