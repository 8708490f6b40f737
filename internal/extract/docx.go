package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kansa/internal/models"
)

const (
	docxDefaultPart = "word/document.xml"
	docxMainType    = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// extractDOCX returns the document body split into pages at hard page breaks
// (<w:br w:type="page"/>). Each paragraph becomes one line; text runs inside a
// paragraph are concatenated and tabs are kept as tabs. A document without
// page breaks is one page.
func extractDOCX(content []byte) ([]models.Page, error) {
	zr, err := openPackage(content)
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}
	part := partByContentType(zr, docxMainType)
	if part == "" {
		part = docxDefaultPart
	}
	body, err := readPart(zr, part)
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}
	if body == nil {
		return nil, fmt.Errorf("extract DOCX: %s not found", part)
	}
	return docxPages(body)
}

func docxPages(body []byte) ([]models.Page, error) {
	var (
		pages []models.Page
		page  []string
		para  strings.Builder
		inPar bool
		inRun bool
	)
	flushPage := func() {
		pages = append(pages, models.Page{Number: len(pages) + 1, Text: strings.Join(page, "\n")})
		page = nil
	}
	flushPara := func() {
		if t := strings.TrimSpace(para.String()); t != "" {
			page = append(page, t)
		}
		para.Reset()
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("extract DOCX: parse body: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "p":
				inPar = true
			case "t":
				inRun = true
			case "tab":
				if inPar {
					para.WriteByte('\t')
				}
			case "br":
				if attr(el, "type") == "page" {
					flushPara()
					flushPage()
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "p":
				flushPara()
				inPar = false
			case "t":
				inRun = false
			}
		case xml.CharData:
			if inRun {
				para.Write(el)
			}
		}
	}
	flushPara()
	flushPage()
	return pages, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
