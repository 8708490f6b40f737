package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/hyperjump/kansa/internal/models"
)

// slideName matches ppt/slides/slideN.xml and captures N.
var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// extractPPTX returns one page per slide, ordered by slide number rather than
// by position in the archive. Text runs on a slide are joined with spaces.
func extractPPTX(content []byte) ([]models.Page, error) {
	zr, err := openPackage(content)
	if err != nil {
		return nil, fmt.Errorf("extract PPTX: %w", err)
	}
	type slide struct {
		n    int
		text string
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		data, err := readPart(zr, f.Name)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		text, err := slideText(data)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %s: %w", f.Name, err)
		}
		slides = append(slides, slide{n: n, text: text})
	}
	slices.SortFunc(slides, func(a, b slide) int { return a.n - b.n })

	pages := make([]models.Page, len(slides))
	for i, s := range slides {
		pages[i] = models.Page{Number: i + 1, Text: s.text}
	}
	return pages, nil
}

// slideText collects the DrawingML text runs (<a:t>) of one slide.
func slideText(data []byte) (string, error) {
	var parts []string
	inText := false
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			inText = el.Name.Local == "t"
		case xml.EndElement:
			inText = false
		case xml.CharData:
			if inText {
				if t := strings.TrimSpace(string(el)); t != "" {
					parts = append(parts, t)
				}
			}
		}
	}
	return strings.Join(parts, " "), nil
}
