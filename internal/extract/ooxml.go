package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Office Open XML documents are zip packages; [Content_Types].xml maps each
// part name to its content type.
const contentTypesPart = "[Content_Types].xml"

func openPackage(content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not an office package: %w", err)
	}
	return zr, nil
}

// readPart returns the bytes of the named part, or nil and no error when the
// package has no such part.
func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}

// partByContentType looks up the part registered under contentType in
// [Content_Types].xml. It returns "" when the manifest is missing, unreadable
// or has no such override.
func partByContentType(zr *zip.Reader, contentType string) string {
	data, err := readPart(zr, contentTypesPart)
	if err != nil || data == nil {
		return ""
	}
	var types struct {
		Overrides []struct {
			PartName    string `xml:"PartName,attr"`
			ContentType string `xml:"ContentType,attr"`
		} `xml:"Override"`
	}
	if err := xml.Unmarshal(data, &types); err != nil {
		return ""
	}
	for _, o := range types.Overrides {
		if o.ContentType == contentType {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return ""
}
