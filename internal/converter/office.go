package converter

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// openXML is the subset of WordprocessingML and DrawingML needed for text:
// paragraphs (p) containing runs (r) containing text (t). Namespaces are
// ignored so w:p and a:p both match.
type openXMLParagraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

type docxDocument struct {
	Body struct {
		Paragraphs []openXMLParagraph `xml:"p"`
	} `xml:"body"`
}

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func convertDOCX(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: open docx %s: %v", ErrConversion, path, err)
	}
	defer func() { _ = r.Close() }()

	data, err := readZipEntry(&r.Reader, "word/document.xml")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrConversion, path, err)
	}

	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("%w: parse docx %s: %v", ErrConversion, path, err)
	}

	lines := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		lines = append(lines, paragraphText(p))
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func convertPPTX(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: open pptx %s: %v", ErrConversion, path, err)
	}
	defer func() { _ = r.Close() }()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range r.File {
		m := slideName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var b strings.Builder
	for i, s := range slides {
		data, err := readZipFile(s.file)
		if err != nil {
			return "", fmt.Errorf("%w: %s slide %d: %v", ErrConversion, path, s.num, err)
		}
		paragraphs, err := slideParagraphs(data)
		if err != nil {
			return "", fmt.Errorf("%w: parse %s slide %d: %v", ErrConversion, path, s.num, err)
		}

		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "<!-- Slide %d -->\n", s.num)
		b.WriteString(strings.Join(paragraphs, "\n"))
	}
	return strings.TrimSpace(b.String()), nil
}

// slideParagraphs collects every a:p in document order regardless of nesting
// depth (shapes, group shapes, tables).
func slideParagraphs(data []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "p" {
			continue
		}
		var p openXMLParagraph
		if err := dec.DecodeElement(&p, &se); err != nil {
			return nil, err
		}
		if text := paragraphText(p); strings.TrimSpace(text) != "" {
			out = append(out, text)
		}
	}
}

func paragraphText(p openXMLParagraph) string {
	var b strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

func readZipEntry(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name == name {
			return readZipFile(f)
		}
	}
	return nil, fmt.Errorf("missing %s", name)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
