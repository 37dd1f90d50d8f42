package client

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// TokenElementID is the id of the lookup page input holding the resolved token.
const TokenElementID = "encryptedString"

var (
	errTokenMissing  = errors.New("element #" + TokenElementID + " not found")
	errTokenNoValue  = errors.New("element #" + TokenElementID + " has no value attribute")
	errDetailMissing  = errors.New("REPORT_DTLS/REPORT_DTL not found")
	errDetailMultiple = errors.New("REPORT_DTLS holds more than one REPORT_DTL")
	errDetailEmpty    = errors.New("REPORT_DTL has no fields")
)

// parseToken extracts the value attribute of #encryptedString from a lookup page.
func parseToken(body io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("parse lookup html: %w", err)
	}

	sel := doc.Find("#" + TokenElementID).First()
	if sel.Length() == 0 {
		return "", errTokenMissing
	}

	token, ok := sel.Attr("value")
	if !ok {
		return "", errTokenNoValue
	}
	return token, nil
}

type reportCheckResponse struct {
	XMLName xml.Name       `xml:"REPORT_CHECK_RESPONSE"`
	Details *reportDetails `xml:"REPORT_DTLS"`
}

type reportDetails struct {
	Detail []reportDetail `xml:"REPORT_DTL"`
}

type reportDetail struct {
	Fields []xmlField `xml:",any"`
}

type xmlField struct {
	XMLName xml.Name
	Value   string
}

// UnmarshalXML keeps the text of a field element. Text of nested elements is
// flattened in document order and joined with ", ".
func (f *xmlField) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	f.XMLName = start.Name

	var (
		parts []string
		buf   strings.Builder
		depth int
	)
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			parts = append(parts, s)
		}
		buf.Reset()
	}

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			flush()
			depth++
		case xml.EndElement:
			flush()
			if depth == 0 {
				f.Value = strings.Join(parts, ", ")
				return nil
			}
			depth--
		case xml.CharData:
			buf.Write(t)
		}
	}
}

// parseDetail decodes a report XML document into raw field values keyed by element name.
// A structurally invalid document, or one with zero or several REPORT_DTL
// elements, returns a parse error; an empty REPORT_DTL returns errDetailEmpty.
func parseDetail(body io.Reader) (map[string]string, error) {
	dec := xml.NewDecoder(body)
	dec.CharsetReader = charset.NewReaderLabel

	var resp reportCheckResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode report xml: %w", err)
	}
	if resp.Details == nil || len(resp.Details.Detail) == 0 {
		return nil, errDetailMissing
	}
	if len(resp.Details.Detail) > 1 {
		return nil, errDetailMultiple
	}
	detail := resp.Details.Detail[0]
	if len(detail.Fields) == 0 {
		return nil, errDetailEmpty
	}

	raw := make(map[string]string, len(detail.Fields))
	for _, f := range detail.Fields {
		raw[f.XMLName.Local] = strings.TrimSpace(f.Value)
	}
	return raw, nil
}
