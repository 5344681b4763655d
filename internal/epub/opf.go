package epub

import (
	"encoding/xml"
	"strings"
)

// MetaEntry is one metadata element: its text plus namespace-stripped
// attributes.
type MetaEntry struct {
	Text  string
	Attrs map[string]string
}

// containerDoc maps META-INF/container.xml.
type containerDoc struct {
	XMLName   xml.Name `xml:"urn:oasis:names:tc:opendocument:xmlns:container container"`
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// packageDoc maps the OPF package document.
type packageDoc struct {
	XMLName  xml.Name     `xml:"http://www.idpf.org/2007/opf package"`
	Metadata metadataElem `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID   string `xml:"id,attr"`
			Href string `xml:"href,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemrefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// metadataElem collects arbitrary metadata children as tag -> entries,
// with namespace prefixes stripped from tags and attribute keys.
type metadataElem struct {
	entries map[string][]MetaEntry
}

func (m *metadataElem) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	m.entries = make(map[string][]MetaEntry)

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			attrs := make(map[string]string, len(t.Attr))
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				attrs[a.Name.Local] = a.Value
			}

			var body struct {
				Content string `xml:",chardata"`
			}
			if err := d.DecodeElement(&body, &t); err != nil {
				return err
			}

			tag := t.Name.Local
			m.entries[tag] = append(m.entries[tag], MetaEntry{
				Text:  strings.TrimSpace(body.Content),
				Attrs: attrs,
			})
		case xml.EndElement:
			if t.Name == start.Name {
				return nil
			}
		}
	}
}

// parseContainer extracts the package document path from the container
// descriptor.
func parseContainer(data []byte) (string, error) {
	var doc containerDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	if len(doc.Rootfiles) == 0 || doc.Rootfiles[0].FullPath == "" {
		return "", ErrNoPackageDoc
	}
	return doc.Rootfiles[0].FullPath, nil
}

// parseOPF parses the package document into manifest, spine idrefs, and
// metadata.
func parseOPF(data []byte) (*packageDoc, error) {
	var doc packageDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
