package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// xmlNode is a generic XML element. The feed's schema is not under our
// control, so ads are decoded into a tree and fields pulled out one at a
// time instead of binding a rigid struct per element.
type xmlNode struct {
	XMLName xml.Name
	Text    string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

// child returns the first child element with the given local name, or nil
func (n *xmlNode) child(name string) *xmlNode {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == name {
			return &n.Nodes[i]
		}
	}
	return nil
}

// childNames lists the local names of all child elements, in order
func (n *xmlNode) childNames() []string {
	names := make([]string, 0, len(n.Nodes))
	for i := range n.Nodes {
		names = append(names, n.Nodes[i].XMLName.Local)
	}
	return names
}

// Parse decodes the raw feed XML into normalized records. The document must
// have a `standard` root holding `ad` elements; any other shape is a
// structural error that aborts the whole sync, with the element names that
// were actually found included to aid debugging.
func Parse(data []byte) ([]Record, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	// The feed occasionally carries undeclared entities; map them to empty
	// rather than failing the whole document.
	decoder.Entity = map[string]string{}
	decoder.Strict = false

	var root xmlNode
	if err := decoder.Decode(&root); err != nil {
		return nil, fmt.Errorf("parsing feed XML: %w", err)
	}

	if root.XMLName.Local != "standard" {
		return nil, fmt.Errorf("could not find 'ad' elements under 'standard': root element is '%s'", root.XMLName.Local)
	}

	var records []Record
	for i := range root.Nodes {
		if root.Nodes[i].XMLName.Local != "ad" {
			continue
		}
		records = append(records, extractRecord(&root.Nodes[i]))
	}

	if records == nil {
		return nil, fmt.Errorf("could not find 'ad' elements under 'standard': found [%s]",
			strings.Join(root.childNames(), ", "))
	}

	return records, nil
}

// extract returns the trimmed text of the first child with the given name.
// CDATA content is included by the chardata decoding. Empty-after-trim is
// treated as absent.
func extract(ad *xmlNode, key string) *string {
	c := ad.child(key)
	if c == nil {
		return nil
	}
	s := strings.TrimSpace(c.Text)
	if s == "" {
		return nil
	}
	return &s
}

// extractFloat parses a numeric field, accepting a comma decimal separator
func extractFloat(ad *xmlNode, key string) *float64 {
	s := extract(ad, key)
	if s == nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.Replace(*s, ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	return &f
}

// extractInt parses an integer field
func extractInt(ad *xmlNode, key string) *int {
	s := extract(ad, key)
	if s == nil {
		return nil
	}
	i, err := strconv.Atoi(*s)
	if err != nil {
		return nil
	}
	return &i
}

// extractBool compares the field against the feed's truthy token for it.
// Anything else, including absence, is false.
func extractBool(ad *xmlNode, key, truthy string) bool {
	s := extract(ad, key)
	return s != nil && *s == truthy
}

// extractPictures walks pictures > picture > picture_url. Entries without a
// resolvable URL are dropped; no pictures at all is valid.
func extractPictures(ad *xmlNode) []string {
	container := ad.child("pictures")
	if container == nil {
		return nil
	}

	var urls []string
	for i := range container.Nodes {
		p := &container.Nodes[i]
		if p.XMLName.Local != "picture" {
			continue
		}
		if url := extract(p, "picture_url"); url != nil {
			urls = append(urls, *url)
		}
	}
	return urls
}

func extractRecord(ad *xmlNode) Record {
	return Record{
		SKU:          extract(ad, "id"),
		Name:         extract(ad, "title"),
		VIN:          extract(ad, "vin"),
		RegularPrice: extractFloat(ad, "price"),

		Version:             extract(ad, "version"),
		FinancedPrice:       extractFloat(ad, "financed_price"),
		MonthlyFinancingFee: extractFloat(ad, "monthly_financing_fee"),
		Make:                extract(ad, "make"),
		Model:               extract(ad, "model"),
		Bodytype:            extract(ad, "bodytype"),
		Year:                extractInt(ad, "year"),
		Month:               extractInt(ad, "month"),
		Kms:                 extractInt(ad, "kms"),
		Fuel:                extract(ad, "fuel"),
		Power:               extractInt(ad, "power"),
		Transmission:        extract(ad, "transmission"),
		Color:               extract(ad, "color"),
		Doors:               extractInt(ad, "doors"),
		Seats:               extractInt(ad, "seats"),
		EngineSize:          extractInt(ad, "engine_size"),
		Gears:               extractInt(ad, "gears"),
		Store:               extract(ad, "store"),
		City:                extract(ad, "city"),
		Address:             extract(ad, "address"),
		Numberplate:         extract(ad, "numberplate"),
		Guarantee:           extract(ad, "guarantee"),
		EnvironmentalBadge:  extract(ad, "environmental_badge"),
		Description:         extract(ad, "content"),
		Equipment:           extract(ad, "equipment"),

		// The feed's truthy markers differ per flag
		VATDeductible: extractBool(ad, "vat", "True"),
		Crashed:       extractBool(ad, "crashed", "1"),

		PictureURLs: extractPictures(ad),
	}
}
