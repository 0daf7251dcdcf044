package odata

import (
	"encoding/json"
	"strings"
)

// productsResponse is the OData collection envelope.
type productsResponse struct {
	Context  string    `json:"@odata.context"`
	NextLink string    `json:"@odata.nextLink"`
	Value    []Product `json:"value"`
}

// Product is a single catalogue entry. GeoFootprint carries the coverage
// geometry as GeoJSON; the WKT Footprint field is ignored in favour of it.
type Product struct {
	ID               string          `json:"Id"`
	Name             string          `json:"Name"`
	ContentType      string          `json:"ContentType"`
	ContentLength    int64           `json:"ContentLength"`
	OriginDate       string          `json:"OriginDate"`
	PublicationDate  string          `json:"PublicationDate"`
	ModificationDate string          `json:"ModificationDate"`
	Online           bool            `json:"Online"`
	S3Path           string          `json:"S3Path"`
	ContentDate      ContentDate     `json:"ContentDate"`
	GeoFootprint     json.RawMessage `json:"GeoFootprint"`
	Checksums        []Checksum      `json:"Checksum"`
	Attributes       []Attribute     `json:"Attributes"`
}

// ContentDate is the sensing window of a product.
type ContentDate struct {
	Start string `json:"Start"`
	End   string `json:"End"`
}

// Checksum is a named digest of the product archive.
type Checksum struct {
	Value     string `json:"Value"`
	Algorithm string `json:"Algorithm"`
}

// md5Checksum returns the MD5 digest from a product's checksum list, or
// an empty string when the catalogue published none.
func md5Checksum(checksums []Checksum) string {
	for _, c := range checksums {
		if strings.EqualFold(c.Algorithm, "MD5") {
			return strings.ToLower(c.Value)
		}
	}
	return ""
}

// Attribute is one entry of the product's typed attribute list. Value is
// raw because the OData type varies per attribute (string, double,
// integer, boolean).
type Attribute struct {
	Type  string          `json:"@odata.type"`
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// stringAttr returns the named attribute decoded as a string.
func stringAttr(attrs []Attribute, name string) string {
	for _, a := range attrs {
		if a.Name == name {
			var s string
			if err := json.Unmarshal(a.Value, &s); err == nil {
				return s
			}
		}
	}
	return ""
}

// floatAttr returns the named attribute decoded as a float64.
func floatAttr(attrs []Attribute, name string) (float64, bool) {
	for _, a := range attrs {
		if a.Name == name {
			var f float64
			if err := json.Unmarshal(a.Value, &f); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// intAttr returns the named attribute decoded as an int.
func intAttr(attrs []Attribute, name string) (int, bool) {
	f, ok := floatAttr(attrs, name)
	if !ok {
		return 0, false
	}
	return int(f), true
}
