package odata

import (
	"fmt"
	"strings"
	"time"
)

// Filter accumulates OData $filter clauses for the Copernicus catalogue.
// Clauses are joined with "and" in insertion order, which keeps the
// generated expression deterministic and testable.
type Filter struct {
	clauses []string
}

// Collection filters on the collection name, e.g. "SENTINEL-1".
func (f *Filter) Collection(name string) *Filter {
	f.clauses = append(f.clauses, fmt.Sprintf("Collection/Name eq '%s'", name))
	return f
}

// Intersects filters on products whose footprint intersects the WKT
// geometry, expressed in EPSG:4326.
func (f *Filter) Intersects(wkt string) *Filter {
	f.clauses = append(f.clauses,
		fmt.Sprintf("OData.CSC.Intersects(area=geography'SRID=4326;%s')", wkt))
	return f
}

// SensingBetween bounds the sensing start time, both bounds inclusive.
func (f *Filter) SensingBetween(start, end time.Time) *Filter {
	f.clauses = append(f.clauses,
		fmt.Sprintf("ContentDate/Start ge %s and ContentDate/Start le %s",
			formatTime(start), formatTime(end)))
	return f
}

// StringAttr filters on a typed string attribute such as productType or
// operationalMode.
func (f *Filter) StringAttr(name, value string) *Filter {
	f.clauses = append(f.clauses, fmt.Sprintf(
		"Attributes/OData.CSC.StringAttribute/any(att:att/Name eq '%s' and att/OData.CSC.StringAttribute/Value eq '%s')",
		name, value))
	return f
}

// IntAttr filters on a typed integer attribute such as
// relativeOrbitNumber or sliceNumber.
func (f *Filter) IntAttr(name string, value int) *Filter {
	f.clauses = append(f.clauses, fmt.Sprintf(
		"Attributes/OData.CSC.IntegerAttribute/any(att:att/Name eq '%s' and att/OData.CSC.IntegerAttribute/Value eq %d)",
		name, value))
	return f
}

// CloudCoverBetween bounds the cloudCover double attribute.
func (f *Filter) CloudCoverBetween(min, max float64) *Filter {
	f.clauses = append(f.clauses, fmt.Sprintf(
		"Attributes/OData.CSC.DoubleAttribute/any(att:att/Name eq 'cloudCover' and att/OData.CSC.DoubleAttribute/Value ge %.2f and att/OData.CSC.DoubleAttribute/Value le %.2f)",
		min, max))
	return f
}

// String renders the complete $filter expression.
func (f *Filter) String() string {
	return strings.Join(f.clauses, " and ")
}

// formatTime renders a timestamp the way the catalogue expects:
// millisecond precision, Zulu.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
