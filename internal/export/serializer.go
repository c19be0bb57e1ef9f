package export

import (
	"time"

	dErrors "tessera/pkg/domain-errors"
)

// Serializer renders the canonical dataset in one interchange format.
// Implementations must be pure: same dataset in, same bytes out.
type Serializer interface {
	Format() Format
	Serialize(ds *Dataset) ([]byte, error)
}

var serializers = map[Format]Serializer{
	FormatNative: nativeSerializer{},
	FormatFlat:   flatSerializer{},
	FormatSDTM:   sdtmSerializer{},
	FormatFHIR:   fhirSerializer{},
	FormatOMOP:   omopSerializer{},
}

// SerializerFor returns the serializer for a format.
func SerializerFor(format Format) (Serializer, error) {
	if s, ok := serializers[format]; ok {
		return s, nil
	}
	return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown export format "+string(format))
}

// dayString normalizes a timestamp to its UTC calendar day.
func dayString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
