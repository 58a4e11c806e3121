package importer

import "fmt"

// ErrorKind is the closed set of import failure categories.
type ErrorKind int

const (
	KindInvalidURL ErrorKind = iota + 1
	KindCredentials
	KindDisallowedHost
	KindFetchFailed
	KindDisallowedRedirect
	KindUnsupportedType
	KindCorrupt
	KindDimensionsTooLarge
	KindPayloadTooLarge
	KindEmpty
	KindSVGTooLarge
	KindInvalidTarget
	KindStorage
)

var kindNames = map[ErrorKind]string{
	KindInvalidURL:         "invalid-url",
	KindCredentials:        "credentials-not-allowed",
	KindDisallowedHost:     "disallowed-host",
	KindFetchFailed:        "fetch-failed",
	KindDisallowedRedirect: "disallowed-redirect",
	KindUnsupportedType:    "unsupported-type",
	KindCorrupt:            "corrupt-image",
	KindDimensionsTooLarge: "dimensions-too-large",
	KindPayloadTooLarge:    "payload-too-large",
	KindEmpty:              "empty-payload",
	KindSVGTooLarge:        "svg-too-large",
	KindInvalidTarget:      "invalid-target",
	KindStorage:            "storage-failed",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind by name in JSON reports.
func (k ErrorKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Error is a failed import. Callers inspect Kind via errors.As.
type Error struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
	Err    error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("importer: %s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("importer: %s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(kind ErrorKind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}
