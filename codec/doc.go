// Package codec decodes and encodes bus payloads according to their
// content type.
//
// Three formats are understood:
//
//	application/json     encoding/json, numbers kept as json.Number
//	application/cbor     fxamacker/cbor
//	application/msgpack  vmihailenco/msgpack
//
// Maps with only string keys decode as map[string]any. Maps with any other
// key, such as the integer-keyed maps common in CBOR, decode as
// map[any]any and are left to the convert package to stringify.
//
// An empty content type means JSON. Parameters such as "; charset=utf-8"
// are ignored. Unknown types fail with an invalid-class error wrapping
// errors.ErrUnsupportedContentType.
package codec
