package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/streamrelay/errors"
)

// Supported content types
const (
	ContentTypeJSON    = "application/json"
	ContentTypeCBOR    = "application/cbor"
	ContentTypeMsgPack = "application/msgpack"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error

	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	// Map keys may be any CBOR type; stringKeys narrows string-keyed maps
	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[any]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Normalize maps a Content-Type header value to one of the supported
// content types.
func Normalize(contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	switch ct {
	case "", ContentTypeJSON, "text/json":
		return ContentTypeJSON, nil
	case ContentTypeCBOR:
		return ContentTypeCBOR, nil
	case ContentTypeMsgPack, "application/x-msgpack", "application/vnd.msgpack":
		return ContentTypeMsgPack, nil
	default:
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnsupportedContentType, contentType),
			"codec", "Normalize", "resolve content type")
	}
}

// Decode decodes data into a generic value (maps, slices, scalars)
func Decode(contentType string, data []byte) (any, error) {
	ct, err := Normalize(contentType)
	if err != nil {
		return nil, err
	}

	var v any
	switch ct {
	case ContentTypeJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err = dec.Decode(&v); err == nil {
			// Trailing data after the first value is malformed input
			if _, trailing := dec.Token(); trailing != io.EOF {
				err = fmt.Errorf("unexpected data after JSON value")
			}
		}
	case ContentTypeCBOR:
		err = cborDecMode.Unmarshal(data, &v)
	case ContentTypeMsgPack:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetMapDecoder(func(d *msgpack.Decoder) (any, error) {
			return d.DecodeUntypedMap()
		})
		err = dec.Decode(&v)
	}
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"codec", "Decode", "decode "+ct)
	}

	return stringKeys(v), nil
}

// stringKeys turns every map[any]any whose keys are all strings into a
// map[string]any. Maps with other keys are kept as they are.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			ks, ok := k.(string)
			if !ok {
				out = nil
				break
			}
			out[ks] = stringKeys(val)
		}
		if out != nil {
			return out
		}
		for k, val := range t {
			t[k] = stringKeys(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = stringKeys(t[i])
		}
		return t
	}
	return v
}

// Encode encodes v with the given content type
func Encode(contentType string, v any) ([]byte, error) {
	ct, err := Normalize(contentType)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch ct {
	case ContentTypeJSON:
		data, err = json.Marshal(v)
	case ContentTypeCBOR:
		data, err = cborEncMode.Marshal(v)
	case ContentTypeMsgPack:
		data, err = msgpack.Marshal(v)
	}
	if err != nil {
		return nil, errors.WrapInvalid(err, "codec", "Encode", "encode "+ct)
	}

	return data, nil
}
