package collector

import (
	"github.com/c360/streamrelay/bus"
	"github.com/c360/streamrelay/codec"
	"github.com/c360/streamrelay/convert"
)

// Decoder turns one bus message into a JSON-compatible value
type Decoder interface {
	Decode(msg bus.Message) (any, error)
}

// DecoderFunc adapts a function to the Decoder interface
type DecoderFunc func(msg bus.Message) (any, error)

// Decode calls f(msg)
func (f DecoderFunc) Decode(msg bus.Message) (any, error) {
	return f(msg)
}

// PayloadDecoder decodes the payload by content type and converts the result
type PayloadDecoder struct{}

// Decode implements Decoder
func (PayloadDecoder) Decode(msg bus.Message) (any, error) {
	v, err := codec.Decode(msg.ContentType, msg.Data)
	if err != nil {
		return nil, err
	}
	return convert.ToJSON(v)
}
