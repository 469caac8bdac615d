package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"

	"firestige.xyz/usbrevue/internal/core"
)

// Formats lists the supported output formats.
var Formats = []string{"text", "json", "yaml", "cbor", "msgpack"}

var ErrUnsupportedFormat = errors.New("usbrevue: unsupported export format")

// Encoder writes a stream of records.
type Encoder interface {
	Encode(r *core.Record) error
	// Close flushes buffered output. It does not close the underlying writer.
	Close() error
}

// NewEncoder returns an encoder for format writing to w.
func NewEncoder(format string, w io.Writer) (Encoder, error) {
	switch strings.ToLower(format) {
	case "text", "":
		return &textEncoder{w: bufio.NewWriter(w)}, nil
	case "json":
		return &jsonEncoder{w: bufio.NewWriter(w)}, nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return &yamlEncoder{enc: enc}, nil
	case "cbor":
		em, err := cbor.PreferredUnsortedEncOptions().EncMode()
		if err != nil {
			return nil, fmt.Errorf("failed to create cbor encoder: %w", err)
		}
		bw := bufio.NewWriter(w)
		return &cborEncoder{w: bw, enc: em.NewEncoder(bw)}, nil
	case "msgpack":
		bw := bufio.NewWriter(w)
		enc := msgpack.NewEncoder(bw)
		return &msgpackEncoder{w: bw, enc: enc}, nil
	}
	return nil, fmt.Errorf("%w: %q (must be one of %s)", ErrUnsupportedFormat, format, strings.Join(Formats, ", "))
}

type textEncoder struct {
	w *bufio.Writer
}

func (e *textEncoder) Encode(r *core.Record) error {
	_, err := e.w.WriteString(Text(r) + "\n")
	return err
}

func (e *textEncoder) Close() error { return e.w.Flush() }

// jsonEncoder writes one protojson object per line.
type jsonEncoder struct {
	w *bufio.Writer
}

func (e *jsonEncoder) Encode(r *core.Record) error {
	st, err := structpb.NewStruct(NewView(r).fields())
	if err != nil {
		return fmt.Errorf("failed to build record struct: %w", err)
	}
	b, err := protojson.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := e.w.Write(b); err != nil {
		return err
	}
	return e.w.WriteByte('\n')
}

func (e *jsonEncoder) Close() error { return e.w.Flush() }

// yamlEncoder writes one document per record.
type yamlEncoder struct {
	enc *yaml.Encoder
}

func (e *yamlEncoder) Encode(r *core.Record) error {
	return e.enc.Encode(NewView(r))
}

func (e *yamlEncoder) Close() error { return e.enc.Close() }

// cborEncoder writes a CBOR sequence.
type cborEncoder struct {
	w   *bufio.Writer
	enc *cbor.Encoder
}

func (e *cborEncoder) Encode(r *core.Record) error {
	return e.enc.Encode(NewView(r))
}

func (e *cborEncoder) Close() error { return e.w.Flush() }

// msgpackEncoder writes concatenated MessagePack maps.
type msgpackEncoder struct {
	w   *bufio.Writer
	enc *msgpack.Encoder
}

func (e *msgpackEncoder) Encode(r *core.Record) error {
	return e.enc.Encode(NewView(r))
}

func (e *msgpackEncoder) Close() error { return e.w.Flush() }
