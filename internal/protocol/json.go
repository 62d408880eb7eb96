package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONMode selects how a message embeds a JSON document. The mode is fixed
// per message type.
type JSONMode int

const (
	// JSONPlain is UTF-8 JSON followed by a null terminator.
	JSONPlain JSONMode = iota
	// JSONPlainUnterminated is UTF-8 JSON running to the end of the payload.
	JSONPlainUnterminated
	// JSONZstd is [u32 decompressed size][zstd frame]. The compressed data
	// holds the JSON with its null terminator.
	JSONZstd
	// JSONZlib is [u64 decompressed size][zlib stream] with no terminator.
	JSONZlib
)

// maxDecompressedSize bounds embedded documents.
const maxDecompressedSize = 16 << 20

// RawJSON is an undecoded JSON document carried through unchanged.
type RawJSON = jsoniter.RawMessage

// Object is a free-form JSON object.
type Object = map[string]any

func encodeJSON(v any, mode JSONMode) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json: %w", err)
	}

	switch mode {
	case JSONPlain:
		return append(body, 0), nil
	case JSONPlainUnterminated:
		return body, nil
	case JSONZstd:
		body = append(body, 0)
		compressed, err := compressZstd(body)
		if err != nil {
			return nil, err
		}
		out := binary.LittleEndian.AppendUint32(nil, uint32(len(body)))
		return append(out, compressed...), nil
	case JSONZlib:
		compressed, err := compressZlib(body)
		if err != nil {
			return nil, err
		}
		out := binary.LittleEndian.AppendUint64(nil, uint64(len(body)))
		return append(out, compressed...), nil
	default:
		return nil, fmt.Errorf("unsupported json mode %d", mode)
	}
}

func decodeJSON(body []byte, dst any) error {
	if raw, ok := dst.(*RawJSON); ok {
		if !json.Valid(body) {
			return fmt.Errorf("failed to decode json: invalid document")
		}
		*raw = bytes.Clone(body)
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to decode json: %w", err)
	}
	return nil
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(maxDecompressedSize))
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

func compressZstd(data []byte) ([]byte, error) {
	enc, _, err := zstdCodecs()
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return enc.EncodeAll(data, nil), nil
}

func decompressZstd(data []byte, sizeHint int) ([]byte, error) {
	_, dec, err := zstdCodecs()
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	if sizeHint < 0 || sizeHint > maxDecompressedSize {
		sizeHint = 0
	}
	out, err := dec.DecodeAll(data, make([]byte, 0, sizeHint))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zstd: %w", err)
	}
	return out, nil
}

func compressZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress zlib: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress zlib: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressZlib(data []byte, size uint64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open zlib stream: %w", err)
	}
	defer zr.Close()

	limit := int64(maxDecompressedSize)
	if size > 0 && size < uint64(limit) {
		limit = int64(size)
	}
	out, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zlib: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("zlib payload exceeds declared size %d", size)
	}
	return out, nil
}

// Extras holds JSON members a typed document does not declare. They are
// written back unchanged so clients see every field they sent.
type Extras map[string]RawJSON

var fieldNameCache sync.Map

func jsonFieldNames(t reflect.Type) map[string]struct{} {
	if cached, ok := fieldNameCache.Load(t); ok {
		return cached.(map[string]struct{})
	}
	names := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = f.Name
		}
		names[name] = struct{}{}
	}
	fieldNameCache.Store(t, names)
	return names
}

// marshalWithExtras marshals known, a struct value without custom
// marshalers, and merges extras into the resulting object.
func marshalWithExtras(known any, extras Extras) ([]byte, error) {
	body, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extras) == 0 {
		return body, nil
	}
	merged := make(map[string]RawJSON, len(extras))
	for k, v := range extras {
		merged[k] = v
	}
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

// unmarshalWithExtras decodes data into known, a pointer to a struct without
// custom unmarshalers, and returns every member it did not declare.
func unmarshalWithExtras(data []byte, known any) (Extras, error) {
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}
	var all map[string]RawJSON
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	names := jsonFieldNames(reflect.TypeOf(known).Elem())
	for k := range all {
		if _, ok := names[k]; ok {
			delete(all, k)
		}
	}
	if len(all) == 0 {
		return nil, nil
	}
	return Extras(all), nil
}
