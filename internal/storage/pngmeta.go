package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"sort"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

var errNotPNG = errors.New("storage: payload is not a png")

// embedPNGText inserts tEXt chunks right after the IHDR chunk so viewers
// and forensics tools can recover the prompt from the image container.
// Non-PNG payloads are rejected; callers degrade to a plain write.
func embedPNGText(data []byte, fields map[string]string) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, errNotPNG
	}
	rest := data[len(pngSignature):]
	if len(rest) < 8 {
		return nil, errNotPNG
	}
	ihdrLen := binary.BigEndian.Uint32(rest[:4])
	if string(rest[4:8]) != "IHDR" {
		return nil, errNotPNG
	}
	// length + type + data + crc
	ihdrEnd := 8 + int(ihdrLen) + 4
	if len(rest) < ihdrEnd {
		return nil, errNotPNG
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out bytes.Buffer
	out.Write(pngSignature)
	out.Write(rest[:ihdrEnd])
	for _, k := range keys {
		writeTextChunk(&out, k, fields[k])
	}
	out.Write(rest[ihdrEnd:])
	return out.Bytes(), nil
}

func writeTextChunk(out *bytes.Buffer, keyword, text string) {
	payload := append([]byte(keyword), 0)
	payload = append(payload, []byte(text)...)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	out.Write(lenBuf[:])

	chunk := append([]byte("tEXt"), payload...)
	out.Write(chunk)

	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc32.ChecksumIEEE(chunk))
	out.Write(crcBuf[:])
}
