package chunkstore

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"voxelseed.ai/internal/persistence/record"
)

// File layout:
//
//	"VXSR" | uint16 LE version | zstd( header JSON line | CBOR body )
//
// The version sits outside the compressed frame so a reader can refuse a
// newer file before touching its payload.
var magic = [4]byte{'V', 'X', 'S', 'R'}

const preambleLen = len(magic) + 2

// maxHeaderLen bounds the JSON header line of a damaged file.
const maxHeaderLen = 4096

// maxBodyLen bounds the CBOR body. The header's body_len is only trusted
// below it.
const maxBodyLen = 64 << 20

type header struct {
	Key     string `json:"key"`
	Entries int    `json:"entries"`
	BodyLen int    `json:"body_len"`
	BodyXXH uint64 `json:"body_xxh64"`
	SavedAt string `json:"saved_at"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Deterministic encoding: equal records produce equal bytes and checksums.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func supportedVersion(v int) bool {
	return v == record.FormatVersion
}

type encodeStats struct {
	Entries  int
	Checksum uint64
}

func encodeRecord(w io.Writer, version int, key string, entries map[string]record.Value, level zstd.EncoderLevel, now time.Time) (encodeStats, error) {
	body, err := encMode.Marshal(entries)
	if err != nil {
		return encodeStats{}, fmt.Errorf("cbor encode: %w", err)
	}
	if len(body) > maxBodyLen {
		return encodeStats{}, fmt.Errorf("record body is %d bytes, limit %d", len(body), maxBodyLen)
	}
	hdr := header{
		Key:     key,
		Entries: len(entries),
		BodyLen: len(body),
		BodyXXH: xxhash.Sum64(body),
		SavedAt: now.UTC().Format(time.RFC3339Nano),
	}
	hb, err := json.Marshal(hdr)
	if err != nil {
		return encodeStats{}, err
	}

	var pre [preambleLen]byte
	copy(pre[:], magic[:])
	binary.LittleEndian.PutUint16(pre[len(magic):], uint16(version))
	if _, err := w.Write(pre[:]); err != nil {
		return encodeStats{}, err
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return encodeStats{}, err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return encodeStats{}, err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return encodeStats{}, err
	}
	if _, err := bw.Write(body); err != nil {
		_ = enc.Close()
		return encodeStats{}, err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return encodeStats{}, err
	}
	if err := enc.Close(); err != nil {
		return encodeStats{}, fmt.Errorf("zstd close: %w", err)
	}
	return encodeStats{Entries: len(entries), Checksum: hdr.BodyXXH}, nil
}

type decoded struct {
	Version  int
	Header   header
	Entries  map[string]record.Value
	Checksum uint64
}

// decodeRecord returns errors classified as ErrEmpty, ErrDecode,
// ErrVersionMismatch or ErrIO.
func decodeRecord(r io.Reader) (decoded, error) {
	var out decoded

	var pre [preambleLen]byte
	n, err := io.ReadFull(r, pre[:])
	switch {
	case err == io.EOF && n == 0:
		return out, ErrEmpty
	case errors.Is(err, io.ErrUnexpectedEOF):
		return out, fmt.Errorf("%w: truncated preamble (%d bytes)", ErrDecode, n)
	case err != nil:
		return out, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if !bytes.Equal(pre[:len(magic)], magic[:]) {
		return out, fmt.Errorf("%w: bad magic %q", ErrDecode, pre[:len(magic)])
	}
	out.Version = int(binary.LittleEndian.Uint16(pre[len(magic):]))
	if !supportedVersion(out.Version) {
		return out, &VersionError{Got: out.Version, Supported: record.FormatVersion}
	}

	dec, err := zstd.NewReader(r,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxBodyLen+2*maxHeaderLen),
	)
	if err != nil {
		return out, fmt.Errorf("%w: zstd: %w", ErrDecode, err)
	}
	defer dec.Close()
	br := bufio.NewReaderSize(dec, 64*1024)

	line, err := readHeaderLine(br)
	if err != nil {
		return out, fmt.Errorf("%w: header: %w", ErrDecode, err)
	}
	if err := json.Unmarshal(line, &out.Header); err != nil {
		return out, fmt.Errorf("%w: header json: %w", ErrDecode, err)
	}
	if out.Header.BodyLen < 0 || out.Header.BodyLen > maxBodyLen {
		return out, fmt.Errorf("%w: body length %d out of range", ErrDecode, out.Header.BodyLen)
	}

	body := make([]byte, out.Header.BodyLen)
	if _, err := io.ReadFull(br, body); err != nil {
		return out, fmt.Errorf("%w: body: %w", ErrDecode, err)
	}
	if _, err := br.ReadByte(); err != io.EOF {
		return out, fmt.Errorf("%w: trailing data after body", ErrDecode)
	}
	out.Checksum = xxhash.Sum64(body)
	if out.Checksum != out.Header.BodyXXH {
		return out, fmt.Errorf("%w: checksum mismatch", ErrDecode)
	}

	entries := map[string]record.Value{}
	if err := decMode.Unmarshal(body, &entries); err != nil {
		return out, fmt.Errorf("%w: cbor: %w", ErrDecode, err)
	}
	if len(entries) != out.Header.Entries {
		return out, fmt.Errorf("%w: header lists %d entries, body has %d", ErrDecode, out.Header.Entries, len(entries))
	}
	out.Entries = entries
	return out, nil
}

func readHeaderLine(br *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == '\n' {
			return line, nil
		}
		if len(line) >= maxHeaderLen {
			return nil, fmt.Errorf("header exceeds %d bytes", maxHeaderLen)
		}
		line = append(line, b)
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
