// Package sketch holds the drawing model for a note's ink overlay and its
// sidecar file codec. A sketch is a flat, insertion-ordered collection of
// strokes; shapes drawn with the geometry tools are sampled into strokes
// before they get here, so persistence only ever sees point sequences.
package sketch

import (
	"bytes"
	"compress/zlib"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	MagicString = "INKNOTE-SKETCH"
	VersionV1   = uint16(1)

	headerSize = len(MagicString) + 2 + 2 + 4 + 4 // magic, version, flags, payload len, payload crc

	strokeMinBytes = 13 // tool, color, width, point count
	pointBytes     = 20 // five float32 fields

	envelopeMagic      = "INKNOTE-SEALED"
	envelopeVersionV1  = uint16(1)
	envelopeFlagComp   = uint16(1 << 0)
	envelopeFlagEnc    = uint16(1 << 1)
	envelopeSaltSize   = 16
	envelopeNonceSize  = 12
	envelopeHeaderSize = len(envelopeMagic) + 2 + 2 + envelopeSaltSize + envelopeNonceSize + 8
	kdfIterations      = 200000
)

type Tool uint8

const (
	ToolPen Tool = iota
	ToolMarker
	ToolEraser
)

// Point is one sampled position of a stroke. T is the offset in seconds from
// the stroke start; synthesized strokes fabricate monotonic offsets so they
// are indistinguishable from hand input.
type Point struct {
	X       float32
	Y       float32
	T       float32
	Size    float32
	Opacity float32
}

type Stroke struct {
	Tool      Tool
	ColorRGBA uint32
	Width     float32
	Points    []Point
}

// Model is the drawing overlay of one note.
type Model struct {
	Strokes []Stroke
}

type EncryptionOptions struct {
	Enabled  bool
	Password string
}

type SaveOptions struct {
	Compression bool
	Encryption  EncryptionOptions
}

type LoadOptions struct {
	Password string
}

var (
	ErrInvalidMagic     = errors.New("sketch: invalid magic")
	ErrUnsupportedVer   = errors.New("sketch: unsupported version")
	ErrCorrupt          = errors.New("sketch: payload checksum mismatch")
	ErrPasswordRequired = errors.New("sketch: password required")
	ErrInvalidPassword  = errors.New("sketch: invalid password")
	ErrInvalidEnvelope  = errors.New("sketch: invalid sealed file")
)

func NewModel() *Model { return &Model{} }

// Append adds a stroke to the end of the collection and reports its index,
// which doubles as the undo handle for one insertion.
func (m *Model) Append(s Stroke) int {
	m.Strokes = append(m.Strokes, s)
	return len(m.Strokes) - 1
}

// RemoveLast pops the most recent stroke; used by undo.
func (m *Model) RemoveLast() (Stroke, bool) {
	if len(m.Strokes) == 0 {
		return Stroke{}, false
	}
	s := m.Strokes[len(m.Strokes)-1]
	m.Strokes = m.Strokes[:len(m.Strokes)-1]
	return s, true
}

func (m *Model) Empty() bool { return len(m.Strokes) == 0 }

// Bounds reports the natural pixel bounds of the drawing, padded by the
// widest stroke so nothing is clipped when rasterizing.
func (m *Model) Bounds() (minX, minY, maxX, maxY float32, ok bool) {
	first := true
	var pad float32
	for _, s := range m.Strokes {
		if s.Width > pad {
			pad = s.Width
		}
		for _, p := range s.Points {
			if first {
				minX, maxX, minY, maxY = p.X, p.X, p.Y, p.Y
				first = false
				continue
			}
			if p.X < minX {
				minX = p.X
			}
			if p.X > maxX {
				maxX = p.X
			}
			if p.Y < minY {
				minY = p.Y
			}
			if p.Y > maxY {
				maxY = p.Y
			}
		}
	}
	if first {
		return 0, 0, 0, 0, false
	}
	return minX - pad, minY - pad, maxX + pad, maxY + pad, true
}

func Save(path string, m *Model) error {
	return SaveWithOptions(path, m, SaveOptions{})
}

// SaveWithOptions writes the sidecar atomically. Compression and encryption
// wrap the plain container in a sealed envelope, same layout as the header:
// magic, version, flags, then salt/nonce and the payload length.
func SaveWithOptions(path string, m *Model, opts SaveOptions) error {
	if m == nil {
		return errors.New("sketch: model is nil")
	}
	blob := encodeModel(m)

	var err error
	if opts.Compression {
		blob, err = compressBytes(blob)
		if err != nil {
			return err
		}
	}
	if opts.Encryption.Enabled && strings.TrimSpace(opts.Encryption.Password) == "" {
		return ErrPasswordRequired
	}
	if opts.Compression || opts.Encryption.Enabled {
		blob, err = sealEnvelope(blob, opts)
		if err != nil {
			return err
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func Load(path string) (*Model, error) {
	return LoadWithOptions(path, LoadOptions{})
}

func LoadWithOptions(path string, opts LoadOptions) (*Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isEnvelope(b) {
		b, err = openEnvelope(b, opts)
		if err != nil {
			return nil, err
		}
	}
	return decodeModel(b)
}

func encodeModel(m *Model) []byte {
	payload := make([]byte, 0, 64)
	payload = appendU32(payload, uint32(len(m.Strokes)))
	for _, s := range m.Strokes {
		payload = append(payload, byte(s.Tool))
		payload = appendU32(payload, s.ColorRGBA)
		payload = appendF32(payload, s.Width)
		payload = appendU32(payload, uint32(len(s.Points)))
		for _, p := range s.Points {
			payload = appendF32(payload, p.X)
			payload = appendF32(payload, p.Y)
			payload = appendF32(payload, p.T)
			payload = appendF32(payload, p.Size)
			payload = appendF32(payload, p.Opacity)
		}
	}

	out := make([]byte, 0, headerSize+len(payload))
	out = append(out, MagicString...)
	out = appendU16(out, VersionV1)
	out = appendU16(out, 0)
	out = appendU32(out, uint32(len(payload)))
	out = appendU32(out, crc32.ChecksumIEEE(payload))
	return append(out, payload...)
}

func decodeModel(b []byte) (*Model, error) {
	if len(b) < headerSize || string(b[:len(MagicString)]) != MagicString {
		return nil, ErrInvalidMagic
	}
	ptr := len(MagicString)
	if v := binary.LittleEndian.Uint16(b[ptr : ptr+2]); v != VersionV1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVer, v)
	}
	ptr += 4 // version + flags
	payloadLen := int(binary.LittleEndian.Uint32(b[ptr : ptr+4]))
	sum := binary.LittleEndian.Uint32(b[ptr+4 : ptr+8])
	ptr += 8
	if len(b)-ptr != payloadLen {
		return nil, ErrCorrupt
	}
	payload := b[ptr:]
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, ErrCorrupt
	}

	r := reader{b: payload}
	count := int(r.u32())
	// declared counts are untrusted until checked against the bytes that
	// could actually hold them
	if count < 0 || count > r.remaining()/strokeMinBytes {
		return nil, ErrCorrupt
	}
	m := &Model{Strokes: make([]Stroke, 0, count)}
	for i := 0; i < count; i++ {
		s := Stroke{Tool: Tool(r.u8()), ColorRGBA: r.u32(), Width: r.f32()}
		n := int(r.u32())
		if n < 0 || n > r.remaining()/pointBytes {
			return nil, ErrCorrupt
		}
		s.Points = make([]Point, 0, n)
		for j := 0; j < n; j++ {
			s.Points = append(s.Points, Point{X: r.f32(), Y: r.f32(), T: r.f32(), Size: r.f32(), Opacity: r.f32()})
		}
		m.Strokes = append(m.Strokes, s)
	}
	if r.failed {
		return nil, ErrCorrupt
	}
	return m, nil
}

func isEnvelope(b []byte) bool {
	return len(b) >= len(envelopeMagic) && string(b[:len(envelopeMagic)]) == envelopeMagic
}

func sealEnvelope(payload []byte, opts SaveOptions) ([]byte, error) {
	flags := uint16(0)
	if opts.Compression {
		flags |= envelopeFlagComp
	}
	if opts.Encryption.Enabled {
		flags |= envelopeFlagEnc
	}

	salt := make([]byte, envelopeSaltSize)
	nonce := make([]byte, envelopeNonceSize)
	if opts.Encryption.Enabled {
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, err
		}
		key := pbkdf2.Key([]byte(opts.Encryption.Password), salt, kdfIterations, 32, sha256.New)
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		payload = gcm.Seal(nil, nonce, payload, nil)
	}

	out := make([]byte, envelopeHeaderSize)
	copy(out, envelopeMagic)
	binary.LittleEndian.PutUint16(out[len(envelopeMagic):], envelopeVersionV1)
	binary.LittleEndian.PutUint16(out[len(envelopeMagic)+2:], flags)
	copy(out[len(envelopeMagic)+4:], salt)
	copy(out[len(envelopeMagic)+4+envelopeSaltSize:], nonce)
	binary.LittleEndian.PutUint64(out[len(envelopeMagic)+4+envelopeSaltSize+envelopeNonceSize:], uint64(len(payload)))
	return append(out, payload...), nil
}

func openEnvelope(b []byte, opts LoadOptions) ([]byte, error) {
	if len(b) < envelopeHeaderSize {
		return nil, ErrInvalidEnvelope
	}
	if v := binary.LittleEndian.Uint16(b[len(envelopeMagic):]); v != envelopeVersionV1 {
		return nil, fmt.Errorf("%w: envelope version %d", ErrUnsupportedVer, v)
	}
	flags := binary.LittleEndian.Uint16(b[len(envelopeMagic)+2:])
	salt := b[len(envelopeMagic)+4 : len(envelopeMagic)+4+envelopeSaltSize]
	nonce := b[len(envelopeMagic)+4+envelopeSaltSize : len(envelopeMagic)+4+envelopeSaltSize+envelopeNonceSize]
	payloadLen := binary.LittleEndian.Uint64(b[len(envelopeMagic)+4+envelopeSaltSize+envelopeNonceSize:])
	if uint64(len(b)-envelopeHeaderSize) != payloadLen {
		return nil, ErrInvalidEnvelope
	}
	payload := append([]byte(nil), b[envelopeHeaderSize:]...)

	if flags&envelopeFlagEnc != 0 {
		if strings.TrimSpace(opts.Password) == "" {
			return nil, ErrPasswordRequired
		}
		key := pbkdf2.Key([]byte(opts.Password), salt, kdfIterations, 32, sha256.New)
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		payload, err = gcm.Open(nil, nonce, payload, nil)
		if err != nil {
			return nil, ErrInvalidPassword
		}
	}
	if flags&envelopeFlagComp != 0 {
		var err error
		payload, err = decompressBytes(payload)
		if err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func compressBytes(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(in); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressBytes(in []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type reader struct {
	b      []byte
	failed bool
}

func (r *reader) take(n int) []byte {
	if r.failed || len(r.b) < n {
		r.failed = true
		return make([]byte, n)
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) remaining() int { return len(r.b) }

func (r *reader) u8() uint8   { return r.take(1)[0] }
func (r *reader) u32() uint32 { return binary.LittleEndian.Uint32(r.take(4)) }
func (r *reader) f32() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(r.take(4)))
}

func appendU16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func appendU32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendF32(dst []byte, v float32) []byte {
	return appendU32(dst, math.Float32bits(v))
}
