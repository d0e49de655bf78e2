package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"

	"github.com/go-loom/loom/pkg/state"
)

// Frame layout: magic, format version, blake3-256 of the compressed
// payload, payload length, zstd payload.
const (
	frameMagic   = "LSNP"
	frameVersion = 1
	headerLen    = 4 + 1 + 32 + 8
)

var (
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zdec, _ = zstd.NewReader(nil)
)

// Encode seals v into a checksummed frame.
func Encode(v state.Value) ([]byte, error) {
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("snapshot encode: %w", err)
	}
	payload := zenc.EncodeAll(raw, nil)
	sum := blake3.Sum256(payload)

	frame := make([]byte, 0, headerLen+len(payload))
	frame = append(frame, frameMagic...)
	frame = append(frame, frameVersion)
	frame = append(frame, sum[:]...)
	frame = binary.BigEndian.AppendUint64(frame, uint64(len(payload)))
	frame = append(frame, payload...)
	return frame, nil
}

// Decode opens a frame, verifying the checksum before any payload byte is
// interpreted.
func Decode(frame []byte) (state.Value, error) {
	if len(frame) < headerLen || string(frame[:4]) != frameMagic {
		return state.Null(), fmt.Errorf("snapshot decode: not a snapshot frame")
	}
	if frame[4] != frameVersion {
		return state.Null(), fmt.Errorf("snapshot decode: unsupported frame version %d", frame[4])
	}
	var sum [32]byte
	copy(sum[:], frame[5:37])
	size := binary.BigEndian.Uint64(frame[37:headerLen])
	payload := frame[headerLen:]
	if uint64(len(payload)) != size {
		return state.Null(), fmt.Errorf("snapshot decode: truncated frame")
	}
	got := blake3.Sum256(payload)
	if !bytes.Equal(got[:], sum[:]) {
		return state.Null(), fmt.Errorf("snapshot decode: checksum mismatch")
	}

	raw, err := zdec.DecodeAll(payload, nil)
	if err != nil {
		return state.Null(), fmt.Errorf("snapshot decode: %w", err)
	}
	return state.DecodeJSON(raw)
}
