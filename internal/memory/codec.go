package memory

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Log records are framed as [version:1][crc32c:4][zstd(json)]. The
// checksum covers the compressed payload, so a damaged record is
// detected before decompression and quarantined without touching its
// neighbours.
const frameVersion = 1

const frameHeaderLen = 5

var crcTable = crc32.MakeTable(crc32.Castagnoli)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	// EncodeAll and DecodeAll on shared instances are safe for
	// concurrent use.
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
}

// recordKind discriminates the envelope payload.
type recordKind string

const (
	recordEpisode recordKind = "episode"
	recordStatus  recordKind = "status"
	recordClear   recordKind = "clear"
)

// logRecord is the envelope appended to an agent's stream. Exactly one
// payload field is set, matching Kind.
type logRecord struct {
	Kind    recordKind    `json:"kind"`
	Episode *Episode      `json:"episode,omitempty"`
	Status  *statusChange `json:"status,omitempty"`
	Clear   *clearMarker  `json:"clear,omitempty"`
}

// statusChange records one lifecycle transition. The snapshot fields
// persist the access statistics as of the transition, so recovery can
// restore them without replaying individual reads.
type statusChange struct {
	EpisodeID    string    `json:"episode_id"`
	Status       Status    `json:"status"`
	Relevance    float64   `json:"relevance"`
	AccessCount  int64     `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed_time,omitzero"`
	At           time.Time `json:"at"`
}

// clearMarker tombstones every episode committed before it.
type clearMarker struct {
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// encodeRecord frames a record for the log.
func encodeRecord(rec *logRecord) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s record: %w", rec.Kind, err)
	}
	compressed := zstdEncoder.EncodeAll(payload, nil)

	frame := make([]byte, frameHeaderLen+len(compressed))
	frame[0] = frameVersion
	binary.BigEndian.PutUint32(frame[1:frameHeaderLen], crc32.Checksum(compressed, crcTable))
	copy(frame[frameHeaderLen:], compressed)
	return frame, nil
}

// decodeRecord verifies and unpacks a frame. Every failure mode wraps
// ErrCorruption so replay can quarantine the record.
func decodeRecord(frame []byte) (*logRecord, error) {
	if len(frame) < frameHeaderLen {
		return nil, fmt.Errorf("%w: frame truncated at %d bytes", ErrCorruption, len(frame))
	}
	if frame[0] != frameVersion {
		return nil, fmt.Errorf("%w: unknown frame version %d", ErrCorruption, frame[0])
	}

	compressed := frame[frameHeaderLen:]
	want := binary.BigEndian.Uint32(frame[1:frameHeaderLen])
	if got := crc32.Checksum(compressed, crcTable); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch (want %08x, got %08x)", ErrCorruption, want, got)
	}

	payload, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing: %v", ErrCorruption, err)
	}

	var rec logRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("%w: decoding: %v", ErrCorruption, err)
	}

	switch rec.Kind {
	case recordEpisode:
		if rec.Episode == nil {
			return nil, fmt.Errorf("%w: episode record without payload", ErrCorruption)
		}
	case recordStatus:
		if rec.Status == nil {
			return nil, fmt.Errorf("%w: status record without payload", ErrCorruption)
		}
	case recordClear:
		if rec.Clear == nil {
			return nil, fmt.Errorf("%w: clear record without payload", ErrCorruption)
		}
	default:
		return nil, fmt.Errorf("%w: unknown record kind %q", ErrCorruption, rec.Kind)
	}

	return &rec, nil
}
