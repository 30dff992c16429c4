// Package checkpoint encodes the engine state at a year boundary so a
// stopped run can be inspected or resumed.
//
// A checkpoint is a CBOR envelope (Core Deterministic Encoding) holding the
// encoded state and its BLAKE3 keyed digest. The envelope is framed by the
// compress package and stored in the blob store under
// <run id>/checkpoint-<year>.cbor[.zst|.lz4].
package checkpoint

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"landsim/internal/blob"
	"landsim/internal/compress"
	"landsim/pkg/domain"
)

// Version of the checkpoint layout.
const Version = 1

// ErrDigestMismatch is returned when a stored checkpoint fails verification.
var ErrDigestMismatch = errors.New("checkpoint: digest mismatch")

// Checkpoint is the resumable engine state after LastYear completed.
type Checkpoint struct {
	RunID    string `cbor:"run_id"`
	LastYear int    `cbor:"last_year"`
	NextYear int    `cbor:"next_year"`
	EndYear  int    `cbor:"end_year"`
	Seed     uint64 `cbor:"seed"`
	// RandState is the serialized sequential generator.
	RandState []byte `cbor:"rand_state"`
	// NextIDs holds the identifier allocation counters per entity type.
	NextIDs     map[string]int    `cbor:"next_ids,omitempty"`
	Population  domain.Population `cbor:"population"`
	Diagnostics map[string]int64  `cbor:"diagnostics,omitempty"`
	CreatedAt   time.Time         `cbor:"created_at"`
}

type envelope struct {
	Version int    `cbor:"v"`
	Digest  []byte `cbor:"digest"`
	Body    []byte `cbor:"body"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic("checkpoint: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("checkpoint: CBOR decoder initialization failed: " + err.Error())
	}
}

// Domain separation keys for BLAKE3 keyed hashing: the ASCII domain name
// zero-padded to 32 bytes.
var (
	checkpointKey = [32]byte{
		'l', 'a', 'n', 'd', 's', 'i', 'm', '.', 'c', 'h', 'e', 'c', 'k', 'p', 'o', 'i',
		'n', 't',
	}
	populationKey = [32]byte{
		'l', 'a', 'n', 'd', 's', 'i', 'm', '.', 'p', 'o', 'p', 'u', 'l', 'a', 't', 'i',
		'o', 'n',
	}
)

func keyedHash(key [32]byte, data []byte) []byte {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("checkpoint: " + err.Error())
	}
	_, _ = h.Write(data)
	return h.Sum(nil)
}

// Fingerprint is the hex BLAKE3 digest of the canonical encoding of pop.
// Two runs with the same seed and input produce the same fingerprint each
// year.
func Fingerprint(pop domain.Population) (string, error) {
	data, err := encMode.Marshal(pop)
	if err != nil {
		return "", fmt.Errorf("encode population: %w", err)
	}
	return hex.EncodeToString(keyedHash(populationKey, data)), nil
}

// Marshal encodes cp into a framed, compressed envelope.
func Marshal(cp Checkpoint, alg compress.Algorithm) ([]byte, error) {
	body, err := encMode.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	env, err := encMode.Marshal(envelope{Version: Version, Digest: keyedHash(checkpointKey, body), Body: body})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return compress.Encode(env, alg)
}

// Unmarshal reverses Marshal and verifies the digest.
func Unmarshal(data []byte) (Checkpoint, error) {
	raw, err := compress.Decode(data)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("decompress checkpoint: %w", err)
	}
	var env envelope
	if err := decMode.Unmarshal(raw, &env); err != nil {
		return Checkpoint{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version != Version {
		return Checkpoint{}, fmt.Errorf("checkpoint: unsupported version %d", env.Version)
	}
	if !bytes.Equal(keyedHash(checkpointKey, env.Body), env.Digest) {
		return Checkpoint{}, ErrDigestMismatch
	}
	var cp Checkpoint
	if err := decMode.Unmarshal(env.Body, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}

// Key is the blob key of the checkpoint written after year.
func Key(runID string, year int, alg compress.Algorithm) string {
	return blob.Key(runID, fmt.Sprintf("checkpoint-%d.cbor%s", year, alg.Extension()))
}

// Save writes cp to the store and returns the key it was stored under.
func Save(ctx context.Context, store blob.Store, cp Checkpoint, alg compress.Algorithm) (string, error) {
	data, err := Marshal(cp, alg)
	if err != nil {
		return "", err
	}
	key := Key(cp.RunID, cp.LastYear, alg)
	_, err = blob.PutBytes(ctx, store, key, data, blob.PutOptions{
		ContentType: "application/cbor",
		Metadata: map[string]string{
			"run-id":    cp.RunID,
			"last-year": strconv.Itoa(cp.LastYear),
		},
	})
	if err != nil {
		return "", fmt.Errorf("store checkpoint %s: %w", key, err)
	}
	return key, nil
}

// Load reads and verifies the checkpoint stored at key.
func Load(ctx context.Context, store blob.Store, key string) (Checkpoint, error) {
	_, data, err := blob.GetBytes(ctx, store, key)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", key, err)
	}
	return Unmarshal(data)
}
