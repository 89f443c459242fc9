package storage

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/sanonone/solarisdb/pkg/core/types"
)

// Snapshot file layout: [Magic(1)][Version(1)][Length(4)][CRC32(4)][gob payload].
// The checksum covers the payload only, so a torn write is detected on load.
const (
	snapshotMagic   = 0xA7
	snapshotVersion = 0x01
	headerSize      = 10
)

var (
	// ErrInvalidSnapshot indicates the file is not a snapshot or belongs to
	// an unsupported format version.
	ErrInvalidSnapshot = errors.New("invalid snapshot file")
	// ErrChecksumMismatch indicates the snapshot payload is corrupted.
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")
)

// CollectionSnapshot is the serialized form of one collection: its
// construction parameters plus every live record. The graph itself is not
// persisted; it is rebuilt on load, which keeps the format independent of
// the index internals.
type CollectionSnapshot struct {
	Name           string
	Dimension      int
	Metric         string
	M              int
	EfConstruction int
	Records        []types.Record
}

// Snapshot is the serialized form of a whole database.
type Snapshot struct {
	Collections []CollectionSnapshot
}

// WriteSnapshot serializes the snapshot to path atomically: the data is
// written to a temporary file in the same directory, fsynced, and renamed
// over the destination. A crash mid-write never leaves a half-written
// snapshot under the final name.
func WriteSnapshot(path string, snap *Snapshot) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	header := make([]byte, headerSize)
	header[0] = snapshotMagic
	header[1] = snapshotVersion
	binary.LittleEndian.PutUint32(header[2:6], uint32(payload.Len()))
	binary.LittleEndian.PutUint32(header[6:10], crc32.ChecksumIEEE(payload.Bytes()))

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	buf := bufio.NewWriter(tmp)
	if _, err := buf.Write(header); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := buf.Write(payload.Bytes()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

// ReadSnapshot loads and verifies a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(file, header); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrInvalidSnapshot)
	}
	if header[0] != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic byte", ErrInvalidSnapshot)
	}
	if header[1] != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, header[1])
	}

	length := binary.LittleEndian.Uint32(header[2:6])
	wantCRC := binary.LittleEndian.Uint32(header[6:10])

	payload := make([]byte, length)
	if _, err := io.ReadFull(file, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated payload", ErrInvalidSnapshot)
	}
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return nil, ErrChecksumMismatch
	}

	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
