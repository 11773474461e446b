// Package snapshot persists serialized tree images. A snapshot file is a
// fixed header, the snappy-compressed tree bytes, and an xxhash trailer over
// everything before it, so a torn or corrupted file is rejected at load.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/cs706/saber/pkg/logging"
)

const (
	Magic   uint32 = 0x5ABEC001
	Version uint32 = 1

	filePrefix = "snapshot_"

	headerSize  = 16
	trailerSize = 8
)

var (
	ErrBadMagic    = errors.New("snapshot: bad magic")
	ErrBadVersion  = errors.New("snapshot: unsupported version")
	ErrBadChecksum = errors.New("snapshot: checksum mismatch")
	ErrNoSnapshots = errors.New("snapshot: none found")
	ErrTruncated   = errors.New("snapshot: truncated file")
)

// Store reads and writes snapshot files under one directory. All I/O goes
// through the afero filesystem so tests run against an in-memory one.
type Store struct {
	fs  afero.Fs
	dir string
	log *logrus.Entry
}

func NewStore(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &Store{fs: fs, dir: dir, log: logging.NewLogger("snapshot")}, nil
}

// Save writes the serialized tree under the zxid of its last applied
// transaction. The file is written whole and then renamed into place.
func (s *Store) Save(lastZxid int64, tree []byte) error {
	buf := make([]byte, 0, headerSize+snappy.MaxEncodedLen(len(tree))+trailerSize)
	buf = binary.BigEndian.AppendUint32(buf, Magic)
	buf = binary.BigEndian.AppendUint32(buf, Version)
	buf = binary.BigEndian.AppendUint64(buf, uint64(lastZxid))
	buf = append(buf, snappy.Encode(nil, tree)...)
	buf = binary.BigEndian.AppendUint64(buf, xxhash.Sum64(buf))

	name := s.fileName(lastZxid)
	tmp := name + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, buf, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	s.log.WithFields(logrus.Fields{"zxid": lastZxid, "bytes": len(buf)}).Info("snapshot saved")
	return nil
}

// Load reads and verifies the snapshot for the given zxid, returning the
// serialized tree bytes.
func (s *Store) Load(lastZxid int64) ([]byte, error) {
	raw, err := afero.ReadFile(s.fs, s.fileName(lastZxid))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(raw) < headerSize+trailerSize {
		return nil, ErrTruncated
	}
	body := raw[:len(raw)-trailerSize]
	sum := binary.BigEndian.Uint64(raw[len(raw)-trailerSize:])
	if xxhash.Sum64(body) != sum {
		return nil, ErrBadChecksum
	}
	if binary.BigEndian.Uint32(body[0:4]) != Magic {
		return nil, ErrBadMagic
	}
	if binary.BigEndian.Uint32(body[4:8]) != Version {
		return nil, ErrBadVersion
	}
	if int64(binary.BigEndian.Uint64(body[8:16])) != lastZxid {
		return nil, fmt.Errorf("snapshot names zxid %d but holds %d",
			lastZxid, binary.BigEndian.Uint64(body[8:16]))
	}
	tree, err := snappy.Decode(nil, body[headerSize:])
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	return tree, nil
}

// Latest returns the zxid of the newest snapshot on disk, or ErrNoSnapshots.
func (s *Store) Latest() (int64, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return 0, fmt.Errorf("listing snapshots: %w", err)
	}
	var zxids []int64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || strings.HasSuffix(name, ".tmp") {
			continue
		}
		z, err := strconv.ParseInt(strings.TrimPrefix(name, filePrefix), 10, 64)
		if err != nil {
			s.log.WithField("file", name).Warn("ignoring unparsable snapshot name")
			continue
		}
		zxids = append(zxids, z)
	}
	if len(zxids) == 0 {
		return 0, ErrNoSnapshots
	}
	sort.Slice(zxids, func(i, j int) bool { return zxids[i] < zxids[j] })
	return zxids[len(zxids)-1], nil
}

func (s *Store) fileName(zxid int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d", filePrefix, zxid))
}
