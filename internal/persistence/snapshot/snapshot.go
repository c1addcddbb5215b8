package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 holds stock and entity state only. Reservations and jobs in
// flight are not captured; the exchange re-matches after import.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed               int64 `json:"seed"`
	TickRate           int   `json:"tick_rate_hz"`
	MatchIntervalTicks int   `json:"match_interval_ticks"`
	MaxLoad            int   `json:"max_load,omitempty"`
	SnapshotEveryTicks int   `json:"snapshot_every_ticks,omitempty"`

	MaterialsDigest  string `json:"materials_digest,omitempty"`
	BlueprintsDigest string `json:"blueprints_digest,omitempty"`

	Entities []EntityV1 `json:"entities"`
	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextWorker   uint64 `json:"next_worker"`
	NextStorage  uint64 `json:"next_storage"`
	NextWorkshop uint64 `json:"next_workshop"`
}

type EntityV1 struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Pos  [2]int `json:"pos"`

	Stacks int            `json:"stacks,omitempty"`
	Stock  map[string]int `json:"stock,omitempty"`
	Keep   map[string]int `json:"keep,omitempty"`
	Want   map[string]int `json:"want,omitempty"`

	Speed  int  `json:"speed,omitempty"`
	Energy int  `json:"energy,omitempty"`
	Alive  bool `json:"alive"`

	Blueprint string `json:"blueprint,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return Encode(f, snap)
}

// Encode writes the JSON header line followed by the gob body, all inside
// one zstd stream.
func Encode(w io.Writer, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotV1{}, err
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (SnapshotV1, error) {
	var snap SnapshotV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}
