package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/MRamiBalles/colony/server/internal/domain/save"
)

// Header is the first line of an encoded save, readable without decoding
// the whole snapshot.
type Header struct {
	Version  int       `json:"version"`
	SaveID   string    `json:"save_id"`
	ColonyID string    `json:"colony_id"`
	SavedAt  time.Time `json:"saved_at"`
}

// Encode writes snap to w as a zstd stream: a JSON header line followed by
// the JSON snapshot.
func Encode(w io.Writer, snap save.Snapshot) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(Header{
		Version:  snap.Version,
		SaveID:   snap.ID,
		ColonyID: snap.Colony.ID,
		SavedAt:  snap.SavedAt,
	})
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(snap); err != nil {
		enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Decode reads a stream written by Encode.
func Decode(r io.Reader) (Header, save.Snapshot, error) {
	var h Header
	var snap save.Snapshot

	dec, err := zstd.NewReader(r)
	if err != nil {
		return h, snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, snap, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, snap, fmt.Errorf("decode header: %w", err)
	}
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return h, snap, fmt.Errorf("json decode: %w", err)
	}
	return h, snap, nil
}

// FileSaveStore keeps the colony in a single compressed file.
type FileSaveStore struct {
	path string
}

func NewFileSaveStore(path string) *FileSaveStore {
	return &FileSaveStore{path: path}
}

// Path returns the save file location.
func (s *FileSaveStore) Path() string { return s.path }

// Persist replaces the save file atomically.
func (s *FileSaveStore) Persist(_ context.Context, snap save.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create save directory: %w", err)
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open save file: %w", err)
	}
	if err := Encode(f, snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write save: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close save file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace save file: %w", err)
	}
	return nil
}

func (s *FileSaveStore) Load(_ context.Context) (save.Snapshot, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return save.Snapshot{}, ErrNoSave
		}
		return save.Snapshot{}, fmt.Errorf("failed to open save file: %w", err)
	}
	defer f.Close()

	_, snap, err := Decode(f)
	if err != nil {
		return save.Snapshot{}, fmt.Errorf("failed to read save: %w", err)
	}
	return snap, nil
}

// ReadHeader returns the header of the stored save.
func (s *FileSaveStore) ReadHeader() (Header, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Header{}, ErrNoSave
		}
		return Header{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, err
	}
	defer dec.Close()

	var h Header
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	return h, json.Unmarshal(line, &h)
}

func (s *FileSaveStore) HasData(_ context.Context) (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check save file: %w", err)
}

func (s *FileSaveStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear save file: %w", err)
	}
	return nil
}
