// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/vescmotor/pkg/vesc"
)

// Snapshot is one timestamped telemetry sample.
type Snapshot struct {
	Time   time.Time   `json:"time" cbor:"1,keyasint"`
	Values vesc.Values `json:"values" cbor:"2,keyasint"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Recorder appends snapshots to a stream as a sequence of CBOR items.
type Recorder struct {
	enc *cbor.Encoder
	n   int
}

// NewRecorder writes to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: encMode.NewEncoder(w)}
}

// Write appends one snapshot.
func (r *Recorder) Write(s Snapshot) error {
	if err := r.enc.Encode(s); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	r.n++
	return nil
}

// Count returns the number of snapshots written.
func (r *Recorder) Count() int {
	return r.n
}

// Record polls src every interval and writes each snapshot until ctx ends.
// Failed queries are logged and skipped.
func (r *Recorder) Record(ctx context.Context, src Source, interval time.Duration, logger log.FieldLogger) error {
	if logger == nil {
		logger = log.StandardLogger()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		v, err := src.Values(ctx)
		switch {
		case err == nil:
			if err := r.Write(Snapshot{Time: time.Now().UTC(), Values: v}); err != nil {
				return err
			}
		case ctx.Err() != nil:
			return nil
		default:
			logger.WithField("err", err).Warn("telemetry query failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Reader reads snapshots written by a Recorder.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader reads from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next snapshot, or io.EOF at the end of the stream.
func (r *Reader) Next() (Snapshot, error) {
	var s Snapshot
	if err := r.dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Snapshot{}, io.EOF
		}
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// ReadAll returns every snapshot in r.
func ReadAll(r io.Reader) ([]Snapshot, error) {
	rd := NewReader(r)
	var out []Snapshot
	for {
		s, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}
