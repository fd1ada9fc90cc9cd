package hdf

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gonum.org/v1/hdf5"

	pulsescan "github.com/skywatch/pulsescan-go"
)

// writeCube creates an HDF5 file in the layout the reader expects.
func writeCube(t *testing.T, path string, w, h int, samples []uint16, secs []int64, nsecs []int32) {
	t.Helper()
	n := len(secs)

	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		t.Fatalf("creating hdf5 file: %v", err)
	}
	defer f.Close()

	fspace, err := hdf5.CreateSimpleDataspace([]uint{uint(n), uint(h), uint(w)}, nil)
	if err != nil {
		t.Fatalf("creating frame dataspace: %v", err)
	}
	ds, err := f.CreateDataset(DefaultFrames, hdf5.T_NATIVE_UINT16, fspace)
	if err != nil {
		t.Fatalf("creating frame dataset: %v", err)
	}
	if n > 0 {
		if err := ds.Write(&samples); err != nil {
			t.Fatalf("writing frames: %v", err)
		}
	}
	ds.Close()

	sspace, err := hdf5.CreateSimpleDataspace([]uint{uint(n)}, nil)
	if err != nil {
		t.Fatalf("creating sec dataspace: %v", err)
	}
	sds, err := f.CreateDataset(DefaultSec, hdf5.T_NATIVE_INT64, sspace)
	if err != nil {
		t.Fatalf("creating sec dataset: %v", err)
	}
	if n > 0 {
		if err := sds.Write(&secs); err != nil {
			t.Fatalf("writing secs: %v", err)
		}
	}
	sds.Close()

	if nsecs != nil {
		nspace, err := hdf5.CreateSimpleDataspace([]uint{uint(n)}, nil)
		if err != nil {
			t.Fatalf("creating nsec dataspace: %v", err)
		}
		nds, err := f.CreateDataset(DefaultNsec, hdf5.T_NATIVE_INT32, nspace)
		if err != nil {
			t.Fatalf("creating nsec dataset: %v", err)
		}
		if n > 0 {
			if err := nds.Write(&nsecs); err != nil {
				t.Fatalf("writing nsecs: %v", err)
			}
		}
		nds.Close()
	}
}

func TestRoundTrip(t *testing.T) {
	const w, h, n = 4, 3, 5
	samples := make([]uint16, n*h*w)
	for i := range samples {
		samples[i] = uint16(i * 3)
	}
	secs := make([]int64, n)
	nsecs := make([]int32, n)
	for i := range secs {
		secs[i] = 1700000000 + int64(i)
		nsecs[i] = int32(i * 250)
	}

	path := filepath.Join(t.TempDir(), "frames.h5")
	writeCube(t, path, w, h, samples, secs, nsecs)

	r, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	if r.Count() != n {
		t.Fatalf("count, got %d, expected %d", r.Count(), n)
	}
	for i := 0; i < n; i++ {
		f, err := r.Next()
		if err != nil {
			t.Fatalf("reading frame %d: %v", i, err)
		}
		want := time.Unix(secs[i], int64(nsecs[i])).UTC()
		if !f.Timestamp.Equal(want) {
			t.Fatalf("frame %d timestamp, got %v, expected %v", i, f.Timestamp, want)
		}
		for j := 0; j < w*h; j++ {
			if f.Samples[j] != samples[i*w*h+j] {
				t.Fatalf("frame %d sample %d, got %d, expected %d", i, j, f.Samples[j], samples[i*w*h+j])
			}
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("after last frame, got %v, expected io.EOF", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestMissingNanoseconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.h5")
	writeCube(t, path, 2, 2, make([]uint16, 4), []int64{1700000000}, nil)

	r, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	f, err := r.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !f.Timestamp.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("timestamp without nsec dataset, got %v", f.Timestamp)
	}
}

func TestOpenMissingDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.h5")
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		t.Fatalf("creating hdf5 file: %v", err)
	}
	f.Close()

	_, err = Open(path, nil)
	if err == nil {
		t.Fatalf("missing error for file without frame dataset")
	}
	if !pulsescan.IsFormat(err) {
		t.Fatalf("got %v, expected FormatError", err)
	}
}

func TestOpenNotHDF5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.h5")
	if err := os.WriteFile(path, []byte("definitely not hdf5"), 0o644); err != nil {
		t.Fatalf("writing garbage: %v", err)
	}
	_, err := Open(path, nil)
	if err == nil || !pulsescan.IsFormat(err) {
		t.Fatalf("got %v, expected FormatError", err)
	}
}

func TestTimestampCountMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.h5")

	// Two frames but only one timestamp entry.
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		t.Fatalf("creating hdf5 file: %v", err)
	}
	fspace, err := hdf5.CreateSimpleDataspace([]uint{2, 2, 2}, nil)
	if err != nil {
		t.Fatalf("creating frame dataspace: %v", err)
	}
	ds, err := f.CreateDataset(DefaultFrames, hdf5.T_NATIVE_UINT16, fspace)
	if err != nil {
		t.Fatalf("creating frame dataset: %v", err)
	}
	samples := make([]uint16, 8)
	if err := ds.Write(&samples); err != nil {
		t.Fatalf("writing frames: %v", err)
	}
	ds.Close()
	sspace, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		t.Fatalf("creating sec dataspace: %v", err)
	}
	sds, err := f.CreateDataset(DefaultSec, hdf5.T_NATIVE_INT64, sspace)
	if err != nil {
		t.Fatalf("creating sec dataset: %v", err)
	}
	secs := []int64{1700000000}
	if err := sds.Write(&secs); err != nil {
		t.Fatalf("writing secs: %v", err)
	}
	sds.Close()
	f.Close()

	_, err = Open(path, nil)
	if err == nil || !pulsescan.IsFormat(err) {
		t.Fatalf("timestamp count mismatch, got %v, expected FormatError", err)
	}
}
