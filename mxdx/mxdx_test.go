// mxdx: batch multiplexing and demultiplexing of sequence files.
// Copyright (c) 2024 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/mxdx/blob/master/LICENSE.txt>.

package mxdx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/exascience/mxdx/filemap"
	"github.com/exascience/mxdx/utils/codec"
)

var (
	fooIDs  = strings.Split("a b c d e f g h i j k l", " ")
	fooR1   = strings.Split("ATGC TTCC TTAA TTTA TTAT TTGA TTAC TTCA TTTT TTAA TTA TTC", " ")
	fooR2   = strings.Split("ATGCT TTCCT TTAAT TTTAT TTATT TTGAT TTACT TTCAT TTTTT TTAAT TTAT TTCT", " ")
	barIDs  = strings.Split("aa bb cc dd ee ff gg", " ")
	barR1   = strings.Split("ATGC TTCC TTAA TTTA TTAT TTGA TTAC", " ")
	barR2   = strings.Split("AATGC ATTCC ATTAA ATTTA ATTAT ATTGA ATTAC", " ")
	testCtx = context.Background()
)

// fasta formats records [start, stop) as FASTA, with an optional tag.
func fasta(tag string, ids, seqs []string, start, stop int, suffix string) string {
	var b strings.Builder
	for i := start; i < stop; i++ {
		b.WriteString(">")
		if tag != "" {
			b.WriteString(tag + "_")
		}
		b.WriteString(ids[i] + suffix + "\n" + seqs[i] + "\n")
	}
	return b.String()
}

// interleaved formats records [start, stop) of both reads as FASTA,
// alternating read 1 and read 2.
func interleaved(tag string, ids, seqs1, seqs2 []string, start, stop int) string {
	var b strings.Builder
	for i := start; i < stop; i++ {
		b.WriteString(fasta(tag, ids, seqs1, i, i+1, "/1"))
		b.WriteString(fasta(tag, ids, seqs2, i, i+1, "/2"))
	}
	return b.String()
}

type testData struct {
	dir              string
	foo1, foo2       string
	bar1, bar2       string
	fooHash, barHash string
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(name, []byte(content), 0666); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, name string) string {
	t.Helper()
	in, err := codec.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	content, err := io.ReadAll(in)
	if err != nil {
		t.Fatal(err)
	}
	return string(content)
}

func newTestData(t *testing.T) *testData {
	dir := t.TempDir()
	data := &testData{
		dir:  dir,
		foo1: filepath.Join(dir, "foo_r1.fasta"),
		foo2: filepath.Join(dir, "foo_r2.fasta"),
		bar1: filepath.Join(dir, "bar_r1.fasta"),
		bar2: filepath.Join(dir, "bar_r2.fasta"),
	}
	data.fooHash = filemap.HashPrefix(data.foo1)
	data.barHash = filemap.HashPrefix(data.bar1)
	writeFile(t, data.foo1, fasta("", fooIDs, fooR1, 0, 12, "/1"))
	writeFile(t, data.foo2, fasta("", fooIDs, fooR2, 0, 12, "/2"))
	writeFile(t, data.bar1, fasta("", barIDs, barR1, 0, 7, "/1"))
	writeFile(t, data.bar2, fasta("", barIDs, barR2, 0, 7, "/2"))
	return data
}

func (data *testData) fileMap(t *testing.T, batchSize int) *filemap.FileMap {
	t.Helper()
	table := fmt.Sprintf("filename_1\tfilename_2\trecord_count\n%v\t%v\t12\n%v\t%v\t7\n", data.foo1, data.foo2, data.bar1, data.bar2)
	fm, err := filemap.Parse(strings.NewReader(table), batchSize)
	if err != nil {
		t.Fatal(err)
	}
	return fm
}

func (data *testData) multiplex(t *testing.T, fm *filemap.FileMap, batch int, handling PairedHandling, output string) string {
	t.Helper()
	mx, err := NewMultiplex(fm, batch, handling, output)
	if err != nil {
		t.Fatal(err)
	}
	if err := mx.Start(testCtx); err != nil {
		t.Fatal(err)
	}
	return readFile(t, output)
}

func TestMultiplexSequential(t *testing.T) {
	data := newTestData(t)
	fooTag, barTag := "1."+data.fooHash+".0", "2."+data.barHash+".0"
	expected := fasta(fooTag, fooIDs, fooR1, 0, 12, "/1") +
		fasta(fooTag, fooIDs, fooR2, 0, 12, "/2") +
		fasta(barTag, barIDs, barR1, 0, 3, "/1") +
		fasta(barTag, barIDs, barR2, 0, 3, "/2")
	if out := data.multiplex(t, data.fileMap(t, 15), 0, Sequential, filepath.Join(t.TempDir(), "mux.fna")); out != expected {
		t.Errorf("sequential multiplexing failed:\n%v", out)
	}
}

func TestMultiplexInterleave(t *testing.T) {
	data := newTestData(t)
	fooTag, barTag := "1."+data.fooHash+".0", "2."+data.barHash+".0"
	expected := interleaved(fooTag, fooIDs, fooR1, fooR2, 0, 12) +
		interleaved(barTag, barIDs, barR1, barR2, 0, 3)
	if out := data.multiplex(t, data.fileMap(t, 15), 0, Interleave, filepath.Join(t.TempDir(), "mux.fna")); out != expected {
		t.Errorf("interleaved multiplexing failed:\n%v", out)
	}
}

func TestMultiplexR1Only(t *testing.T) {
	data := newTestData(t)
	fooTag, barTag := "1."+data.fooHash+".0", "2."+data.barHash+".0"
	expected := fasta(fooTag, fooIDs, fooR1, 0, 12, "/1") +
		fasta(barTag, barIDs, barR1, 0, 3, "/1")
	if out := data.multiplex(t, data.fileMap(t, 15), 0, R1Only, filepath.Join(t.TempDir(), "mux.fna")); out != expected {
		t.Errorf("r1-only multiplexing failed:\n%v", out)
	}
}

func TestMultiplexR2Only(t *testing.T) {
	data := newTestData(t)
	fooTag, barTag := "1."+data.fooHash+".0", "2."+data.barHash+".0"
	expected := fasta(fooTag, fooIDs, fooR2, 0, 12, "/2") +
		fasta(barTag, barIDs, barR2, 0, 3, "/2")
	if out := data.multiplex(t, data.fileMap(t, 15), 0, R2Only, filepath.Join(t.TempDir(), "mux.fna")); out != expected {
		t.Errorf("r2-only multiplexing failed:\n%v", out)
	}
}

func TestMultiplexSecondBatchCompressed(t *testing.T) {
	data := newTestData(t)
	barTag := "2." + data.barHash + ".1"
	expected := fasta(barTag, barIDs, barR1, 3, 7, "/1") +
		fasta(barTag, barIDs, barR2, 3, 7, "/2")
	output := filepath.Join(t.TempDir(), "mux.fna.gz")
	if out := data.multiplex(t, data.fileMap(t, 15), 1, Sequential, output); out != expected {
		t.Errorf("multiplexing of the second batch failed:\n%v", out)
	}
	in, err := codec.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	if in.Compression != codec.Gzip {
		t.Error("multiplexed output is not compressed")
	}
}

func TestMultiplexValidation(t *testing.T) {
	data := newTestData(t)
	output := filepath.Join(t.TempDir(), "mux.fna")

	unpaired, err := filemap.New([]filemap.SourceRow{{Filename1: data.foo1, RecordCount: 12}}, false, 15)
	if err != nil {
		t.Fatal(err)
	}
	for _, handling := range []PairedHandling{Interleave, R2Only} {
		if _, err := NewMultiplex(unpaired, 0, handling, output); !errors.Is(err, ErrInvalidHandling) {
			t.Errorf("%v on unpaired data failed", handling)
		}
	}
	if _, err := NewMultiplex(unpaired, 0, "zigzag", output); !errors.Is(err, ErrInvalidHandling) {
		t.Error("unknown paired handling failed")
	}
	if _, err := NewMultiplex(unpaired, 1, Sequential, output); !errors.Is(err, ErrEmptyBatch) {
		t.Error("empty batch failed")
	}

	sam1 := filepath.Join(data.dir, "reads_r1.sam")
	sam2 := filepath.Join(data.dir, "reads_r2.sam")
	writeFile(t, sam1, "r1\t65\tchr1\t100\t60\t4M\t*\t0\t0\tACGT\tIIII\n")
	writeFile(t, sam2, "r1\t129\tchr1\t100\t60\t4M\t*\t0\t0\tACGT\tIIII\n")
	paired, err := filemap.New([]filemap.SourceRow{{Filename1: sam1, Filename2: sam2, RecordCount: 1}}, true, 15)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewMultiplex(paired, 0, Interleave, output); !errors.Is(err, ErrInvalidHandling) {
		t.Error("interleaving SAM failed")
	}
	mx, err := NewMultiplex(paired, 0, Sequential, output)
	if err != nil {
		t.Fatal(err)
	}
	if err := mx.Start(testCtx); err != nil {
		t.Fatal(err)
	}
	tag := filemap.MakeTag(1, sam1, 0)
	expected := tag + "_r1/1\t65\tchr1\t100\t60\t4M\t*\t0\t0\tACGT\tIIII\n" +
		tag + "_r1/2\t129\tchr1\t100\t60\t4M\t*\t0\t0\tACGT\tIIII\n"
	if out := readFile(t, output); out != expected {
		t.Errorf("multiplexing SAM failed:\n%v", out)
	}
}

func TestMultiplexShortFile(t *testing.T) {
	data := newTestData(t)
	table := fmt.Sprintf("filename_1\trecord_count\n%v\t20\n", data.foo1)
	fm, err := filemap.Parse(strings.NewReader(table), 15)
	if err != nil {
		t.Fatal(err)
	}
	mx, err := NewMultiplex(fm, 1, Sequential, filepath.Join(t.TempDir(), "mux.fna"))
	if err != nil {
		t.Fatal(err)
	}
	if err := mx.Start(testCtx); err == nil {
		t.Error("multiplexing beyond the end of a file failed")
	}
}

func (data *testData) batch0Mux() string {
	fooTag, barTag := "1."+data.fooHash+".0", "2."+data.barHash+".0"
	return interleaved(fooTag, fooIDs, fooR1, fooR2, 0, 12) +
		interleaved(barTag, barIDs, barR1, barR2, 0, 3)
}

func TestDemultiplexSeparate(t *testing.T) {
	data := newTestData(t)
	out := filepath.Join(t.TempDir(), "out")
	dx, err := NewDemultiplex(data.fileMap(t, 15), 0, Separate, "memory", strings.NewReader(data.batch0Mux()), out, "fna.gz")
	if err != nil {
		t.Fatal(err)
	}
	if err := dx.Start(testCtx); err != nil {
		t.Fatal(err)
	}
	partial := "dx-partial.2." + data.barHash + ".0."
	for name, expected := range map[string]string{
		"foo_r1.fasta.fna.gz":           fasta("", fooIDs, fooR1, 0, 12, "/1"),
		"foo_r2.fasta.fna.gz":           fasta("", fooIDs, fooR2, 0, 12, "/2"),
		partial + "bar_r1.fasta.fna.gz": fasta("", barIDs, barR1, 0, 3, "/1"),
		partial + "bar_r2.fasta.fna.gz": fasta("", barIDs, barR2, 0, 3, "/2"),
	} {
		if content := readFile(t, filepath.Join(out, name)); content != expected {
			t.Errorf("demultiplexing into %v failed:\n%v", name, content)
		}
	}
	if _, err := os.Stat(filepath.Join(out, UnrecognizedName+".r1.fna.gz")); !os.IsNotExist(err) {
		t.Error("unrecognized output created without unrecognized records")
	}
}

func TestDemultiplexMerge(t *testing.T) {
	data := newTestData(t)
	out := t.TempDir()
	dx, err := NewDemultiplex(data.fileMap(t, 15), 0, Merge, "memory", strings.NewReader(data.batch0Mux()), out, "fna.gz")
	if err != nil {
		t.Fatal(err)
	}
	if err := dx.Start(testCtx); err != nil {
		t.Fatal(err)
	}
	partial := "dx-partial.2." + data.barHash + ".0."
	if content := readFile(t, filepath.Join(out, "foo_r1.fasta.fna.gz")); content != interleaved("", fooIDs, fooR1, fooR2, 0, 12) {
		t.Errorf("merged demultiplexing failed:\n%v", content)
	}
	if content := readFile(t, filepath.Join(out, partial+"bar_r1.fasta.fna.gz")); content != interleaved("", barIDs, barR1, barR2, 0, 3) {
		t.Errorf("merged demultiplexing of a partial file failed:\n%v", content)
	}
	for _, name := range []string{"foo_r2.fasta.fna.gz", partial + "bar_r2.fasta.fna.gz"} {
		if _, err := os.Stat(filepath.Join(out, name)); !os.IsNotExist(err) {
			t.Errorf("merged demultiplexing created %v", name)
		}
	}
}

func TestDemultiplexUnrecognized(t *testing.T) {
	data := newTestData(t)
	out := t.TempDir()
	fooTag := "1." + data.fooHash + ".0"
	mux := fasta(fooTag, fooIDs, fooR1, 0, 2, "/1") +
		fasta("9.xyz.0", fooIDs, fooR1, 2, 3, "/1") +
		fasta("", fooIDs, fooR2, 3, 4, "/2")
	dx, err := NewDemultiplex(data.fileMap(t, 15), 0, Separate, "memory", strings.NewReader(mux), out, "fna")
	if err != nil {
		t.Fatal(err)
	}
	if err := dx.Start(testCtx); err != nil {
		t.Fatal(err)
	}
	if content := readFile(t, filepath.Join(out, "foo_r1.fasta.fna")); content != fasta("", fooIDs, fooR1, 0, 2, "/1") {
		t.Errorf("demultiplexing with unrecognized tags failed:\n%v", content)
	}
	if content := readFile(t, filepath.Join(out, "unrecognized.r1.fna")); content != fasta("9.xyz.0", fooIDs, fooR1, 2, 3, "/1") {
		t.Errorf("unrecognized read 1 failed:\n%v", content)
	}
	if content := readFile(t, filepath.Join(out, "unrecognized.r2.fna")); content != fasta("", fooIDs, fooR2, 3, 4, "/2") {
		t.Errorf("unrecognized read 2 failed:\n%v", content)
	}
}

func TestDemultiplexValidation(t *testing.T) {
	data := newTestData(t)
	out := t.TempDir()
	dx, err := NewDemultiplex(data.fileMap(t, 15), 0, Separate, "memory", strings.NewReader(""), out, "fna")
	if err != nil {
		t.Fatal(err)
	}
	if err := dx.Start(testCtx); err == nil {
		t.Error("demultiplexing an empty stream failed")
	}

	unpaired, err := filemap.New([]filemap.SourceRow{{Filename1: data.foo1, RecordCount: 12}}, false, 15)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewDemultiplex(unpaired, 0, Merge, "-", nil, out, "fna"); !errors.Is(err, ErrInvalidHandling) {
		t.Error("merging unpaired data failed")
	}
	if _, err := NewDemultiplex(unpaired, 0, "stack", "-", nil, out, "fna"); !errors.Is(err, ErrInvalidHandling) {
		t.Error("unknown paired handling failed")
	}
	if _, err := NewDemultiplex(unpaired, 1, Separate, "-", nil, out, "fna"); !errors.Is(err, ErrEmptyBatch) {
		t.Error("empty batch failed")
	}

	tag := "1." + filemap.HashPrefix(data.foo1) + ".0"
	dx, err = NewDemultiplex(unpaired, 0, Separate, "memory", strings.NewReader(fasta(tag, fooIDs, fooR2, 0, 1, "/2")), out, "fna")
	if err != nil {
		t.Fatal(err)
	}
	if err := dx.Start(testCtx); err == nil {
		t.Error("demultiplexing a second read of unpaired data failed")
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func TestConsolidate(t *testing.T) {
	data := newTestData(t)
	fm := data.fileMap(t, 15)
	out := t.TempDir()
	muxDir := t.TempDir()

	for batch := 0; batch < fm.NumberOfBatches(); batch++ {
		muxOutput := filepath.Join(muxDir, fmt.Sprintf("batch-%v.fna", batch))
		mx, err := NewMultiplex(fm, batch, Interleave, muxOutput)
		if err != nil {
			t.Fatal(err)
		}
		if err := mx.Start(testCtx); err != nil {
			t.Fatal(err)
		}
		dx, err := NewDemultiplex(fm, batch, Separate, muxOutput, nil, out, "fna.gz")
		if err != nil {
			t.Fatal(err)
		}
		if err := dx.Start(testCtx); err != nil {
			t.Fatal(err)
		}
	}

	cx, err := NewConsolidate(out, "fna.gz")
	if err != nil {
		t.Fatal(err)
	}
	if err := cx.Start(testCtx); err != nil {
		t.Fatal(err)
	}

	expected := []string{
		"bar_r1.fasta.fna.gz",
		"bar_r2.fasta.fna.gz",
		"dx-partial.2." + data.barHash + ".0.bar_r1.fasta.fna.gz",
		"dx-partial.2." + data.barHash + ".0.bar_r2.fasta.fna.gz",
		"dx-partial.2." + data.barHash + ".1.bar_r1.fasta.fna.gz",
		"dx-partial.2." + data.barHash + ".1.bar_r2.fasta.fna.gz",
		"foo_r1.fasta.fna.gz",
		"foo_r2.fasta.fna.gz",
	}
	names := listDir(t, out)
	if strings.Join(names, " ") != strings.Join(expected, " ") {
		t.Errorf("consolidation produced the wrong files: %v", names)
	}
	for _, name := range []string{"foo_r1.fasta", "foo_r2.fasta", "bar_r1.fasta", "bar_r2.fasta"} {
		if readFile(t, filepath.Join(out, name+".fna.gz")) != readFile(t, filepath.Join(data.dir, name)) {
			t.Errorf("consolidated %v differs from its source", name)
		}
	}

	if _, err := NewConsolidate(out, "fna.gz"); !errors.Is(err, ErrAmbiguous) {
		t.Error("consolidating next to existing final outputs failed")
	}
}

func TestConsolidateManyBatches(t *testing.T) {
	data := newTestData(t)
	fm := data.fileMap(t, 2)
	out := t.TempDir()

	if fm.NumberOfBatches() != 10 {
		t.Fatalf("unexpected number of batches: %v", fm.NumberOfBatches())
	}
	for batch := 0; batch < fm.NumberOfBatches(); batch++ {
		muxOutput := filepath.Join(t.TempDir(), "mux.fq.zst")
		mx, err := NewMultiplex(fm, batch, Sequential, muxOutput)
		if err != nil {
			t.Fatal(err)
		}
		if err := mx.Start(testCtx); err != nil {
			t.Fatal(err)
		}
		dx, err := NewDemultiplex(fm, batch, Separate, muxOutput, nil, out, "fna")
		if err != nil {
			t.Fatal(err)
		}
		if err := dx.Start(testCtx); err != nil {
			t.Fatal(err)
		}
	}
	cx, err := NewConsolidate(out, "fna")
	if err != nil {
		t.Fatal(err)
	}
	if outputs := cx.Outputs(); len(outputs) != 4 || len(outputs[filepath.Join(out, "foo_r1.fasta.fna")]) != 6 {
		t.Fatalf("consolidation groups failed: %v", outputs)
	}
	if err := cx.Start(testCtx); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"foo_r1.fasta", "foo_r2.fasta", "bar_r1.fasta", "bar_r2.fasta"} {
		if readFile(t, filepath.Join(out, name+".fna")) != readFile(t, filepath.Join(data.dir, name)) {
			t.Errorf("consolidated %v differs from its source", name)
		}
	}
}

func fastqRecords(n, read, length int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		seq := strings.Repeat(string("ACGT"[(i+read)%4]), length+i%3)
		fmt.Fprintf(&b, "@q%v/%v sample=s1 index=%v\n%v\n+\n@%v\n", i, read, i, seq, strings.Repeat("I", len(seq)-1))
	}
	return b.String()
}

func multiLineFasta(n, read int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, ">m%v/%v contig %v\nACGTACGT\nTTGCA\nG\n", i, read, i)
	}
	return b.String()
}

func samRecords(n, read int) string {
	flag := 65
	if read == 2 {
		flag = 129
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "s%v/%v\t%v\tchr1\t%v\t60\t4M\t*\t0\t0\tACGT\tIIII\n", i, read, flag, 100+i)
	}
	return b.String()
}

// roundTrip multiplexes, demultiplexes, and consolidates every batch of
// the given paired sources, and checks that the final outputs equal
// the sources.
func roundTrip(t *testing.T, sources [][2]string, counts []int, batchSize int, handling PairedHandling, muxName, extension string) {
	t.Helper()
	dir := t.TempDir()
	var rows []filemap.SourceRow
	for i, content := range sources {
		row := filemap.SourceRow{
			Filename1:   filepath.Join(dir, fmt.Sprintf("source%v_r1.txt", i)),
			Filename2:   filepath.Join(dir, fmt.Sprintf("source%v_r2.txt", i)),
			RecordCount: counts[i],
		}
		writeFile(t, row.Filename1, content[0])
		writeFile(t, row.Filename2, content[1])
		rows = append(rows, row)
	}
	fm, err := filemap.New(rows, true, batchSize)
	if err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	for batch := 0; batch < fm.NumberOfBatches(); batch++ {
		muxOutput := filepath.Join(t.TempDir(), muxName)
		mx, err := NewMultiplex(fm, batch, handling, muxOutput)
		if err != nil {
			t.Fatal(err)
		}
		if err := mx.Start(testCtx); err != nil {
			t.Fatal(err)
		}
		dx, err := NewDemultiplex(fm, batch, Separate, muxOutput, nil, out, extension)
		if err != nil {
			t.Fatal(err)
		}
		if err := dx.Start(testCtx); err != nil {
			t.Fatal(err)
		}
	}
	cx, err := NewConsolidate(out, extension)
	if err != nil {
		t.Fatal(err)
	}
	if err := cx.Start(testCtx); err != nil {
		t.Fatal(err)
	}
	for _, row := range rows {
		for _, source := range []string{row.Filename1, row.Filename2} {
			final := filepath.Join(out, filepath.Base(source)+"."+extension)
			if readFile(t, final) != readFile(t, source) {
				t.Errorf("round trip of %v differs from its source", filepath.Base(source))
			}
		}
	}
}

func TestRoundTripFastq(t *testing.T) {
	roundTrip(t, [][2]string{
		{fastqRecords(5, 1, 6), fastqRecords(5, 2, 6)},
		{fastqRecords(23, 1, 9), fastqRecords(23, 2, 9)},
	}, []int{5, 23}, 7, Interleave, "mux.fq", "fq.gz")
}

func TestRoundTripMultiLineFasta(t *testing.T) {
	roundTrip(t, [][2]string{
		{multiLineFasta(1, 1), multiLineFasta(1, 2)},
		{multiLineFasta(12, 1), multiLineFasta(12, 2)},
	}, []int{1, 12}, 7, Sequential, "mux.fna.bgz", "fna")
}

func TestRoundTripSam(t *testing.T) {
	roundTrip(t, [][2]string{
		{samRecords(12, 1), samRecords(12, 2)},
		{samRecords(5, 1), samRecords(5, 2)},
	}, []int{12, 5}, 7, Sequential, "mux.sam", "sam")
}

func TestRoundTripLongReads(t *testing.T) {
	roundTrip(t, [][2]string{
		{fastqRecords(3, 1, 40000), fastqRecords(3, 2, 40000)},
	}, []int{3}, 2, Interleave, "mux.fq", "fq")
}

func TestConsolidateNumericOrder(t *testing.T) {
	out := t.TempDir()
	for _, batch := range []int{2, 10, 1} {
		name := fmt.Sprintf("dx-partial.1.acb.%v.foo.fna", batch)
		writeFile(t, filepath.Join(out, name), fmt.Sprintf(">r%v\nA\n", batch))
	}
	writeFile(t, filepath.Join(out, "unrelated.fq"), "")
	cx, err := NewConsolidate(out, ".fna")
	if err != nil {
		t.Fatal(err)
	}
	if err := cx.Start(testCtx); err != nil {
		t.Fatal(err)
	}
	if content := readFile(t, filepath.Join(out, "foo.fna")); content != ">r1\nA\n>r2\nA\n>r10\nA\n" {
		t.Errorf("consolidation order failed:\n%v", content)
	}
}

func TestConsolidateErrors(t *testing.T) {
	out := t.TempDir()
	writeFile(t, filepath.Join(out, "dx-partial.foo.fna"), "")
	if _, err := NewConsolidate(out, "fna"); err == nil {
		t.Error("consolidating a fragment without tag failed")
	}

	empty := t.TempDir()
	cx, err := NewConsolidate(empty, "fna")
	if err != nil {
		t.Fatal(err)
	}
	if err := cx.Start(testCtx); err != nil {
		t.Error("consolidating nothing failed")
	}
	if names := listDir(t, empty); len(names) != 0 {
		t.Errorf("consolidating nothing created %v", names)
	}

	if _, err := NewConsolidate(filepath.Join(empty, "missing"), "fna"); err == nil {
		t.Error("consolidating a missing directory failed")
	}
}

func TestOutputName(t *testing.T) {
	if name := OutputName("/data/foo_r1.fastq.gz", "1.acb.0", true, "fq"); name != "foo_r1.fastq.gz.fq" {
		t.Errorf("OutputName failed: %v", name)
	}
	if name := OutputName("foo_r1.fastq", "1.acb.0", false, ".fq.gz"); name != "dx-partial.1.acb.0.foo_r1.fastq.fq.gz" {
		t.Errorf("OutputName of a partial output failed: %v", name)
	}
}
