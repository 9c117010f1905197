// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/mnlk/terrastrokes/internal/pointstore"
	"github.com/mnlk/terrastrokes/internal/storage"
)

// ingestPoints loads every record from either a binary xyz.bin store
// or a whitespace-delimited text xyz file, dispatching on extension.
func ingestPoints(s storage.Storage, path string) ([]pointstore.Record, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xyz.bin") {
		r, err := pointstore.Open(s, path)
		if err != nil {
			return nil, err
		}
		defer pointstore.MustClose(r)
		return r.All()
	}
	return readXYZText(s, path)
}

// readXYZText parses "x y z classification returnnumber
// numberofreturns" lines, the plain-text counterpart to the B store's
// binary record layout.
func readXYZText(s storage.Storage, path string) ([]pointstore.Record, error) {
	f, err := s.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []pointstore.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		z, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			continue
		}
		rec := pointstore.Record{X: x, Y: y, Z: float32(z), NumberOfReturns: 1, ReturnNumber: 1}
		if len(fields) > 3 {
			if c, err := strconv.Atoi(fields[3]); err == nil {
				rec.Classification = uint8(c)
			}
		}
		if len(fields) > 4 {
			if r, err := strconv.Atoi(fields[4]); err == nil {
				rec.ReturnNumber = uint8(r)
			}
		}
		if len(fields) > 5 {
			if n, err := strconv.Atoi(fields[5]); err == nil {
				rec.NumberOfReturns = uint8(n)
			}
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// writeXYZBin writes records into a B-store at dst.
func writeXYZBin(s storage.Storage, records []pointstore.Record, dst string) error {
	w, err := pointstore.Create(s, dst)
	if err != nil {
		return err
	}
	defer pointstore.MustClose(w)
	for _, r := range records {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// cmdInternal2XYZ converts a B-store at args[0] to the plain-text xyz
// format at args[1].
func cmdInternal2XYZ(s storage.Storage, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("USAGE: internal2xyz [input file] [output file]")
	}
	records, err := ingestPoints(s, args[0])
	if err != nil {
		return err
	}
	f, err := s.Create(args[1])
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()
	for _, r := range records {
		if _, err := fmt.Fprintf(w, "%v %v %v %d %d %d\n", r.X, r.Y, r.Z, r.Classification, r.ReturnNumber, r.NumberOfReturns); err != nil {
			return err
		}
	}
	return nil
}
