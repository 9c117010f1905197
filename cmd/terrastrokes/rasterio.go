// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"image"
	"image/png"

	"github.com/mnlk/terrastrokes/internal/storage"
)

// writePNGFile and writeWorldFile mirror internal/tilestack's
// unexported writePNG/writeWorldFile helpers; duplicated here rather
// than exported since they're a thin stdlib wrapper each command uses
// once, not a shared abstraction worth a package boundary.
func writePNGFile(s storage.Storage, path string, img image.Image) error {
	f, err := s.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func writeWorldFile(s storage.Storage, path string, pixelSize, x, y float64) error {
	f, err := s.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%v\r\n0\r\n0\r\n%v\r\n%v\r\n%v\r\n", pixelSize, -pixelSize, x, y)
	return err
}
