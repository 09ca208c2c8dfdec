package main

import (
	"github.com/gabriel-vasile/mimetype"

	"github.com/clrhost/clrhost/image"
	"github.com/clrhost/clrhost/internal/log"
)

// portableExecutableMIME is what mimetype's detector tree reports for a
// Windows PE/COFF image, the envelope every CLI assembly this host
// loads is wrapped in.
const portableExecutableMIME = "application/vnd.microsoft.portable-executable"

// openImage sniffs path's MIME type before handing it to the PE/CLR
// loader and logs a warning naming the sniffed type when it is not a PE
// image. A mismatch is logged, not fatal: some
// valid PE variants (old-style .NET executables, certain obfuscated
// images) confuse magic-byte sniffing, and the loader's own header
// checks are the authoritative validation.
func openImage(path string, logger *log.Helper, backend log.Logger) (*image.Image, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, err
	}
	if !mt.Is(portableExecutableMIME) {
		logger.Warnf("%s: sniffed MIME %s, expected %s; attempting to parse anyway", path, mt.String(), portableExecutableMIME)
	}

	img, err := image.New(path, &image.Options{Logger: backend})
	if err != nil {
		return nil, err
	}
	if err := img.Parse(); err != nil {
		img.Close()
		return nil, err
	}
	return img, nil
}
