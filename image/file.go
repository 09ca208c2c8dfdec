// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package image

import (
	"errors"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/clrhost/clrhost/internal/log"
)

// Image is an open CLI assembly: the raw PE envelope plus whatever metadata
// directories the loader decoded. It is the sole output of this package and
// the sole input accepted by the metadata resolver in package metadata. No
// semantic resolution happens here: tokens stay tokens, blobs stay byte
// ranges.
type Image struct {
	DOSHeader    ImageDOSHeader `json:"dos_header,omitempty"`
	NtHeader     ImageNtHeader  `json:"nt_header,omitempty"`
	Sections     []Section      `json:"sections,omitempty"`
	Certificates Certificate    `json:"certificates,omitempty"`
	CLR          CLRData        `json:"clr,omitempty"`
	Anomalies    []string       `json:"anomalies,omitempty"`
	Header       []byte
	data         mmap.MMap
	FileInfo
	size   uint32
	f      *os.File
	opts   *Options
	logger *log.Helper
}

// Options controls how an Image is parsed.
type Options struct {

	// Parse only the PE headers and the section table; the data directories,
	// the CLR header and its metadata included, are skipped. By default
	// (false).
	Fast bool

	// Disable strong-name/Authenticode certificate validation, by default
	// (false).
	DisableCertValidation bool

	// Disable the comparison of the Authenticode signature's digest with
	// the image's own Authentihash, by default (false).
	DisableSignatureValidation bool

	// Compute each section's Shannon entropy while parsing section
	// headers, by default (false). Off by default since it walks every
	// section's raw bytes.
	SectionEntropy bool

	// A custom logger. Defaults to a stderr logger filtered at error level.
	Logger log.Logger
}

func newLogger(opts *Options) *log.Helper {
	if opts.Logger == nil {
		return log.NewHelper(log.NewFilter(log.NewStdLogger(os.Stderr),
			log.FilterLevel(log.LevelError)))
	}
	return log.NewHelper(opts.Logger)
}

// New opens and memory-maps the assembly at the given path.
func New(name string, opts *Options) (*Image, error) {

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	img := Image{}
	if opts != nil {
		img.opts = opts
	} else {
		img.opts = &Options{}
	}
	img.logger = newLogger(img.opts)

	img.data = data
	img.size = uint32(len(img.data))
	img.f = f
	return &img, nil
}

// NewBytes builds an Image instance directly from an in-memory buffer,
// without touching the filesystem.
func NewBytes(data []byte, opts *Options) (*Image, error) {

	img := Image{}
	if opts != nil {
		img.opts = opts
	} else {
		img.opts = &Options{}
	}
	img.logger = newLogger(img.opts)

	img.data = data
	img.size = uint32(len(img.data))
	return &img, nil
}

// Close releases the underlying mapping/file handle, if any.
func (pe *Image) Close() error {
	if pe.data != nil {
		_ = pe.data.Unmap()
	}

	if pe.f != nil {
		return pe.f.Close()
	}
	return nil
}

// Parse decodes the PE envelope and the section table and - unless
// Options.Fast is set - the data directories, which locates the CLR header
// and walks the metadata root and every present stream.
func (pe *Image) Parse() error {

	if len(pe.data) < TinyPESize {
		return ErrInvalidPESize
	}

	if err := pe.ParseDOSHeader(); err != nil {
		return err
	}

	if err := pe.ParseNTHeader(); err != nil {
		return err
	}

	if err := pe.ParseSectionHeader(); err != nil {
		return err
	}

	if pe.opts.Fast {
		return nil
	}

	return pe.ParseDataDirectories()
}

// String stringifies the data directory entry.
func (entry ImageDirectoryEntry) String() string {
	dataDirMap := map[ImageDirectoryEntry]string{
		ImageDirectoryEntryExport:       "Export",
		ImageDirectoryEntryImport:       "Import",
		ImageDirectoryEntryResource:     "Resource",
		ImageDirectoryEntryException:    "Exception",
		ImageDirectoryEntryCertificate:  "Security",
		ImageDirectoryEntryBaseReloc:    "Relocation",
		ImageDirectoryEntryDebug:        "Debug",
		ImageDirectoryEntryArchitecture: "Architecture",
		ImageDirectoryEntryGlobalPtr:    "GlobalPtr",
		ImageDirectoryEntryTLS:          "TLS",
		ImageDirectoryEntryLoadConfig:   "LoadConfig",
		ImageDirectoryEntryBoundImport:  "BoundImport",
		ImageDirectoryEntryIAT:          "IAT",
		ImageDirectoryEntryDelayImport:  "DelayImport",
		ImageDirectoryEntryCLR:          "CLR",
		ImageDirectoryEntryReserved:     "Reserved",
	}

	return dataDirMap[entry]
}

// ParseDataDirectories walks the sixteen-entry optional-header data
// directory table. This loader only understands two of the sixteen slots -
// the CLR header and the certificate (strong-name/Authenticode signature)
// table - everything else addresses native-PE features (exports, resources,
// TLS, ...) that have no bearing on a managed-only runtime and are skipped.
func (pe *Image) ParseDataDirectories() error {

	foundErr := false
	oh32 := ImageOptionalHeader32{}
	oh64 := ImageOptionalHeader64{}

	switch pe.Is64 {
	case true:
		oh64 = pe.NtHeader.OptionalHeader.(ImageOptionalHeader64)
	case false:
		oh32 = pe.NtHeader.OptionalHeader.(ImageOptionalHeader32)
	}

	funcMaps := map[ImageDirectoryEntry](func(uint32, uint32) error){
		ImageDirectoryEntryCertificate: pe.parseSecurityDirectory,
		ImageDirectoryEntryCLR:         pe.parseCLRHeaderDirectory,
	}

	for entryIndex := ImageDirectoryEntry(0); entryIndex < ImageNumberOfDirectoryEntries; entryIndex++ {

		var va, size uint32
		switch pe.Is64 {
		case true:
			dirEntry := oh64.DataDirectory[entryIndex]
			va = dirEntry.VirtualAddress
			size = dirEntry.Size
		case false:
			dirEntry := oh32.DataDirectory[entryIndex]
			va = dirEntry.VirtualAddress
			size = dirEntry.Size
		}

		if va == 0 {
			continue
		}

		parse, handled := funcMaps[entryIndex]
		if !handled {
			continue
		}

		func() {
			defer func() {
				if e := recover(); e != nil {
					pe.logger.Errorf("unhandled exception when parsing data directory %s, reason: %v",
						entryIndex.String(), e)
					foundErr = true
				}
			}()

			if err := parse(va, size); err != nil {
				pe.logger.Warnf("failed to parse data directory %s, reason: %v",
					entryIndex.String(), err)
			}
		}()
	}

	if foundErr {
		return errors.New("data directory parsing failed")
	}
	return nil
}
