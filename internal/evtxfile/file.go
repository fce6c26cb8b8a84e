// Package evtxfile opens EVTX files and splits them into chunks.
package evtxfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/evtxcache/internal/chunk"
	"github.com/klauspost/compress/zstd"
	"github.com/mitchellh/go-homedir"
	"github.com/muesli/gitcha"
)

// HeaderSize is the size of the file header block preceding the first chunk.
const HeaderSize = 0x1000

var (
	fileMagic = []byte("ElfFile\x00")
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

	// Extensions lists the file patterns Find looks for.
	Extensions = []string{"*.evtx", "*.evtx.zst"}
)

// ErrNotEVTX is returned when a file starts with neither a file header nor a
// chunk signature.
var ErrNotEVTX = errors.New("not an evtx file")

type config struct {
	logger    *log.Logger
	chunkOpts []chunk.Option
}

// Option configures Open, Split and Load.
type Option func(*config)

// WithLogger sets the logger for the file and every chunk loaded from it.
func WithLogger(logger *log.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithChunkOptions passes options through to chunk.Load.
func WithChunkOptions(opts ...chunk.Option) Option {
	return func(c *config) {
		c.chunkOpts = append(c.chunkOpts, opts...)
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{logger: log.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// LoadedChunk is the result of loading one chunk of a file. Err is set when
// the chunk could not be loaded; the other chunks are unaffected.
type LoadedChunk struct {
	Index  int
	Offset int64
	Chunk  *chunk.Chunk
	Err    error
}

// File is a loaded EVTX file.
type File struct {
	Path   string
	Size   int64
	Chunks []LoadedChunk
}

// Open reads path, expanding ~ and decompressing zstd input.
func Open(path string, opts ...Option) ([]byte, error) {
	cfg := newConfig(opts)

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("unable to expand path: %w", err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("unable to read file: %w", err)
	}

	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	decompressed, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to decompress %s: %w", path, err)
	}
	cfg.logger.Debug("Decompressed input", "path", path, "compressed", len(data), "size", len(decompressed))
	return decompressed, nil
}

// Split returns the chunks of data. A leading file header is skipped and
// blocks without a chunk signature are ignored.
func Split(data []byte, opts ...Option) []Span {
	cfg := newConfig(opts)

	start := 0
	if bytes.HasPrefix(data, fileMagic) {
		start = HeaderSize
	}

	var spans []Span
	for off := start; off+chunk.Size <= len(data); off += chunk.Size {
		block := data[off : off+chunk.Size : off+chunk.Size]
		if !bytes.HasPrefix(block, chunk.Magic) {
			cfg.logger.Debug("Skipping unused chunk", "offset", off)
			continue
		}
		spans = append(spans, Span{Offset: int64(off), Data: block})
	}

	if rest := (len(data) - start) % chunk.Size; rest > 0 && len(data) > start {
		cfg.logger.Warn("Ignoring trailing partial chunk", "bytes", rest)
	}
	return spans
}

// Span is one chunk-sized block of a file.
type Span struct {
	Offset int64
	Data   []byte
}

// Load opens path and loads every chunk in it. A chunk that fails to load is
// recorded on its LoadedChunk; input that is not an event log fails with
// ErrNotEVTX.
func Load(path string, opts ...Option) (*File, error) {
	cfg := newConfig(opts)

	data, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, fileMagic) && !bytes.HasPrefix(data, chunk.Magic) {
		return nil, fmt.Errorf("%w: %s", ErrNotEVTX, path)
	}

	chunkOpts := append([]chunk.Option{chunk.WithLogger(cfg.logger)}, cfg.chunkOpts...)

	f := &File{Path: path, Size: int64(len(data))}
	for i, span := range Split(data, opts...) {
		c, err := chunk.Load(span.Data, chunkOpts...)
		if err != nil {
			cfg.logger.Warn("Unable to load chunk", "path", path, "chunk", i, "error", err)
		}
		f.Chunks = append(f.Chunks, LoadedChunk{
			Index:  i,
			Offset: span.Offset,
			Chunk:  c,
			Err:    err,
		})
	}
	return f, nil
}

// Find lists EVTX files below dir. Unless all is set, .gitignore rules and
// hidden files are respected.
func Find(dir string, all bool) ([]string, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to expand path: %w", err)
	}

	var ch chan gitcha.SearchResult
	if all {
		ch, err = gitcha.FindAllFilesExcept(expanded, Extensions, nil)
	} else {
		ch, err = gitcha.FindFilesExcept(expanded, Extensions, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to search %s: %w", dir, err)
	}

	var paths []string
	for res := range ch {
		paths = append(paths, res.Path)
	}
	sort.Strings(paths)
	return paths, nil
}
