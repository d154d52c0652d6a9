// Package records streams text records out of compressed, newline-delimited
// corpus files.
package records

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
)

// DefaultMaxLineBytes caps a single line. Longer lines are skipped.
const DefaultMaxLineBytes = 32 << 20

// readBufferSize is the bufio buffer placed over the decompressed stream.
const readBufferSize = 256 << 10

var (
	// ErrOpen is returned when a file cannot be opened or its stream cannot be
	// decoded from the start.
	ErrOpen = errors.New("open records")
	// ErrTruncated is reported by Reader.Err when the stream breaks mid-file.
	ErrTruncated = errors.New("records stream truncated")
	// ErrLineTooLong marks a line skipped for exceeding MaxLineBytes.
	ErrLineTooLong = errors.New("line exceeds size limit")
	// ErrBlankLine marks a skipped empty line.
	ErrBlankLine = errors.New("blank line")
)

// Options configures a Reader.
type Options struct {
	// Extract turns a raw line into a record. Nil keeps lines verbatim.
	Extract Extractor

	// MaxLineBytes is the longest line accepted. Zero uses DefaultMaxLineBytes.
	MaxLineBytes int

	// Logger receives skipped-line diagnostics at debug level.
	Logger *slog.Logger
}

// Stats counts what a Reader has consumed so far.
type Stats struct {
	Lines   int64
	Records int64
	Skipped int64
}

// Reader is a lazy, forward-only sequence of records. It is not safe for
// concurrent use and cannot be rewound.
type Reader struct {
	path    string
	file    *os.File
	stream  io.Closer
	br      *bufio.Reader
	extract Extractor
	maxLine int
	logger  *slog.Logger

	buf     []byte
	lineNo  int64
	text    string
	pending error
	err     error
	done    bool
	stats   Stats
}

// Open opens path and prepares its decompressor, chosen by file extension.
// Missing files and streams that fail to decode from the first byte return an
// error wrapping ErrOpen.
func Open(path string, opts Options) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	compression := DetectCompression(path)

	stream, err := compression.newReader(file)
	if err != nil {
		file.Close()

		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
	}

	br := bufio.NewReaderSize(stream, readBufferSize)

	_, peekErr := br.Peek(1)
	if peekErr != nil && !errors.Is(peekErr, io.EOF) {
		closeQuietly(stream)
		file.Close()

		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, peekErr)
	}

	extract := opts.Extract
	if extract == nil {
		extract = Raw
	}

	maxLine := opts.MaxLineBytes
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reader{
		path:    path,
		file:    file,
		stream:  asCloser(stream),
		br:      br,
		extract: extract,
		maxLine: maxLine,
		logger:  logger,
	}, nil
}

// Next advances to the next record, skipping malformed lines. It returns
// false at the end of the stream or after a stream error; see Err.
func (r *Reader) Next() bool {
	for !r.done {
		if r.pending != nil {
			r.finish(r.pending)

			return false
		}

		line, tooLong, err := r.readLine()
		if err != nil {
			r.pending = err
		}

		if len(line) > 0 || tooLong {
			r.lineNo++
		}

		if tooLong {
			r.skip(ErrLineTooLong)

			continue
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(line)) == 0 {
			if err == nil {
				r.skip(ErrBlankLine)
			}

			continue
		}

		r.stats.Lines++

		text, extractErr := r.extract(line)
		if extractErr != nil {
			r.skip(extractErr)

			continue
		}

		r.text = text
		r.stats.Records++

		return true
	}

	return false
}

// Text returns the current record.
func (r *Reader) Text() string {
	return r.text
}

// Err returns the stream error that ended iteration, or nil on clean EOF.
func (r *Reader) Err() error {
	return r.err
}

// Stats returns the counters accumulated so far.
func (r *Reader) Stats() Stats {
	return r.stats
}

// Path returns the file the reader was opened on.
func (r *Reader) Path() string {
	return r.path
}

// All adapts the reader to a range-over-func sequence. Iteration ends the
// same way Next does; check Err afterwards.
func (r *Reader) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for r.Next() {
			if !yield(r.Text()) {
				return
			}
		}
	}
}

// Close releases the decompressor and the underlying file.
func (r *Reader) Close() error {
	r.done = true

	streamErr := r.stream.Close()
	fileErr := r.file.Close()

	if fileErr != nil {
		return fmt.Errorf("close %s: %w", r.path, fileErr)
	}

	if streamErr != nil {
		return fmt.Errorf("close %s stream: %w", r.path, streamErr)
	}

	return nil
}

// readLine returns the next line including its terminator. Lines longer than
// maxLine are drained and reported with tooLong set.
func (r *Reader) readLine() (line []byte, tooLong bool, err error) {
	r.buf = r.buf[:0]

	for {
		chunk, readErr := r.br.ReadSlice('\n')

		if !tooLong {
			if len(r.buf)+len(chunk) > r.maxLine {
				tooLong = true
				r.buf = r.buf[:0]
			} else {
				r.buf = append(r.buf, chunk...)
			}
		}

		if errors.Is(readErr, bufio.ErrBufferFull) {
			continue
		}

		return r.buf, tooLong, readErr
	}
}

func (r *Reader) skip(reason error) {
	r.stats.Skipped++

	r.logger.Debug("records: skipped line",
		slog.String("path", r.path),
		slog.Int64("line", r.lineNo),
		slog.String("reason", reason.Error()),
	)
}

func (r *Reader) finish(err error) {
	r.done = true
	r.text = ""

	if errors.Is(err, io.EOF) {
		return
	}

	r.err = fmt.Errorf("%w: %s: %w", ErrTruncated, r.path, err)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func asCloser(stream io.Reader) io.Closer {
	if closer, ok := stream.(io.Closer); ok {
		return closer
	}

	return nopCloser{}
}

func closeQuietly(stream io.Reader) {
	_ = asCloser(stream).Close()
}
