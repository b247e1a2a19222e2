package session

import (
	"bytes"
	"io"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/mpcore/internal/domain/media"
)

// SeekSize is the whence value asking a DataProvider for the total length of its data.
const SeekSize = 0x10000

// DataProvider is a caller-supplied pull source.
//
// ReadData fills buf and returns the number of bytes written; zero or a negative value
// means end of data. Seek repositions with io.Seek* semantics, or reports the total size
// when whence is SeekSize, and returns a negative value on failure.
type DataProvider interface {
	ReadData(buf []byte) int
	Seek(offset int64, whence int) int64
}

// CustomSource adapts a DataProvider to io.ReadSeeker.
type CustomSource struct {
	mu       sync.Mutex
	provider DataProvider
}

// NewCustomSource wraps p.
func NewCustomSource(p DataProvider) (*CustomSource, error) {
	if p == nil {
		return nil, errors.Wrap(media.ErrInvalidArguments, "data provider is nil")
	}
	return &CustomSource{provider: p}, nil
}

// Read implements io.Reader.
func (c *CustomSource) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.provider.ReadData(buf)
	if n <= 0 {
		return 0, io.EOF
	}
	if n > len(buf) {
		return 0, errors.Wrapf(media.ErrInvalidMediaSource, "provider returned %d bytes for a %d byte buffer", n, len(buf))
	}
	return n, nil
}

// Seek implements io.Seeker.
func (c *CustomSource) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart, io.SeekCurrent, io.SeekEnd:
	default:
		return 0, errors.Wrapf(media.ErrInvalidArguments, "unsupported whence %d", whence)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	pos := c.provider.Seek(offset, whence)
	if pos < 0 {
		return 0, errors.Wrapf(media.ErrInvalidMediaSource, "seek failed: offset=%d whence=%d", offset, whence)
	}
	return pos, nil
}

// Size returns the total length of the data. ok is false when the provider cannot tell.
func (c *CustomSource) Size() (size int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size = c.provider.Seek(0, SeekSize)
	if size < 0 {
		return 0, false
	}
	return size, true
}

// BytesProvider serves an in-memory buffer as a DataProvider.
type BytesProvider struct {
	r *bytes.Reader
}

// NewBytesProvider returns a provider reading data.
func NewBytesProvider(data []byte) *BytesProvider {
	return &BytesProvider{r: bytes.NewReader(data)}
}

// ReadData implements DataProvider.
func (b *BytesProvider) ReadData(buf []byte) int {
	n, _ := b.r.Read(buf)
	return n
}

// Seek implements DataProvider.
func (b *BytesProvider) Seek(offset int64, whence int) int64 {
	if whence == SeekSize {
		return b.r.Size()
	}
	pos, err := b.r.Seek(offset, whence)
	if err != nil {
		return -1
	}
	return pos
}
