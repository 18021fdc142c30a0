// source.go - Resolve image sources: data URIs, HTTP(S) URLs and file paths.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxBytes caps a single fetched source.
const DefaultMaxBytes = 32 << 20

var (
	ErrTooLarge       = errors.New("source exceeds size limit")
	ErrFilesDisabled  = errors.New("file sources are disabled")
	ErrPrivateAddress = errors.New("refusing to fetch from a private address")
)

// LocalFunc resolves sources the host application stores itself, such as
// uploaded assets. It reports false for sources it does not own.
type LocalFunc func(src string) ([]byte, bool)

// SourceLoader fetches and decodes images. The zero value is usable.
type SourceLoader struct {
	Client   *http.Client
	BaseDir  string // relative file paths are resolved against it
	NoFiles  bool   // reject file paths, for sources named by remote clients
	Local    LocalFunc
	MaxBytes int64
}

// NewSourceLoader returns a loader with a 30 second HTTP timeout.
func NewSourceLoader(baseDir string) *SourceLoader {
	return &SourceLoader{
		Client:  &http.Client{Timeout: 30 * time.Second},
		BaseDir: baseDir,
	}
}

// Load fetches src and decodes it.
func (l *SourceLoader) Load(ctx context.Context, src string) (image.Image, error) {
	data, err := l.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Fetch returns the raw bytes behind src.
func (l *SourceLoader) Fetch(ctx context.Context, src string) ([]byte, error) {
	if l.Local != nil {
		if data, ok := l.Local(src); ok {
			return data, nil
		}
	}

	switch {
	case strings.HasPrefix(src, "data:"):
		_, data, err := ParseDataURI(src)
		return data, err
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return l.fetchHTTP(ctx, src)
	case src == "":
		return nil, errors.New("empty source")
	case l.NoFiles:
		return nil, fmt.Errorf("open %s: %w", src, ErrFilesDisabled)
	}

	path := src
	if !filepath.IsAbs(path) && l.BaseDir != "" {
		path = filepath.Join(l.BaseDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()
	return l.readLimited(f)
}

// PublicClient returns an HTTP client that only connects to public
// addresses. The check runs on the resolved IP, after DNS.
func PublicClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip == nil || !isPublic(ip) {
				return fmt.Errorf("%s: %w", host, ErrPrivateAddress)
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: timeout, Transport: transport}
}

func isPublic(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}

func (l *SourceLoader) fetchHTTP(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", src, resp.StatusCode)
	}
	return l.readLimited(resp.Body)
}

func (l *SourceLoader) readLimited(r io.Reader) ([]byte, error) {
	limit := l.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// DataURI encodes data as a base64 data URI.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// FromBytes wraps user-provided bytes as a loadable source, sniffing the
// MIME type from the content.
func FromBytes(data []byte) string {
	return DataURI(http.DetectContentType(data), data)
}

// ParseDataURI splits a data URI into its MIME type and decoded payload.
func ParseDataURI(uri string) (mimeType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI: missing comma")
	}

	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = "text/plain"
	}
	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("decode data URI: %w", err)
		}
		return mimeType, data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI: %w", err)
	}
	return mimeType, []byte(s), nil
}
