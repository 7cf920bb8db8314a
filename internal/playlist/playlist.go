// Package playlist turns M3U8 media playlists into an ordered list of
// segment descriptors.
package playlist

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grafov/m3u8"
)

// ErrMalformedPlaylist marks playlists that cannot yield a segment list:
// undecodable input, missing format markers, master playlists, or playlists
// without any segment URI.
var ErrMalformedPlaylist = errors.New("malformed playlist")

// ByteRange is an EXT-X-BYTERANGE sub-range of a segment resource.
type ByteRange struct {
	Offset int64
	Length int64
}

// SegmentDescriptor identifies one media segment. Index is the 0-based
// position of appearance in the playlist; ordering is derived from it alone.
// Descriptors are immutable once parsed.
type SegmentDescriptor struct {
	Index     int
	URL       string
	ByteRange *ByteRange
}

// Ext returns the file extension of the segment's URL path, or ".ts" when
// none can be determined.
func (d SegmentDescriptor) Ext() string {
	if u, err := url.Parse(d.URL); err == nil {
		if e := filepath.Ext(u.Path); e != "" {
			return e
		}
	}
	return ".ts"
}

// Parse decodes a media playlist and returns its segments in line order,
// with relative URIs resolved against base.
func Parse(r io.Reader, base *url.URL) ([]SegmentDescriptor, error) {
	p, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlaylist, err)
	}

	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("%w: master playlist given, expected a media playlist", ErrMalformedPlaylist)
	}

	media, ok := p.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected playlist type", ErrMalformedPlaylist)
	}

	var (
		descriptors []SegmentDescriptor
		offset      int64
	)
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		if seg.URI == "" {
			return nil, fmt.Errorf("%w: segment %d has no URI", ErrMalformedPlaylist, len(descriptors))
		}

		d := SegmentDescriptor{
			Index: len(descriptors),
			URL:   resolveURL(base, seg.URI),
		}
		if seg.Limit > 0 {
			// EXT-X-BYTERANGE without an explicit offset continues from the
			// end of the previous range.
			start := offset
			if seg.Offset > 0 {
				start = seg.Offset
			}
			d.ByteRange = &ByteRange{Offset: start, Length: seg.Limit}
			offset = start + seg.Limit
		}
		descriptors = append(descriptors, d)
	}

	if len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: no segment URIs found", ErrMalformedPlaylist)
	}
	return descriptors, nil
}

// resolveURL resolves a relative reference against a base URL.
func resolveURL(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref // fallback
	}
	return base.ResolveReference(refURL).String()
}

var idPattern = regexp.MustCompile(`_([^_]+_[0-9]+_[0-9]+)/`)

// DeriveID extracts an identifier token from the first segment line of the
// playlist for default output naming. Returns "" when no token matches.
func DeriveID(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		match := idPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		parts := strings.SplitN(match[1], "_", 3)
		if len(parts) < 2 {
			continue
		}
		return parts[0] + "_" + parts[1]
	}
	return ""
}
