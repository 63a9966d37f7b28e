package utils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/kit/semicircles"
	"github.com/muktihari/fit/profile/basetype"
	"github.com/muktihari/fit/profile/filedef"
	"github.com/tkrajina/gpxgo/gpx"
)

// MaxUploadSize bounds accepted activity files.
const MaxUploadSize = 10 << 20

var (
	ErrUnsupportedFormat = errors.New("unsupported file format, expected .gpx or .fit")
	ErrInvalidUpload     = errors.New("invalid activity file")
	ErrNoTrackPoints     = errors.New("activity has no GPS points")
)

// TrackPoint is one GPS fix of a recorded activity.
type TrackPoint struct {
	Lat  float64
	Long float64
	Ele  *float64
	Time time.Time
}

// Track is a recorded activity reduced to what the fitting service needs.
type Track struct {
	Name   string
	Start  time.Time
	Points []TrackPoint
}

// ParseGPX parses a GPX document and checks that it has track points.
func ParseGPX(data []byte) (*gpx.GPX, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse GPX: %w", ErrInvalidUpload, err)
	}
	if g.GetTrackPointsNo() == 0 {
		return nil, ErrNoTrackPoints
	}
	return g, nil
}

// DecodeFIT reads the GPS records of a FIT activity file. Records without a
// position are skipped.
func DecodeFIT(r io.Reader) (Track, error) {
	dec := decoder.New(r)
	fit, err := dec.Decode()
	if err != nil {
		return Track{}, fmt.Errorf("%w: failed to decode FIT: %w", ErrInvalidUpload, err)
	}
	activity := filedef.NewActivity(fit.Messages...)

	track := Track{Name: "FIT activity"}
	for _, rec := range activity.Records {
		if rec.PositionLat == basetype.Sint32Invalid || rec.PositionLong == basetype.Sint32Invalid {
			continue
		}
		pt := TrackPoint{
			Lat:  semicircles.ToDegrees(rec.PositionLat),
			Long: semicircles.ToDegrees(rec.PositionLong),
			Time: rec.Timestamp,
		}
		// Altitudes are stored as (m + 500) * 5.
		switch {
		case rec.EnhancedAltitude != basetype.Uint32Invalid:
			ele := float64(rec.EnhancedAltitude)/5 - 500
			pt.Ele = &ele
		case rec.Altitude != basetype.Uint16Invalid:
			ele := float64(rec.Altitude)/5 - 500
			pt.Ele = &ele
		}
		track.Points = append(track.Points, pt)
	}
	if len(track.Points) == 0 {
		return Track{}, ErrNoTrackPoints
	}
	track.Start = track.Points[0].Time
	if !track.Start.IsZero() {
		track.Name = "FIT activity " + track.Start.UTC().Format("2006-01-02 15:04")
	}
	return track, nil
}

// GenerateGPX encodes a track as a GPX 1.1 document.
func GenerateGPX(track Track) ([]byte, error) {
	if len(track.Points) == 0 {
		return nil, ErrNoTrackPoints
	}

	seg := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(track.Points))}
	for _, pt := range track.Points {
		p := gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  pt.Lat,
				Longitude: pt.Long,
			},
			Timestamp: pt.Time,
		}
		if pt.Ele != nil {
			p.Elevation = *gpx.NewNullableFloat64(*pt.Ele)
		}
		seg.Points = append(seg.Points, p)
	}

	doc := gpx.GPX{
		Creator: "TrackSplits",
		Name:    track.Name,
		Tracks: []gpx.GPXTrack{{
			Name:     track.Name,
			Segments: []gpx.GPXTrackSegment{seg},
		}},
	}
	out, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode GPX: %w", err)
	}
	return out, nil
}

// UploadToGPX turns an uploaded activity file into a GPX document for the
// fitting service. GPX files are validated and passed through; FIT files
// are converted. The returned name is the file name to upload under.
func UploadToGPX(filename string, data []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".gpx":
		if _, err := ParseGPX(data); err != nil {
			return nil, "", err
		}
		return data, filepath.Base(filename), nil
	case ".fit":
		track, err := DecodeFIT(bytes.NewReader(data))
		if err != nil {
			return nil, "", err
		}
		out, err := GenerateGPX(track)
		if err != nil {
			return nil, "", err
		}
		base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		return out, base + ".gpx", nil
	default:
		return nil, "", ErrUnsupportedFormat
	}
}
