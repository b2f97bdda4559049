package player

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/llehouerou/go-mp3"
)

// ErrUnsupportedFormat is returned by Start when no decoder handles the
// format hint. Callers are expected to request a server-side transcode for
// such tracks instead.
var ErrUnsupportedFormat = errors.New("player: unsupported stream format")

// OutputError wraps audio device failures. Terminal: it blocks all playback.
type OutputError struct {
	Err error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("audio output: %v", e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

// Supports reports whether the given format suffix can be decoded from a
// live stream without seeking.
func Supports(suffix string) bool {
	switch suffix {
	case "mp3", "flac", "ogg", "oga":
		return true
	}
	return false
}

// decode picks a decoder by format hint. The returned streamer reads src
// sequentially; decoding the header consumes the stream's first bytes, so a
// failure here means the stream is corrupt or mislabeled.
func decode(hint string, src io.ReadCloser) (beep.Streamer, beep.Format, error) {
	switch hint {
	case "mp3":
		return decodeMP3(src)
	case "flac":
		s, format, err := flac.Decode(src)
		return s, format, err
	case "ogg", "oga":
		s, format, err := vorbis.Decode(src)
		return s, format, err
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, hint)
	}
}

// mp3Decoder adapts llehouerou/go-mp3 to beep.Streamer for a non-seekable
// stream.
type mp3Decoder struct {
	decoder *mp3.Decoder
	closer  io.Closer
	err     error
	readBuf []byte
}

func decodeMP3(rc io.ReadCloser) (beep.Streamer, beep.Format, error) {
	decoder, err := mp3.NewDecoder(rc)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("mp3: %w", err)
	}

	sampleRate := decoder.SampleRate()
	if sampleRate == 0 {
		return nil, beep.Format{}, errors.New("mp3: invalid sample rate")
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 2, // go-mp3 always outputs stereo
		Precision:   2, // 16-bit
	}

	d := &mp3Decoder{
		decoder: decoder,
		closer:  rc,
		readBuf: make([]byte, 8192),
	}
	return d, format, nil
}

// Stream reads audio samples into the provided buffer.
func (d *mp3Decoder) Stream(samples [][2]float64) (n int, ok bool) {
	if d.err != nil {
		return 0, false
	}

	// 4 bytes per sample (stereo 16-bit)
	bytesNeeded := len(samples) * 4
	if len(d.readBuf) < bytesNeeded {
		d.readBuf = make([]byte, bytesNeeded)
	}

	bytesRead, err := io.ReadFull(d.decoder, d.readBuf[:bytesNeeded])
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		d.err = err
		return 0, false
	}

	samplesRead := bytesRead / 4
	if samplesRead == 0 {
		return 0, false
	}

	for i := 0; i < samplesRead && i < len(samples); i++ {
		offset := i * 4
		if offset+4 <= bytesRead {
			left := int16(binary.LittleEndian.Uint16(d.readBuf[offset:]))    //nolint:gosec // audio samples
			right := int16(binary.LittleEndian.Uint16(d.readBuf[offset+2:])) //nolint:gosec // audio samples
			samples[i][0] = float64(left) / 32768.0
			samples[i][1] = float64(right) / 32768.0
		}
		n++
	}

	return n, true
}

// Err returns any error that occurred during streaming.
func (d *mp3Decoder) Err() error {
	return d.err
}

// Close closes the underlying stream.
func (d *mp3Decoder) Close() error {
	return d.closer.Close()
}
