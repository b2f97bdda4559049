package subsonic

import "time"

// ReplayGain is the loudness-normalization metadata a server reports per
// song, per the OpenSubsonic replayGain response.
type ReplayGain struct {
	TrackGain    *float64 `json:"trackGain"`
	AlbumGain    *float64 `json:"albumGain"`
	TrackPeak    *float64 `json:"trackPeak"`
	AlbumPeak    *float64 `json:"albumPeak"`
	BaseGain     *float64 `json:"baseGain"`
	FallbackGain *float64 `json:"fallbackGain"`
}

// Song is a track as reported by the server. Immutable once fetched.
type Song struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Album       string      `json:"album"`
	Artist      string      `json:"artist"`
	Track       int         `json:"track"`
	Year        int         `json:"year"`
	DurationSec int         `json:"duration"`
	Suffix      string      `json:"suffix"`
	ContentType string      `json:"contentType"`
	BitRate     int         `json:"bitRate"`
	Size        int64       `json:"size"`
	ReplayGain  *ReplayGain `json:"replayGain"`
}

// Duration returns the track duration.
func (s *Song) Duration() time.Duration {
	return time.Duration(s.DurationSec) * time.Second
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// envelope is the subsonic-response wrapper every endpoint returns.
type envelope struct {
	Response struct {
		Status string    `json:"status"`
		Error  *apiError `json:"error"`

		Song  *Song `json:"song"`
		Album *struct {
			Song []Song `json:"song"`
		} `json:"album"`
	} `json:"subsonic-response"`
}
