package subsonic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestTokenMatchesSubsonicExample(t *testing.T) {
	// Example from the Subsonic API documentation:
	// password "sesame", salt "c19b2d" -> md5("sesamec19b2d")
	got := token("sesame", "c19b2d")
	want := "26719a1196d2a940705a59634eb18eab"
	if got != want {
		t.Errorf("token() = %q, want %q", got, want)
	}
}

func TestAuthParamsPresent(t *testing.T) {
	c := New("http://example", "alice", "secret", "subwave")
	params := c.authParams()

	for _, key := range []string{"u", "t", "s", "v", "c", "f"} {
		if params[key] == "" {
			t.Errorf("authParams() missing %q", key)
		}
	}
	if params["u"] != "alice" {
		t.Errorf("u = %q, want alice", params["u"])
	}
	if params["t"] != token("secret", params["s"]) {
		t.Error("t is not md5(password+salt)")
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "alice", "secret", "subwave")
}

func TestGetSong(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/getSong" {
			t.Errorf("path = %q, want /rest/getSong", r.URL.Path)
		}
		if r.URL.Query().Get("id") != "t-1" {
			t.Errorf("id = %q, want t-1", r.URL.Query().Get("id"))
		}
		io.WriteString(w, `{"subsonic-response":{"status":"ok","song":{
			"id":"t-1","title":"Aurora","artist":"Nils","album":"North",
			"track":3,"duration":245,"suffix":"flac","bitRate":920,"size":27000000,
			"replayGain":{"trackGain":-6.0,"albumGain":-3.0,"trackPeak":0.98}
		}}}`) //nolint:errcheck
	})

	song, err := c.GetSong(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("GetSong() error: %v", err)
	}
	if song.Title != "Aurora" || song.Suffix != "flac" {
		t.Errorf("song = %+v", song)
	}
	if song.Duration().Seconds() != 245 {
		t.Errorf("Duration() = %v, want 245s", song.Duration())
	}
	if song.ReplayGain == nil || *song.ReplayGain.TrackGain != -6.0 {
		t.Errorf("ReplayGain = %+v, want trackGain -6", song.ReplayGain)
	}
}

func TestGetAlbumSongs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"subsonic-response":{"status":"ok","album":{
			"song":[{"id":"a"},{"id":"b"},{"id":"c"}]
		}}}`) //nolint:errcheck
	})

	songs, err := c.GetAlbumSongs(context.Background(), "al-1")
	if err != nil {
		t.Fatalf("GetAlbumSongs() error: %v", err)
	}
	if len(songs) != 3 || songs[1].ID != "b" {
		t.Errorf("songs = %+v, want 3 songs in order", songs)
	}
}

func TestAuthFailureMapsToErrAuth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"subsonic-response":{"status":"failed",
			"error":{"code":40,"message":"Wrong username or password"}}}`) //nolint:errcheck
	})

	err := c.Ping(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Errorf("Ping() = %v, want ErrAuth", err)
	}
}

func TestNonAuthAPIErrorIsTyped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"subsonic-response":{"status":"failed",
			"error":{"code":70,"message":"Song not found"}}}`) //nolint:errcheck
	})

	_, err := c.GetSong(context.Background(), "nope")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not *Error", err)
	}
	if apiErr.Code != 70 {
		t.Errorf("Code = %d, want 70", apiErr.Code)
	}
	if errors.Is(err, ErrAuth) {
		t.Error("code 70 must not map to ErrAuth")
	}
}

func TestStreamURL(t *testing.T) {
	c := New("http://music.example", "alice", "secret", "subwave")

	raw := c.StreamURL("t-9", "mp3", 192)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("StreamURL() is not a valid URL: %v", err)
	}

	if !strings.HasSuffix(u.Path, "/rest/stream") {
		t.Errorf("path = %q, want /rest/stream", u.Path)
	}
	q := u.Query()
	if q.Get("id") != "t-9" || q.Get("format") != "mp3" || q.Get("maxBitRate") != "192" {
		t.Errorf("query = %v", q)
	}
	if q.Get("t") == "" || q.Get("s") == "" {
		t.Error("stream URL missing auth token params")
	}

	// No transcode hint: parameters omitted entirely.
	q = mustQuery(t, c.StreamURL("t-9", "", 0))
	if q.Has("format") || q.Has("maxBitRate") {
		t.Errorf("query = %v, want no transcode params", q)
	}
}

func mustQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u.Query()
}

func TestScrobbleParams(t *testing.T) {
	var gotSubmission, gotTime string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSubmission = r.URL.Query().Get("submission")
		gotTime = r.URL.Query().Get("time")
		io.WriteString(w, `{"subsonic-response":{"status":"ok"}}`) //nolint:errcheck
	})

	now := time.Now()
	if err := c.Scrobble(context.Background(), "t-1", true, now); err != nil {
		t.Fatalf("Scrobble() error: %v", err)
	}
	if gotSubmission != "true" {
		t.Errorf("submission = %q, want true", gotSubmission)
	}
	if gotTime == "" {
		t.Error("submission scrobble must carry a time parameter")
	}

	if err := c.Scrobble(context.Background(), "t-1", false, now); err != nil {
		t.Fatalf("Scrobble() error: %v", err)
	}
	if gotSubmission != "false" {
		t.Errorf("submission = %q, want false", gotSubmission)
	}
	if gotTime != "" {
		t.Error("now-playing scrobble must not carry a time parameter")
	}
}
