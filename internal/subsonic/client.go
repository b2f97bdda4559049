// Package subsonic is a minimal OpenSubsonic REST client covering what the
// playback engine needs: track metadata, stream URLs and scrobbling. It does
// not implement browsing or search.
package subsonic

import (
	"context"
	"crypto/md5" //nolint:gosec // subsonic token auth is defined over md5
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	apiVersion     = "1.16.1"
	requestTimeout = 30 * time.Second
)

// ErrAuth is returned when the server rejects the credentials. Terminal:
// the user has to re-login.
var ErrAuth = errors.New("subsonic: authentication rejected")

// Error is a subsonic-response level failure.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("subsonic error %d: %s", e.Code, e.Message)
}

// Subsonic error codes that mean the credentials are no good.
func (e *Error) authFailure() bool {
	switch e.Code {
	case 40, 41, 42, 43, 44:
		return true
	}
	return false
}

// Client talks to one OpenSubsonic server.
type Client struct {
	rc         *resty.Client
	host       string
	username   string
	password   string
	clientName string
}

// New creates a client for the given server. The host must include the
// scheme, e.g. "https://music.example.org".
func New(host, username, password, clientName string) *Client {
	return &Client{
		rc: resty.New().
			SetBaseURL(host).
			SetTimeout(requestTimeout).
			SetHeader("User-Agent", clientName),
		host:       host,
		username:   username,
		password:   password,
		clientName: clientName,
	}
}

// token computes the salted md5 auth token per the subsonic convention.
func token(password, salt string) string {
	sum := md5.Sum([]byte(password + salt)) //nolint:gosec // protocol-mandated
	return hex.EncodeToString(sum[:])
}

func newSalt() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// authParams returns the common query parameters with a fresh salt.
func (c *Client) authParams() map[string]string {
	salt := newSalt()
	return map[string]string{
		"u": c.username,
		"t": token(c.password, salt),
		"s": salt,
		"v": apiVersion,
		"c": c.clientName,
		"f": "json",
	}
}

func (c *Client) get(ctx context.Context, path string, params map[string]string) (*envelope, error) {
	req := c.rc.R().
		SetContext(ctx).
		SetQueryParams(c.authParams())
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode(), resp.Status())
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", path, err)
	}

	if env.Response.Status != "ok" {
		apiErr := env.Response.Error
		if apiErr == nil {
			return nil, fmt.Errorf("%s: server reported failure without error detail", path)
		}
		e := &Error{Code: apiErr.Code, Message: apiErr.Message}
		if e.authFailure() {
			return nil, fmt.Errorf("%w: %s", ErrAuth, apiErr.Message)
		}
		return nil, e
	}

	return &env, nil
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/rest/ping", nil)
	return err
}

// GetSong fetches metadata for a single track.
func (c *Client) GetSong(ctx context.Context, id string) (*Song, error) {
	env, err := c.get(ctx, "/rest/getSong", map[string]string{"id": id})
	if err != nil {
		return nil, err
	}
	if env.Response.Song == nil {
		return nil, fmt.Errorf("getSong: no song in response for id %q", id)
	}
	return env.Response.Song, nil
}

// GetAlbumSongs fetches the track list of an album in order.
func (c *Client) GetAlbumSongs(ctx context.Context, id string) ([]Song, error) {
	env, err := c.get(ctx, "/rest/getAlbum", map[string]string{"id": id})
	if err != nil {
		return nil, err
	}
	if env.Response.Album == nil {
		return nil, fmt.Errorf("getAlbum: no album in response for id %q", id)
	}
	return env.Response.Album.Song, nil
}

// StreamURL builds the URL the fetcher streams a track from. format and
// maxBitRate are optional transcoding hints ("raw" disables transcoding);
// zero values omit the parameter. The URL embeds fresh auth parameters.
func (c *Client) StreamURL(id, format string, maxBitRate int) string {
	q := url.Values{}
	for k, v := range c.authParams() {
		q.Set(k, v)
	}
	q.Set("id", id)
	if format != "" {
		q.Set("format", format)
	}
	if maxBitRate > 0 {
		q.Set("maxBitRate", strconv.Itoa(maxBitRate))
	}
	return c.host + "/rest/stream?" + q.Encode()
}

// Scrobble reports playback to the server: submission=false updates
// now-playing, submission=true registers a play at the given time.
func (c *Client) Scrobble(ctx context.Context, id string, submission bool, at time.Time) error {
	params := map[string]string{
		"id":         id,
		"submission": strconv.FormatBool(submission),
	}
	if submission {
		params["time"] = strconv.FormatInt(at.UnixMilli(), 10)
	}
	_, err := c.get(ctx, "/rest/scrobble", params)
	if err != nil {
		return err
	}
	log.Debug().Str("id", id).Bool("submission", submission).Msg("scrobble sent")
	return nil
}
