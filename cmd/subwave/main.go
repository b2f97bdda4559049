// Command subwave is a headless streaming player for Subsonic servers. It
// plays song or album IDs given on the command line, or resumes the queue
// saved by the previous run, and exposes the usual desktop integrations:
// MPRIS controls, notifications and scrobbling.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/llehouerou/subwave/internal/config"
	"github.com/llehouerou/subwave/internal/fetch"
	"github.com/llehouerou/subwave/internal/mpris"
	"github.com/llehouerou/subwave/internal/notify"
	"github.com/llehouerou/subwave/internal/playback"
	"github.com/llehouerou/subwave/internal/player"
	"github.com/llehouerou/subwave/internal/replaygain"
	"github.com/llehouerou/subwave/internal/scrobble"
	"github.com/llehouerou/subwave/internal/state"
	"github.com/llehouerou/subwave/internal/subsonic"
)

const clientName = "subwave"

// positionSaveInterval is how often the playback position is checkpointed
// so a crash loses at most this much progress.
const positionSaveInterval = 10 * time.Second

func main() {
	album := flag.Bool("album", false, "treat arguments as album IDs instead of song IDs")
	lastfmAuth := flag.Bool("lastfm-auth", false, "run the Last.fm authorization flow and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if *lastfmAuth {
		if err := runLastfmAuth(cfg); err != nil {
			log.Error().Err(err).Msg("last.fm authorization failed")
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		fmt.Fprintln(os.Stderr, "create ~/.config/subwave/config.toml with a [server] section")
		os.Exit(1)
	}

	if err := run(cfg, log, *album, flag.Args()); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

// newLogger writes pretty console output when attached to a terminal and
// appends to an XDG state-dir log file otherwise (MPRIS clients often start
// detached sessions).
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	} else if path, err := xdg.StateFile("subwave/subwave.log"); err == nil {
		if f, ferr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); ferr == nil {
			out = f
		}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func run(cfg *config.Config, log zerolog.Logger, album bool, ids []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := subsonic.New(cfg.Server.URL, cfg.Server.Username, cfg.Server.Password, clientName)

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	err := client.Ping(pingCtx)
	pingCancel()
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	stateMgr, err := state.Open()
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer stateMgr.Close()

	saved, err := stateMgr.Get()
	if err != nil {
		return fmt.Errorf("loading saved state: %w", err)
	}

	pb := cfg.GetPlaybackConfig()
	log.Debug().
		Str("prebuffer", humanize.IBytes(uint64(pb.PrebufferKB)<<10)).
		Str("buffer", humanize.IBytes(uint64(pb.BufferKB)<<10)).
		Int("retry_attempts", pb.RetryAttempts).
		Dur("retry_delay", pb.RetryDelay()).
		Msg("playback configuration")
	ctrl := playback.New(player.New(), fetch.New(fetch.WithUserAgent(clientName)), client, playback.Options{
		Prebuffer:           pb.PrebufferKB << 10,
		BufferSize:          pb.BufferKB << 10,
		RetryAttempts:       pb.RetryAttempts,
		RetryDelay:          pb.RetryDelay(),
		GainMode:            gainMode(pb.GainMode, saved.GainMode),
		TranscodeFormat:     pb.TranscodeFormat,
		TranscodeMaxBitRate: pb.TranscodeMaxKbps,
		Logger:              &log,
	})
	defer ctrl.Close()

	_ = ctrl.SetVolume(saved.Volume)
	_ = ctrl.SetMuted(saved.Muted)

	mprisAdapter, err := mpris.New(ctrl, log)
	if err != nil {
		log.Warn().Err(err).Msg("mpris unavailable")
	} else {
		defer mprisAdapter.Close()
	}

	scrobbler := scrobble.New(ctrl, log, submitters(cfg, client, log)...)
	defer scrobbler.Close()

	notifier, err := notify.New()
	if err != nil {
		log.Debug().Err(err).Msg("notifications unavailable")
		notifier = nil
	} else {
		defer func() { _ = notifier.Clear() }()
	}

	// Subscribe before the first transport command: the controller emits
	// the initial TrackChange and state transitions synchronously inside
	// Play, and only subscriptions that already exist receive them.
	sub := ctrl.Subscribe()

	// Decide what to play: explicit IDs win over the saved queue.
	var resumeIndex int
	var resumePos time.Duration
	switch {
	case len(ids) > 0:
		tracks, err := resolveTracks(ctx, client, album, ids)
		if err != nil {
			return err
		}
		if err := ctrl.SetQueue(tracks); err != nil {
			return err
		}
		if err := ctrl.Play(); err != nil {
			return err
		}
	case len(saved.Tracks) > 0:
		if err := ctrl.SetQueue(saved.Tracks); err != nil {
			return err
		}
		resumeIndex = saved.CurrentIndex
		if resumeIndex < 0 || resumeIndex >= len(saved.Tracks) {
			resumeIndex = 0
		} else {
			resumePos = saved.Position
		}
		if err := ctrl.PlayTrackAt(resumeIndex); err != nil {
			return err
		}
	default:
		return fmt.Errorf("nothing to play: pass song IDs (or -album with album IDs)")
	}

	err = eventLoop(ctx, ctrl, sub, stateMgr, notifier, resumePos, log)

	snapshot := state.Playback{
		Tracks:       ctrl.Tracks(),
		CurrentIndex: ctrl.Index(),
		Position:     ctrl.Position(),
		Volume:       ctrl.Volume(),
		Muted:        ctrl.Muted(),
		GainMode:     ctrl.GainMode(),
	}
	if saveErr := stateMgr.Save(snapshot); saveErr != nil {
		log.Warn().Err(saveErr).Msg("could not save playback state")
	}
	return err
}

// gainMode prefers the mode configured in the file; otherwise the mode the
// user last selected at runtime.
func gainMode(configured string, saved replaygain.Mode) replaygain.Mode {
	if configured != "" {
		return replaygain.ParseMode(configured)
	}
	return saved
}

func submitters(cfg *config.Config, client *subsonic.Client, log zerolog.Logger) []scrobble.Submitter {
	subs := []scrobble.Submitter{scrobble.NewServer(client)}
	if !cfg.HasLastfmConfig() {
		return subs
	}
	if cfg.Lastfm.SessionKey == "" {
		log.Info().Msg("last.fm configured but not authorized; run with -lastfm-auth")
		return subs
	}
	subs = append(subs, scrobble.NewLastFM(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret, cfg.Lastfm.SessionKey))
	return subs
}

func resolveTracks(ctx context.Context, client *subsonic.Client, album bool, ids []string) ([]playback.Track, error) {
	var tracks []playback.Track
	for _, id := range ids {
		if album {
			songs, err := client.GetAlbumSongs(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("album %s: %w", id, err)
			}
			for i := range songs {
				tracks = append(tracks, songToTrack(&songs[i]))
			}
			continue
		}
		song, err := client.GetSong(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("song %s: %w", id, err)
		}
		tracks = append(tracks, songToTrack(song))
	}
	return tracks, nil
}

func songToTrack(s *subsonic.Song) playback.Track {
	t := playback.Track{
		ID:          s.ID,
		Title:       s.Title,
		Artist:      s.Artist,
		Album:       s.Album,
		TrackNumber: s.Track,
		Duration:    s.Duration(),
		Suffix:      s.Suffix,
		BitRate:     s.BitRate,
		Size:        s.Size,
	}
	if rg := s.ReplayGain; rg != nil {
		t.Gain = replaygain.Tags{
			TrackGain:    rg.TrackGain,
			AlbumGain:    rg.AlbumGain,
			TrackPeak:    rg.TrackPeak,
			AlbumPeak:    rg.AlbumPeak,
			FallbackGain: rg.FallbackGain,
		}
	}
	return t
}

// eventLoop runs until the signal context fires, the controller closes, or
// playback reaches the end of the queue. sub must have been created before
// playback was started, or the first track's events are lost. resumePos,
// when nonzero, is applied once playback actually starts; seeking is not
// possible while the first pipeline is still loading.
func eventLoop(ctx context.Context, ctrl *playback.Controller, sub *playback.Subscription, stateMgr *state.Manager, notifier notify.Notifier, resumePos time.Duration, log zerolog.Logger) error {
	saveTicker := time.NewTicker(positionSaveInterval)
	defer saveTicker.Stop()

	started := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-sub.Done:
			return nil

		case sc := <-sub.StateChanged:
			log.Debug().Stringer("from", sc.Previous).Stringer("to", sc.Current).Msg("state")
			if sc.Current == playback.StatePlaying && !started && resumePos > 0 {
				if err := ctrl.SeekTo(resumePos); err != nil {
					log.Warn().Err(err).Msg("could not seek to saved position")
				}
				resumePos = 0
			}
			if sc.Current.IsActive() {
				started = true
			}
			if started && sc.Current == playback.StateIdle {
				log.Info().Msg("queue finished")
				return nil
			}

		case tc := <-sub.TrackChanged:
			if tc.Current == nil {
				continue
			}
			log.Info().
				Str("title", tc.Current.Title).
				Str("artist", tc.Current.Artist).
				Str("album", tc.Current.Album).
				Msg("now playing")
			if notifier != nil {
				_ = notifier.TrackChange(notify.TrackInfo{
					Title:  tc.Current.Title,
					Artist: tc.Current.Artist,
					Album:  tc.Current.Album,
				})
			}

		case vc := <-sub.VolumeChanged:
			if err := stateMgr.SaveVolume(vc.Level, vc.Muted); err != nil {
				log.Warn().Err(err).Msg("could not save volume")
			}

		case ev := <-sub.Error:
			logPlaybackError(log, ev)

		case <-saveTicker.C:
			if ctrl.State().IsActive() {
				if err := stateMgr.SavePosition(ctrl.Index(), ctrl.Position()); err != nil {
					log.Warn().Err(err).Msg("could not save position")
				}
			}
		}
	}
}

func logPlaybackError(log zerolog.Logger, ev playback.ErrorEvent) {
	e := log.Error().Err(ev.Err)
	if ev.Track != nil {
		e = e.Str("track", ev.Track.Title)
	}
	e.Msg("playback error")
}

// runLastfmAuth walks the desktop authorization flow: fetch a token, have
// the user approve it in a browser, then exchange it for a session key to
// put in the config file.
func runLastfmAuth(cfg *config.Config) error {
	if !cfg.HasLastfmConfig() {
		return fmt.Errorf("set lastfm.api_key and lastfm.api_secret in the config first")
	}

	lfm := scrobble.NewLastFM(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret, "")
	token, err := lfm.GetToken()
	if err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}

	fmt.Printf("Open this URL in a browser and authorize the application:\n\n  %s\n\n", lfm.AuthURL(token))
	fmt.Print("Press Enter once done... ")
	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')

	key, err := lfm.Session(token)
	if err != nil {
		return fmt.Errorf("exchanging token for session: %w", err)
	}

	fmt.Printf("\nAuthorized. Add this to ~/.config/subwave/config.toml:\n\n[lastfm]\nsession_key = %q\n", key)
	return nil
}
