package state

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	dbutil "github.com/llehouerou/subwave/internal/db"
	"github.com/llehouerou/subwave/internal/playback"
	"github.com/llehouerou/subwave/internal/replaygain"
)

// Playback is the persisted playback snapshot.
type Playback struct {
	Tracks       []playback.Track
	CurrentIndex int
	Position     time.Duration
	Volume       float64
	Muted        bool
	GainMode     replaygain.Mode
}

// Get loads the saved snapshot. A fresh database yields an empty queue at
// full volume.
func (m *Manager) Get() (*Playback, error) {
	st := &Playback{CurrentIndex: -1, Volume: 1.0}

	var positionMS int64
	var gainMode string
	row := m.db.QueryRow(`
		SELECT current_index, position_ms, volume, muted, gain_mode
		FROM playback_state WHERE id = 1
	`)
	err := row.Scan(&st.CurrentIndex, &positionMS, &st.Volume, &st.Muted, &gainMode)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	st.Position = time.Duration(positionMS) * time.Millisecond
	st.GainMode = replaygain.ParseMode(gainMode)

	rows, err := m.db.Query(`
		SELECT track_id, title, artist, album, track_number, duration_ms,
		       suffix, bit_rate, size,
		       track_gain, album_gain, track_peak, album_peak, fallback_gain
		FROM queue_tracks
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t playback.Track
		var artist, album, suffix sql.NullString
		var trackNumber, durationMS, bitRate, size sql.NullInt64
		var trackGain, albumGain, trackPeak, albumPeak, fallbackGain sql.NullFloat64

		err := rows.Scan(&t.ID, &t.Title, &artist, &album, &trackNumber, &durationMS,
			&suffix, &bitRate, &size,
			&trackGain, &albumGain, &trackPeak, &albumPeak, &fallbackGain)
		if err != nil {
			return nil, err
		}

		t.Artist = dbutil.NullStringValue(artist)
		t.Album = dbutil.NullStringValue(album)
		t.Suffix = dbutil.NullStringValue(suffix)
		t.TrackNumber = int(dbutil.NullInt64Value(trackNumber))
		t.Duration = time.Duration(dbutil.NullInt64Value(durationMS)) * time.Millisecond
		t.BitRate = int(dbutil.NullInt64Value(bitRate))
		t.Size = dbutil.NullInt64Value(size)
		t.Gain = replaygain.Tags{
			TrackGain:    dbutil.NullFloat64ToPtr(trackGain),
			AlbumGain:    dbutil.NullFloat64ToPtr(albumGain),
			TrackPeak:    dbutil.NullFloat64ToPtr(trackPeak),
			AlbumPeak:    dbutil.NullFloat64ToPtr(albumPeak),
			FallbackGain: dbutil.NullFloat64ToPtr(fallbackGain),
		}
		st.Tracks = append(st.Tracks, t)
	}
	return st, rows.Err()
}

// Save writes the whole snapshot atomically.
func (m *Manager) Save(st Playback) error {
	return dbutil.WithTx(m.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM queue_tracks`); err != nil {
			return err
		}

		_, err := tx.Exec(`
			INSERT INTO playback_state (id, current_index, position_ms, volume, muted, gain_mode)
			VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				current_index = excluded.current_index,
				position_ms = excluded.position_ms,
				volume = excluded.volume,
				muted = excluded.muted,
				gain_mode = excluded.gain_mode
		`, st.CurrentIndex, st.Position.Milliseconds(), st.Volume, st.Muted,
			strings.ToLower(st.GainMode.String()))
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO queue_tracks (position, track_id, title, artist, album,
				track_number, duration_ms, suffix, bit_rate, size,
				track_gain, album_gain, track_peak, album_peak, fallback_gain)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range st.Tracks {
			_, err = stmt.Exec(i, t.ID, t.Title, t.Artist, t.Album,
				t.TrackNumber, t.Duration.Milliseconds(), t.Suffix, t.BitRate, t.Size,
				dbutil.PtrToNullFloat64(t.Gain.TrackGain),
				dbutil.PtrToNullFloat64(t.Gain.AlbumGain),
				dbutil.PtrToNullFloat64(t.Gain.TrackPeak),
				dbutil.PtrToNullFloat64(t.Gain.AlbumPeak),
				dbutil.PtrToNullFloat64(t.Gain.FallbackGain))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SavePosition updates only the index and position. Cheap enough for
// periodic checkpointing during playback.
func (m *Manager) SavePosition(index int, pos time.Duration) error {
	_, err := m.db.Exec(`
		UPDATE playback_state SET current_index = ?, position_ms = ? WHERE id = 1
	`, index, pos.Milliseconds())
	return err
}

// SaveVolume updates the volume level and mute flag.
func (m *Manager) SaveVolume(volume float64, muted bool) error {
	_, err := m.db.Exec(`
		INSERT INTO playback_state (id, volume, muted) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			volume = excluded.volume,
			muted = excluded.muted
	`, volume, muted)
	return err
}
