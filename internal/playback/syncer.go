package playback

import (
	"context"

	"go.uber.org/zap"
)

// ProgressStore is the persistence boundary the synchronizer drains the
// ledger into. Implementations write one row per (user, video).
type ProgressStore interface {
	// Exists reports whether a progress row already exists.
	Exists(ctx context.Context, userID, videoID string) (bool, error)
	Insert(ctx context.Context, userID string, rec Record) error
	Update(ctx context.Context, userID string, rec Record) error
}

const defaultMinWatchSeconds = 3

// Syncer reconciles ledger state with the external store. The ledger
// stays authoritative for the UI regardless of write outcomes: periodic
// tick failures are logged and retried on the next tick, while explicit
// user-initiated saves surface their error to the caller.
type Syncer struct {
	store  ProgressStore
	ledger *Ledger
	userID string
	// minWatch suppresses near-zero noise rows: a periodic tick below
	// this many watched seconds is not worth a write.
	minWatch int
	log      *zap.Logger
}

func NewSyncer(store ProgressStore, ledger *Ledger, userID string, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{
		store:    store,
		ledger:   ledger,
		userID:   userID,
		minWatch: defaultMinWatchSeconds,
		log:      log,
	}
}

// Flush writes the current ledger entry for videoID. The first flush for
// a video this session resolves whether a row exists (insert vs update);
// the answer is cached on the ledger so later ticks skip the lookup.
// Used directly by explicit saves, which want the error.
func (s *Syncer) Flush(ctx context.Context, videoID string) error {
	rec := s.ledger.Get(videoID)
	if !s.ledger.Known(videoID) {
		exists, err := s.store.Exists(ctx, s.userID, videoID)
		if err != nil {
			return err
		}
		if !exists {
			if err := s.store.Insert(ctx, s.userID, rec); err != nil {
				return err
			}
			s.ledger.SetKnown(videoID)
			return nil
		}
		s.ledger.SetKnown(videoID)
	}
	return s.store.Update(ctx, s.userID, rec)
}

// TickFlush is the periodic-tick variant: below-threshold records are
// skipped and failures are swallowed with a warning, to be retried on
// the next tick.
func (s *Syncer) TickFlush(ctx context.Context, videoID string) {
	rec := s.ledger.Get(videoID)
	if !rec.Completed && rec.WatchTimeSeconds < s.minWatch {
		return
	}
	if err := s.Flush(ctx, videoID); err != nil {
		s.log.Warn("progress flush failed, will retry next tick",
			zap.String("video_id", videoID), zap.Error(err))
	}
}
