package session

import (
	"fmt"

	"github.com/zbum/purespice-go/internal/spiceapi"
)

// validateConfig checks that every enabled channel group carries its
// mandatory callbacks (spec.md §4.6 purespice_connect): clipboard needs
// notice/data/release/request; playback needs start/stop/data; record
// needs start/stop; display needs surfaceCreate/surfaceDestroy/
// drawBitmap/drawFill. A missing callback fails Connect before any socket
// is opened (spec.md §7's Configuration error class).
func validateConfig(cfg *spiceapi.Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("session: config: host is required")
	}

	if cfg.Clipboard.Enable {
		cb := cfg.Clipboard.ClipboardCallbacks
		if cb.Notice == nil || cb.Data == nil || cb.Release == nil || cb.Request == nil {
			return fmt.Errorf("session: config: clipboard enabled but missing a mandatory callback (notice/data/release/request)")
		}
	}
	if cfg.Playback.Enable {
		cb := cfg.Playback.PlaybackCallbacks
		if cb.Start == nil || cb.Stop == nil || cb.Data == nil {
			return fmt.Errorf("session: config: playback enabled but missing a mandatory callback (start/stop/data)")
		}
	}
	if cfg.Record.Enable {
		cb := cfg.Record.RecordCallbacks
		if cb.Start == nil || cb.Stop == nil {
			return fmt.Errorf("session: config: record enabled but missing a mandatory callback (start/stop)")
		}
	}
	if cfg.Display.Enable {
		cb := cfg.Display.DisplayCallbacks
		if cb.SurfaceCreate == nil || cb.SurfaceDestroy == nil || cb.DrawBitmap == nil || cb.DrawFill == nil {
			return fmt.Errorf("session: config: display enabled but missing a mandatory callback (surfaceCreate/surfaceDestroy/drawBitmap/drawFill)")
		}
	}
	return nil
}
