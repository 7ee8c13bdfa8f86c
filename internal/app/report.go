package app

import (
	log "log/slog"

	"chatty/internal/console"
	"chatty/internal/smarthome"
)

// ReportTurn prints what a smart-home turn did. A failed turn is only
// logged; the caller's loop carries on.
func ReportTurn(con *console.Console, res smarthome.TurnResult, err error, streamed bool) {
	if !streamed && res.Response != "" {
		con.Println(res.Response)
	}
	con.Println()

	if err != nil {
		log.Error("Turn failed", "phase", res.FailedIn.String(), "err", err)
		return
	}

	if res.StateErr != nil {
		con.Printf("Failed to parse json %v\n", res.StateErr)
	} else if res.StateUpdated {
		if js, err := res.State.JSON(); err == nil {
			con.Println(con.Green(string(js)))
		}
	}
	if res.SavedPath != "" {
		log.Debug("Saved conversation", "path", res.SavedPath)
	}
}
