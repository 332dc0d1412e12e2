package runstore

import (
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachDebugRoutes mounts a live SQL browser over the run history and a
// runs summary on the /debug/ pages of mux.
func (s *Store) AttachDebugRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.db, &tailsql.DBOptions{
		Label: "Averaging runs",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("runs", "Recent averaging runs", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runs, err := s.ListRuns(50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, run := range runs {
			fmt.Fprintf(w, "%s  %-8s  s=%g  %d/%d iterations  groups=%d  warnings=%d  failures=%d\n",
				run.RunID, run.Status, run.Oversampling, run.IterationsCompleted, run.Iterations,
				run.Groups, run.Warnings, run.Failures)
		}
	}))
	return nil
}
