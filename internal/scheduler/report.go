package scheduler

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/user/skyd/internal/server"
)

// DiskUsage is the on-disk footprint of the tables under a root path.
type DiskUsage struct {
	Tables int
	Bytes  int64
}

// MeasureDiskUsage walks root and sums the size of every table directory.
// A table is any directory holding an events log.
func MeasureDiskUsage(root string) (DiskUsage, error) {
	var du DiskUsage
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == "events.jsonl" {
			du.Tables++
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		du.Bytes += info.Size()
		return nil
	})
	return du, err
}

// StatsReportJob logs the server counters and the disk usage under root.
func StatsReportJob(schedule string, stats func() server.Stats, root string, logger *slog.Logger) Job {
	return Job{
		Name:     "stats-report",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			st := stats()
			du, err := MeasureDiskUsage(root)
			if err != nil {
				return err
			}
			logger.InfoContext(ctx, "server stats",
				"state", st.State,
				"connections", humanize.Comma(st.Connections),
				"requests", humanize.Comma(st.Requests),
				"failures", humanize.Comma(st.Failures),
				"framing_errors", humanize.Comma(st.FramingErrors),
				"active", st.Active,
				"tables", du.Tables,
				"disk", humanize.Bytes(uint64(du.Bytes)),
			)
			return nil
		},
	}
}
