package engine

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// InitializeSchedules starts the cron jobs (currently just the image handle sweep)
func InitializeSchedules(images *ImageStore, intervalMinutes int) *cron.Cron {
	c := cron.New()
	if intervalMinutes <= 0 {
		Logger.Info("Image handle sweep disabled")
		return c
	}

	var sweepJob cron.Job
	sweepJob = cron.FuncJob(func() { sweepImages(images) })
	sweepJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(sweepJob) //ensure we don't kick off another if old one is still running
	if _, err := c.AddJob(fmt.Sprintf("@every %dm", intervalMinutes), sweepJob); err != nil {
		Logger.Error("Unable to schedule image handle sweep", "error", err)
		return c
	}
	Logger.Info("Adding image handle sweep scheduler", "interval_minutes", intervalMinutes)
	c.Start()
	return c
}

func sweepImages(images *ImageStore) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in image sweep", "panic", r)
		}
	}()
	removed := images.Sweep()
	if removed > 0 {
		Logger.Info("Expired image handles removed", "count", removed, "remaining", images.Len())
	}
}
