package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/sirupsen/logrus"

	"github.com/kinetic-engine/kinetic/entity"
	"github.com/kinetic-engine/kinetic/game"
	"github.com/kinetic-engine/kinetic/settings"
	"github.com/kinetic-engine/kinetic/sim"
	"github.com/kinetic-engine/kinetic/stats"
	"github.com/kinetic-engine/kinetic/world"
)

const gravity = -9.81

// gravitySolver is a minimal movement model: velocity plus gravity-fed
// inertia, with a ground sweep stopping the fall. It exists to demonstrate
// the scheduler plumbing, not to be a believable character controller.
type gravitySolver struct{}

func (gravitySolver) Unstuck(d *sim.ActorFrameData, w *world.World) {
	ext := d.HalfExtents()
	overlapping := false
	w.AabbTest(d.Position.Sub(ext), d.Position.Add(ext), func(o *world.Object) {
		if o.Group()&game.ColWorld != 0 {
			overlapping = true
		}
	})
	if overlapping {
		d.StuckFrames++
		d.LastStuckPosition = d.Position
	}
}

func (gravitySolver) Move(d *sim.ActorFrameData, dt float32, w *world.World, _ *sim.WorldFrameData) {
	if !d.IsOnGround {
		d.Inertia = d.Inertia.Add(mgl32.Vec3{0, gravity * dt, 0})
	}
	move := d.Velocity.Add(d.Inertia).Mul(dt)

	shape := game.AABBFromHalfExtents(d.HalfExtents())
	from := d.Position
	to := from.Add(move)
	if hit, ok := w.ConvexSweepTest(shape, from, to, game.ColActor, game.ColWorld|game.ColHeightMap); ok {
		to = hit.Point
		d.IsOnGround = move.Y() < 0
		d.Inertia = mgl32.Vec3{}
	} else {
		d.IsOnGround = false
	}
	d.Position = to
}

// The following program drops a handful of actors onto a floor and runs the
// scheduler at a render pace, printing where everyone ended up.
func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})

	cfg := settings.Default()
	if len(os.Args) > 1 {
		loaded, err := settings.Load(os.Args[1])
		if err != nil {
			log.WithError(err).Warn("falling back to default settings")
		}
		cfg = loaded
	}

	if os.Getenv("PPROF_ENABLED") != "" {
		// set configurations before calling `statsview.New()` method
		viewer.SetConfiguration(viewer.WithTheme(viewer.ThemeWesteros), viewer.WithAddr("localhost:8080"))

		mgr := statsview.New()
		go mgr.Start()
	}

	w := world.New(true)
	floor := world.NewObject(entity.NewHandleID(), cube.Box(-50, -1, -50, 50, 0, 50))
	w.AddObject(floor, game.ColWorld, game.ColAll)

	registry := entity.NewRegistry()
	schedulerCfg := sim.ConfigFromSettings(cfg)
	schedulerCfg.Logger = log
	scheduler := sim.NewTaskScheduler(schedulerCfg, w, registry, gravitySolver{})
	defer scheduler.Close()

	var actors []*entity.Actor
	for i := 0; i < 5; i++ {
		a := entity.NewActor(0.6, 1.8, mgl32.Vec3{float32(i * 2), 10 + float32(i), 0})
		registry.Register(a)
		scheduler.AddCollisionObject(a, game.ColActor, game.ColAll)
		actors = append(actors, a)
	}

	sink := stats.NewMemory()
	renderTick := time.NewTicker(16 * time.Millisecond)
	defer renderTick.Stop()

	last := time.Now()
	for frame := uint64(1); frame <= 180; frame++ {
		<-renderTick.C
		now := time.Now()
		delta := float32(now.Sub(last).Seconds())
		last = now

		data := make([]*sim.ActorFrameData, len(actors))
		for i, a := range actors {
			data[i] = sim.NewActorFrameData(a)
		}
		scheduler.SubmitFrame(actors, data, delta, frame, sink)
	}

	for i, a := range actors {
		pos := a.Position()
		fmt.Printf("actor %d: position (%.2f, %.2f, %.2f), landings %d\n",
			i, pos.X(), pos.Y(), pos.Z(), a.Landings())
	}
	taken := sink.Summarize(stats.AttrWorkerTimeTaken)
	log.WithFields(logrus.Fields{
		"frames_timed":   sink.Frames(),
		"worker_mean_s":  taken.Mean,
		"worker_p50_s":   taken.Median,
		"worker_stddev":  taken.StdDev,
	}).Info("simulation finished")
}
