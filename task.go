package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
	"github.com/pkg/errors"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"
)

func InitTask() {
	start := time.Now()

	cfg, ok := engine.Registry.Get(conf.Tm.Layer)
	if !ok {
		log.Fatalf("unknown layer config %q", conf.Tm.Layer)
	}
	tm, err := NewTileMap(conf.Tm.Name, conf.Tm.Format, conf.Tm.URL, cfg)
	if err != nil {
		log.Fatal(err)
	}
	tm.Values = conf.Tm.Values
	tm.Retina = conf.Tm.Retina

	var layers []Layer
	for _, lrs := range conf.Lrs {
		c, err := loadCollection(lrs.Geojson)
		if err != nil {
			log.Fatal(err)
		}
		for z := lrs.Min; z <= lrs.Max; z++ {
			layers = append(layers, Layer{Zoom: z, Collection: c})
		}
	}

	task, err := NewTask(layers, tm, engine, BreakPointInst, conf.Task.Workers, conf.Task.Timedelay)
	if err != nil {
		log.Fatal(err)
	}
	task.File = conf.Output.Directory
	log.Infof("Task %s: %d tiles in %v", task.ID, task.Total, task.Bound())
	SafeExitInst.Register(task.AbortFun)

	task.Download(SafeExitInst.Context())

	log.Infof("%.3fs finished, %d fixed, %d unchanged, %d failed",
		time.Since(start).Seconds(), task.Fixed, task.Unchanged, task.Failed)
}

// Task fetches, corrects and saves every tile covering its layers.
type Task struct {
	ID      string
	Name    string
	File    string
	Layers  []Layer
	TileMap *TileMap
	Total   int64
	// outcome counters, updated atomically
	Fixed     int64
	Unchanged int64
	Failed    int64

	engine      *Engine
	breakPoint  *BreakPoint
	workerCount int
	timeDelay   int
	tileWG      sync.WaitGroup
	workers     chan struct{}
	cancel      context.CancelFunc
	finished    chan struct{}
	mu          sync.Mutex
}

// NewTask computes the tile cover of every layer.
func NewTask(layers []Layer, m *TileMap, e *Engine, bp *BreakPoint, workers, timeDelay int) (*Task, error) {
	if len(layers) == 0 {
		return nil, errors.New("no seed layers configured")
	}
	id, _ := shortid.Generate()

	task := Task{
		ID:          id,
		Name:        m.Name,
		Layers:      layers,
		TileMap:     m,
		engine:      e,
		breakPoint:  bp,
		workerCount: workers,
		timeDelay:   timeDelay,
		finished:    make(chan struct{}),
	}
	if task.workerCount <= 0 {
		task.workerCount = 1
	}
	for i := range task.Layers {
		l := &task.Layers[i]
		if l.Zoom < 0 || l.Zoom > ZoomMax {
			return nil, errors.Errorf("zoom %d out of range", l.Zoom)
		}
		set, err := tilecover.Collection(l.Collection, maptile.Zoom(l.Zoom))
		if err != nil {
			return nil, errors.Wrapf(err, "cover zoom %d", l.Zoom)
		}
		l.Tiles = set
		l.Count = int64(len(set))
		log.Infof("zoom: %d, tiles: %d", l.Zoom, l.Count)
		task.Total += l.Count
	}
	task.workers = make(chan struct{}, task.workerCount)
	return &task, nil
}

// Bound of all layer areas.
func (task *Task) Bound() orb.Bound {
	bound := orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{-1, -1}}
	for _, layer := range task.Layers {
		for _, g := range layer.Collection {
			bound = bound.Union(g.Bound())
		}
	}
	return bound
}

// AbortFun stops dispatching tiles and waits for the ones in flight.
func (task *Task) AbortFun() {
	task.mu.Lock()
	cancel := task.cancel
	task.mu.Unlock()
	if cancel != nil {
		cancel()
		<-task.finished
	}
}

// Download runs every layer in order until done or ctx ends.
func (task *Task) Download(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	task.mu.Lock()
	task.cancel = cancel
	task.mu.Unlock()
	defer close(task.finished)
	defer cancel()

	for _, layer := range task.Layers {
		if ctx.Err() != nil {
			log.Infof("Task %s got canceled.", task.Name)
			return
		}
		task.downloadLayer(ctx, layer)
	}
}

// tileFetcher fetches and corrects one tile.
func (task *Task) tileFetcher(ctx context.Context, mt maptile.Tile) {
	start := time.Now()
	defer func() {
		task.tileWG.Done()
		<-task.workers
	}()

	url := task.TileMap.GetTileURL(mt)
	res, err := task.engine.Fixer.FetchAndFixTile(ctx, url, mt, task.TileMap.Config, task.engine.fetchOptions(), task.engine.Fallback)
	if err != nil {
		if ctx.Err() == nil {
			atomic.AddInt64(&task.Failed, 1)
			log.Debugf("fetch %s error, details: %s", url, err)
		}
		return
	}
	if len(res.Data) == 0 {
		log.Debugf("nil tile %v", mt)
		return
	}
	td := Tile{T: mt, C: res.Data}
	if err := saveToFiles(td, task.File, extFor(res.ContentType, task.TileMap.Format)); err != nil {
		atomic.AddInt64(&task.Failed, 1)
		log.Errorf("create %v tile file error, details: %s", mt, err)
		return
	}

	switch {
	case res.CorrectionsFailed:
		// saved uncorrected; leave it out of the break point so a rerun retries
		atomic.AddInt64(&task.Failed, 1)
	case res.WasFixed:
		atomic.AddInt64(&task.Fixed, 1)
		task.markDone(mt)
	default:
		atomic.AddInt64(&task.Unchanged, 1)
		task.markDone(mt)
	}
	log.Debugf("tile(z:%d, x:%d, y:%d), %dms, %.2f kb, fixed %t, %s",
		mt.Z, mt.X, mt.Y, time.Since(start).Milliseconds(), float32(len(res.Data))/1024.0, res.WasFixed, url)
}

func (task *Task) markDone(t maptile.Tile) {
	if task.breakPoint != nil {
		task.breakPoint.SetSuccessed(t)
	}
}

func (task *Task) done(t maptile.Tile) bool {
	return task.breakPoint != nil && task.breakPoint.IsSuccessed(t)
}

// downloadLayer dispatches the tiles of one zoom level to the workers.
func (task *Task) downloadLayer(ctx context.Context, layer Layer) {
	log.Infof("Task %s zoom %d starting", task.ID, layer.Zoom)
	bar := pb.New64(layer.Count).Prefix(fmt.Sprintf("Zoom %d : ", layer.Zoom)).Postfix("\n")
	bar.SetRefreshRate(time.Second)
	bar.Start()

dispatch:
	for tile := range layer.Tiles {
		if task.done(tile) {
			bar.Increment()
			continue
		}
		select {
		case task.workers <- struct{}{}:
			bar.Increment()
			if task.timeDelay > 0 {
				time.Sleep(time.Duration(task.timeDelay) * time.Millisecond)
			}
			task.tileWG.Add(1)
			go task.tileFetcher(ctx, tile)
		case <-ctx.Done():
			log.Infof("Task %s got canceled.", task.Name)
			break dispatch
		}
	}
	task.tileWG.Wait()
	bar.FinishPrint(fmt.Sprintf("Task %s Zoom %d finished", task.ID, layer.Zoom))
}
