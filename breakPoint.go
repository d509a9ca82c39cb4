package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb/maptile"
)

var BreakPointInst *BreakPoint

func InitBreakPoint() {
	bp, err := OpenBreakPoint(conf.BreakPoint.SaveFilePath, conf.Tm.Name, conf.Task.BufSize)
	if err != nil {
		log.Fatalf("break point file open error, details: %s", err)
	}
	BreakPointInst = bp
	SafeExitInst.Register(BreakPointInst.BreakPointSafeFun)
	log.Infof("break point loaded, %d tiles already done", len(bp.successMap))
}

// BreakPoint records finished tiles so an interrupted seed can resume.
type BreakPoint struct {
	file       *os.File
	saveChan   chan maptile.Tile
	successMap map[string]struct{}
	done       chan struct{}

	mu      sync.Mutex
	isClose bool
}

// OpenBreakPoint opens dir/name.log, loading the tiles it lists, and starts
// the writer.
func OpenBreakPoint(dir, name string, buffer int) (*BreakPoint, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.log", name))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	successMap, err := readBreakPoint(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	b := &BreakPoint{
		file:       file,
		saveChan:   make(chan maptile.Tile, buffer),
		successMap: successMap,
		done:       make(chan struct{}),
	}
	go b.Start()
	return b, nil
}

func readBreakPoint(file *os.File) (map[string]struct{}, error) {
	res := make(map[string]struct{})
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			res[line] = struct{}{}
		}
	}
	return res, sc.Err()
}

func breakPointKey(tile maptile.Tile) string {
	return fmt.Sprintf("%d-%d-%d", tile.X, tile.Y, tile.Z)
}

func (b *BreakPoint) IsSuccessed(tile maptile.Tile) bool {
	_, ok := b.successMap[breakPointKey(tile)]
	return ok
}

func (b *BreakPoint) SetSuccessed(tile maptile.Tile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isClose {
		return
	}
	b.saveChan <- tile
}

func (b *BreakPoint) Start() {
	defer close(b.done)
	w := bufio.NewWriter(b.file)
	for tile := range b.saveChan {
		w.WriteString(breakPointKey(tile) + "\n")
		if len(b.saveChan) == 0 {
			w.Flush()
		}
	}
	w.Flush()
}

// BreakPointSafeFun drains pending records and closes the file.
func (b *BreakPoint) BreakPointSafeFun() {
	b.mu.Lock()
	if b.isClose {
		b.mu.Unlock()
		return
	}
	b.isClose = true
	close(b.saveChan)
	b.mu.Unlock()

	<-b.done
	b.file.Close()
	log.Infof("break point saved")
}
