// Package xprofile writes cpu/mem/mutex/block/trace profiles between Start and Stop.
package xprofile

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/qixi7/xjustnet/xlog"
)

/*
	开启性能收集, Stop时生成profile文件. 支持 cpu, mem, trace, mutex, block
	eg: ./justnet serve --prof=cpu,mem
*/

const memProfileRate = 4096

var (
	ErrUnknownMode = errors.New("xprofile: unknown profile mode")
	ErrRunning     = errors.New("xprofile: profiler already running")
)

type Profiler struct {
	dir     string
	running atomic.Bool
	closer  []func() error
	files   []string
}

func New(dir string) *Profiler {
	return &Profiler{dir: dir}
}

// mode -> 开启函数. 返回的func在Stop时写文件并恢复采样率
var modes = map[string]func(f *os.File) (func() error, error){
	"cpu": func(f *os.File) (func() error, error) {
		if err := pprof.StartCPUProfile(f); err != nil {
			return nil, err
		}
		return func() error {
			pprof.StopCPUProfile()
			return nil
		}, nil
	},
	"mem": func(f *os.File) (func() error, error) {
		old := runtime.MemProfileRate
		runtime.MemProfileRate = memProfileRate
		return func() error {
			runtime.MemProfileRate = old
			return pprof.Lookup("heap").WriteTo(f, 0)
		}, nil
	},
	"mutex": func(f *os.File) (func() error, error) {
		runtime.SetMutexProfileFraction(1)
		return func() error {
			defer runtime.SetMutexProfileFraction(0)
			return pprof.Lookup("mutex").WriteTo(f, 0)
		}, nil
	},
	"block": func(f *os.File) (func() error, error) {
		runtime.SetBlockProfileRate(1)
		return func() error {
			defer runtime.SetBlockProfileRate(0)
			return pprof.Lookup("block").WriteTo(f, 0)
		}, nil
	},
	"trace": func(f *os.File) (func() error, error) {
		if err := trace.Start(f); err != nil {
			return nil, err
		}
		return func() error {
			trace.Stop()
			return nil
		}, nil
	},
}

func fileName(mode string) string {
	if mode == "trace" {
		return "trace.out"
	}
	return mode + ".pprof"
}

// IsRunning 是否正在收集
func (p *Profiler) IsRunning() bool {
	return p.running.Load()
}

// Start 开启逗号分隔的若干模式, 有一个不认识就都不开
func (p *Profiler) Start(pmode string) error {
	list := strings.FieldsFunc(pmode, func(r rune) bool {
		return r == ','
	})
	if len(list) == 0 {
		return errors.Wrap(ErrUnknownMode, "empty mode")
	}
	for _, m := range list {
		if _, ok := modes[m]; !ok {
			return errors.Wrap(ErrUnknownMode, m)
		}
	}
	if !p.running.CAS(false, true) {
		return ErrRunning
	}
	if p.dir != "" {
		if err := os.MkdirAll(p.dir, 0744); err != nil {
			p.running.Store(false)
			return err
		}
	}
	p.files = p.files[:0]
	for _, m := range list {
		name := filepath.Join(p.dir, fileName(m))
		f, err := os.Create(name)
		if err != nil {
			xlog.Errorf("profiler: could not create %s profile err=%v", m, err)
			continue
		}
		stop, err := modes[m](f)
		if err != nil {
			xlog.Errorf("profiler: could not start %s profile err=%v", m, err)
			_ = f.Close()
			continue
		}
		mode := m
		p.files = append(p.files, name)
		p.closer = append(p.closer, func() error {
			err := multierr.Append(stop(), f.Close())
			xlog.InfoF("profiler: %s profile disabled", mode)
			return err
		})
		xlog.InfoF("profiler: %s profile enabled", m)
	}
	return nil
}

// Stop 写出文件, 返回写了哪些
func (p *Profiler) Stop() ([]string, error) {
	if !p.running.CAS(true, false) {
		return nil, nil
	}
	var err error
	for _, c := range p.closer {
		err = multierr.Append(err, c())
	}
	p.closer = nil
	return p.files, err
}
