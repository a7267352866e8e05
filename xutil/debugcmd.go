package xutil

import (
	"bytes"
	"fmt"
	"net/http"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/qixi7/xjustnet/xnet"
)

/*
	服务器调试命令
*/

var units = []string{"bytes", "KB", "MB", "GB", "TB", "PB"}

func formatBytes(val uint64) string {
	var i int
	var target uint64
	for i = range units {
		target = 1 << uint(10*(i+1))
		if val < target {
			break
		}
	}
	if i > 0 {
		return fmt.Sprintf("%0.2f%s (%d bytes)",
			float64(val)/(float64(target)/1024), units[i], val)
	}
	return fmt.Sprintf("%d bytes", val)
}

func defaultCmd(app *Application) {
	app.HandleHttpCmd("/help", func(args []string) string {
		buffer := new(bytes.Buffer)
		for i := 0; i < len(app.httpCmds); i++ {
			buffer.WriteString(app.httpCmds[i])
			buffer.WriteString("\n")
		}
		return buffer.String()
	})

	app.HandleHttpCmd("/pprof/start/:name", func(args []string) string {
		if len(args) != 3 {
			return "arg error, should be: /pprof/start/mode(cpu,mem,...)"
		}
		if err := app.profile.Start(args[2]); err != nil {
			return fmt.Sprintf("%s profile failed: %v", args[2], err)
		}
		return fmt.Sprintf("%s profile started", args[2])
	})

	app.HandleHttpCmd("/pprof/stop", func(args []string) string {
		files, err := app.profile.Stop()
		if err != nil {
			return "profile stop err: " + err.Error()
		}
		return fmt.Sprintf("profile stopped: %s", strings.Join(files, " "))
	})

	// debug接口不经过主循环, 主循环卡住时也能看
	app.HandleFunc("/debug/stack", func(w http.ResponseWriter, r *http.Request) {
		err := pprof.Lookup("goroutine").WriteTo(w, 2)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(err.Error()))
		}
	})

	app.HandleFunc("/debug/mem", func(w http.ResponseWriter, r *http.Request) {
		var s runtime.MemStats
		runtime.ReadMemStats(&s)
		_, _ = fmt.Fprintf(w, "alloc: %v\n", formatBytes(s.Alloc))
		_, _ = fmt.Fprintf(w, "total-alloc: %v\n", formatBytes(s.TotalAlloc))
		_, _ = fmt.Fprintf(w, "sys: %v\n", formatBytes(s.Sys))
		_, _ = fmt.Fprintf(w, "lookups: %v\n", formatBytes(s.Lookups))
		_, _ = fmt.Fprintf(w, "mallocs: %v\n", formatBytes(s.Mallocs))
		_, _ = fmt.Fprintf(w, "frees: %v\n", formatBytes(s.Frees))
		_, _ = fmt.Fprintf(w, "heap-alloc: %v\n", formatBytes(s.HeapAlloc))
		_, _ = fmt.Fprintf(w, "heap-sys: %v\n", formatBytes(s.HeapSys))
		_, _ = fmt.Fprintf(w, "heap-idle: %v\n", formatBytes(s.HeapIdle))
		_, _ = fmt.Fprintf(w, "heap-in-use: %v\n", formatBytes(s.HeapInuse))
		_, _ = fmt.Fprintf(w, "heap-released: %v\n", formatBytes(s.HeapReleased))
		_, _ = fmt.Fprintf(w, "heap-object: %v\n", formatBytes(s.HeapObjects))
		_, _ = fmt.Fprintf(w, "stack-in-use: %v\n", formatBytes(s.StackInuse))
		_, _ = fmt.Fprintf(w, "stack-sys: %v\n", formatBytes(s.StackSys))
		_, _ = fmt.Fprintf(w, "stack-mspan-inuse: %v\n", formatBytes(s.MSpanInuse))
		_, _ = fmt.Fprintf(w, "stack-mspan-sys: %v\n", formatBytes(s.MSpanSys))
		_, _ = fmt.Fprintf(w, "stack-mcache-inuse: %v\n", formatBytes(s.MCacheInuse))
		_, _ = fmt.Fprintf(w, "stack-mcache-sys: %v\n", formatBytes(s.MCacheSys))
		_, _ = fmt.Fprintf(w, "other-sys: %v\n", formatBytes(s.OtherSys))
		_, _ = fmt.Fprintf(w, "gc-sys: %v\n", formatBytes(s.GCSys))
		_, _ = fmt.Fprintf(w, "next-gc: when heap-alloc >= %v\n", formatBytes(s.NextGC))
		lastGC := "-"
		if s.LastGC != 0 {
			lastGC = fmt.Sprint(time.Unix(0, int64(s.LastGC)))
		}
		_, _ = fmt.Fprintf(w, "last-gc: %v\n", lastGC)
		_, _ = fmt.Fprintf(w, "gc-pause-total: %v\n", time.Duration(s.PauseTotalNs))
		_, _ = fmt.Fprintf(w, "gc-pause: %v\n", s.PauseNs[(s.NumGC+255)%256])
		pausePeak := uint64(0)
		for _, pause := range s.PauseNs {
			if pausePeak < pause {
				pausePeak = pause
			}
		}
		_, _ = fmt.Fprintf(w, "gc-pause-peak: %v\n", pausePeak)
		_, _ = fmt.Fprintf(w, "num-gc: %v\n", s.NumGC)
		_, _ = fmt.Fprintf(w, "enable-gc: %v\n", s.EnableGC)
		_, _ = fmt.Fprintf(w, "debug-gc: %v\n", s.DebugGC)
	})

	app.HandleFunc("/debug/goversion", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "%v\n", runtime.Version())
	})

	app.HandleFunc("/debug/gc", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		runtime.GC()
		taken := time.Since(start)
		_, _ = w.Write([]byte("ok, " + taken.String() + "\n"))
	})

	app.HandleFunc("/debug/stat", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "goroutines: %v\n", runtime.NumGoroutine())
		_, _ = fmt.Fprintf(w, "OS Threads: %v\n", pprof.Lookup("threadcreate").Count())
		_, _ = fmt.Fprintf(w, "GOMAXPROCS: %v\n", runtime.GOMAXPROCS(0))
		_, _ = fmt.Fprintf(w, "num CPU: %v\n", runtime.NumCPU())
	})
}

// ServerCmds 注册服务器查询命令
func ServerCmds(app *Application, srv *xnet.Server) {
	app.HandleHttpCmd("/server", func(args []string) string {
		return fmt.Sprintf("state: %v\naddr: %s\nconnected: %d\nfree-ids: %d\ntotal: %d\n",
			srv.State(), srv.Addr(), srv.ConnectedCount(), srv.FreeIDs(), srv.SessionTotalNum())
	})

	app.HandleHttpCmd("/sessions", func(args []string) string {
		sessions := srv.Sessions()
		var sb strings.Builder
		for _, s := range sessions {
			_, _ = fmt.Fprintf(&sb, "%d %s pending=%d writing=%v\n", s.ID(), s.RemoteAddr(), s.Pending(), s.InFlightWrite())
		}
		return sb.String()
	})

	app.HandleHttpCmd("/kick/:id", func(args []string) string {
		if len(args) != 2 {
			return "arg error, should be: /kick/id"
		}
		id, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return "arg error: " + err.Error()
		}
		if !srv.DisconnectClient(uint32(id)) {
			return fmt.Sprintf("client %d not found", id)
		}
		return fmt.Sprintf("client %d disconnected", id)
	})
}
