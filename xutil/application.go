package xutil

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bmizerany/pat"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/qixi7/xjustnet/xlog"
	"github.com/qixi7/xjustnet/xmetric"
	"github.com/qixi7/xjustnet/xprofile"
)

const (
	maxPortRange   = 64 // 端口被占用时往后最多试这么多个
	defaultFPS     = 50
	httpCmdTimeout = 2 * time.Second
	exitTimeout    = time.Minute
)

var ErrHttpListen = errors.New("xutil: no usable http listen address")

// 一个进程就是一个app
type Application struct {
	exit         atomic.Bool          // 是否发起了退出
	fps          int                  // 逻辑帧率. 1s 跑fps次 主循环update
	pidFile      string               // 空表示不写pid文件
	profile      *xprofile.Profiler   // profile
	profMode     string               // 启动时开启的profile模式, eg: "cpu,mem"
	flock        *FLock               // pid文件锁
	httpListen   string               // 配置的http监听地址, 空表示不开
	httpAddr     string               // 实际监听的http地址
	listener     net.Listener         // http listener
	serveMux     *http.ServeMux       // 用于http监听
	pattern      *pat.PatternServeMux // 路由
	http2main    chan func()          // 放置http func, 在主循环中执行
	httpCmds     []string             // 所有http命令, /help用
	InitOKTime   time.Time            // 初始化完成的时间点
	invokeOnMain chan struct{}        // 调用invokeFunc的信号
	invokeFunc   func()               // 需要主循环立即执行的函数, 不等到下一个逻辑帧
	done         chan struct{}        // Destroy后关闭
	metric       Metric               // 帧统计, 只在主循环读写
}

func NewApplication() *Application {
	return &Application{
		fps:          defaultFPS,
		profile:      xprofile.New(""),
		serveMux:     http.NewServeMux(),
		pattern:      pat.New(),
		http2main:    make(chan func(), 1024),
		invokeOnMain: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// 把ip地址拆分成ip+port
func splitAddr(addr string) (string, int, bool) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, false
	}
	return host, port, true
}

// http函数定义. args是按'/'切开的请求路径
type HttpCmdFunc func(args []string) string

func (a *Application) SetFPS(needFps int) *Application {
	if needFps <= 0 || needFps > 1000 {
		needFps = 1000
	}
	a.fps = needFps
	return a
}

func (a *Application) SetPidFile(name string) *Application {
	a.pidFile = name
	return a
}

// SetProfile profile文件写到dir, mode非空时Init就开始收集
func (a *Application) SetProfile(dir, mode string) *Application {
	a.profile = xprofile.New(dir)
	a.profMode = mode
	return a
}

func (a *Application) SetHttpListen(addr string) *Application {
	a.httpListen = addr
	return a
}

// 设置事件驱动. 有的任务想本帧就立即执行, 而不等到下一次逻辑帧
func (a *Application) SetEvenDriverMode(f func()) *Application {
	if a.metric.FrameNum > 0 {
		panic("Event drive mode must be set before Run()")
	}
	a.invokeFunc = f
	return a
}

func (a *Application) IsEvenDriverMode() bool {
	return a.invokeFunc != nil
}

// 发送invokeOnMain事件(不应在主循环调用)
func (a *Application) InvokeFuncOnMain() {
	if !a.IsEvenDriverMode() {
		panic("Event drive mode is not enable")
	}
	select {
	case a.invokeOnMain <- struct{}{}:
	default:
	}
}

// HttpAddr 实际监听的http地址, 没开时为空
func (a *Application) HttpAddr() string {
	return a.httpAddr
}

// 监听http服务
func (a *Application) serveHTTP() error {
	host, port, ok := splitAddr(a.httpListen)
	if !ok {
		return errors.Wrapf(ErrHttpListen, "bad address %q", a.httpListen)
	}
	// 找一个可用端口. 0让系统挑
	tries := maxPortRange
	if port == 0 {
		tries = 1
	}
	var (
		l   net.Listener
		err error
	)
	for i := 0; i < tries; i++ {
		l, err = net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port+i)))
		if err == nil {
			break
		}
	}
	if err != nil {
		return errors.Wrap(ErrHttpListen, err.Error())
	}
	a.listener = l
	a.httpAddr = l.Addr().String()
	xlog.InfoF("http listen address: http://%s", a.httpAddr)

	// [/health] 主要用来应付consul的心跳检测
	a.pattern.Get("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "ok")
	}))
	a.serveMux.Handle("/", a.pattern)
	return nil
}

func (a *Application) serve() {
	err := http.Serve(a.listener, a.serveMux)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		xlog.Errorf("serveHTTP, http.Serve err=%v", err)
	}
}

// 监听退出信号, 保底退出
func (a *Application) watchSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	select {
	case sig := <-c:
		xlog.InfoF("caught signal: %v", sig)
		a.exit.Store(true)
	case <-a.done:
		return
	}
	select {
	case <-time.After(exitTimeout):
	case <-a.done:
		return
	}
	var buf [65536]byte
	n := runtime.Stack(buf[:], true)
	xlog.Errorf("server not stopped in %v, all stack is:\n%s", exitTimeout, string(buf[:n]))
	_ = xlog.Sync()
	os.Exit(1)
}

// Init 写pid文件, 开http, 再执行f. f返回false表示初始化失败.
// http路由要在Init之前或f里注册
func (a *Application) Init(f func() bool) error {
	if a.pidFile != "" {
		flock, err := NewFlock(a.pidFile)
		if err != nil {
			return errors.Wrap(err, "Application Init NewFlock")
		}
		a.flock = flock
	}
	if a.httpListen != "" {
		if err := a.serveHTTP(); err != nil {
			a.release()
			return err
		}
	}
	if a.profMode != "" {
		if err := a.profile.Start(a.profMode); err != nil {
			a.release()
			return err
		}
	}
	go a.watchSignal()

	if f != nil && !f() {
		a.release()
		_ = xlog.Sync()
		return errors.New("xutil: application init func failed")
	}
	defaultCmd(a)
	// 路由都在这之前注册好
	if a.listener != nil {
		go a.serve()
	}
	a.InitOKTime = time.Now()
	return nil
}

// Run 主循环. 每帧调用f(帧间隔纳秒), Exit或收到信号后返回
func (a *Application) Run(f func(int64)) {
	t := time.Duration(int64(time.Millisecond) * int64(1000) / int64(a.fps))
	// 单位保留到ms
	t = t / time.Millisecond * time.Millisecond
	lastTime := time.Now()
	ticker := time.NewTicker(t)
	defer ticker.Stop()
mainLoop:
	for {
		select {
		case <-ticker.C:
			if a.exit.Load() {
				break mainLoop
			}
			nowTime := time.Now()
			dt := nowTime.Sub(lastTime)
			f(int64(dt))
			lastTime = nowTime
			a.metric.FrameNum++
			a.metric.FrameNowTime = time.Since(nowTime)
			a.metric.FrameTime += a.metric.FrameNowTime
			if a.metric.FrameNowTime > t {
				a.metric.FrameOvertimeUse++
			}
		case httpfn := <-a.http2main:
			httpfn()
		httpfor:
			for {
				select {
				case httpfn := <-a.http2main:
					httpfn()
				default:
					break httpfor
				}
			}
		case <-a.invokeOnMain:
			if a.invokeFunc != nil {
				a.invokeFunc()
			}
		}
	}
}

func (a *Application) release() {
	select {
	case <-a.done:
		return
	default:
		close(a.done)
	}
	if a.listener != nil {
		_ = a.listener.Close()
	}
	if a.flock != nil {
		a.flock.Close()
		a.flock = nil
	}
	if files, err := a.profile.Stop(); err != nil {
		xlog.Errorf("profile stop err=%v", err)
	} else if len(files) > 0 {
		xlog.InfoF("profile written: %v", files)
	}
}

// Destroy 执行f后释放http和pid文件
func (a *Application) Destroy(f func()) {
	if f != nil {
		f()
	}
	a.release()
	_ = xlog.Sync()
}

func (a *Application) TickTotal() int64 {
	return a.metric.FrameNum
}

// Handle 直接挂一个http.Handler, 不经过主循环
func (a *Application) Handle(pattern string, h http.Handler) {
	a.httpCmds = append(a.httpCmds, pattern)
	a.pattern.Get(pattern, h)
}

func (a *Application) HandleFunc(pattern string, f func(http.ResponseWriter, *http.Request)) {
	a.Handle(pattern, http.HandlerFunc(f))
}

// 自定义注册一些http命令, cmdfunc在主循环中执行
func (a *Application) HandleHttpCmd(pattern string, cmdfunc HttpCmdFunc) {
	a.httpCmds = append(a.httpCmds, pattern)
	a.pattern.Get(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		xlog.Debugf("httpcmd:%s", r.URL.Path)
		args := strings.FieldsFunc(r.URL.Path, func(r rune) bool {
			return r == '/'
		})
		ret := make(chan string, 1)
		timer := time.NewTimer(httpCmdTimeout)
		defer timer.Stop()
		select {
		case a.http2main <- func() {
			ret <- cmdfunc(args)
		}:
		case <-timer.C:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintln(w, "main thread timeout")
			return
		}
		select {
		case s := <-ret:
			_, _ = fmt.Fprintln(w, s)
		case <-timer.C:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintln(w, "main thread timeout")
		}
	}))
}

// 退出主循环
func (a *Application) Exit() {
	a.exit.Store(true)
}

// ------------------ 性能收集 ------------------

type Metric struct {
	FrameNum         int64
	FrameTime        time.Duration
	FrameNowTime     time.Duration
	FrameOvertimeUse int64
}

type metricJob struct {
	app *Application
	Metric
}

// MetricJob 主循环帧统计, 给xmetric.Gather用
func (a *Application) MetricJob() xmetric.MetricJob {
	return &metricJob{app: a}
}

func (m *metricJob) Pull() {
	m.Metric = m.app.metric
}

func (m *metricJob) Push(gather *xmetric.Gather, ch chan<- prometheus.Metric) {
	gather.PushCounterMetric(ch, "xjustnet_frame_total_num", float64(m.FrameNum), nil)
	gather.PushCounterMetric(ch, "xjustnet_frame_total_time", float64(m.FrameTime), nil)
	gather.PushGaugeMetric(ch, "xjustnet_frame_now_time", float64(m.FrameNowTime), nil)
	gather.PushCounterMetric(ch, "xjustnet_frame_overtime_num", float64(m.FrameOvertimeUse), nil)
}
