// Package monitoring turns a running simulation into a small web server that
// reports its progress, the state of the device, and the resources used by the
// process.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/sarchlab/simtrace/monitoring/web"
	"github.com/sarchlab/simtrace/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// ErrServerRunning is returned when the server is started twice.
var ErrServerRunning = errors.New("monitoring server already running")

// Monitor observes a driver through its step hook and serves what it saw over
// HTTP. All the state it serves is copied from the simulation goroutine, so the
// server never touches a live device.
type Monitor struct {
	portNumber       int
	depth            int
	snapshotInterval time.Duration
	logger           *slog.Logger

	lock         sync.Mutex
	now          sim.VTime
	step         uint64
	total        uint64
	stepped      bool
	device       []byte
	lastSnapshot time.Time
	bar          *ProgressBar

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server *http.Server
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		depth:            1,
		snapshotInterval: 100 * time.Millisecond,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are not
// allowed and fall back to a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.logger.Warn("port not allowed for the monitoring server, "+
			"using a random port instead", "port", portNumber)

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithDepth sets how deep the device state is serialized.
func (m *Monitor) WithDepth(depth int) *Monitor {
	m.depth = depth
	return m
}

// WithSnapshotInterval sets the minimum wall time between two device
// snapshots. The last step is always captured.
func (m *Monitor) WithSnapshotInterval(d time.Duration) *Monitor {
	m.snapshotInterval = d
	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(l *slog.Logger) *Monitor {
	m.logger = l
	return m
}

// Func records the state after a step. It is called on the simulation
// goroutine.
func (m *Monitor) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosStepDone {
		return
	}

	info, ok := ctx.Item.(sim.StepInfo)
	if !ok {
		return
	}

	m.lock.Lock()
	bar := m.bar
	m.lock.Unlock()

	if bar == nil {
		name := "simulation"
		if info.Instance != nil {
			name = info.Instance.Name()
		}

		bar = m.CreateProgressBar(name, info.Total)
	}

	bar.IncrementFinished(1)
	if bar.Done() {
		m.logger.Info("simulation finished",
			"name", bar.Name, "steps", info.Total)
	}

	snapshot := m.snapshotDevice(info)

	m.lock.Lock()
	defer m.lock.Unlock()

	m.bar = bar
	m.now = info.Time
	m.step = info.Index
	m.total = info.Total
	m.stepped = true

	if snapshot != nil {
		m.device = snapshot
	}
}

func (m *Monitor) snapshotDevice(info sim.StepInfo) []byte {
	if info.Instance == nil || info.Instance.Device() == nil {
		return nil
	}

	last := info.Index+1 == info.Total
	if !last && time.Since(m.lastSnapshot) < m.snapshotInterval {
		return nil
	}

	buf := bytes.NewBuffer(nil)

	serializer := goseth.NewSerializer()
	serializer.SetRoot(info.Instance.Device())
	serializer.SetMaxDepth(m.depth)

	if err := serializer.Serialize(buf); err != nil {
		m.logger.Warn("device snapshot failed", "error", err)
		return nil
	}

	m.lastSnapshot = time.Now()

	return buf.Bytes()
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        sim.GetIDGenerator().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the progress report.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// CompleteAll removes every bar from the progress report.
func (m *Monitor) CompleteAll() {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = nil
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.reportNow)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/device", m.reportDevice)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	if m.server != nil {
		return "", ErrServerRunning
	}

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", fmt.Errorf("start monitoring server: %w", err)
	}

	m.server = &http.Server{
		Handler:           m.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("monitoring server stopped", "error", err)
		}
	}()

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	m.logger.Info("monitoring simulation", "url", url)

	return url, nil
}

// StopServer shuts the web server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	err := m.server.Shutdown(ctx)
	m.server = nil

	return err
}

type nowRsp struct {
	Now     uint64 `json:"now"`
	Step    uint64 `json:"step"`
	Total   uint64 `json:"total"`
	Started bool   `json:"started"`
}

func (m *Monitor) reportNow(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	rsp := nowRsp{
		Now:     uint64(m.now),
		Step:    m.step,
		Total:   m.total,
		Started: m.stepped,
	}
	m.lock.Unlock()

	m.writeJSON(w, rsp)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]progressBarRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	m.writeJSON(w, bars)
}

func (m *Monitor) reportDevice(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	device := m.device
	m.lock.Unlock()

	if device == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("No device state captured yet"))
		m.logOnErr(err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, err := w.Write(device)
	m.logOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		m.writeErr(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		m.writeErr(w, err)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		m.writeErr(w, err)
		return
	}

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second

	if s := r.URL.Query().Get("seconds"); s != "" {
		seconds, err := strconv.ParseFloat(s, 64)
		if err != nil || seconds <= 0 || seconds > 30 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Error: invalid profile duration %q", s)

			return
		}

		duration = time.Duration(seconds * float64(time.Second))
	}

	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		m.writeErr(w, err)
		return
	}

	time.Sleep(duration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		m.writeErr(w, err)
		return
	}

	m.writeJSON(w, prof)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	if err != nil {
		m.writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	m.logOnErr(err)
}

func (m *Monitor) writeErr(w http.ResponseWriter, err error) {
	m.logger.Error("monitoring request failed", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (m *Monitor) logOnErr(err error) {
	if err != nil {
		m.logger.Warn("monitoring response not written", "error", err)
	}
}
