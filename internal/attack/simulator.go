package attack

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"load_simulator/internal/profile"
	"load_simulator/internal/schedule"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind names a simulated attack. Nothing is sent over the network.
type Kind string

const (
	DDoS       Kind = "ddos"
	BruteForce Kind = "bruteforce"
	PortScan   Kind = "portscan"
	SQLInject  Kind = "sqlinj"
	Info       Kind = "info"
)

const (
	maxPort      = 1024
	portsPerTick = 24
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

type LogEntry struct {
	ID       string   `json:"id"`
	TS       int64    `json:"ts"`
	Type     Kind     `json:"type"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Metrics is a synthetic network/CPU reading shaped by the active attacks
type Metrics struct {
	CPU       float64       `json:"cpu"`
	NetIn     int           `json:"netIn"`
	NetOut    int           `json:"netOut"`
	Level     profile.Level `json:"level"`
	Timestamp int64         `json:"timestamp"`
}

// Event is one message on the simulator stream
type Event struct {
	Kind  string    `json:"kind"`
	Data  *Metrics  `json:"data,omitempty"`
	Entry *LogEntry `json:"entry,omitempty"`
}

// LevelSource reports the current load level
type LevelSource interface {
	Level() profile.Level
}

type Simulator struct {
	logger   *zap.Logger
	levels   LevelSource
	capacity int
	now      func() time.Time
	rng      *rand.Rand

	mu         sync.Mutex
	logs       []LogEntry
	subs       map[chan Event]struct{}
	ddos       bool
	bruteUntil time.Time
	scanUntil  time.Time
	sqlUntil   time.Time
	portCursor int
	ticker     *schedule.Task
}

func New(logger *zap.Logger, levels LevelSource, capacity int) *Simulator {
	if capacity <= 0 {
		capacity = 200
	}
	return &Simulator{
		logger:     logger.Named("attack"),
		levels:     levels,
		capacity:   capacity,
		now:        time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		subs:       make(map[chan Event]struct{}),
		portCursor: 1,
	}
}

// Start begins ticking every interval until Stop
func (s *Simulator) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return
	}
	s.ticker = schedule.Every(context.Background(), interval, func(context.Context) {
		s.Tick()
	})
	s.logger.Info("Attack simulator started", zap.Duration("interval", interval))
}

func (s *Simulator) Stop() {
	s.mu.Lock()
	t := s.ticker
	s.ticker = nil
	s.mu.Unlock()
	t.Stop()
}

// Subscribe returns a stream of events and a function that ends it.
// Slow subscribers miss events rather than block the simulator.
func (s *Simulator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// RecentLogs returns the retained log entries, oldest first
func (s *Simulator) RecentLogs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

func (s *Simulator) StartDDoS() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ddos = true
	s.emitLocked(DDoS, "DDOS attack initiated", SeverityError)
}

func (s *Simulator) StopDDoS() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ddos = false
	s.emitLocked(DDoS, "DDOS attack stopped", SeverityInfo)
}

func (s *Simulator) TriggerBruteForce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bruteUntil = s.now().Add(10 * time.Second)
	s.emitLocked(BruteForce, "Brute force wave started", SeverityWarn)
}

func (s *Simulator) TriggerPortScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanUntil = s.now().Add(10 * time.Second)
	s.portCursor = 1
	s.emitLocked(PortScan, fmt.Sprintf("Port scan initiated (1-%d)", maxPort), SeverityWarn)
}

func (s *Simulator) TriggerSQLInjection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sqlUntil = s.now().Add(8 * time.Second)
	s.emitLocked(SQLInject, "SQL injection attempts detected", SeverityError)
}

// Tick emits the log lines for every active attack and one metrics event
func (s *Simulator) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.ddos {
		for i, n := 0, 2+s.rng.Intn(3); i < n; i++ {
			s.emitLocked(DDoS, "Inbound flood detected (SYN/UDP mix)", SeverityError)
		}
	}
	if now.Before(s.bruteUntil) {
		for i, n := 0, 8+s.rng.Intn(6); i < n; i++ {
			ip := fmt.Sprintf("192.168.0.%d", 10+s.rng.Intn(200))
			s.emitLocked(BruteForce, fmt.Sprintf("Brute force attempt from %s -> Denied", ip), SeverityWarn)
		}
	}
	if now.Before(s.scanUntil) {
		for i := 0; i < portsPerTick; i++ {
			if s.portCursor > maxPort {
				s.portCursor = 1
			}
			port := s.portCursor
			s.portCursor++
			if port%2 == 0 {
				s.emitLocked(PortScan, fmt.Sprintf("Port scan on %d/tcp (Blocked)", port), SeverityInfo)
			} else {
				s.emitLocked(PortScan, fmt.Sprintf("Port scan on %d/tcp (Open? heuristic)", port), SeverityWarn)
			}
		}
	}
	if now.Before(s.sqlUntil) {
		payloads := []string{"' OR 1=1 --", "UNION SELECT user, pass", "sleep(5)#", "admin'/*"}
		payload := payloads[s.rng.Intn(len(payloads))]
		severity := SeverityWarn
		if s.rng.Float64() > 0.4 {
			severity = SeverityError
		}
		risk := int(math.Round(s.rng.Float64()*4 + 6))
		s.emitLocked(SQLInject, fmt.Sprintf("SQLi payload=%q risk=%d/10", payload, risk), severity)
	}

	m := s.sampleLocked(now)
	s.broadcastLocked(Event{Kind: "metrics", Data: &m})
}

func (s *Simulator) sampleLocked(now time.Time) Metrics {
	cpu := 10 + s.rng.Float64()*10
	base := 80 + s.rng.Float64()*60
	netIn, netOut := base, base*0.6

	if s.ddos {
		cpu += 60 + s.rng.Float64()*55
		netIn += 1600 + s.rng.Float64()*1400
		netOut += 380 + s.rng.Float64()*260
	}
	if now.Before(s.bruteUntil) {
		cpu += 22 + s.rng.Float64()*18
		netIn += 220 + s.rng.Float64()*180
	}
	if now.Before(s.scanUntil) {
		netIn += 260 + s.rng.Float64()*180
		netOut += 90 + s.rng.Float64()*70
	}
	if now.Before(s.sqlUntil) {
		cpu += 12 + s.rng.Float64()*10
		netOut += 120 + s.rng.Float64()*80
	}

	return Metrics{
		CPU:       math.Min(math.Max(cpu, 0), 99),
		NetIn:     int(math.Round(netIn)),
		NetOut:    int(math.Round(netOut)),
		Level:     s.levels.Level(),
		Timestamp: now.UnixMilli(),
	}
}

func (s *Simulator) emitLocked(kind Kind, msg string, sev Severity) {
	e := LogEntry{
		ID:       uuid.NewString(),
		TS:       s.now().UnixMilli(),
		Type:     kind,
		Message:  msg,
		Severity: sev,
	}
	s.logs = append(s.logs, e)
	if over := len(s.logs) - s.capacity; over > 0 {
		s.logs = append(s.logs[:0:0], s.logs[over:]...)
	}
	s.broadcastLocked(Event{Kind: "log", Entry: &e})
}

func (s *Simulator) broadcastLocked(ev Event) {
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
