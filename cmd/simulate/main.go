package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	HotSlots     int // when > 0 every booking targets one of this many slots
	SlotMinutes  int
}

// normalize scales the operation ratios so they sum to one.
func (c *SimConfig) normalize() {
	total := c.BookingRatio + c.CancelRatio + c.ReadRatio
	if total > 0 {
		c.BookingRatio /= total
		c.CancelRatio /= total
		c.ReadRatio /= total
	}
}

func (c SimConfig) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be > 0")
	}
	if c.SlotMinutes <= 0 {
		return fmt.Errorf("slot-minutes must be > 0")
	}
	return nil
}

type actor struct {
	id    uuid.UUID
	token string
}

type slot struct {
	doctorID uuid.UUID
	date     scheduling.Date
	time     scheduling.TimeOfDay
}

type booking struct {
	id      uuid.UUID
	patient actor
}

type DataPool struct {
	Patients []actor
	Windows  []scheduling.Availability
	Hot      []slot

	mu       sync.Mutex
	bookings []booking
}

func (dp *DataPool) AddBooking(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

// TakeBooking removes and returns a random booking so it is cancelled once.
func (dp *DataPool) TakeBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	i := rng.Intn(len(dp.bookings))
	b := dp.bookings[i]
	dp.bookings[i] = dp.bookings[len(dp.bookings)-1]
	dp.bookings = dp.bookings[:len(dp.bookings)-1]
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&om.Error, 1)
	case status < http.StatusBadRequest:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

// Percentile returns the p-th latency, p in [0, 100].
func (om *OperationMetrics) Percentile(p int) time.Duration {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(om.latencies))
	copy(sorted, om.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := min(len(sorted)*p/100, len(sorted)-1)
	return sorted[idx]
}

type Metrics struct {
	Booking          OperationMetrics
	Cancel           OperationMetrics
	ListAppointments OperationMetrics
	Notifications    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfg SimConfig

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive concurrent bookings and cancellations against a running api-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.normalize()
			if err := cfg.validate(); err != nil {
				return err
			}
			logger := logging.New("dev", os.Getenv("LOG_LEVEL"), "simulate")
			return run(cfg, logger)
		},
	}

	cmd.Flags().StringVar(&cfg.APIBaseURL, "api", "http://localhost:8080", "Base URL of the api-server")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 30*time.Second, "How long to run")
	cmd.Flags().IntVar(&cfg.Workers, "workers", 10, "Concurrent workers")
	cmd.Flags().Float64Var(&cfg.BookingRatio, "booking", 0.6, "Share of booking operations")
	cmd.Flags().Float64Var(&cfg.CancelRatio, "cancel", 0.15, "Share of cancel operations")
	cmd.Flags().Float64Var(&cfg.ReadRatio, "read", 0.25, "Share of read operations")
	cmd.Flags().IntVar(&cfg.PatientLimit, "patients", 1000, "Patients to load")
	cmd.Flags().IntVar(&cfg.HotSlots, "hot-slots", 0, "Concentrate bookings on this many slots to exercise contention")
	cmd.Flags().IntVar(&cfg.SlotMinutes, "slot-minutes", 30, "Slot granularity inside a window")

	return cmd
}

func run(cfg SimConfig, logger zerolog.Logger) error {
	dsn := os.Getenv("POSTGRES_DSN")
	secret := os.Getenv("JWT_SECRET")
	if dsn == "" || secret == "" {
		return fmt.Errorf("POSTGRES_DSN and JWT_SECRET are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, db.PoolConfig{DSN: dsn, MaxConns: 4})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg, []byte(secret), os.Getenv("JWT_ISSUER"))
	if err != nil {
		return fmt.Errorf("load data pool: %w", err)
	}
	logger.Info().
		Int("patients", len(dataPool.Patients)).
		Int("windows", len(dataPool.Windows)).
		Int("hot_slots", len(dataPool.Hot)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}
	sim.Run()
	sim.PrintReport(os.Stdout)
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig, secret []byte, issuer string) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM users WHERE role = 'patient' LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		tok, err := auth.IssueToken(secret, issuer, scheduling.Identity{UserID: id, Role: scheduling.RolePatient}, cfg.Duration+time.Hour)
		if err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, actor{id: id, token: tok})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	repo := scheduling.NewPgRepository(pool)
	doctorRows, err := pool.Query(ctx, `SELECT DISTINCT doctor_id FROM availability`)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	var doctors []uuid.UUID
	for doctorRows.Next() {
		var id uuid.UUID
		if err := doctorRows.Scan(&id); err != nil {
			doctorRows.Close()
			return nil, err
		}
		doctors = append(doctors, id)
	}
	doctorRows.Close()

	for _, d := range doctors {
		windows, err := repo.ListAvailabilityByDoctor(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("load availability for %s: %w", d, err)
		}
		dataPool.Windows = append(dataPool.Windows, windows...)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Windows) == 0 {
		return nil, fmt.Errorf("no availability loaded")
	}

	if cfg.HotSlots > 0 {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		tomorrow := scheduling.DateOf(time.Now()).AddDays(1)
		for i := 0; i < cfg.HotSlots; i++ {
			w := dataPool.Windows[rng.Intn(len(dataPool.Windows))]
			dataPool.Hot = append(dataPool.Hot, randomSlot(rng, w, tomorrow, cfg.SlotMinutes))
		}
	}

	return dataPool, nil
}

// randomSlot picks a grid-aligned time inside w on one of the next four
// occurrences of w's weekday on or after from.
func randomSlot(rng *rand.Rand, w scheduling.Availability, from scheduling.Date, slotMinutes int) slot {
	offset := (int(w.DayOfWeek.Weekday()) - int(from.Weekday()) + 7) % 7
	date := from.AddDays(offset + 7*rng.Intn(4))

	step := slotMinutes * 60
	slots := max((int(w.EndTime)-int(w.StartTime))/step, 1)
	t := w.StartTime + scheduling.TimeOfDay(rng.Intn(slots)*step)

	return slot{doctorID: w.DoctorID, date: date, time: t}
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case rng.Intn(2) == 0:
			s.doListAppointments(ctx, rng)
		default:
			s.doNotifications(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	var target slot
	if len(s.pool.Hot) > 0 {
		target = s.pool.Hot[rng.Intn(len(s.pool.Hot))]
	} else {
		w := s.pool.Windows[rng.Intn(len(s.pool.Windows))]
		target = randomSlot(rng, w, scheduling.DateOf(time.Now()).AddDays(1), s.config.SlotMinutes)
	}

	body := map[string]string{
		"doctor_id": target.doctorID.String(),
		"date":      target.date.String(),
		"time":      target.time.String(),
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, latency, err := s.call(ctx, http.MethodPost, "/appointments", patient.token, body, &created)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Booking.Record(latency, status, err)

	if err == nil && status == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.AddBooking(booking{id: created.ID, patient: patient})
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeBooking(rng)
	if !ok {
		return
	}

	status, latency, err := s.call(ctx, http.MethodPost, "/appointments/"+b.id.String()+"/cancel", b.patient.token, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Cancel.Record(latency, status, err)
}

func (s *Simulator) doListAppointments(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	status, latency, err := s.call(ctx, http.MethodGet, "/appointments", patient.token, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.ListAppointments.Record(latency, status, err)
}

func (s *Simulator) doNotifications(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	status, latency, err := s.call(ctx, http.MethodGet, "/notifications?limit=20", patient.token, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Notifications.Record(latency, status, err)
}

func (s *Simulator) call(ctx context.Context, method, path, token string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, fmt.Errorf("decode response: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, latency, nil
}

func (s *Simulator) PrintReport(w io.Writer) {
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, "SIMULATION REPORT")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Duration: %s\n", s.config.Duration)
	fmt.Fprintf(w, "Workers: %d\n", s.config.Workers)
	if len(s.pool.Hot) > 0 {
		fmt.Fprintf(w, "Hot slots: %d\n", len(s.pool.Hot))
	}
	fmt.Fprintln(w)

	printOperationReport(w, "Booking", &s.metrics.Booking)
	printOperationReport(w, "Cancel", &s.metrics.Cancel)
	printOperationReport(w, "List appointments", &s.metrics.ListAppointments)
	printOperationReport(w, "Notifications", &s.metrics.Notifications)
}

func printOperationReport(w io.Writer, name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "  Total: %d\n", total)
	fmt.Fprintf(w, "  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Fprintf(w, "  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if failed > 0 {
		fmt.Fprintf(w, "  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Fprintf(w, "  Latency: p50=%s p95=%s p99=%s\n",
		om.Percentile(50).Round(time.Millisecond),
		om.Percentile(95).Round(time.Millisecond),
		om.Percentile(99).Round(time.Millisecond))
	fmt.Fprintln(w)
}
