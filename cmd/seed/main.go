package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
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

type seedOptions struct {
	doctors  int
	patients int
	admins   int
	tokens   int
	tokenTTL time.Duration
	seed     uint64
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts seedOptions

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate users and weekly availability for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"), "seed")
			return run(cmd.Context(), opts, logger)
		},
	}

	cmd.Flags().IntVar(&opts.doctors, "doctors", 20, "Number of doctors to create")
	cmd.Flags().IntVar(&opts.patients, "patients", 500, "Number of patients to create")
	cmd.Flags().IntVar(&opts.admins, "admins", 1, "Number of admins to create")
	cmd.Flags().IntVar(&opts.tokens, "tokens", 0, "Print bearer tokens for the first N users of each role (needs JWT_SECRET)")
	cmd.Flags().DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "Lifetime of printed tokens")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Faker seed, 0 for a random one")

	return cmd
}

func run(ctx context.Context, opts seedOptions, logger zerolog.Logger) error {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	secret := os.Getenv("JWT_SECRET")
	if opts.tokens > 0 && secret == "" {
		return fmt.Errorf("JWT_SECRET is required to print tokens")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connectCtx, db.PoolConfig{DSN: dsn, MaxConns: 4})
	cancel()
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	seed := opts.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	faker := gofakeit.New(seed)

	doctors := fakeUsers(faker, scheduling.RoleDoctor, opts.doctors)
	patients := fakeUsers(faker, scheduling.RolePatient, opts.patients)
	admins := fakeUsers(faker, scheduling.RoleAdmin, opts.admins)

	for _, group := range [][]scheduling.User{doctors, patients, admins} {
		if err := insertUsers(ctx, pool, group); err != nil {
			return err
		}
	}
	logger.Info().
		Int("doctors", len(doctors)).
		Int("patients", len(patients)).
		Int("admins", len(admins)).
		Msg("users seeded")

	repo := scheduling.NewPgRepository(pool)
	windows := 0
	for _, d := range doctors {
		for _, w := range weeklyWindows(faker, d.ID) {
			if _, err := repo.InsertAvailability(ctx, w); err != nil {
				return fmt.Errorf("insert availability for %s: %w", d.ID, err)
			}
			windows++
		}
	}
	logger.Info().Int("windows", windows).Msg("availability seeded")

	if opts.tokens > 0 {
		for _, group := range [][]scheduling.User{doctors, patients, admins} {
			if err := printTokens(os.Stdout, []byte(secret), group, opts.tokens, opts.tokenTTL); err != nil {
				return err
			}
		}
	}

	logger.Info().Uint64("seed", seed).Msg("seed complete")
	return nil
}

func fakeUsers(faker *gofakeit.Faker, role scheduling.Role, count int) []scheduling.User {
	users := make([]scheduling.User, 0, count)
	for i := 0; i < count; i++ {
		users = append(users, scheduling.User{
			ID:          uuid.New(),
			DisplayName: faker.FirstName() + " " + faker.LastName(),
			Role:        role,
		})
	}
	return users
}

func insertUsers(ctx context.Context, pool *pgxpool.Pool, users []scheduling.User) error {
	const batchSize = 500

	for offset := 0; offset < len(users); offset += batchSize {
		end := min(offset+batchSize, len(users))

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for _, u := range users[offset:end] {
			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, display_name, role, created_at)
				VALUES ($1, $2, $3, now())
			`, u.ID, u.DisplayName, string(u.Role))
			if err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("insert %s %s: %w", u.Role, u.ID, err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

var workdays = []scheduling.DayOfWeek{
	scheduling.Monday,
	scheduling.Tuesday,
	scheduling.Wednesday,
	scheduling.Thursday,
	scheduling.Friday,
}

// weeklyWindows gives a doctor a morning block on some workdays and an
// afternoon block on others. Blocks for one day never overlap.
func weeklyWindows(faker *gofakeit.Faker, doctorID uuid.UUID) []scheduling.Availability {
	var out []scheduling.Availability
	for _, day := range workdays {
		if faker.Number(0, 4) == 0 {
			continue
		}

		morningStart := faker.Number(7, 9)
		morningEnd := morningStart + faker.Number(2, 3)
		out = append(out, scheduling.Availability{
			ID:        uuid.New(),
			DoctorID:  doctorID,
			DayOfWeek: day,
			StartTime: scheduling.NewTimeOfDay(morningStart, 0),
			EndTime:   scheduling.NewTimeOfDay(morningEnd, 0),
		})

		if faker.Bool() {
			afternoonStart := faker.Number(13, 14)
			out = append(out, scheduling.Availability{
				ID:        uuid.New(),
				DoctorID:  doctorID,
				DayOfWeek: day,
				StartTime: scheduling.NewTimeOfDay(afternoonStart, 0),
				EndTime:   scheduling.NewTimeOfDay(afternoonStart+faker.Number(2, 4), 0),
			})
		}
	}
	return out
}

func printTokens(w io.Writer, secret []byte, users []scheduling.User, limit int, ttl time.Duration) error {
	for _, u := range users[:min(limit, len(users))] {
		tok, err := auth.IssueToken(secret, os.Getenv("JWT_ISSUER"), scheduling.Identity{UserID: u.ID, Role: u.Role}, ttl)
		if err != nil {
			return fmt.Errorf("issue token for %s: %w", u.ID, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Role, u.ID, u.DisplayName, tok)
	}
	return nil
}
