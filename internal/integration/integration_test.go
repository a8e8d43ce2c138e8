package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gymkana-live-service/internal/app"
	"gymkana-live-service/internal/domain"
	pgstore "gymkana-live-service/internal/infra/postgres"
	pgmigrations "gymkana-live-service/internal/infra/postgres/migrations"
	infraredis "gymkana-live-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestVoteAndRankingEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedEvent(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	store := pgstore.NewStore(pool)
	catalog := infraredis.NewCatalog(redisClient, pgstore.NewCatalogLoader(pool), 5*time.Minute)
	notifier := infraredis.NewNotifier(redisClient)
	service := app.NewLiveService(store, catalog, notifier)

	// Board watchers get signalled over redis pub/sub when votes land.
	rankings, cancel, err := service.WatchRanking(ctx, "event-1")
	if err != nil {
		t.Fatalf("watch ranking: %v", err)
	}
	defer cancel()
	initial := recvRanking(t, rankings)
	if len(initial.Scores) != 2 {
		t.Fatalf("expected 2 teams on the board, got %d", len(initial.Scores))
	}

	response, err := service.SubmitResponse(ctx, domain.ResponseDraft{
		ChallengeID: "challenge-1",
		TeamID:      "team-alpha",
		UserName:    "ana",
		Content:     "photo of the fountain",
		Type:        domain.MediaImage,
	})
	if err != nil {
		t.Fatalf("submit response: %v", err)
	}

	if _, err := service.CastVote(ctx, response.ID, "casey", "team-bravo"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	_, err = service.CastVote(ctx, response.ID, "casey", "team-bravo")
	if !errors.Is(err, domain.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted on repeat, got %v", err)
	}

	scores, err := service.ComputeRankings(ctx, "event-1")
	if err != nil {
		t.Fatalf("rankings: %v", err)
	}
	alpha := findScore(t, scores, "team-alpha")
	if alpha.TotalPoints != 10+domain.VotePointBonus {
		t.Fatalf("expected alpha at %d points, got %d", 10+domain.VotePointBonus, alpha.TotalPoints)
	}
	if alpha.CompletedChallenges != 1 || alpha.TotalVotes != 1 {
		t.Fatalf("expected 1 completion and 1 vote, got %+v", alpha)
	}
	if scores[0].TeamID != "team-alpha" {
		t.Fatalf("expected alpha leading, got %+v", scores)
	}

	feed, err := service.ProjectFeed(ctx, "challenge-1")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed) != 1 || feed[0].TeamName != "Alpha" || feed[0].VotesCount != 1 {
		t.Fatalf("unexpected feed: %+v", feed)
	}

	// The watch re-fetches after the response and vote signals; keep
	// reading until the voted score shows up.
	deadline := time.After(10 * time.Second)
	for {
		select {
		case snapshot, ok := <-rankings:
			if !ok {
				t.Fatalf("ranking stream closed early")
			}
			if findScore(t, snapshot.Scores, "team-alpha").TotalVotes == 1 {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for updated ranking snapshot")
		}
	}
}

func TestDuplicateVoteRaceSingleWinner(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	seedEvent(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := pgstore.NewStore(pool)

	response, err := store.InsertResponse(ctx, domain.Response{
		ChallengeID: "challenge-1", TeamID: "team-alpha", UserName: "ana", Content: "x", Type: domain.MediaImage,
	})
	if err != nil {
		t.Fatalf("insert response: %v", err)
	}

	// Hammer the unique index concurrently; exactly one insert wins and
	// votes_count ends at 1.
	const attempts = 8
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := store.InsertVote(ctx, domain.Vote{ResponseID: response.ID, VoterName: "casey"})
			results <- err
		}()
	}
	wins := 0
	for i := 0; i < attempts; i++ {
		err := <-results
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrDuplicateVote):
		default:
			t.Fatalf("unexpected vote error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning vote, got %d", wins)
	}

	got, err := store.ResponseByID(ctx, response.ID)
	if err != nil {
		t.Fatalf("response by id: %v", err)
	}
	if got.VotesCount != 1 {
		t.Fatalf("expected votes_count 1, got %d", got.VotesCount)
	}
}

func recvRanking(t *testing.T, ch <-chan domain.RankingSnapshot) domain.RankingSnapshot {
	t.Helper()
	select {
	case snapshot, ok := <-ch:
		if !ok {
			t.Fatalf("ranking stream closed")
		}
		return snapshot
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for ranking snapshot")
		return domain.RankingSnapshot{}
	}
}

func findScore(t *testing.T, scores []domain.TeamScore, teamID string) domain.TeamScore {
	t.Helper()
	for _, score := range scores {
		if score.TeamID == teamID {
			return score
		}
	}
	t.Fatalf("team %s not on the board: %+v", teamID, scores)
	return domain.TeamScore{}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "gymkana", "POSTGRES_PASSWORD": "gymkanapass", "POSTGRES_DB": "gymkanadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://gymkana:gymkanapass@%s:%s/gymkanadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedEvent(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stmts := []string{
		`INSERT INTO teams (id, event_id, name, color) VALUES ('team-alpha', 'event-1', 'Alpha', '#112233') ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO teams (id, event_id, name, color) VALUES ('team-bravo', 'event-1', 'Bravo', '#445566') ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO challenges (id, event_id, title, type, points, "order") VALUES ('challenge-1', 'event-1', 'Photo hunt', 'image', 10, 1) ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO challenges (id, event_id, title, type, points, "order") VALUES ('challenge-2', 'event-1', 'Slogan', 'text', 5, 2) ON CONFLICT (id) DO NOTHING`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
