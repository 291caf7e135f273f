package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/tailor-checkout/internal/claim"
	"github.com/d60-Lab/tailor-checkout/internal/model"
	"github.com/d60-Lab/tailor-checkout/internal/repository"
)

// 浏览器回调与 webhook 同时到达时的认领压测
func main() {
	ctx := context.Background()

	const (
		references  = 5000
		concurrency = 32
	)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		mr := must(miniredis.Run())
		defer mr.Close()
		redisAddr = mr.Addr()
		fmt.Println("REDIS_ADDR not set, using in-process miniredis")
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
	}

	db := openDB()
	mustDo(repository.InitSchema(db))
	mustDo(db.Exec("DELETE FROM order_claims").Error)

	refs := make([]string, references)
	for i := range refs {
		refs[i] = "BENCH-" + uuid.NewString()
	}

	redisRes := run(ctx, claim.NewRedisStore(client, time.Hour), refs, concurrency)
	dbRes := run(ctx, repository.NewClaimRepository(db), refs, concurrency)

	fmt.Printf("\nDual-path claims (%d references x 2 paths, %d workers)\n", references, concurrency)
	report("Redis SETNX", redisRes)
	report("DB primary key", dbRes)

	// 清理 bench 数据
	for _, ref := range refs {
		client.Del(ctx, "checkout:claim:"+ref, "checkout:claim:"+ref+":state")
	}
	mustDo(db.Exec("DELETE FROM order_claims WHERE reference LIKE 'BENCH-%'").Error)
}

type result struct {
	durations  []time.Duration
	winners    int64
	duplicates int64
	errors     int64
	multiWin   int64
}

type job struct {
	ref   string
	owner string
}

func run(ctx context.Context, store claim.Store, refs []string, workers int) result {
	fmt.Print("  Running benchmark...")
	jobs := make(chan job, workers)
	wins := make(map[string]*atomic.Int32, len(refs))
	for _, r := range refs {
		wins[r] = &atomic.Int32{}
	}

	var (
		mu  sync.Mutex
		res result
		wg  sync.WaitGroup
	)
	res.durations = make([]time.Duration, 0, len(refs)*2)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]time.Duration, 0, 256)
			for j := range jobs {
				start := time.Now()
				won, err := store.Claim(ctx, j.ref, j.owner)
				local = append(local, time.Since(start))
				switch {
				case err != nil:
					atomic.AddInt64(&res.errors, 1)
				case won:
					atomic.AddInt64(&res.winners, 1)
					wins[j.ref].Add(1)
				default:
					atomic.AddInt64(&res.duplicates, 1)
				}
			}
			mu.Lock()
			res.durations = append(res.durations, local...)
			mu.Unlock()
		}()
	}

	for _, r := range refs {
		jobs <- job{ref: r, owner: model.SourceBrowser}
		jobs <- job{ref: r, owner: model.SourceWebhook}
	}
	close(jobs)
	wg.Wait()
	fmt.Println(" done")

	for _, w := range wins {
		if w.Load() > 1 {
			res.multiWin++
		}
	}
	return res
}

func report(name string, r result) {
	fmt.Printf("%-16s avg=%v p95=%v p99=%v winners=%d duplicates=%d errors=%d double_commits=%d\n",
		name, avg(r.durations), pct(r.durations, 0.95), pct(r.durations, 0.99),
		r.winners, r.duplicates, r.errors, r.multiWin,
	)
}

func openDB() *gorm.DB {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return must(gorm.Open(postgres.Open(dsn), cfg))
	}
	db := must(gorm.Open(sqlite.Open("file:claimbench.db?_busy_timeout=5000"), cfg))
	sqlDB := must(db.DB())
	sqlDB.SetMaxOpenConns(1)
	return db
}

func avg(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

func pct(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	cp := append([]time.Duration(nil), d...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	idx := int(float64(len(cp)-1) * p)
	return cp[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
